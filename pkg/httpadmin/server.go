// Package httpadmin exposes the runtime's operator surface over HTTP:
// status, audit queries, Prometheus metrics, and the emptiness/emergency/
// approval control routes. Ambient CLI/operator wiring, not a security
// primitive in its own right — the runtime enforces policy regardless of
// whether this server is ever started.
package httpadmin

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fitsec/sentinel/pkg/runtime"
)

// Server wraps a chi.Router bound to a runtime.Runtime. When a bearer token
// is configured, every route except /metrics requires it — including
// /status, /audit and every route that can change runtime state (emergency
// stop/clear, approval grant/revoke, policy block/unblock, emptiness
// enter/exit). This is the one surface that can silence the emergency gate
// and grant Omega2 approvals; only /metrics is left open.
type Server struct {
	rt     *runtime.Runtime
	token  string
	Router chi.Router
}

// New builds the admin server's router bound to token, the bearer token
// required on every route except /metrics. An empty token means the
// server trusts its bind address alone (see ListenAndServe's fail-closed
// check) — intended only for a loopback-bound, single-operator deployment,
// matching the teacher's ipc.Server.validateStartupConfig discipline of
// refusing to bind a non-loopback address without authentication.
func New(rt *runtime.Runtime, token string) *Server {
	s := &Server{rt: rt, token: token}

	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.authMiddleware)

	r.Get("/status", s.handleStatus)
	r.Get("/audit", s.handleAudit)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/emptiness", func(r chi.Router) {
		r.Post("/enter", s.handleEmptinessEnter)
		r.Post("/exit", s.handleEmptinessExit)
	})

	r.Route("/emergency", func(r chi.Router) {
		r.Post("/stop", s.handleEmergencyStop)
		r.Post("/clear", s.handleEmergencyClear)
	})

	r.Route("/approvals/{tool_id}", func(r chi.Router) {
		r.Post("/grant", s.handleApprovalGrant)
		r.Delete("/", s.handleApprovalRevoke)
	})

	r.Route("/policy", func(r chi.Router) {
		r.Post("/block/{tool_id}", s.handlePolicyBlock)
		r.Delete("/block/{tool_id}", s.handlePolicyUnblock)
	})

	s.Router = r
	return s
}

// ListenAndServe starts the HTTP admin surface on addr. It refuses to bind
// a non-loopback address without a configured token, mirroring the
// teacher's refusal to bind IPC without authentication.
func (s *Server) ListenAndServe(addr string) error {
	if s.token == "" && !isLoopbackBindAddress(addr) {
		return errors.New("refusing to bind httpadmin to " + addr + " without an admin token (set http_admin_token)")
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}

// isLoopbackBindAddress reports whether addr resolves to a loopback host.
func isLoopbackBindAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	switch strings.ToLower(host) {
	case "localhost":
		return true
	case "0.0.0.0", "::":
		return false
	default:
		ip := net.ParseIP(host)
		if ip == nil {
			return false
		}
		return ip.IsLoopback()
	}
}

// authMiddleware requires a matching "Bearer <token>" Authorization header
// on every route except /metrics, which stays open for Prometheus scraping.
// A server constructed with an empty token (loopback-only deployment per
// ListenAndServe's check) allows every request through unchanged.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="sentinel-admin"`)
			respondError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		presented := strings.TrimPrefix(authHeader, prefix)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="sentinel-admin"`)
			respondError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware converts a handler panic into a 500 response instead
// of crashing the admin server.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				respondError(w, http.StatusInternalServerError, errPanic(rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type panicError struct{ value any }

func (e panicError) Error() string { return http.StatusText(http.StatusInternalServerError) + ": handler panicked" }

func errPanic(v any) error { return panicError{value: v} }

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.rt.GetStatus())
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	toolID := q.Get("tool_id")
	decision := q.Get("decision")
	limit := 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	respondJSON(w, http.StatusOK, s.rt.Audit.Entries(limit, toolID, decision))
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleEmptinessEnter(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "manual"
	}
	s.rt.EnterEmptiness(req.Reason)
	respondJSON(w, http.StatusOK, s.rt.GetStatus().Emptiness)
}

type exitEmptinessRequest struct {
	RequireReview bool `json:"require_review"`
}

func (s *Server) handleEmptinessExit(w http.ResponseWriter, r *http.Request) {
	var req exitEmptinessRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	packet, generated := s.rt.ExitEmptiness(req.RequireReview)
	respondJSON(w, http.StatusOK, map[string]any{
		"review_packet_generated": generated,
		"review_packet":           packet,
	})
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "manual"
	}
	s.rt.EmergencyStop(req.Reason)
	respondJSON(w, http.StatusOK, s.rt.GetStatus())
}

func (s *Server) handleEmergencyClear(w http.ResponseWriter, r *http.Request) {
	s.rt.EmergencyClear()
	respondJSON(w, http.StatusOK, s.rt.GetStatus())
}

type grantRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

func (s *Server) handleApprovalGrant(w http.ResponseWriter, r *http.Request) {
	toolID := chi.URLParam(r, "tool_id")
	var req grantRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.DurationSeconds <= 0 {
		req.DurationSeconds = 300
	}
	s.rt.GrantApproval(toolID, time.Duration(req.DurationSeconds)*time.Second)
	respondJSON(w, http.StatusOK, map[string]any{"tool_id": toolID, "granted_for_seconds": req.DurationSeconds})
}

func (s *Server) handleApprovalRevoke(w http.ResponseWriter, r *http.Request) {
	toolID := chi.URLParam(r, "tool_id")
	s.rt.RevokeApproval(toolID)
	respondJSON(w, http.StatusOK, map[string]any{"tool_id": toolID, "revoked": true})
}

func (s *Server) handlePolicyBlock(w http.ResponseWriter, r *http.Request) {
	toolID := chi.URLParam(r, "tool_id")
	s.rt.BlockTool(toolID)
	respondJSON(w, http.StatusOK, map[string]any{"tool_id": toolID, "blocked": true})
}

func (s *Server) handlePolicyUnblock(w http.ResponseWriter, r *http.Request) {
	toolID := chi.URLParam(r, "tool_id")
	s.rt.UnblockTool(toolID)
	respondJSON(w, http.StatusOK, map[string]any{"tool_id": toolID, "blocked": false})
}
