// Command sentinel runs the tool-call security runtime as a standalone
// service: a small set of demonstration tools registered at each blast
// radius, and the HTTP admin surface for operating it.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fitsec/sentinel/pkg/audit"
	"github.com/fitsec/sentinel/pkg/config"
	"github.com/fitsec/sentinel/pkg/httpadmin"
	"github.com/fitsec/sentinel/pkg/logging"
	"github.com/fitsec/sentinel/pkg/policy"
	"github.com/fitsec/sentinel/pkg/runtime"
	"github.com/fitsec/sentinel/pkg/secureregistry"
)

func main() {
	configPath := flag.String("config", "", "path to a sentinel config YAML file")
	bind := flag.String("bind", "", "override the HTTP admin bind address")
	adminToken := flag.String("admin-token", "", "override the httpadmin bearer token")
	logDir := flag.String("log-dir", "", "directory for structured operational event logs (disabled if empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *bind != "" {
		cfg.HTTPBind = *bind
	}
	if *adminToken != "" {
		cfg.HTTPAdminToken = *adminToken
	}

	opts := []runtime.Option{}
	if cfg.AuditPath != "" {
		auditLogger, err := auditLoggerFromPath(cfg.AuditPath)
		if err != nil {
			log.Fatalf("open audit log: %v", err)
		}
		opts = append(opts, runtime.WithAuditLogger(auditLogger))
	}
	if cfg.RiskPolicyPath != "" {
		scorer := policy.NewRiskScorer()
		if err := scorer.LoadYAMLFile(cfg.RiskPolicyPath); err != nil {
			log.Fatalf("load risk policy: %v", err)
		}
		opts = append(opts, runtime.WithRiskScorer(scorer))
	}
	if *logDir != "" {
		eventLogger, err := logging.NewLogger(*logDir)
		if err != nil {
			log.Fatalf("open event log: %v", err)
		}
		defer eventLogger.Close()
		opts = append(opts, runtime.WithLogger(eventLogger))
	}

	rt := runtime.New(cfg.StrictMode, cfg.DefaultOmega2Deny, opts...)

	if cfg.PolicyPath != "" {
		if err := rt.Policy.LoadDocumentFile(cfg.PolicyPath); err != nil {
			log.Fatalf("load policy document: %v", err)
		}
	}

	registerDemoTools(rt)

	admin := httpadmin.New(rt, cfg.HTTPAdminToken)
	log.Printf("sentinel admin surface listening on %s", cfg.HTTPBind)

	go func() {
		if err := admin.ListenAndServe(cfg.HTTPBind); err != nil {
			log.Fatalf("admin server: %v", err)
		}
	}()

	waitForShutdown()
}

func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("shutting down")
}

func auditLoggerFromPath(path string) (*audit.Logger, error) {
	return audit.NewWithFile(path)
}

// registerDemoTools wires the three canonical tool tiers from spec.md's
// end-to-end scenarios: a safe read, a reversible write, and an
// irreversible shell exec.
func registerDemoTools(rt *runtime.Runtime) {
	reg := secureregistry.New(rt, nil)

	reg.Register(demoTool{
		name: "read_file",
		desc: "Read a file from the workspace.",
		fn: func(action string, args map[string]any) (any, error) {
			path, _ := args["path"].(string)
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			return string(data), nil
		},
	}, nil)

	reg.Register(demoTool{
		name: "write_file",
		desc: "Write a file in the workspace.",
		fn: func(action string, args map[string]any) (any, error) {
			path, _ := args["path"].(string)
			content, _ := args["content"].(string)
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return nil, err
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
		},
	}, nil)

	reg.Register(demoTool{
		name: "exec",
		desc: "Run a shell command.",
		fn: func(action string, args map[string]any) (any, error) {
			return nil, fmt.Errorf("exec is disabled in the demo wiring")
		},
	}, nil)
}

// demoTool adapts a plain function into secureregistry.Tool.
type demoTool struct {
	name string
	desc string
	fn   func(action string, args map[string]any) (any, error)
}

func (t demoTool) Name() string        { return t.name }
func (t demoTool) Description() string { return t.desc }
func (t demoTool) Execute(action string, args map[string]any) (any, error) {
	return t.fn(action, args)
}
