package policy

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fitsec/sentinel/pkg/secmodel"
)

// RiskCondition names one of the six pattern classes a risk rule can
// match against a tool call's args. Detection is regex-based, same
// families the teacher's policy engine uses for its category rules.
type RiskCondition string

const (
	ConditionTouchesSecrets    RiskCondition = "touches_secrets"
	ConditionDestructive       RiskCondition = "destructive"
	ConditionNetworkEgress     RiskCondition = "network_egress"
	ConditionGitMutating       RiskCondition = "git_mutating"
	ConditionConfigWriting     RiskCondition = "config_writing"
	ConditionPackageInstalling RiskCondition = "package_installing"
)

var conditionPatterns = map[RiskCondition]*regexp.Regexp{
	ConditionTouchesSecrets:    regexp.MustCompile(`(?i)(secret|password|token|api[_-]?key|credential|\.env)`),
	ConditionDestructive:       regexp.MustCompile(`(?i)(rm\s+-rf|drop\s+table|truncate|delete\s+from|force\s*push|--force)`),
	ConditionNetworkEgress:     regexp.MustCompile(`(?i)(https?://|curl\s|wget\s|nc\s|socket)`),
	ConditionGitMutating:       regexp.MustCompile(`(?i)(git\s+(push|reset|rebase|checkout\s+--force))`),
	ConditionConfigWriting:     regexp.MustCompile(`(?i)(\.ya?ml$|\.toml$|/etc/|config)`),
	ConditionPackageInstalling: regexp.MustCompile(`(?i)(pip\s+install|npm\s+install|go\s+get|apt-get\s+install|brew\s+install)`),
}

// RiskRule maps a matched condition to a score contribution and a
// human-readable reason template.
type RiskRule struct {
	Condition RiskCondition `yaml:"condition"`
	Score     int           `yaml:"score"`
	Reason    string        `yaml:"reason"`
}

// riskDocument is the §6.1 extended policy YAML shape.
type riskDocument struct {
	RiskRules []RiskRule `yaml:"risk_rules"`
}

// RiskScorer is the optional advisory risk-scoring extension (§4.3.1).
// It never changes a PolicyDecision's Outcome — only RiskScore/RiskReasons.
type RiskScorer struct {
	rules []RiskRule
}

// NewRiskScorer creates a scorer with no rules configured (Score always
// produces zero until rules are loaded).
func NewRiskScorer() *RiskScorer {
	return &RiskScorer{}
}

// LoadYAML loads risk rules from a §6.1-shaped YAML document.
func (r *RiskScorer) LoadYAML(data []byte) error {
	var doc riskDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse risk scoring document: %w", err)
	}
	r.rules = doc.RiskRules
	return nil
}

// LoadYAMLFile reads and loads risk rules from path.
func (r *RiskScorer) LoadYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read risk scoring document: %w", err)
	}
	return r.LoadYAML(data)
}

// Score inspects call's args/action text against every configured rule's
// condition and returns the summed score plus the matched reasons, in
// rule-declaration order.
func (r *RiskScorer) Score(call secmodel.ToolCall) (int, []string) {
	haystack := argsText(call)

	var total int
	var reasons []string
	for _, rule := range r.rules {
		pattern, ok := conditionPatterns[rule.Condition]
		if !ok {
			continue
		}
		if pattern.MatchString(haystack) {
			total += rule.Score
			reason := rule.Reason
			if reason == "" {
				reason = string(rule.Condition)
			}
			reasons = append(reasons, reason)
		}
	}
	return total, reasons
}

// Annotate attaches RiskScore/RiskReasons to decision in place, without
// touching Outcome, BlastRadius, GateStatus, or Rationale.
func (r *RiskScorer) Annotate(decision *secmodel.PolicyDecision, call secmodel.ToolCall) {
	score, reasons := r.Score(call)
	decision.RiskScore = score
	decision.RiskReasons = reasons
}

// argsText flattens a call's action and args into a single string for
// regex matching, mirroring the teacher's flatten-then-match approach.
func argsText(call secmodel.ToolCall) string {
	var b strings.Builder
	b.WriteString(call.Action)
	for k, v := range call.Args {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		fmt.Fprintf(&b, "%v", v)
	}
	return b.String()
}
