package sanitize

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/cel-go/cel"
)

// maxWhenExpressionLength bounds a rule's optional CEL condition, mirroring
// the limit the upstream policy evaluator enforces on its expressions.
const maxWhenExpressionLength = 1024

// maxWhenNestingDepth bounds bracket/paren nesting in a when-clause.
const maxWhenNestingDepth = 50

// maxWhenCostBudget caps CEL runtime cost to avoid a pathological rule
// turning pattern matching into a denial-of-service vector.
const maxWhenCostBudget = 100_000

// whenEvalTimeout bounds a single when-clause evaluation.
const whenEvalTimeout = 5 * time.Second

// RuleAction selects what happens when a PatternMatcher rule matches.
type RuleAction string

const (
	ActionReject RuleAction = "reject"
	ActionStrip  RuleAction = "strip"
	ActionLog    RuleAction = "log"
)

// RuleConfig describes one configured pattern rule.
type RuleConfig struct {
	Name     string
	Pattern  string
	Action   RuleAction
	Severity string
	// When, if non-empty, is a CEL expression over the variable `context`
	// (the optional context string passed to Check) that must evaluate to
	// true for the rule to apply. Absent a When clause the rule always
	// applies.
	When string
}

type compiledRule struct {
	RuleConfig
	re  *regexp.Regexp
	prg cel.Program
}

// Match describes one rule that fired during a Check call.
type Match struct {
	Name     string
	Severity string
}

// CheckResult is the outcome of PatternMatcher.Check.
type CheckResult struct {
	Allowed   bool
	Matches   []Match
	Sanitized string
}

// PatternMatcher evaluates a configured, ordered list of regex rules with
// per-rule action and an optional CEL-gated condition.
type PatternMatcher struct {
	rules []compiledRule
	env   *cel.Env
}

// NewPatternMatcher compiles all rules at construction. A rule with a regex
// that fails to compile, or a When clause that fails validation, is a fatal
// configuration error.
func NewPatternMatcher(configs []RuleConfig) (*PatternMatcher, error) {
	env, err := newWhenEnv()
	if err != nil {
		return nil, fmt.Errorf("pattern matcher: building CEL environment: %w", err)
	}

	pm := &PatternMatcher{env: env}
	for _, cfg := range configs {
		re, err := regexp.Compile("(?i)" + cfg.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern matcher: rule %q: invalid regex: %w", cfg.Name, err)
		}

		cr := compiledRule{RuleConfig: cfg, re: re}
		if cfg.When != "" {
			prg, err := pm.compileWhen(cfg.When)
			if err != nil {
				return nil, fmt.Errorf("pattern matcher: rule %q: invalid when clause: %w", cfg.Name, err)
			}
			cr.prg = prg
		}
		pm.rules = append(pm.rules, cr)
	}
	return pm, nil
}

func newWhenEnv() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("context", cel.StringType))
}

func (pm *PatternMatcher) compileWhen(expr string) (cel.Program, error) {
	if len(expr) > maxWhenExpressionLength {
		return nil, fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxWhenExpressionLength)
	}
	if err := validateWhenNesting(expr); err != nil {
		return nil, err
	}

	ast, issues := pm.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := pm.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxWhenCostBudget),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}
	return prg, nil
}

func validateWhenNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxWhenNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxWhenNestingDepth)
	}
	return nil
}

func (pm *PatternMatcher) whenApplies(cr compiledRule, ctxStr string) bool {
	if cr.prg == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), whenEvalTimeout)
	defer cancel()

	result, _, err := cr.prg.ContextEval(ctx, map[string]interface{}{"context": ctxStr})
	if err != nil {
		return false
	}
	b, ok := result.Value().(bool)
	return ok && b
}

// Check evaluates every configured rule against s in order. A rule whose
// When clause does not apply to the supplied context is skipped entirely —
// it neither matches nor sanitizes.
func (pm *PatternMatcher) Check(s string, context string) CheckResult {
	result := CheckResult{Allowed: true, Sanitized: s}

	for _, cr := range pm.rules {
		if !pm.whenApplies(cr, context) {
			continue
		}
		if !cr.re.MatchString(result.Sanitized) {
			continue
		}

		result.Matches = append(result.Matches, Match{Name: cr.Name, Severity: cr.Severity})

		switch cr.Action {
		case ActionReject:
			result.Allowed = false
		case ActionStrip:
			result.Sanitized = cr.re.ReplaceAllString(result.Sanitized, "")
		case ActionLog:
			// record only; text unchanged
		}
	}

	return result
}
