package workers

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/shardfleet/shardfleet/internal/config"
	"github.com/shardfleet/shardfleet/internal/notification"
)

// Filter decides which platform events become notifications.
//
// Each non-empty allow-list must contain the event's value, compared
// case-insensitively. An event with a blank Severity is not rejected by the
// severity list. The optional expression is evaluated last, with the variables
// source, event_type, severity and tenant_id.
type Filter struct {
	sources    map[string]struct{}
	eventTypes map[string]struct{}
	severities map[string]struct{}
	program    cel.Program
	expression string
}

// NewFilter compiles cfg. The expression must evaluate to bool.
func NewFilter(cfg config.FilterConfig) (*Filter, error) {
	f := &Filter{
		sources:    allowSet(cfg.AllowedSources),
		eventTypes: allowSet(cfg.AllowedEventTypes),
		severities: allowSet(cfg.AllowedSeverities),
		expression: strings.TrimSpace(cfg.Expression),
	}

	if f.expression == "" {
		return f, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("source", cel.StringType),
		cel.Variable("event_type", cel.StringType),
		cel.Variable("severity", cel.StringType),
		cel.Variable("tenant_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("filter env: %w", err)
	}

	ast, issues := env.Compile(f.expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile filter expression: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter expression must return bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast, cel.EvalOptions(cel.OptOptimize))
	if err != nil {
		return nil, fmt.Errorf("filter program: %w", err)
	}
	f.program = prg

	return f, nil
}

func allowSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[strings.ToLower(v)] = struct{}{}
		}
	}
	return set
}

func allowed(set map[string]struct{}, value string) bool {
	if len(set) == 0 {
		return true
	}
	_, ok := set[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// Allow reports whether env passes the filter. An error means the expression
// could not be evaluated for this event.
func (f *Filter) Allow(env notification.Envelope) (bool, error) {
	if !allowed(f.sources, env.Source) {
		return false, nil
	}
	if !allowed(f.eventTypes, env.EventType) {
		return false, nil
	}
	if strings.TrimSpace(env.Severity) != "" && !allowed(f.severities, env.Severity) {
		return false, nil
	}

	if f.program == nil {
		return true, nil
	}

	out, _, err := f.program.Eval(map[string]interface{}{
		"source":     env.Source,
		"event_type": env.EventType,
		"severity":   env.Severity,
		"tenant_id":  env.TenantID,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", f.expression, err)
	}

	pass, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluate %q: result is %T, not bool", f.expression, out.Value())
	}
	return pass, nil
}
