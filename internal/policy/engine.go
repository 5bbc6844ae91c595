// Package policy provides the CEL-Go based policy override engine.
//
// Policies are tenant-defined expressions evaluated after scoring.
// A matched policy contributes a bounded score adjustment with a
// human-readable reason, letting operators tune engine output without
// redeploying detectors.
package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/harrier/internal/domain"
)

// Adjustments outside this range are rejected at load time.
const maxAdjustment = 50.0

// Engine compiles and evaluates policy overrides.
type Engine struct {
	mu               sync.RWMutex
	env              *cel.Env
	compiledPolicies map[string]*CompiledPolicy
	maxWorkers       int
}

// CompiledPolicy holds a pre-compiled CEL program.
type CompiledPolicy struct {
	Config  *domain.PolicyConfig
	Program cel.Program
}

// NewEngine creates a policy engine. Expressions see the composite
// score, the feature vector and a few common transaction fields.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("features", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("source_account", cel.StringType),
		cel.Variable("destination_account", cel.StringType),
		cel.Variable("geo_location", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:              env,
		compiledPolicies: make(map[string]*CompiledPolicy),
		maxWorkers:       maxWorkers,
	}, nil
}

// ValidatePolicy compiles and validates a policy without mutating the
// loaded set.
func (e *Engine) ValidatePolicy(cfg *domain.PolicyConfig) error {
	if cfg == nil {
		return fmt.Errorf("policy config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compilePolicy(cfg)
	return err
}

// LoadPolicy compiles and loads a policy into the engine.
func (e *Engine) LoadPolicy(cfg *domain.PolicyConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compilePolicy(cfg)
	if err != nil {
		return err
	}

	e.compiledPolicies[cfg.ID] = compiled

	return nil
}

// LoadPolicies compiles and loads all enabled policies.
func (e *Engine) LoadPolicies(configs []*domain.PolicyConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadPolicy(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadPolicies atomically replaces the loaded set with the enabled
// policies from configs. This enables hot-reloading from storage.
func (e *Engine) ReloadPolicies(configs []*domain.PolicyConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newPolicies := make(map[string]*CompiledPolicy)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compilePolicy(cfg)
		if err != nil {
			return err
		}
		newPolicies[cfg.ID] = compiled
	}

	e.compiledPolicies = newPolicies

	return nil
}

// EvaluateInput carries the scored transaction for policy evaluation.
type EvaluateInput struct {
	TenantID string
	Score    float64
	Features domain.FeatureVector
	Tx       *domain.TransactionInput
}

// EvaluateAll evaluates every loaded policy in parallel and returns one
// result per policy. A policy evaluation error is recorded in its
// result, never propagated; policies cannot break detection.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) []domain.PolicyResult {
	e.mu.RLock()
	policies := make([]*CompiledPolicy, 0, len(e.compiledPolicies))
	for _, p := range e.compiledPolicies {
		if p.Config.TenantID == "" || p.Config.TenantID == input.TenantID {
			policies = append(policies, p)
		}
	}
	e.mu.RUnlock()

	if len(policies) == 0 {
		return nil
	}

	activation := map[string]any{
		"features": input.Features.Values,
		"score":    input.Score,
	}
	if input.Tx != nil {
		activation["amount"] = input.Tx.Amount
		activation["currency"] = input.Tx.Currency
		activation["channel"] = input.Tx.Channel
		activation["source_account"] = input.Tx.SourceAccount
		activation["destination_account"] = input.Tx.DestinationAccount
		activation["geo_location"] = input.Tx.GeoLocation
	} else {
		activation["amount"] = 0.0
		activation["currency"] = ""
		activation["channel"] = ""
		activation["source_account"] = ""
		activation["destination_account"] = ""
		activation["geo_location"] = ""
	}

	results := make([]domain.PolicyResult, len(policies))
	var wg sync.WaitGroup

	sem := make(chan struct{}, e.maxWorkers)

	for i, p := range policies {
		wg.Add(1)
		go func(idx int, cp *CompiledPolicy) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = evaluatePolicy(cp, activation)
		}(i, p)
	}

	wg.Wait()

	return results
}

// TotalAdjustment sums the adjustments of matched policies.
func TotalAdjustment(results []domain.PolicyResult) float64 {
	total := 0.0
	for _, r := range results {
		if r.Matched && r.Err == "" {
			total += r.Adjustment
		}
	}
	return total
}

func evaluatePolicy(cp *CompiledPolicy, activation map[string]any) domain.PolicyResult {
	result := domain.PolicyResult{
		PolicyID: cp.Config.ID,
	}

	out, _, err := cp.Program.Eval(activation)
	if err != nil {
		result.Err = fmt.Sprintf("evaluation error: %v", err)
		return result
	}

	matched, ok := out.(types.Bool)
	if !ok {
		result.Err = fmt.Sprintf("expression returned %T, want bool", out)
		return result
	}

	if bool(matched) {
		result.Matched = true
		result.Adjustment = cp.Config.Adjustment
		result.Reason = cp.Config.Reason
	}

	return result
}

// PoliciesCount returns the number of loaded policies.
func (e *Engine) PoliciesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledPolicies)
}

// GetLoadedPolicies returns the currently loaded policy configurations.
func (e *Engine) GetLoadedPolicies() []*domain.PolicyConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]*domain.PolicyConfig, 0, len(e.compiledPolicies))
	for _, cp := range e.compiledPolicies {
		policies = append(policies, cp.Config)
	}
	return policies
}

// Close clears all loaded policies.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledPolicies = make(map[string]*CompiledPolicy)
	return nil
}

func (e *Engine) compilePolicy(cfg *domain.PolicyConfig) (*CompiledPolicy, error) {
	if cfg.Adjustment < -maxAdjustment || cfg.Adjustment > maxAdjustment {
		return nil, fmt.Errorf("policy %s: adjustment %.2f outside [%.0f,%.0f]", cfg.ID, cfg.Adjustment, -maxAdjustment, maxAdjustment)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for policy %s: %w", cfg.ID, err)
	}

	return &CompiledPolicy{
		Config:  cfg,
		Program: program,
	}, nil
}
