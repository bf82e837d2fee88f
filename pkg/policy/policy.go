// Package policy gates terminal resolution behind a CEL expression. The
// agent's liveness verdict alone never triggers the transfer: the configured
// expression over the vault view must also evaluate true.
package policy

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/sentinel-labs/sentinel/pkg/contracts"
)

// ResolutionPolicy evaluates whether a yielding vault may be resolved with
// confirm_death=true. Compiled programs are cached per expression.
type ResolutionPolicy struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program

	// expr is the configured gate. Empty means the liveness verdict
	// passes through unchanged.
	expr string
}

// NewResolutionPolicy builds a policy around one CEL expression. The
// expression sees:
//
//	vault          map with the vault view fields (balance, timestamps, flags)
//	owner_dead     the agent's negative-liveness verdict
//	timestamp      evaluation time, unix seconds
//
// Example: `owner_dead && int(vault.vault_balance) < 1000000`.
func NewResolutionPolicy(expr string) (*ResolutionPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("vault", cel.DynType),
		cel.Variable("owner_dead", cel.BoolType),
		cel.Variable("timestamp", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("create policy environment: %w", err)
	}

	p := &ResolutionPolicy{
		env:   env,
		cache: make(map[string]cel.Program),
		expr:  expr,
	}
	if expr != "" {
		// Compile eagerly so a broken expression fails at startup, not
		// mid-resolution.
		if _, err := p.program(expr); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// PermitResolution decides whether the transfer may proceed for this vault
// given the liveness verdict. With no expression configured the verdict
// passes through.
func (p *ResolutionPolicy) PermitResolution(view *contracts.VaultView, ownerDead bool, now time.Time) (bool, error) {
	if p.expr == "" {
		return ownerDead, nil
	}

	input := map[string]any{
		"owner_dead": ownerDead,
		"timestamp":  now.Unix(),
		"vault": map[string]any{
			"owner_id":              view.OwnerID,
			"beneficiary_id":        view.BeneficiaryID,
			"vault_balance":         view.VaultBalance,
			"heartbeat_interval_ms": view.HeartbeatIntervalMs,
			"grace_period_ms":       view.GracePeriodMs,
			"is_expired":            view.IsExpired,
			"is_warning_active":     view.IsWarningActive,
			"is_yielding":           view.IsYielding,
			"is_completed":          view.IsCompleted,
		},
	}
	return p.evaluate(p.expr, input)
}

func (p *ResolutionPolicy) program(expr string) (cel.Program, error) {
	p.mu.RLock()
	prg, hit := p.cache[expr]
	p.mu.RUnlock()
	if hit {
		return prg, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if prg, hit = p.cache[expr]; hit {
		return prg, nil
	}

	ast, issues := p.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile policy: %w", issues.Err())
	}
	prg, err := p.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("build policy program: %w", err)
	}
	p.cache[expr] = prg
	return prg, nil
}

func (p *ResolutionPolicy) evaluate(expr string, input map[string]any) (bool, error) {
	prg, err := p.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("evaluate policy: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy result is %T, want bool", out.Value())
	}
	return val, nil
}
