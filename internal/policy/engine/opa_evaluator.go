package engine

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"didlink/internal/policy/domain"
)

const permissionsQuery = "data.didlink.session.permissions"

// DefaultRegoPolicy grants the baseline session permissions. Stored policies add rules to the same package.
const DefaultRegoPolicy = `package didlink.session

permissions contains "session:validate" if {
	true
}

permissions contains "methods:read" if {
	true
}

permissions contains "methods:manage" if {
	input.method_type == "totp"
}

permissions contains "methods:manage" if {
	input.trusted_device
}

permissions contains "profile:read" if {
	startswith(input.method_type, "oauth:")
}
`

// PolicySource lists the enabled stored policies.
type PolicySource interface {
	ListEnabled(ctx context.Context) ([]*domain.Policy, error)
}

// OPAEvaluator evaluates session permissions with OPA Rego.
type OPAEvaluator struct {
	policies PolicySource
}

// NewOPAEvaluator returns an OPA-based evaluator. policies may be nil to use only the default policy.
func NewOPAEvaluator(policies PolicySource) *OPAEvaluator {
	return &OPAEvaluator{policies: policies}
}

// HealthCheck verifies that the in-process Rego engine can compile and evaluate the default policy.
// Does not call the policy store.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	perms, err := evaluate(ctx, []string{DefaultRegoPolicy}, buildInput(Input{MethodType: "totp"}))
	if err != nil {
		return err
	}
	if len(perms) == 0 {
		return fmt.Errorf("policy query returned no permissions")
	}
	return nil
}

// ValidateRules compiles rules together with the default policy and evaluates them once against a
// sample TOTP input. Used before storing a policy so a broken module never reaches the table.
func ValidateRules(ctx context.Context, rules string) error {
	_, err := evaluate(ctx, []string{DefaultRegoPolicy, rules}, buildInput(Input{DID: "did:example:validate", MethodType: "totp"}))
	return err
}

// Permissions evaluates the default policy together with the enabled stored policies.
// If the stored policies cannot be loaded or compiled, the default policy alone decides.
func (e *OPAEvaluator) Permissions(ctx context.Context, in Input) ([]string, error) {
	input := buildInput(in)
	modules := []string{DefaultRegoPolicy}
	if e.policies != nil {
		stored, err := e.policies.ListEnabled(ctx)
		if err != nil {
			log.Printf("policy: failed to load session policies: %v", err)
		}
		for _, p := range stored {
			if p.Enabled && p.Rules != "" {
				modules = append(modules, p.Rules)
			}
		}
	}
	perms, err := evaluate(ctx, modules, input)
	if err != nil && len(modules) > 1 {
		log.Printf("policy: evaluation with stored policies failed: %v, using default", err)
		perms, err = evaluate(ctx, modules[:1], input)
	}
	if err != nil {
		return nil, err
	}
	return perms, nil
}

func buildInput(in Input) map[string]interface{} {
	return map[string]interface{}{
		"did":            in.DID,
		"method_type":    in.MethodType,
		"trusted_device": in.TrustedDevice,
	}
}

func evaluate(ctx context.Context, policies []string, input map[string]interface{}) ([]string, error) {
	modules := make(map[string]string, len(policies))
	for i, p := range policies {
		modules[fmt.Sprintf("policy_%d.rego", i)] = p
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}
	rs, err := rego.New(
		rego.Query(permissionsQuery),
		rego.Compiler(compiler),
		rego.Input(input),
	).Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("eval policies: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return []string{}, nil
	}
	values, ok := rs[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("permissions is %T, want a set", rs[0].Expressions[0].Value)
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}
