package engine

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"didlink/internal/policy/domain"
)

type fakePolicies struct {
	policies []*domain.Policy
	err      error
}

func (f *fakePolicies) ListEnabled(ctx context.Context) ([]*domain.Policy, error) {
	return f.policies, f.err
}

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	if err := NewOPAEvaluator(nil).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAEvaluator_DefaultPolicy(t *testing.T) {
	e := NewOPAEvaluator(nil)
	ctx := context.Background()
	cases := []struct {
		name string
		in   Input
		want []string
	}{
		{"totp", Input{MethodType: "totp"}, []string{"methods:manage", "methods:read", "session:validate"}},
		{"oauth", Input{MethodType: "oauth:github"}, []string{"methods:read", "profile:read", "session:validate"}},
		{"oauth trusted device", Input{MethodType: "oauth:github", TrustedDevice: true}, []string{"methods:manage", "methods:read", "profile:read", "session:validate"}},
	}
	for _, tc := range cases {
		got, err := e.Permissions(ctx, tc.in)
		if err != nil {
			t.Fatalf("%s: Permissions: %v", tc.name, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s: Permissions = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestOPAEvaluator_StoredPolicyAddsRules(t *testing.T) {
	extra := &domain.Policy{Name: "ledger-readers", Enabled: true, Rules: `package didlink.session

permissions contains "ledger:read" if {
	input.did == "did:example:abc123"
}
`}
	e := NewOPAEvaluator(&fakePolicies{policies: []*domain.Policy{extra}})
	got, err := e.Permissions(context.Background(), Input{DID: "did:example:abc123", MethodType: "totp"})
	if err != nil {
		t.Fatalf("Permissions: %v", err)
	}
	want := []string{"ledger:read", "methods:manage", "methods:read", "session:validate"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Permissions = %v, want %v", got, want)
	}
}

func TestOPAEvaluator_FallsBackToDefault(t *testing.T) {
	want := []string{"methods:manage", "methods:read", "session:validate"}
	for name, src := range map[string]*fakePolicies{
		"broken rules": {policies: []*domain.Policy{{Name: "broken", Enabled: true, Rules: "package didlink.session\n\npermissions contains if {"}}},
		"store error":  {err: errors.New("db down")},
	} {
		got, err := NewOPAEvaluator(src).Permissions(context.Background(), Input{MethodType: "totp"})
		if err != nil {
			t.Fatalf("%s: Permissions: %v", name, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s: Permissions = %v, want %v", name, got, want)
		}
	}
}

func TestValidateRules(t *testing.T) {
	ctx := context.Background()
	good := "package didlink.session\n\npermissions contains \"audit:read\" if {\n\tinput.method_type == \"totp\"\n}\n"
	if err := ValidateRules(ctx, good); err != nil {
		t.Errorf("ValidateRules(good): %v", err)
	}
	if err := ValidateRules(ctx, "package didlink.session\n\npermissions contains if {"); err == nil {
		t.Error("ValidateRules should reject a module that does not parse")
	}
}
