package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const otpRequiredQuery = "data.authcore.mfa.otp_required"

// DefaultRegoPolicy requires an OTP exactly when the account has 2FA enabled.
const DefaultRegoPolicy = `package authcore.mfa

default otp_required := false

otp_required if {
	input.user.is_2fa_enabled
}
`

// OPAEvaluator evaluates the MFA policy with OPA Rego. The policy is compiled
// once at construction.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (DefaultRegoPolicy when empty).
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"mfa.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	pq, err := rego.New(
		rego.Query(otpRequiredQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	return &OPAEvaluator{query: pq}, nil
}

// NewOPAEvaluatorFromFile loads the policy from path; empty path selects the default policy.
func NewOPAEvaluatorFromFile(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return NewOPAEvaluator(ctx, string(b))
}

// RequireOTP evaluates otp_required. Any failure or non-boolean result fails closed.
func (e *OPAEvaluator) RequireOTP(ctx context.Context, in MFAInput) (bool, error) {
	input := map[string]interface{}{
		"user": map[string]interface{}{
			"id":             in.UserID,
			"is_2fa_enabled": in.TwoFactorEnabled,
			"has_phone":      in.HasPhone,
		},
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return true, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return true, fmt.Errorf("policy query returned no result")
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return true, fmt.Errorf("policy returned %T, want bool", rs[0].Expressions[0].Value)
	}
	return v, nil
}

// HealthCheck verifies the compiled policy evaluates. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.RequireOTP(ctx, MFAInput{})
	return err
}
