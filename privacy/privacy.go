// Package privacy provides sets of types and helpers for writing read and
// write policies on tables, and deals with their evaluation at runtime.
package privacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/get-convex/convex-ents"
)

// Decision sentinels. A rule returns one of these (possibly wrapped, see
// Allowf and friends) to settle or pass on the operation under evaluation;
// match them with errors.Is.
var (
	// Allow settles the evaluation: the operation is permitted and no
	// further rules run.
	Allow = errors.New("ents/privacy: allow rule")

	// Deny settles the evaluation: the operation is rejected and no
	// further rules run.
	Deny = errors.New("ents/privacy: deny rule")

	// Skip abstains, handing the operation to the next rule in the chain.
	Skip = errors.New("ents/privacy: skip rule")
)

// Allowf returns an Allow decision carrying a formatted reason.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a Deny decision carrying a formatted reason. The reason is
// surfaced to the caller through the writer's policy-denied error.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a Skip decision carrying a formatted reason.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

type (
	// ReadRule defines the interface deciding whether a document may be
	// read.
	ReadRule interface {
		EvalRead(ctx context.Context, table string, doc ents.Document) error
	}

	// ReadPolicy combines multiple read rules into a single policy.
	ReadPolicy []ReadRule

	// WriteRule defines the interface deciding whether a write operation
	// is allowed. doc is the current document (nil on create); value holds
	// the fields being written (nil on delete).
	WriteRule interface {
		EvalWrite(ctx context.Context, op ents.WriteOp, table string, doc ents.Document, value map[string]any) error
	}

	// WritePolicy combines multiple write rules into a single policy.
	WritePolicy []WriteRule

	// ReadWriteRule is an interface which groups read and write rules.
	ReadWriteRule interface {
		ReadRule
		WriteRule
	}
)

// ReadRuleFunc adapts a plain function into a ReadRule.
type ReadRuleFunc func(context.Context, string, ents.Document) error

// EvalRead returns f(ctx, table, doc).
func (f ReadRuleFunc) EvalRead(ctx context.Context, table string, doc ents.Document) error {
	return f(ctx, table, doc)
}

// WriteRuleFunc adapts a plain function into a WriteRule.
type WriteRuleFunc func(context.Context, ents.WriteOp, string, ents.Document, map[string]any) error

// EvalWrite returns f(ctx, op, table, doc, value).
func (f WriteRuleFunc) EvalWrite(ctx context.Context, op ents.WriteOp, table string, doc ents.Document, value map[string]any) error {
	return f(ctx, op, table, doc, value)
}

// EvalRead evaluates a document against a read policy. The first non-skip
// decision wins; Allow terminates with nil and an empty chain allows.
func (policies ReadPolicy) EvalRead(ctx context.Context, table string, doc ents.Document) error {
	for _, policy := range policies {
		switch decision := policy.EvalRead(ctx, table, doc); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// EvalWrite evaluates a write operation against a write policy. The first
// non-skip decision wins; Allow terminates with nil and an empty chain
// allows.
func (policies WritePolicy) EvalWrite(ctx context.Context, op ents.WriteOp, table string, doc ents.Document, value map[string]any) error {
	for _, policy := range policies {
		switch decision := policy.EvalWrite(ctx, op, table, doc, value); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// Policy groups the read and write policies of one table.
type Policy struct {
	Read  ReadPolicy
	Write WritePolicy
}

// EvalRead forwards evaluation to the read policy. A decision attached to
// the context via DecisionContext overrides the chain.
func (p Policy) EvalRead(ctx context.Context, table string, doc ents.Document) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	return p.Read.EvalRead(ctx, table, doc)
}

// EvalWrite forwards evaluation to the write policy. A decision attached to
// the context via DecisionContext overrides the chain.
func (p Policy) EvalWrite(ctx context.Context, op ents.WriteOp, table string, doc ents.Document, value map[string]any) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	return p.Write.EvalWrite(ctx, op, table, doc, value)
}

// AlwaysAllowRule returns a rule permitting every read and write.
func AlwaysAllowRule() ReadWriteRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule rejecting every read and write.
func AlwaysDenyRule() ReadWriteRule {
	return fixedDecision{Deny}
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalRead(context.Context, string, ents.Document) error {
	return f.decision
}

func (f fixedDecision) EvalWrite(context.Context, ents.WriteOp, string, ents.Document, map[string]any) error {
	return f.decision
}

// ContextReadWriteRule builds a rule deciding from the context alone. eval
// returns a decision sentinel or nil; nil counts as Skip.
func ContextReadWriteRule(eval func(context.Context) error) ReadWriteRule {
	return contextDecision{eval}
}

type contextDecision struct {
	eval func(context.Context) error
}

func (c contextDecision) EvalRead(ctx context.Context, _ string, _ ents.Document) error {
	return c.eval(ctx)
}

func (c contextDecision) EvalWrite(ctx context.Context, _ ents.WriteOp, _ string, _ ents.Document, _ map[string]any) error {
	return c.eval(ctx)
}

// OnWriteOperation evaluates the given rule only on a given write operation.
func OnWriteOperation(rule WriteRule, op ents.WriteOp) WriteRule {
	return WriteRuleFunc(func(ctx context.Context, o ents.WriteOp, table string, doc ents.Document, value map[string]any) error {
		if o == op {
			return rule.EvalWrite(ctx, o, table, doc, value)
		}
		return Skip
	})
}

// DenyWriteOperationRule returns a rule denying the specified write
// operation.
func DenyWriteOperationRule(op ents.WriteOp) WriteRule {
	rule := WriteRuleFunc(func(_ context.Context, o ents.WriteOp, table string, _ ents.Document, _ map[string]any) error {
		return Denyf("ents/privacy: operation %s is not allowed on %s", o, table)
	})
	return OnWriteOperation(rule, op)
}

// decisionCtxKey is the context key for overriding policy evaluation.
type decisionCtxKey struct{}

// DecisionContext creates a new context with a policy decision attached:
// every evaluation under it short-circuits to the given decision.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Allow) {
		decision = Allow
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}
