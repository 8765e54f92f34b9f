// Package auth implements capability-based access control for privileged
// engine operations. Instead of mutable global roles, an immutable table of
// principal → permitted operations is built at startup and consulted by each
// entry point.
package auth

import (
	"errors"
	"net/http"
	"strings"
)

// Operation names a privileged entry point.
type Operation string

const (
	OpStartSeries  Operation = "start_series"
	OpRequestRoll  Operation = "request_roll"
	OpCancelRoll   Operation = "cancel_roll"
	OpFulfill      Operation = "fulfill_randomness"
	OpAdvanceWeek  Operation = "advance_week"
	OpFinalizeWeek Operation = "finalize_week"
	OpExpireRebate Operation = "expire_rebates"
	OpReplenishBot Operation = "replenish_bot"
)

// OperatorOps is the full privileged operation set granted to operators.
var OperatorOps = []Operation{
	OpStartSeries, OpRequestRoll, OpCancelRoll, OpFulfill,
	OpAdvanceWeek, OpFinalizeWeek, OpExpireRebate, OpReplenishBot,
}

// ErrUnauthorized is returned when a principal lacks the capability for an
// operation (or presented no principal at all).
var ErrUnauthorized = errors.New("auth: unauthorized caller")

// Authorizer holds the capability table. It is read-only after construction,
// so no locking is needed.
type Authorizer struct {
	grants map[string]map[Operation]bool
}

// NewAuthorizer creates an empty capability table.
func NewAuthorizer() *Authorizer {
	return &Authorizer{grants: make(map[string]map[Operation]bool)}
}

// Grant adds operations to a principal's capability set. Call during setup
// only; the table is not safe for concurrent mutation.
func (a *Authorizer) Grant(principal string, ops ...Operation) {
	set, ok := a.grants[principal]
	if !ok {
		set = make(map[Operation]bool, len(ops))
		a.grants[principal] = set
	}
	for _, op := range ops {
		set[op] = true
	}
}

// Allow returns nil if the principal holds the capability for op.
func (a *Authorizer) Allow(principal string, op Operation) error {
	if principal == "" {
		return ErrUnauthorized
	}
	if !a.grants[principal][op] {
		return ErrUnauthorized
	}
	return nil
}

// Principal extracts the caller identity from an HTTP request: a bearer
// token in the Authorization header, falling back to X-Operator-Key.
func Principal(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.Header.Get("X-Operator-Key")
}

// Authorize combines Principal and Allow for handler use.
func (a *Authorizer) Authorize(r *http.Request, op Operation) error {
	return a.Allow(Principal(r), op)
}
