package domain

import (
	"errors"
	"fmt"
	"math"
)

// Operation is a role-gated state transition exposed by the ledger.
type Operation string

const (
	OpApprovePayment      Operation = "approvePayment"
	OpDeclinePayment      Operation = "declinePayment"
	OpConfirmOrder        Operation = "confirmOrder"
	OpShipOrder           Operation = "shipOrder"
	OpConfirmDelivery     Operation = "confirmDelivery"
	OpCompleteTransaction Operation = "completeTransaction"

	// OpInitiatePayment creates a transaction. It is not part of the
	// transition table; see CanInitiate.
	OpInitiatePayment Operation = "initiatePayment"
)

// stateUnknown is used for raw ledger values that do not fit a State.
const stateUnknown State = math.MaxUint8

var (
	ErrUnknownState = errors.New("unrecognized transaction state")
	ErrZeroAmount   = errors.New("transaction amount is zero")
)

type transition struct {
	from   State
	to     State
	actor  Role
	method string // remote contract method
	path   string // presentation route segment
}

var transitions = map[Operation]transition{
	OpApprovePayment:      {StateInitiated, StatePaymentApproved, RoleMerchant, "paymentApprove", "approve-payment"},
	OpDeclinePayment:      {StateInitiated, StatePaymentDeclined, RoleMerchant, "paymentDecline", "decline-payment"},
	OpConfirmOrder:        {StatePaymentApproved, StateMerchantConfirmed, RoleMerchant, "confirmOrder", "confirm-order"},
	OpShipOrder:           {StateMerchantConfirmed, StateShipped, RoleMerchant, "shipOrder", "ship-order"},
	OpConfirmDelivery:     {StateShipped, StateDelivered, RoleCustomer, "confirmDelivery", "confirm-delivery"},
	OpCompleteTransaction: {StateDelivered, StateCompleted, RoleMerchant, "completeTransaction", "complete-transaction"},
}

// Operations returns the six transition operations in lifecycle order.
func Operations() []Operation {
	return []Operation{
		OpApprovePayment,
		OpDeclinePayment,
		OpConfirmOrder,
		OpShipOrder,
		OpConfirmDelivery,
		OpCompleteTransaction,
	}
}

// Valid reports whether op is one of the six transition operations.
func (op Operation) Valid() bool {
	_, ok := transitions[op]
	return ok
}

// Actor returns the only role allowed to perform op.
func (op Operation) Actor() (Role, bool) {
	t, ok := transitions[op]
	return t.actor, ok
}

// Source returns the state op requires.
func (op Operation) Source() (State, bool) {
	t, ok := transitions[op]
	return t.from, ok
}

// Method returns the ledger contract method that performs op.
func (op Operation) Method() string {
	if op == OpInitiatePayment {
		return "initiatePayment"
	}
	return transitions[op].method
}

// Path returns the route segment used by the presentation API.
func (op Operation) Path() string {
	return transitions[op].path
}

// ParseOperation resolves an operation from its API path segment
// (e.g. "ship-order") or its canonical name (e.g. "shipOrder").
func ParseOperation(name string) (Operation, error) {
	for op, t := range transitions {
		if name == t.path || name == string(op) {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", name)
}

// CanTransition reports whether role may perform op on a transaction in
// state current.
func CanTransition(current State, op Operation, role Role) bool {
	t, ok := transitions[op]
	return ok && t.from == current && t.actor == role
}

// NextState returns the state op leads to. Callers must check
// CanTransition first; the result is meaningless otherwise.
func NextState(current State, op Operation) State {
	t, ok := transitions[op]
	if !ok || t.from != current {
		panic(fmt.Sprintf("domain: no transition %s from %s", op, current))
	}
	return t.to
}

// CanInitiate reports whether role may create a transaction.
func CanInitiate(role Role) bool {
	return role == RoleCustomer
}

// Reachable reports whether to can be reached from from through zero or
// more transitions.
func Reachable(from, to State) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	seen := make(map[State]bool, stateCount)
	queue := []State{from}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if s == to {
			return true
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		for _, t := range transitions {
			if t.from == s && !seen[t.to] {
				queue = append(queue, t.to)
			}
		}
	}
	return false
}

// StateFromRaw converts a raw ledger value without validating it. Values
// outside the uint8 range map to an invalid state.
func StateFromRaw(raw int64) State {
	if raw < 0 || raw > math.MaxUint8 {
		return stateUnknown
	}
	return State(raw)
}

// ParseState converts a raw ledger value, failing with ErrUnknownState for
// anything outside the nine known states.
func ParseState(raw int64) (State, error) {
	s := StateFromRaw(raw)
	if !s.Valid() {
		return s, fmt.Errorf("%w: %d", ErrUnknownState, raw)
	}
	return s, nil
}

// Validate checks the fields the ledger is trusted to keep well formed.
func (t *Transaction) Validate() error {
	if _, err := ParseState(int64(t.State)); err != nil {
		return err
	}
	if t.Amount == 0 {
		return ErrZeroAmount
	}
	return nil
}
