package domain

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a ledger transaction. The numeric values
// match the ledger's on-chain encoding.
type State uint8

const (
	StateInitiated State = iota
	StatePaymentApproved
	StatePaymentDeclined
	StateMerchantConfirmed
	StateShipped
	StateDelivered
	StateFailed
	StateCancelled
	StateCompleted

	stateCount
)

var stateLabels = [stateCount]string{
	StateInitiated:         "Initiated",
	StatePaymentApproved:   "Payment Approved",
	StatePaymentDeclined:   "Payment Declined",
	StateMerchantConfirmed: "Merchant Confirmed",
	StateShipped:           "Shipped",
	StateDelivered:         "Delivered",
	StateFailed:            "Failed",
	StateCancelled:         "Cancelled",
	StateCompleted:         "Completed",
}

// AllStates returns every defined state in ledger order.
func AllStates() []State {
	states := make([]State, 0, stateCount)
	for s := State(0); s < stateCount; s++ {
		states = append(states, s)
	}
	return states
}

// Valid reports whether s is a member of the state enumeration.
func (s State) Valid() bool {
	return s < stateCount
}

// Label returns the human-readable name shown to users.
func (s State) Label() string {
	if !s.Valid() {
		return fmt.Sprintf("State(%d)", uint8(s))
	}
	return stateLabels[s]
}

func (s State) String() string {
	return s.Label()
}

// IsTerminal returns true if no transition leaves s.
func (s State) IsTerminal() bool {
	return s == StatePaymentDeclined ||
		s == StateFailed ||
		s == StateCancelled ||
		s == StateCompleted
}

// Role identifies which party is acting.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleMerchant Role = "merchant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleMerchant
}

// Transaction is a two-party payment as recorded by the ledger.
// Only State changes after creation.
type Transaction struct {
	ID        uint64 `json:"id"`
	Customer  string `json:"customer"`
	Merchant  string `json:"merchant"`
	ProductID string `json:"product_id"`
	Amount    uint64 `json:"amount"` // ledger base unit
	State     State  `json:"state"`
}

// PartyFor returns the address allowed to act in role on t.
func (t *Transaction) PartyFor(role Role) string {
	if role == RoleMerchant {
		return t.Merchant
	}
	return t.Customer
}

// Receipt describes a write the ledger accepted.
type Receipt struct {
	Hash          string    `json:"hash"`
	Operation     Operation `json:"operation"`
	TransactionID uint64    `json:"transaction_id"`
	Actor         string    `json:"actor"`
	State         State     `json:"state"`
	AcceptedAt    time.Time `json:"accepted_at"`
}

// PendingTransition is an optimistic local transition that the ledger has
// not confirmed yet.
type PendingTransition struct {
	Operation Operation `json:"operation"`
	Target    State     `json:"target"`
	AppliedAt time.Time `json:"applied_at"`
}

// TrackedTransaction is the local cache record for one ledger transaction.
// Transaction always holds the last authoritative value read from the
// ledger; Pending is an overlay on top of it.
type TrackedTransaction struct {
	Transaction
	Pending      *PendingTransition `json:"pending,omitempty"`
	Desynced     bool               `json:"desynced"`
	LastSyncedAt time.Time          `json:"last_synced_at"`
}

// EffectiveState is the state the user should see: the optimistic target
// while a transition is pending, otherwise the ledger state.
func (t *TrackedTransaction) EffectiveState() State {
	if t.Pending != nil {
		return t.Pending.Target
	}
	return t.State
}

// IsPending reports whether an optimistic transition awaits confirmation.
func (t *TrackedTransaction) IsPending() bool {
	return t.Pending != nil
}

// Clone returns a deep copy safe to hand out of the owning engine.
func (t *TrackedTransaction) Clone() TrackedTransaction {
	c := *t
	if t.Pending != nil {
		p := *t.Pending
		c.Pending = &p
	}
	return c
}
