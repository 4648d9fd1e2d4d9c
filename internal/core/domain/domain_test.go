package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transitionRow struct {
	from  State
	op    Operation
	actor Role
	to    State
}

var lifecycleTable = []transitionRow{
	{StateInitiated, OpApprovePayment, RoleMerchant, StatePaymentApproved},
	{StateInitiated, OpDeclinePayment, RoleMerchant, StatePaymentDeclined},
	{StatePaymentApproved, OpConfirmOrder, RoleMerchant, StateMerchantConfirmed},
	{StateMerchantConfirmed, OpShipOrder, RoleMerchant, StateShipped},
	{StateShipped, OpConfirmDelivery, RoleCustomer, StateDelivered},
	{StateDelivered, OpCompleteTransaction, RoleMerchant, StateCompleted},
}

func lookup(s State, op Operation) (transitionRow, bool) {
	for _, row := range lifecycleTable {
		if row.from == s && row.op == op {
			return row, true
		}
	}
	return transitionRow{}, false
}

func TestCanTransition_ExhaustiveGrid(t *testing.T) {
	roles := []Role{RoleCustomer, RoleMerchant}
	allowed := 0

	for _, s := range AllStates() {
		for _, op := range Operations() {
			for _, role := range roles {
				row, inTable := lookup(s, op)
				want := inTable && row.actor == role
				got := CanTransition(s, op, role)
				assert.Equal(t, want, got, "CanTransition(%s, %s, %s)", s, op, role)
				if got {
					allowed++
				}
			}
		}
	}

	assert.Equal(t, len(lifecycleTable), allowed)
	assert.Len(t, AllStates(), 9)
	assert.Len(t, Operations(), 6)
}

func TestNextState_FollowsTable(t *testing.T) {
	for _, row := range lifecycleTable {
		require.True(t, CanTransition(row.from, row.op, row.actor))
		assert.Equal(t, row.to, NextState(row.from, row.op), "%s from %s", row.op, row.from)
	}
}

func TestNextState_PanicsWithoutTransition(t *testing.T) {
	assert.Panics(t, func() { NextState(StateCompleted, OpApprovePayment) })
	assert.Panics(t, func() { NextState(StateInitiated, Operation("refund")) })
}

func TestTerminalStates_HaveNoOutgoingTransitions(t *testing.T) {
	for _, s := range AllStates() {
		outgoing := false
		for _, op := range Operations() {
			for _, role := range []Role{RoleCustomer, RoleMerchant} {
				if CanTransition(s, op, role) {
					outgoing = true
				}
			}
		}
		assert.Equal(t, s.IsTerminal(), !outgoing, s.String())
	}

	terminal := []State{StatePaymentDeclined, StateFailed, StateCancelled, StateCompleted}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), s.String())
	}
	assert.False(t, StateShipped.IsTerminal())
}

func TestState_Labels(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateInitiated, "Initiated"},
		{StatePaymentApproved, "Payment Approved"},
		{StatePaymentDeclined, "Payment Declined"},
		{StateMerchantConfirmed, "Merchant Confirmed"},
		{StateShipped, "Shipped"},
		{StateDelivered, "Delivered"},
		{StateFailed, "Failed"},
		{StateCancelled, "Cancelled"},
		{StateCompleted, "Completed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.True(t, tt.state.Valid())
			assert.Equal(t, tt.want, tt.state.Label())
		})
	}

	assert.False(t, State(9).Valid())
	assert.Equal(t, "State(9)", State(9).Label())
}

func TestStateFromRaw(t *testing.T) {
	assert.Equal(t, StateShipped, StateFromRaw(4))
	assert.False(t, StateFromRaw(12).Valid())
	assert.False(t, StateFromRaw(-1).Valid())
	assert.False(t, StateFromRaw(1<<20).Valid())
}

func TestParseState(t *testing.T) {
	for _, s := range AllStates() {
		got, err := ParseState(int64(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	for _, raw := range []int64{9, 255, -3, 1 << 40} {
		_, err := ParseState(raw)
		assert.ErrorIs(t, err, ErrUnknownState, "raw %d", raw)
	}
}

func TestReachable(t *testing.T) {
	tests := []struct {
		name     string
		from, to State
		want     bool
	}{
		{"same state", StateShipped, StateShipped, true},
		{"one step", StateInitiated, StatePaymentApproved, true},
		{"many steps", StateInitiated, StateCompleted, true},
		{"declined branch", StateInitiated, StatePaymentDeclined, true},
		{"regression", StateShipped, StatePaymentApproved, false},
		{"across branches", StatePaymentDeclined, StateCompleted, false},
		{"collaborator terminal", StateInitiated, StateCancelled, false},
		{"invalid", State(42), StateInitiated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reachable(tt.from, tt.to))
		})
	}
}

func TestParseOperation(t *testing.T) {
	for _, op := range Operations() {
		byPath, err := ParseOperation(op.Path())
		require.NoError(t, err)
		assert.Equal(t, op, byPath)

		byName, err := ParseOperation(string(op))
		require.NoError(t, err)
		assert.Equal(t, op, byName)
	}

	_, err := ParseOperation("refund")
	assert.Error(t, err)
}

func TestOperation_Metadata(t *testing.T) {
	actor, ok := OpConfirmDelivery.Actor()
	require.True(t, ok)
	assert.Equal(t, RoleCustomer, actor)

	src, ok := OpShipOrder.Source()
	require.True(t, ok)
	assert.Equal(t, StateMerchantConfirmed, src)

	assert.Equal(t, "paymentApprove", OpApprovePayment.Method())
	assert.Equal(t, "initiatePayment", OpInitiatePayment.Method())
	assert.False(t, OpInitiatePayment.Valid())
	assert.True(t, CanInitiate(RoleCustomer))
	assert.False(t, CanInitiate(RoleMerchant))
}

func TestTransaction_Validate(t *testing.T) {
	ok := &Transaction{Amount: 10, State: StateShipped}
	assert.NoError(t, ok.Validate())

	bad := &Transaction{Amount: 10, State: State(11)}
	assert.ErrorIs(t, bad.Validate(), ErrUnknownState)

	zero := &Transaction{Amount: 0, State: StateInitiated}
	assert.ErrorIs(t, zero.Validate(), ErrZeroAmount)
}

func TestTrackedTransaction_EffectiveStateAndClone(t *testing.T) {
	rec := &TrackedTransaction{Transaction: Transaction{ID: 1, State: StateInitiated}}
	assert.Equal(t, StateInitiated, rec.EffectiveState())
	assert.False(t, rec.IsPending())

	rec.Pending = &PendingTransition{Operation: OpApprovePayment, Target: StatePaymentApproved}
	assert.Equal(t, StatePaymentApproved, rec.EffectiveState())

	c := rec.Clone()
	c.Pending.Target = StateCompleted
	assert.Equal(t, StatePaymentApproved, rec.Pending.Target, "clone must not alias the overlay")
}

func TestViewScope(t *testing.T) {
	tx := &Transaction{Customer: "0xc1", Merchant: "0xm1"}
	other := &Transaction{Customer: "0xc2", Merchant: "0xm1"}

	assert.True(t, MerchantReview().Includes(tx))
	assert.True(t, MerchantReview().Includes(other))
	assert.True(t, CustomerView("0xc1").Includes(tx))
	assert.False(t, CustomerView("0xc1").Includes(other))
	assert.False(t, ViewScope{}.Includes(tx))

	s, err := ScopeFor(RoleCustomer, "0xc1")
	require.NoError(t, err)
	assert.Equal(t, "customer:0xc1", s.String())

	_, err = ScopeFor(RoleCustomer, "")
	assert.Error(t, err)
	_, err = ScopeFor(Role("auditor"), "0x1")
	assert.Error(t, err)
}
