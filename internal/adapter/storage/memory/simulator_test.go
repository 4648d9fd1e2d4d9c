package memory

import (
	"context"
	"testing"

	"payment-tracker/internal/core/domain"
	"payment-tracker/internal/core/ports"
	"payment-tracker/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	customer = "0xCustomer"
	merchant = "0xMerchant"
)

func TestSimulator_CreateAndRead(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()

	receipt, err := sim.CreateTransaction(ctx, ports.CreateRequest{
		Merchant: merchant, ProductID: "p1", Amount: 1_000_000, Actor: customer,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), receipt.TransactionID)
	assert.Equal(t, domain.OpInitiatePayment, receipt.Operation)
	assert.Equal(t, domain.StateInitiated, receipt.State)

	count, err := sim.TransactionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	tx, err := sim.GetTransaction(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, customer, tx.Customer)
	assert.Equal(t, merchant, tx.Merchant)
	assert.Equal(t, "p1", tx.ProductID)
	assert.Equal(t, uint64(1_000_000), tx.Amount)
	assert.Equal(t, domain.StateInitiated, tx.State)
}

func TestSimulator_CreateRejectsZeroAmount(t *testing.T) {
	sim := NewSimulator()
	_, err := sim.CreateTransaction(context.Background(), ports.CreateRequest{
		Merchant: merchant, ProductID: "p1", Actor: customer,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeRejected))
}

func TestSimulator_GetUnknownID(t *testing.T) {
	sim := NewSimulator()
	_, err := sim.GetTransaction(context.Background(), 3)
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}

func TestSimulator_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()
	id := sim.Seed(domain.Transaction{Customer: customer, Merchant: merchant, ProductID: "p", Amount: 5})

	steps := []struct {
		op    domain.Operation
		actor string
		want  domain.State
	}{
		{domain.OpApprovePayment, merchant, domain.StatePaymentApproved},
		{domain.OpConfirmOrder, merchant, domain.StateMerchantConfirmed},
		{domain.OpShipOrder, merchant, domain.StateShipped},
		{domain.OpConfirmDelivery, customer, domain.StateDelivered},
		{domain.OpCompleteTransaction, merchant, domain.StateCompleted},
	}
	hashes := map[string]bool{}
	for _, s := range steps {
		r, err := sim.Submit(ctx, ports.SubmitRequest{Operation: s.op, TransactionID: id, Actor: s.actor})
		require.NoError(t, err, s.op)
		assert.Equal(t, s.want, r.State)
		assert.False(t, hashes[r.Hash], "hash reused")
		hashes[r.Hash] = true
	}
}

func TestSimulator_SubmitErrors(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()
	id := sim.Seed(domain.Transaction{Customer: customer, Merchant: merchant, ProductID: "p", Amount: 5})

	tests := []struct {
		name string
		req  ports.SubmitRequest
		code string
	}{
		{"wrong party", ports.SubmitRequest{Operation: domain.OpApprovePayment, TransactionID: id, Actor: customer}, apperror.CodeUnauthorized},
		{"wrong state", ports.SubmitRequest{Operation: domain.OpShipOrder, TransactionID: id, Actor: merchant}, apperror.CodeRejected},
		{"unknown id", ports.SubmitRequest{Operation: domain.OpApprovePayment, TransactionID: 9, Actor: merchant}, apperror.CodeNotFound},
		{"unknown op", ports.SubmitRequest{Operation: "refund", TransactionID: id, Actor: merchant}, apperror.CodeRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Submit(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperror.CodeOf(err))
		})
	}

	tx, err := sim.GetTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateInitiated, tx.State)
}

func TestSimulator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sim := NewSimulator()
	_, err := sim.TransactionCount(ctx)
	assert.True(t, apperror.HasCode(err, apperror.CodeConnectivity))
}

func TestSimulator_ForceState(t *testing.T) {
	sim := NewSimulator()
	id := sim.Seed(domain.Transaction{Customer: customer, Merchant: merchant, Amount: 5})

	require.NoError(t, sim.ForceState(id, 42))
	tx, err := sim.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, tx.State.Valid())

	assert.Error(t, sim.ForceState(5, 0))
}
