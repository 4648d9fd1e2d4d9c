package handler

import (
	"strconv"
	"strings"

	"payment-tracker/internal/adapter/http/dto"
	"payment-tracker/internal/core/domain"
	"payment-tracker/internal/core/ports"
	"payment-tracker/pkg/apperror"
	"payment-tracker/pkg/response"

	"github.com/gin-gonic/gin"
)

const outcomeUnknown = "outcome_unknown"

// TransactionHandler handles the transaction view and the action entry
// points.
type TransactionHandler struct {
	syncSvc ports.SyncService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(syncSvc ports.SyncService) *TransactionHandler {
	return &TransactionHandler{syncSvc: syncSvc}
}

// List handles GET /api/v1/transactions. An optional ?state= filters by
// effective state label, case-insensitively.
func (h *TransactionHandler) List(c *gin.Context) {
	state := strings.TrimSpace(c.Query("state"))

	records := h.syncSvc.Snapshot()
	items := make([]dto.TransactionResponse, 0, len(records))
	for i := range records {
		if state != "" && !strings.EqualFold(records[i].EffectiveState().Label(), state) {
			continue
		}
		items = append(items, dto.NewTransactionResponse(&records[i]))
	}

	response.OK(c, dto.TransactionListResponse{
		Scope:        h.syncSvc.Status().Scope,
		Total:        len(items),
		Transactions: items,
	})
}

// Get handles GET /api/v1/transactions/:id.
func (h *TransactionHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	tx, err := h.syncSvc.Get(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewTransactionResponse(tx))
}

// Stats handles GET /api/v1/transactions/stats.
func (h *TransactionHandler) Stats(c *gin.Context) {
	response.OK(c, h.syncSvc.Stats())
}

// Create handles POST /api/v1/transactions.
func (h *TransactionHandler) Create(c *gin.Context) {
	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	receipt, err := h.syncSvc.Create(c.Request.Context(), ports.CreatePaymentRequest{
		Merchant:  req.Merchant,
		ProductID: req.ProductID,
		Amount:    req.Amount,
	})
	if err != nil {
		if apperror.HasCode(err, apperror.CodeConnectivity) {
			response.Accepted(c, dto.PendingActionResponse{
				Operation: string(domain.OpInitiatePayment),
				Status:    outcomeUnknown,
				Message:   "Payment sent but not confirmed; it will appear after the next resync if it was recorded",
			})
			return
		}
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewReceiptResponse(receipt))
}

// Action handles POST /api/v1/transactions/:id/:operation.
func (h *TransactionHandler) Action(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	op, err := domain.ParseOperation(c.Param("operation"))
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	receipt, err := h.syncSvc.Submit(c.Request.Context(), op, id)
	if err != nil {
		if apperror.HasCode(err, apperror.CodeConnectivity) {
			response.Accepted(c, dto.PendingActionResponse{
				Operation:     string(op),
				TransactionID: &id,
				Status:        outcomeUnknown,
				Message:       "Operation sent but not confirmed; the transaction stays pending until the ledger is read again",
			})
			return
		}
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewReceiptResponse(receipt))
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, apperror.Validation("transaction id must be a non-negative integer"))
		return 0, false
	}
	return id, true
}
