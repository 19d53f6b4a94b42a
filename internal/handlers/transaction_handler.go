package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ledgerx/backend/internal/middleware"
	"github.com/ledgerx/backend/internal/models"
	"github.com/ledgerx/backend/internal/services"
)

const maxBodyBytes = 1_048_576

type TransactionHandler struct {
	submissions *services.SubmissionService
	reversals   *services.ReversalService
	validator   *services.ValidationHelper
}

func NewTransactionHandler(submissions *services.SubmissionService, reversals *services.ReversalService) *TransactionHandler {
	return &TransactionHandler{
		submissions: submissions,
		reversals:   reversals,
		validator:   services.NewValidationHelper(),
	}
}

// ReverseRequest is the body of POST /transactions/{id}/reverse.
type ReverseRequest struct {
	Reason string `json:"reason" validate:"required,max=500" example:"Duplicate charge"`
}

// decodeJSON reads exactly one JSON object into v, writing the 400 itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

// CreateTransaction accepts a transaction for asynchronous settlement
// @Summary Submit transaction
// @Description Persist a PENDING transaction and queue it for settlement. The outcome is read back with GET /transactions/{id}.
// @Tags Transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Client idempotency key"
// @Param request body services.SubmitRequest true "Transaction"
// @Success 202 {object} services.SubmitResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 409 {object} object{error=string,transactionId=string}
// @Failure 503 {object} services.ErrorResponse
// @Router /transactions [post]
func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req services.SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	resp, err := h.submissions.Submit(r.Context(), userID, req, r.Header.Get(middleware.IdempotencyHeader))
	if err != nil {
		var dup *models.DuplicateSubmissionError
		if errors.As(err, &dup) {
			services.SendJSON(w, http.StatusConflict, map[string]string{
				"error":         "Duplicate submission",
				"transactionId": dup.ExistingTransactionID,
			})
			return
		}
		writeServiceError(w, err)
		return
	}

	services.SendJSON(w, http.StatusAccepted, resp)
}

// ListTransactions lists the caller's transactions
// @Summary List transactions
// @Description Most recent transactions of the authenticated user, newest first
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Transaction
// @Failure 401 {object} services.ErrorResponse
// @Router /transactions [get]
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	txs, err := h.submissions.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	services.SendJSON(w, http.StatusOK, txs)
}

// GetTransaction returns a transaction with its ledger entries
// @Summary Get transaction
// @Description Status, reasons and ledger entries of one transaction
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} models.TransactionDetail
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/{id} [get]
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	detail, err := h.submissions.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, detail)
}

// ReverseTransaction reverses a settled transaction
// @Summary Reverse transaction
// @Description Append a compensating transaction that mirrors every ledger entry of the original
// @Tags Transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Param request body ReverseRequest true "Reversal reason"
// @Success 201 {object} models.TransactionDetail
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/{id}/reverse [post]
func (h *TransactionHandler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req ReverseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	detail, err := h.reversals.Reverse(r.Context(), userID, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusCreated, detail)
}

// GetBalance returns the derived balance of an account
// @Summary Account balance
// @Description Sum of the account's ledger entries
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} services.AccountBalance
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{id}/balance [get]
func (h *TransactionHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balance, err := h.submissions.Balance(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, balance)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrNotReversible):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, models.ErrDuplicateSubmission):
		services.SendErrorResponse(w, "Duplicate submission", http.StatusConflict, nil)
	case models.IsNotFound(err):
		services.SendErrorResponse(w, "Not found", http.StatusNotFound, nil)
	case errors.Is(err, services.ErrQueueUnavailable):
		services.SendErrorResponse(w, "Settlement queue unavailable, please retry", http.StatusServiceUnavailable, nil)
	case models.IsRetryable(err):
		services.SendErrorResponse(w, "Resource busy, please retry", http.StatusServiceUnavailable, nil)
	default:
		log.Printf("[HTTP] Internal error: %v", err)
		services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}
