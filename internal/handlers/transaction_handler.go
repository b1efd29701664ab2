package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fotastore/server/internal/models"
	"github.com/fotastore/server/internal/services"
)

// TransactionHandler exposes the current account's pended transaction log
type TransactionHandler struct {
	log *services.TransactionLog
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(log *services.TransactionLog) *TransactionHandler {
	return &TransactionHandler{log: log}
}

// ListPending returns pended transactions in the order they were added
// @Summary List pended transactions
// @Tags transactions
// @Produce json
// @Success 200 {object} models.TransactionListResponse
// @Security ApiKeyAuth
// @Router /api/transactions [get]
func (h *TransactionHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.log.Pending(r.Context())
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.TransactionListResponse{Transactions: pending, Count: len(pending)})
}

// AddTransaction pends a transaction; a duplicate hid is a no-op
// @Summary Pend transaction
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body models.AddTransactionRequest true "Transaction"
// @Success 201 {object} models.AddTransactionResponse "Pended"
// @Success 200 {object} models.AddTransactionResponse "Already pended"
// @Security ApiKeyAuth
// @Router /api/transactions [post]
func (h *TransactionHandler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	var req models.AddTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	txType, err := models.ParseTransactionType(req.Type)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}

	added, err := h.log.Add(r.Context(), req.TransactionHid, txType, req.Message)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	respondJSON(w, status, models.AddTransactionResponse{Added: added})
}

// RemoveTransaction drops an acknowledged transaction
func (h *TransactionHandler) RemoveTransaction(w http.ResponseWriter, r *http.Request) {
	removed, err := h.log.Remove(r.Context(), chi.URLParam(r, "transactionHid"))
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.RemovedResponse{Removed: removed})
}

// ClearTransactions drops every pended transaction
func (h *TransactionHandler) ClearTransactions(w http.ResponseWriter, r *http.Request) {
	n, err := h.log.ClearAll(r.Context())
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.ClearResponse{Removed: n})
}
