package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fotastore/server/internal/models"
	"github.com/fotastore/server/internal/services"
)

// AccountHandler handles accounts and the current account session
type AccountHandler struct {
	scope *services.AccountScope
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(scope *services.AccountScope) *AccountHandler {
	return &AccountHandler{scope: scope}
}

// GetSession returns the current account
// @Summary Current account
// @Tags session
// @Produce json
// @Success 200 {object} models.SessionResponse
// @Security ApiKeyAuth
// @Router /api/session [get]
func (h *AccountHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	account := h.scope.Current()
	respondJSON(w, http.StatusOK, models.SessionResponse{Active: account != nil, Account: account})
}

// SetSession makes an existing account current
// @Summary Switch account
// @Tags session
// @Accept json
// @Produce json
// @Param request body models.SetSessionRequest true "Account to activate"
// @Success 200 {object} models.SessionResponse
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/session [put]
func (h *AccountHandler) SetSession(w http.ResponseWriter, r *http.Request) {
	var req models.SetSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AccountID == "" {
		respondError(w, http.StatusBadRequest, "accountId is required")
		return
	}

	account, err := h.scope.SetCurrent(r.Context(), req.AccountID)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.SessionResponse{Active: true, Account: account})
}

// ClearSession leaves no account current
// @Summary Sign out of the current account
// @Tags session
// @Success 204
// @Security ApiKeyAuth
// @Router /api/session [delete]
func (h *AccountHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	if err := h.scope.Clear(r.Context()); err != nil {
		respondStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAccounts returns every known account
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.scope.List(r.Context())
	if err != nil {
		respondStoreError(w, r, err)
		return
	}

	resp := models.AccountListResponse{Accounts: accounts}
	if current := h.scope.Current(); current != nil {
		resp.CurrentID = current.ID
	}
	respondJSON(w, http.StatusOK, resp)
}

// CreateAccount registers an account and optionally makes it current
// @Summary Create account
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body models.CreateAccountRequest true "Account"
// @Success 201 {object} models.Account
// @Failure 400 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/accounts [post]
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.scope.Create(r.Context(), req.GatewayHid, req.UserEmail)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}

	if req.MakeCurrent {
		if _, err := h.scope.SetCurrent(r.Context(), account.ID); err != nil {
			respondStoreError(w, r, err)
			return
		}
	}
	respondJSON(w, http.StatusCreated, account)
}

// DeleteAccount removes an account and all of its data
// @Summary Delete account
// @Tags accounts
// @Param id path string true "Account ID"
// @Success 200 {object} models.RemovedResponse
// @Security ApiKeyAuth
// @Router /api/accounts/{id} [delete]
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	removed, err := h.scope.Destroy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	if !removed {
		respondError(w, http.StatusNotFound, models.ErrAccountNotFound.Message)
		return
	}
	respondJSON(w, http.StatusOK, models.RemovedResponse{Removed: true})
}

// ResetCurrent empties the current account's upgrade states and pended transactions
func (h *AccountHandler) ResetCurrent(w http.ResponseWriter, r *http.Request) {
	states, transactions, err := h.scope.Reset(r.Context())
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.ResetResponse{
		UpgradeStatesRemoved: states,
		TransactionsRemoved:  transactions,
	})
}
