package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ndunguloren96/ltronix-shop/internal/checkout"
)

type Payments interface {
	Start(ctx context.Context, orderID int64, phone string) (*checkout.Attempt, error)
	Lookup(transactionID int64) (*checkout.Attempt, bool)
}

type CheckoutHandler struct {
	payments Payments
	timeout  time.Duration
}

func NewCheckoutHandler(payments Payments, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		payments: payments,
		timeout:  timeout,
	}
}

type InitiateCheckoutRequestDTO struct {
	OrderID int64  `json:"order_id"`
	Phone   string `json:"phone"`
}

type OutcomeDTO struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
	Receipt  string `json:"mpesa_receipt_number,omitempty"`
}

type CheckoutResponseDTO struct {
	TransactionID int64       `json:"transaction_id"`
	OrderID       int64       `json:"order_id"`
	Status        string      `json:"status"`
	Closed        bool        `json:"closed"`
	Message       string      `json:"message,omitempty"`
	Outcome       *OutcomeDTO `json:"outcome,omitempty"`
}

const msgCheckPhone = "Check your phone and enter your M-Pesa PIN to complete the payment."

func toCheckoutResponse(a *checkout.Attempt) CheckoutResponseDTO {
	tx := a.Transaction()
	dto := CheckoutResponseDTO{
		TransactionID: tx.ID,
		OrderID:       tx.OrderID,
		Status:        a.Status().String(),
		Closed:        a.Closed(),
	}
	if out, ok := a.Outcome(); ok {
		dto.Message = out.Message
		dto.Outcome = &OutcomeDTO{
			Kind:     string(out.Kind),
			Message:  out.Message,
			Redirect: out.Redirect,
			Receipt:  out.Transaction.ReceiptNumber,
		}
	} else {
		dto.Message = msgCheckPhone
	}
	return dto
}

// POST /api/v1/checkout
func (h *CheckoutHandler) InitiateCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req InitiateCheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	attempt, err := h.payments.Start(ctx, req.OrderID, req.Phone)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrInvalidPhone):
			respondError(w, http.StatusBadRequest, "invalid_phone", err.Error())
		case errors.Is(err, checkout.ErrInvalidOrder):
			respondError(w, http.StatusBadRequest, "invalid_order_id", err.Error())
		case errors.Is(err, checkout.ErrEmptyCart):
			respondError(w, http.StatusBadRequest, "empty_cart", err.Error())
		case errors.Is(err, checkout.ErrPaymentInProgress):
			respondError(w, http.StatusConflict, "payment_in_progress", err.Error())
		default:
			handleBackendError(w, err)
		}
		return
	}

	respondJSON(w, http.StatusCreated, toCheckoutResponse(attempt))
}

// GET /api/v1/checkout/{transaction_id}
func (h *CheckoutHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	attempt, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, toCheckoutResponse(attempt))
}

// POST /api/v1/checkout/{transaction_id}/close
func (h *CheckoutHandler) Close(w http.ResponseWriter, r *http.Request) {
	attempt, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := attempt.Close(); err != nil {
		respondError(w, http.StatusConflict, "payment_in_progress", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, toCheckoutResponse(attempt))
}

func (h *CheckoutHandler) lookup(w http.ResponseWriter, r *http.Request) (*checkout.Attempt, bool) {
	idStr := chi.URLParam(r, "transaction_id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_transaction_id", "transaction_id must be a positive integer")
		return nil, false
	}
	attempt, ok := h.payments.Lookup(id)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "payment not found")
		return nil, false
	}
	return attempt, true
}
