// Package api exposes the payment HTTP surface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"paygate/internal/common/api"
	"paygate/internal/common/money"
	"paygate/internal/payments"
	"paygate/internal/providers"
	"paygate/internal/providers/cards"
)

// Handler handles payment HTTP requests
type Handler struct {
	service *payments.Service

	// development exposes upstream error detail in responses.
	development bool
}

// NewHandler creates a new payment handler
func NewHandler(service *payments.Service, development bool) *Handler {
	return &Handler{service: service, development: development}
}

// Routes returns the payment routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/mpesa/initiate", h.initiateMobile(providers.Mpesa))
	r.Post("/mpesa/confirm", h.ConfirmMobile)
	r.Post("/airtel/initiate", h.initiateMobile(providers.Airtel))
	r.Post("/airtel/confirm", h.ConfirmMobile)

	r.Post("/card/process", h.ProcessCard)

	r.Post("/paypal/process", h.CreateWalletOrder)
	r.Post("/paypal/capture", h.CaptureWalletOrder)

	return r
}

// MobileInitiateRequest is the API request for a mobile-money push
type MobileInitiateRequest struct {
	PhoneNumber string  `json:"phoneNumber" validate:"required,msisdn"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
}

func (h *Handler) initiateMobile(name providers.Name) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MobileInitiateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.BadRequest(w, "Invalid request body")
			return
		}
		req.PhoneNumber = payments.NormalizePhone(req.PhoneNumber)
		if err := api.CheckStruct(&req); err != nil {
			h.writeError(w, err)
			return
		}

		txn, err := h.service.InitiateMobile(r.Context(), name, req.PhoneNumber, money.NewFromMajor(req.Amount, money.KES))
		if err != nil {
			h.writeError(w, err)
			return
		}

		api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
			"checkoutRequestID": txn.Reference,
			"transaction":       txn,
		})
	}
}

// ConfirmRequest is the API request for an explicit status check
type ConfirmRequest struct {
	Provider      string `json:"provider" validate:"required,oneof=mpesa airtel"`
	TransactionID string `json:"transactionId" validate:"required"`
}

// ConfirmMobile handles POST /mpesa/confirm and /airtel/confirm. Both
// providers share this path, selected by the provider field.
func (h *Handler) ConfirmMobile(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	state, err := h.service.ConfirmMobile(r.Context(), providers.Name(req.Provider), req.TransactionID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"status": state,
	})
}

// CardDetailsRequest carries the card fields of a card payment
type CardDetailsRequest struct {
	Number string `json:"number" validate:"required,pan"`
	Expiry string `json:"expiry" validate:"required,expiry"`
	CVC    string `json:"cvc" validate:"required,cvc"`
	Name   string `json:"name" validate:"required"`
}

// CardProcessRequest is the API request for a card payment
type CardProcessRequest struct {
	CardDetails CardDetailsRequest `json:"cardDetails" validate:"required"`
	Amount      float64            `json:"amount" validate:"required,gt=0"`
	Currency    string             `json:"currency"`
}

// ProcessCard handles POST /card/process
func (h *Handler) ProcessCard(w http.ResponseWriter, r *http.Request) {
	var req CardProcessRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	currency, ok := h.requestCurrency(w, req.Currency)
	if !ok {
		return
	}

	details := cards.Details{
		Number: req.CardDetails.Number,
		Expiry: req.CardDetails.Expiry,
		CVC:    req.CardDetails.CVC,
		Name:   req.CardDetails.Name,
	}
	txn, err := h.service.ProcessCard(r.Context(), details, money.NewFromMajor(req.Amount, currency))
	if err != nil {
		h.writeError(w, err)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"transaction": txn,
	})
}

// WalletOrderRequest is the API request for creating a wallet order
type WalletOrderRequest struct {
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Currency string  `json:"currency"`
}

// CreateWalletOrder handles POST /paypal/process
func (h *Handler) CreateWalletOrder(w http.ResponseWriter, r *http.Request) {
	var req WalletOrderRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	currency, ok := h.requestCurrency(w, req.Currency)
	if !ok {
		return
	}

	txn, err := h.service.CreateWalletOrder(r.Context(), money.NewFromMajor(req.Amount, currency))
	if err != nil {
		h.writeError(w, err)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"transaction": txn,
	})
}

// WalletCaptureRequest is the API request for capturing a wallet order
type WalletCaptureRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

// CaptureWalletOrder handles POST /paypal/capture
func (h *Handler) CaptureWalletOrder(w http.ResponseWriter, r *http.Request) {
	var req WalletCaptureRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	txn, err := h.service.CaptureWalletOrder(r.Context(), req.OrderID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"transaction": txn,
	})
}

// requestCurrency resolves the optional currency field, defaulting to USD.
func (h *Handler) requestCurrency(w http.ResponseWriter, raw string) (money.Currency, bool) {
	if raw == "" {
		return money.USD, true
	}
	currency := money.Currency(raw)
	if !money.IsSupported(currency) {
		api.BadRequest(w, "Currency is not supported")
		return "", false
	}
	return currency, true
}

// writeError maps service errors onto the failure envelope.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *providers.ValidationError
	if errors.As(err, &verr) {
		api.BadRequest(w, verr.Message)
		return
	}

	var aerr *providers.AuthenticationError
	var gerr *providers.GatewayError
	if errors.As(err, &aerr) || errors.As(err, &gerr) {
		if h.development {
			api.InternalError(w, err.Error())
			return
		}
		api.InternalError(w, "Payment processing failed")
		return
	}

	if h.development {
		api.InternalError(w, err.Error())
		return
	}
	api.InternalError(w, "An unexpected error occurred")
}
