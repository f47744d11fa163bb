package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/rl1809/gamepass-store/internal/core/domain"
	"github.com/rl1809/gamepass-store/internal/core/service"
)

const maxBodyBytes = 64 << 10

type HTTPHandler struct {
	verifier *service.VerificationService
}

type VerifyHTTPRequest struct {
	Username string          `json:"username"`
	Tx       string          `json:"tx"`
	Items    []domain.Item   `json:"items"`
	Total    decimal.Decimal `json:"total"`
}

type VerifyHTTPResponse struct {
	OK      bool   `json:"ok"`
	OrderID string `json:"orderId,omitempty"`
	Error   string `json:"error,omitempty"`
}

func NewHTTPHandler(verifier *service.VerificationService) *HTTPHandler {
	return &HTTPHandler{verifier: verifier}
}

func (h *HTTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyHTTPRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, VerifyHTTPResponse{OK: false, Error: service.ErrMissingFields.Error()})
		return
	}

	orderID, err := h.verifier.Verify(r.Context(), service.VerifyInput{
		Username: req.Username,
		Tx:       req.Tx,
		Items:    req.Items,
		Total:    req.Total,
	})
	if err != nil {
		code := service.ErrorCode(err)
		writeJSON(w, verifyStatus(code), VerifyHTTPResponse{OK: false, Error: code})
		return
	}

	writeJSON(w, http.StatusOK, VerifyHTTPResponse{OK: true, OrderID: orderID})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func verifyStatus(code string) int {
	switch code {
	case service.ErrMissingFields.Error(), service.ErrInvalidTotal.Error():
		return http.StatusBadRequest
	case service.ErrTxUsed.Error():
		return http.StatusConflict
	case service.ErrUsernameNotFound.Error():
		return http.StatusNotFound
	case service.ErrNotPaid.Error():
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
