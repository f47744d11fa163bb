package handler

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rl1809/gamepass-store/internal/core/domain"
	"github.com/rl1809/gamepass-store/internal/core/service"
)

const (
	adminTokenHeader = "X-Admin-Token"
	exportFilename   = "orders.csv"
)

type AdminHandler struct {
	admin *service.AdminService
	token string
	log   *zap.Logger
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type adminResponse struct {
	OK     bool           `json:"ok"`
	Error  string         `json:"error,omitempty"`
	Order  *domain.Order  `json:"order,omitempty"`
	Orders []domain.Order `json:"orders,omitempty"`
}

func NewAdminHandler(admin *service.AdminService, token string, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{admin: admin, token: token, log: log}
}

// RequireToken accepts the shared secret from the X-Admin-Token header or the token query parameter.
func (h *AdminHandler) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(adminTokenHeader)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, adminResponse{OK: false, Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.admin.ListOrders(r.Context())
	if err != nil {
		h.fail(w, "list orders", err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	// Orders is omitempty on the shared response; an empty listing still needs the key.
	writeJSON(w, http.StatusOK, struct {
		OK     bool           `json:"ok"`
		Orders []domain.Order `json:"orders"`
	}{OK: true, Orders: orders})
}

func (h *AdminHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.admin.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, adminResponse{OK: true, Order: o})
}

func (h *AdminHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, adminResponse{OK: false, Error: "invalid_body"})
		return
	}

	o, err := h.admin.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.fail(w, "update order", err)
		return
	}
	writeJSON(w, http.StatusOK, adminResponse{OK: true, Order: o})
}

func (h *AdminHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.DeleteOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete order", err)
		return
	}
	writeJSON(w, http.StatusOK, adminResponse{OK: true})
}

func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.admin.ExportCSV(r.Context(), &buf); err != nil {
		h.fail(w, "export orders", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+exportFilename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *AdminHandler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, adminResponse{OK: false, Error: "not_found"})
	case errors.Is(err, domain.ErrInvalidStatus):
		writeJSON(w, http.StatusBadRequest, adminResponse{OK: false, Error: "invalid_status"})
	default:
		h.log.Error(op+" failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, adminResponse{OK: false, Error: "server_error"})
	}
}
