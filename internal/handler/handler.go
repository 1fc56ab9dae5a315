// Package handler содержит HTTP-обработчики API системы ваучеров.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/okoshkina/benefit-system/internal/locker"
	"github.com/okoshkina/benefit-system/internal/middleware"
	"github.com/okoshkina/benefit-system/internal/model"
	"github.com/okoshkina/benefit-system/internal/packing"
	"github.com/okoshkina/benefit-system/internal/repository"
	"github.com/okoshkina/benefit-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterParticipant(ctx context.Context, p model.Participant) (*model.Participant, *model.Account, error)
	GetBalanceSummary(ctx context.Context, participantID int64) (model.BalanceSummary, error)
	ValidateOrder(ctx context.Context, participantID int64, items []model.LineItem) error
	ConfirmOrder(ctx context.Context, participantID int64, items []model.LineItem) (int64, error)
	GetOrdersByParticipant(ctx context.Context, participantID int64) ([]model.Order, error)
	BuildCombinedOrder(ctx context.Context, program string, year, week int, strategy packing.Strategy, packers []string, opts packing.Options) (*model.CombinedOrder, error)
}

// PauseManager определяет контракт управления паузами.
type PauseManager interface {
	CreatePause(ctx context.Context, program string, start, end time.Time, reason string) (*model.Pause, error)
	Archive(ctx context.Context, pauseID int64) error
	Unarchive(ctx context.Context, pauseID int64) error
}

// Handler реализует HTTP-обработчики API системы ваучеров.
type Handler struct {
	service        Service
	pauses         PauseManager
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	staffKey       string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, p PauseManager, logger *zap.Logger, auth *middleware.AuthMiddleware, staffKey string) *Handler {
	return &Handler{
		service:        s,
		pauses:         p,
		logger:         logger,
		authMiddleware: auth,
		staffKey:       staffKey,
	}
}

type registerRequest struct {
	FullName     string `json:"full_name"`
	Program      string `json:"program"`
	Adults       int    `json:"adults"`
	Children     int    `json:"children"`
	Infants      int    `json:"infants"`
	OrderWeekday int    `json:"order_weekday"`
}

type registerResponse struct {
	ParticipantID int64 `json:"participant_id"`
	AccountID     int64 `json:"account_id"`
}

// Register регистрирует участника и создаёт его счёт с начальными ваучерами.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.FullName == "" || req.Program == "" || req.Adults+req.Children+req.Infants == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	participant, account, err := h.service.RegisterParticipant(r.Context(), model.Participant{
		FullName:     req.FullName,
		Program:      req.Program,
		Adults:       req.Adults,
		Children:     req.Children,
		Infants:      req.Infants,
		OrderWeekday: time.Weekday(req.OrderWeekday),
	})
	if err != nil {
		if errors.Is(err, repository.ErrIntegrityConflict) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register participant error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, participant.ID)
	writeJSON(w, http.StatusOK, registerResponse{
		ParticipantID: participant.ID,
		AccountID:     account.ID,
	})
}

type staffLoginRequest struct {
	Key string `json:"key"`
}

// StaffLogin выдаёт cookie сотрудника по общему ключу.
func (h *Handler) StaffLogin(w http.ResponseWriter, r *http.Request) {
	var req staffLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if h.staffKey == "" || req.Key != h.staffKey {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	h.authMiddleware.SetStaffCookie(w, 0)
	w.WriteHeader(http.StatusOK)
}

type balanceResponse struct {
	Full      float64 `json:"full"`
	Available float64 `json:"available"`
	Hygiene   float64 `json:"hygiene"`
	GoFresh   float64 `json:"go_fresh"`
}

// GetBalance возвращает четыре баланса счёта участника.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	participantID, ok := middleware.GetParticipantIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	summary, err := h.service.GetBalanceSummary(r.Context(), participantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get balance error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Full:      float64(summary.FullCents) / 100,
		Available: float64(summary.AvailableCents) / 100,
		Hygiene:   float64(summary.HygieneCents) / 100,
		GoFresh:   float64(summary.GoFreshCents) / 100,
	})
}

type lineItemRequest struct {
	Product     string  `json:"product"`
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

func toLineItems(reqs []lineItemRequest) []model.LineItem {
	items := make([]model.LineItem, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, model.LineItem{
			Product:     r.Product,
			Category:    r.Category,
			Subcategory: r.Subcategory,
			Quantity:    r.Quantity,
			PriceCents:  int64(r.Price * 100),
		})
	}
	return items
}

type validationResponse struct {
	OK         bool                   `json:"ok"`
	Violations []validation.Violation `json:"violations,omitempty"`
}

// ValidateOrder проверяет предложенный заказ без изменения состояния.
// Ответ содержит все нарушения сразу, а не только первое.
func (h *Handler) ValidateOrder(w http.ResponseWriter, r *http.Request) {
	participantID, ok := middleware.GetParticipantIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var items []lineItemRequest
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.ValidateOrder(r.Context(), participantID, toLineItems(items))
	if err != nil {
		var vErr *validation.ValidationError
		if errors.As(err, &vErr) {
			writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Violations: vErr.Violations})
			return
		}
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("validate order error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, validationResponse{OK: true})
}

type confirmResponse struct {
	OrderID int64 `json:"order_id"`
}

// ConfirmOrder подтверждает заказ и списывает ваучеры.
func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	participantID, ok := middleware.GetParticipantIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var items []lineItemRequest
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orderID, err := h.service.ConfirmOrder(r.Context(), participantID, toLineItems(items))
	if err != nil {
		var vErr *validation.ValidationError
		switch {
		case errors.As(err, &vErr):
			writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Violations: vErr.Violations})
		case errors.Is(err, repository.ErrInsufficientBenefit):
			http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
		case errors.Is(err, locker.ErrBusy):
			// Конкурентная отправка: клиенту стоит повторить позже.
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		case errors.Is(err, repository.ErrNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("confirm order error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, confirmResponse{OrderID: orderID})
}

type orderResponse struct {
	ID        int64     `json:"id"`
	Status    string    `json:"status"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}

// GetOrders возвращает заказы участника.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	participantID, ok := middleware.GetParticipantIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.service.GetOrdersByParticipant(r.Context(), participantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get orders error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	res := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		res = append(res, orderResponse{
			ID:        o.ID,
			Status:    string(o.Status),
			Total:     float64(o.TotalCents) / 100,
			CreatedAt: o.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
