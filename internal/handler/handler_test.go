package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/okoshkina/benefit-system/internal/locker"
	"github.com/okoshkina/benefit-system/internal/middleware"
	"github.com/okoshkina/benefit-system/internal/model"
	"github.com/okoshkina/benefit-system/internal/packing"
	"github.com/okoshkina/benefit-system/internal/repository"
	"github.com/okoshkina/benefit-system/internal/scheduler"
	"github.com/okoshkina/benefit-system/internal/validation"
)

type stubService struct {
	registerParticipant *model.Participant
	registerAccount     *model.Account
	registerErr         error

	balanceResp model.BalanceSummary
	balanceErr  error

	validateErr error

	confirmOrderID int64
	confirmErr     error

	ordersResp []model.Order
	ordersErr  error

	combinedResp *model.CombinedOrder
	combinedErr  error
}

func (s *stubService) RegisterParticipant(ctx context.Context, p model.Participant) (*model.Participant, *model.Account, error) {
	return s.registerParticipant, s.registerAccount, s.registerErr
}

func (s *stubService) GetBalanceSummary(ctx context.Context, participantID int64) (model.BalanceSummary, error) {
	return s.balanceResp, s.balanceErr
}

func (s *stubService) ValidateOrder(ctx context.Context, participantID int64, items []model.LineItem) error {
	return s.validateErr
}

func (s *stubService) ConfirmOrder(ctx context.Context, participantID int64, items []model.LineItem) (int64, error) {
	return s.confirmOrderID, s.confirmErr
}

func (s *stubService) GetOrdersByParticipant(ctx context.Context, participantID int64) ([]model.Order, error) {
	return s.ordersResp, s.ordersErr
}

func (s *stubService) BuildCombinedOrder(ctx context.Context, program string, year, week int, strategy packing.Strategy, packers []string, opts packing.Options) (*model.CombinedOrder, error) {
	return s.combinedResp, s.combinedErr
}

type stubPauses struct {
	createPause  *model.Pause
	createErr    error
	archiveErr   error
	unarchiveErr error
}

func (s *stubPauses) CreatePause(ctx context.Context, program string, start, end time.Time, reason string) (*model.Pause, error) {
	return s.createPause, s.createErr
}

func (s *stubPauses) Archive(ctx context.Context, pauseID int64) error {
	return s.archiveErr
}

func (s *stubPauses) Unarchive(ctx context.Context, pauseID int64) error {
	return s.unarchiveErr
}

func newTestHandler(t *testing.T, svc Service, pauses PauseManager) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, pauses, logger, auth, "staff-key")
}

func asParticipant(t *testing.T, h *Handler, req *http.Request) *http.Request {
	t.Helper()

	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, 5)
	req.AddCookie(rec.Result().Cookies()[0])
	return req
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{
		registerParticipant: &model.Participant{ID: 5},
		registerAccount:     &model.Account{ID: 7},
	}
	h := newTestHandler(t, svc, &stubPauses{})

	body, _ := json.Marshal(registerRequest{
		FullName: "Anna K",
		Program:  "north",
		Adults:   2,
		Children: 1,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/participant/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("register must set the auth cookie")
	}

	var resp registerResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ParticipantID != 5 || resp.AccountID != 7 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestRegister_EmptyHousehold(t *testing.T) {
	h := newTestHandler(t, &stubService{}, &stubPauses{})

	body, _ := json.Marshal(registerRequest{FullName: "Anna K", Program: "north"})
	req := httptest.NewRequest(http.MethodPost, "/api/participant/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if res := rec.Result(); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestStaffLogin(t *testing.T) {
	h := newTestHandler(t, &stubService{}, &stubPauses{})

	body, _ := json.Marshal(staffLoginRequest{Key: "staff-key"})
	req := httptest.NewRequest(http.MethodPost, "/api/staff/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.StaffLogin(rec, req)
	if res := rec.Result(); res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	body, _ = json.Marshal(staffLoginRequest{Key: "wrong"})
	req = httptest.NewRequest(http.MethodPost, "/api/staff/login", bytes.NewReader(body))
	rec = httptest.NewRecorder()

	h.StaffLogin(rec, req)
	if res := rec.Result(); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestGetBalance_ConvertsToWhole(t *testing.T) {
	svc := &stubService{
		balanceResp: model.BalanceSummary{
			FullCents:      15000,
			AvailableCents: 10000,
			HygieneCents:   3333,
		},
	}
	h := newTestHandler(t, svc, &stubPauses{})

	req := asParticipant(t, h, httptest.NewRequest(http.MethodGet, "/api/participant/balance", nil))
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.GetBalance)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp balanceResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Full != 150 || resp.Available != 100 || resp.Hygiene != 33.33 {
		t.Fatalf("unexpected balances: %+v", resp)
	}
}

func TestValidateOrder_ReturnsViolations(t *testing.T) {
	svc := &stubService{
		validateErr: &validation.ValidationError{
			Violations: []validation.Violation{
				{Kind: validation.ViolationCategoryLimit, Group: "Dairy", Allowed: 5, Actual: 7},
			},
		},
	}
	h := newTestHandler(t, svc, &stubPauses{})

	body, _ := json.Marshal([]lineItemRequest{
		{Product: "milk", Category: "Dairy", Quantity: 7, Price: 1.5},
	})
	req := asParticipant(t, h, httptest.NewRequest(http.MethodPost, "/api/participant/orders/validate", bytes.NewReader(body)))
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.ValidateOrder)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}

	var resp validationResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OK || len(resp.Violations) != 1 || resp.Violations[0].Group != "Dairy" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestConfirmOrder_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "insufficient benefit", err: repository.ErrInsufficientBenefit, want: http.StatusPaymentRequired},
		{name: "busy", err: locker.ErrBusy, want: http.StatusTooManyRequests},
		{name: "not found", err: repository.ErrNotFound, want: http.StatusNotFound},
		{name: "internal", err: context.DeadlineExceeded, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{confirmErr: tt.err}, &stubPauses{})

			body, _ := json.Marshal([]lineItemRequest{
				{Product: "milk", Category: "Dairy", Quantity: 1, Price: 10},
			})
			req := asParticipant(t, h, httptest.NewRequest(http.MethodPost, "/api/participant/orders", bytes.NewReader(body)))
			rec := httptest.NewRecorder()

			h.authMiddleware.Middleware(http.HandlerFunc(h.ConfirmOrder)).ServeHTTP(rec, req)

			if res := rec.Result(); res.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.want)
			}
		})
	}
}

func TestConfirmOrder_Success(t *testing.T) {
	h := newTestHandler(t, &stubService{confirmOrderID: 41}, &stubPauses{})

	body, _ := json.Marshal([]lineItemRequest{
		{Product: "milk", Category: "Dairy", Quantity: 2, Price: 10},
	})
	req := asParticipant(t, h, httptest.NewRequest(http.MethodPost, "/api/participant/orders", bytes.NewReader(body)))
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.ConfirmOrder)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp confirmResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OrderID != 41 {
		t.Fatalf("order id = %d, want 41", resp.OrderID)
	}
}

func TestGetOrders_NoContent(t *testing.T) {
	h := newTestHandler(t, &stubService{ordersResp: []model.Order{}}, &stubPauses{})

	req := asParticipant(t, h, httptest.NewRequest(http.MethodGet, "/api/participant/orders", nil))
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.GetOrders)).ServeHTTP(rec, req)

	if res := rec.Result(); res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
}

func TestCreatePause_ValidationStatus(t *testing.T) {
	h := newTestHandler(t, &stubService{}, &stubPauses{createErr: scheduler.ErrPauseLeadTime})

	body, _ := json.Marshal(createPauseRequest{
		Program: "north",
		Start:   time.Now().AddDate(0, 0, 2),
		End:     time.Now().AddDate(0, 0, 9),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/staff/pauses", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.CreatePause(rec, req)

	if res := rec.Result(); res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestCreatePause_Success(t *testing.T) {
	start := time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC)
	pauses := &stubPauses{
		createPause: &model.Pause{
			ID:      3,
			Program: "north",
			Start:   start,
			End:     start.AddDate(0, 0, 6),
		},
	}
	h := newTestHandler(t, &stubService{}, pauses)

	body, _ := json.Marshal(createPauseRequest{Program: "north", Start: start, End: start.AddDate(0, 0, 6)})
	req := httptest.NewRequest(http.MethodPost, "/api/staff/pauses", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.CreatePause(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp pauseResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 3 || resp.Multiplier != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestBuildCombinedOrder_BadStrategy(t *testing.T) {
	h := newTestHandler(t, &stubService{combinedErr: packing.ErrUnknownStrategy}, &stubPauses{})

	body, _ := json.Marshal(combinedOrderRequest{
		Program:  "north",
		Year:     2026,
		Week:     11,
		Strategy: "zigzag",
		Packers:  []string{"alice"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/staff/combined-orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.BuildCombinedOrder(rec, req)

	if res := rec.Result(); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestBuildCombinedOrder_Success(t *testing.T) {
	svc := &stubService{
		combinedResp: &model.CombinedOrder{
			ID:      9,
			Program: "north",
			Year:    2026,
			Week:    11,
			Orders:  []model.Order{{ID: 1}, {ID: 2}},
			PackingLists: []model.PackingList{
				{Packer: "alice", Lines: []model.LineItem{{Product: "milk", Quantity: 3}}},
				{Packer: "bob"},
			},
			Summary: map[string]map[string]int{"Dairy": {"milk": 3}},
		},
	}
	h := newTestHandler(t, svc, &stubPauses{})

	body, _ := json.Marshal(combinedOrderRequest{
		Program:  "north",
		Year:     2026,
		Week:     11,
		Strategy: "fifty_fifty",
		Packers:  []string{"alice", "bob"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/staff/combined-orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.BuildCombinedOrder(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp combinedOrderResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Orders != 2 || len(resp.PackingLists) != 2 || resp.PackingLists[0].Lines != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
