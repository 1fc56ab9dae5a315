package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/okoshkina/benefit-system/internal/model"
	"github.com/okoshkina/benefit-system/internal/packing"
	"github.com/okoshkina/benefit-system/internal/repository"
	"github.com/okoshkina/benefit-system/internal/scheduler"
)

type createPauseRequest struct {
	Program string    `json:"program"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Reason  string    `json:"reason"`
}

type pauseResponse struct {
	ID         int64     `json:"id"`
	Program    string    `json:"program"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Multiplier int       `json:"multiplier"`
}

// CreatePause создаёт паузу программы и запускает её жизненный цикл.
func (h *Handler) CreatePause(w http.ResponseWriter, r *http.Request) {
	var req createPauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Program == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	pause, err := h.pauses.CreatePause(r.Context(), req.Program, req.Start, req.End, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrPauseLeadTime),
			errors.Is(err, scheduler.ErrPauseDuration),
			errors.Is(err, scheduler.ErrPauseWindow):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, repository.ErrPauseOverlap):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("create pause error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, pauseResponse{
		ID:         pause.ID,
		Program:    pause.Program,
		Start:      pause.Start,
		End:        pause.End,
		Multiplier: model.DurationMultiplier(pause.DurationDays()),
	})
}

// ArchivePause архивирует паузу вручную, немедленно снимая флаги ваучеров.
func (h *Handler) ArchivePause(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.pauses.Archive(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("archive pause error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// UnarchivePause возвращает паузу из архива.
func (h *Handler) UnarchivePause(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.pauses.Unarchive(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("unarchive pause error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type combinedOrderRequest struct {
	Program        string              `json:"program"`
	Year           int                 `json:"year"`
	Week           int                 `json:"week"`
	Strategy       string              `json:"strategy"`
	Packers        []string            `json:"packers"`
	WeightByItems  bool                `json:"weight_by_items"`
	CategoryOwners map[string][]string `json:"category_owners"`
}

type packingListResponse struct {
	Packer  string                    `json:"packer"`
	Lines   int                       `json:"lines"`
	Summary map[string]map[string]int `json:"summary"`
}

type combinedOrderResponse struct {
	ID           int64                     `json:"id"`
	Program      string                    `json:"program"`
	Year         int                       `json:"year"`
	Week         int                       `json:"week"`
	Orders       int                       `json:"orders"`
	PackingLists []packingListResponse     `json:"packing_lists"`
	Summary      map[string]map[string]int `json:"summary"`
}

// BuildCombinedOrder собирает сводный заказ программы за ISO-неделю и
// распределяет его между упаковщиками.
func (h *Handler) BuildCombinedOrder(w http.ResponseWriter, r *http.Request) {
	var req combinedOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Program == "" || req.Year == 0 || req.Week == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	combined, err := h.service.BuildCombinedOrder(r.Context(), req.Program, req.Year, req.Week,
		packing.Strategy(req.Strategy), req.Packers, packing.Options{
			WeightByItems:  req.WeightByItems,
			CategoryOwners: req.CategoryOwners,
		})
	if err != nil {
		switch {
		case errors.Is(err, packing.ErrNoPackers), errors.Is(err, packing.ErrUnknownStrategy):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrIntegrityConflict):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("build combined order error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	lists := make([]packingListResponse, 0, len(combined.PackingLists))
	for _, l := range combined.PackingLists {
		lists = append(lists, packingListResponse{
			Packer:  l.Packer,
			Lines:   len(l.Lines),
			Summary: l.Summary,
		})
	}

	writeJSON(w, http.StatusOK, combinedOrderResponse{
		ID:           combined.ID,
		Program:      combined.Program,
		Year:         combined.Year,
		Week:         combined.Week,
		Orders:       len(combined.Orders),
		PackingLists: lists,
		Summary:      combined.Summary,
	})
}
