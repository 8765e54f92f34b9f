// Package game owns the craps series state machine: series lifecycle, roll
// requests against the randomness oracle, and application of fulfilled rolls
// through the settlement engine.
//
// The oracle callback is modeled as two distinct entry points — a request
// that records a pending id on the series, and a fulfillment that must quote
// it — so at most one roll can ever be outstanding per series.
package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dicehouse/craps-engine/internal/auth"
	"github.com/dicehouse/craps-engine/internal/metrics"
	"github.com/dicehouse/craps-engine/internal/model"
	"github.com/dicehouse/craps-engine/internal/rng"
	"github.com/dicehouse/craps-engine/internal/settle"
	"github.com/dicehouse/craps-engine/internal/store"
)

var (
	// ErrSeriesAlreadyActive is returned when starting a series while a
	// point-phase series is in progress.
	ErrSeriesAlreadyActive = errors.New("game: series already active")

	// ErrNoActiveSeries is returned when rolling without an open series.
	ErrNoActiveSeries = errors.New("game: no active series")

	// ErrRollPending is returned when a randomness request is already
	// outstanding for the series.
	ErrRollPending = errors.New("game: roll request already pending")

	// ErrUnknownRequest is returned for fulfillments that do not match the
	// series' pending request id.
	ErrUnknownRequest = errors.New("game: unknown or stale randomness request")
)

// Service handles series operations. Uses a shared mutex for serialized
// state mutation across bet placement and settlement (single-instance).
type Service struct {
	store  store.Store
	source rng.Source
	engine *settle.Engine
	authz  *auth.Authorizer
	hub    *Hub // optional WebSocket hub for real-time broadcasts
	mu     *sync.Mutex
}

// NewService creates a game service. mu is the engine-wide write lock shared
// with the bet ledger; hub may be nil.
func NewService(st store.Store, source rng.Source, engine *settle.Engine, authz *auth.Authorizer, mu *sync.Mutex, hub *Hub) *Service {
	return &Service{store: st, source: source, engine: engine, authz: authz, mu: mu, hub: hub}
}

// Resolution labels what a roll did to the pass line.
type Resolution string

const (
	ResolutionNatural          Resolution = "natural"
	ResolutionCraps            Resolution = "craps"
	ResolutionPointEstablished Resolution = "point_established"
	ResolutionPointMade        Resolution = "point_made"
	ResolutionSevenOut         Resolution = "seven_out"
	ResolutionNone             Resolution = "no_resolution"
)

// transition applies the craps phase table to a total and returns the
// post-roll series state alongside the resolution label.
func transition(s *model.Series, total int, now time.Time) (*model.Series, Resolution) {
	next := *s
	next.PendingRequestID = ""

	if s.Phase == model.PhaseComeOut {
		switch {
		case total == 7 || total == 11:
			return &next, ResolutionNatural
		case total == 2 || total == 3 || total == 12:
			return &next, ResolutionCraps
		default:
			next.Phase = model.PhasePoint
			next.Point = total
			return &next, ResolutionPointEstablished
		}
	}

	// Point phase.
	switch {
	case total == s.Point:
		next.Phase = model.PhaseComeOut
		next.Point = 0
		return &next, ResolutionPointMade
	case total == 7:
		next.Phase = model.PhaseSevenOut
		next.Point = 0
		next.EndedAt = now
		return &next, ResolutionSevenOut
	default:
		return &next, ResolutionNone
	}
}

// --- HTTP Handlers ---

// StartSeries handles POST /api/v1/series (operator).
func (s *Service) StartSeries(w http.ResponseWriter, r *http.Request) {
	if err := s.authz.Authorize(r, auth.OpStartSeries); err != nil {
		writeError(w, "unauthorized", http.StatusForbidden)
		return
	}

	ctx := r.Context()
	s.mu.Lock()
	defer s.mu.Unlock()

	var seq int64 = 1
	cur, err := s.store.GetCurrentSeries(ctx)
	if err == nil {
		if cur.Phase == model.PhasePoint {
			writeError(w, ErrSeriesAlreadyActive.Error(), http.StatusConflict)
			return
		}
		if cur.PendingRequestID != "" {
			writeError(w, ErrRollPending.Error(), http.StatusConflict)
			return
		}
		if cur.Active() {
			// A come-out series may be superseded, but never with live bets.
			active, err := s.store.GetActiveBets(ctx, cur.ID)
			if err != nil {
				writeError(w, "failed to check active bets", http.StatusInternalServerError)
				return
			}
			if len(active) > 0 {
				writeError(w, "current series still has active bets", http.StatusConflict)
				return
			}
			cur.EndedAt = time.Now().UTC()
			cur.Phase = model.PhaseSevenOut
			if err := s.store.UpdateSeries(ctx, cur); err != nil {
				writeError(w, "failed to close prior series", http.StatusInternalServerError)
				return
			}
		}
		seq = cur.Seq + 1
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, "failed to load series", http.StatusInternalServerError)
		return
	}

	series := &model.Series{
		ID:        uuid.New().String(),
		Seq:       seq,
		Phase:     model.PhaseComeOut,
		Point:     0,
		StartedAt: time.Now().UTC(),
	}
	if err := s.store.CreateSeries(ctx, series); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("series started", "series_id", series.ID, "seq", series.Seq)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(series)
}

// GetCurrentSeries handles GET /api/v1/series/current.
func (s *Service) GetCurrentSeries(w http.ResponseWriter, r *http.Request) {
	series, err := s.store.GetCurrentSeries(r.Context())
	if err != nil {
		writeError(w, "no series", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(series)
}

// RollResponse is returned from POST /api/v1/series/roll.
type RollResponse struct {
	RequestID string `json:"request_id"`
	SeriesID  string `json:"series_id"`
}

// RequestRoll handles POST /api/v1/series/roll (operator). It forwards a
// randomness request and records the pending id; no game state changes
// until the fulfillment arrives.
func (s *Service) RequestRoll(w http.ResponseWriter, r *http.Request) {
	if err := s.authz.Authorize(r, auth.OpRequestRoll); err != nil {
		writeError(w, "unauthorized", http.StatusForbidden)
		return
	}

	ctx := r.Context()
	s.mu.Lock()
	defer s.mu.Unlock()

	series, err := s.store.GetCurrentSeries(ctx)
	if err != nil || !series.Active() {
		writeError(w, ErrNoActiveSeries.Error(), http.StatusConflict)
		return
	}
	if series.PendingRequestID != "" {
		writeError(w, ErrRollPending.Error(), http.StatusConflict)
		return
	}

	requestID, err := s.source.Request(ctx)
	if err != nil {
		writeError(w, "randomness request failed", http.StatusBadGateway)
		return
	}

	series.PendingRequestID = requestID
	if err := s.store.UpdateSeries(ctx, series); err != nil {
		writeError(w, "failed to record pending request", http.StatusInternalServerError)
		return
	}

	metrics.PendingRolls.Set(1)
	slog.Info("roll requested", "series_id", series.ID, "request_id", requestID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(RollResponse{RequestID: requestID, SeriesID: series.ID})
}

// CancelPendingRoll handles POST /api/v1/series/roll/cancel (operator).
// Force-clears a stuck randomness request so a fresh roll can be issued.
// A late fulfillment for the cancelled id is rejected as unknown.
func (s *Service) CancelPendingRoll(w http.ResponseWriter, r *http.Request) {
	if err := s.authz.Authorize(r, auth.OpCancelRoll); err != nil {
		writeError(w, "unauthorized", http.StatusForbidden)
		return
	}

	ctx := r.Context()
	s.mu.Lock()
	defer s.mu.Unlock()

	series, err := s.store.GetCurrentSeries(ctx)
	if err != nil {
		writeError(w, ErrNoActiveSeries.Error(), http.StatusConflict)
		return
	}
	if series.PendingRequestID == "" {
		writeError(w, "no pending roll", http.StatusConflict)
		return
	}

	cancelled := series.PendingRequestID
	series.PendingRequestID = ""
	if err := s.store.UpdateSeries(ctx, series); err != nil {
		writeError(w, "failed to clear pending request", http.StatusInternalServerError)
		return
	}

	metrics.PendingRolls.Set(0)
	slog.Warn("pending roll force-cancelled", "series_id", series.ID, "request_id", cancelled)

	w.WriteHeader(http.StatusNoContent)
}

// FulfillRequest is the JSON body of the oracle callback.
type FulfillRequest struct {
	RequestID string   `json:"request_id"`
	Values    []uint64 `json:"values"`
}

// HandleFulfillment handles POST /api/v1/randomness/fulfill (oracle/operator).
func (s *Service) HandleFulfillment(w http.ResponseWriter, r *http.Request) {
	if err := s.authz.Authorize(r, auth.OpFulfill); err != nil {
		writeError(w, "unauthorized", http.StatusForbidden)
		return
	}

	var req FulfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Values) < 2 {
		writeError(w, "need two random words", http.StatusBadRequest)
		return
	}

	if err := s.Fulfill(r.Context(), req.RequestID, req.Values); err != nil {
		switch {
		case errors.Is(err, ErrUnknownRequest):
			writeError(w, err.Error(), http.StatusConflict)
		default:
			writeError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Fulfill consumes a randomness fulfillment: derives the dice, applies the
// phase transition, and settles every affected bet in one atomic pass.
// Implements rng.Fulfiller.
func (s *Service) Fulfill(ctx context.Context, requestID string, values []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, err := s.store.GetCurrentSeries(ctx)
	if err != nil {
		return ErrUnknownRequest
	}
	if series.PendingRequestID == "" || series.PendingRequestID != requestID {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	if len(values) < 2 {
		return fmt.Errorf("game: need two random words, got %d", len(values))
	}

	now := time.Now().UTC()
	die1 := int(1 + values[0]%6)
	die2 := int(1 + values[1]%6)
	total := die1 + die2

	roll := &model.Roll{
		ID:        uuid.New().String(),
		SeriesID:  series.ID,
		RequestID: requestID,
		Die1:      die1,
		Die2:      die2,
		Total:     total,
		Phase:     series.Phase,
		Point:     series.Point,
		RolledAt:  now,
	}

	next, resolution := transition(series, total, now)

	plan, err := s.engine.SettleRoll(ctx, next, roll)
	if err != nil {
		return err
	}

	metrics.PendingRolls.Set(0)
	metrics.RollsTotal.WithLabelValues(string(resolution)).Inc()

	payoutTotal := decimal.Zero
	for _, st := range plan.Settlements {
		payoutTotal = payoutTotal.Add(st.Payout)
	}

	slog.Info("roll applied",
		"series_id", series.ID,
		"request_id", requestID,
		"dice", fmt.Sprintf("%d-%d", die1, die2),
		"total", total,
		"resolution", string(resolution),
		"phase", string(next.Phase),
		"point", next.Point,
		"settled", len(plan.Settlements),
		"payout_total", payoutTotal.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(Message{
			Type:       "roll",
			SeriesID:   series.ID,
			Die1:       die1,
			Die2:       die2,
			Total:      total,
			Phase:      string(next.Phase),
			Point:      next.Point,
			Resolution: string(resolution),
			Settled:    len(plan.Settlements),
		})
	}

	return nil
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
