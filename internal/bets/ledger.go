// Package bets implements the bet ledger: placement validation, escrow of
// the wagered amount, and active-bet queries. Bets are settled exclusively
// by the settlement engine; nothing here mutates a bet after insert.
package bets

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dicehouse/craps-engine/internal/bettype"
	"github.com/dicehouse/craps-engine/internal/metrics"
	"github.com/dicehouse/craps-engine/internal/model"
	"github.com/dicehouse/craps-engine/internal/store"
)

var (
	// ErrBetOutOfBounds is returned for amounts outside [min, max].
	ErrBetOutOfBounds = errors.New("bets: amount outside table limits")

	// ErrBetAlreadyActive is returned when a single-instance bet type is
	// re-bet before the prior bet settles.
	ErrBetAlreadyActive = errors.New("bets: bet of this type already active")

	// ErrBotDepleted is returned when the backing vault has no bankroll.
	ErrBotDepleted = errors.New("bets: bot vault depleted")

	// ErrMissingBaseBet is returned when odds are placed without the line
	// or come bet they back.
	ErrMissingBaseBet = errors.New("bets: odds require an active base bet")
)

// Service handles bet placement and account funding.
type Service struct {
	store  store.Store
	minBet decimal.Decimal
	maxBet decimal.Decimal
	mu     *sync.Mutex // engine-wide write lock shared with the game service
}

// NewService creates a bet ledger service.
func NewService(st store.Store, minBet, maxBet decimal.Decimal, mu *sync.Mutex) *Service {
	return &Service{store: st, minBet: minBet, maxBet: maxBet, mu: mu}
}

// PlaceBetRequest is the JSON body for POST /api/v1/bets.
type PlaceBetRequest struct {
	Player  string          `json:"player"`
	BotID   int             `json:"bot_id"`
	BetType int             `json:"bet_type"`
	Amount  decimal.Decimal `json:"amount"`
}

// PlaceBet handles POST /api/v1/bets. Validates bet type, amount bounds,
// phase legality and duplicate policy, then escrows the amount against the
// new bet.
func (s *Service) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	if req.Player == "" {
		writeError(w, "player is required", http.StatusBadRequest)
		return
	}
	spec, err := bettype.Lookup(req.BetType)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}
	if req.Amount.LessThan(s.minBet) || req.Amount.GreaterThan(s.maxBet) {
		writeError(w, fmt.Sprintf("%s: [%s, %s]", ErrBetOutOfBounds, s.minBet, s.maxBet), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// Serialize against settlement: no bet may slip in between a roll's
	// snapshot and its apply.
	s.mu.Lock()
	defer s.mu.Unlock()

	bot, err := s.store.GetBot(ctx, req.BotID)
	if err != nil {
		writeError(w, "unknown bot", http.StatusBadRequest)
		return
	}
	if bot.Depleted {
		writeError(w, ErrBotDepleted.Error(), http.StatusConflict)
		return
	}

	series, err := s.store.GetCurrentSeries(ctx)
	if err != nil || !series.Active() {
		writeError(w, "no active series", http.StatusConflict)
		return
	}

	rolls, err := s.store.ListRollsBySeries(ctx, series.ID)
	if err != nil {
		writeError(w, "failed to load series history", http.StatusInternalServerError)
		return
	}
	if err := bettype.CheckPhase(spec, series.Phase, len(rolls)); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	active, err := s.store.GetActiveBetsByPlayer(ctx, req.Player)
	if err != nil {
		writeError(w, "failed to load active bets", http.StatusInternalServerError)
		return
	}
	if err := checkDuplicate(spec, active, series.ID); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	point := 0
	if spec.Kind == bettype.KindOdds {
		p, err := oddsPoint(req.BetType, active, series)
		if err != nil {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		point = p
	}

	// Escrow the stake.
	if err := s.store.DebitAccount(ctx, req.Player, req.Amount); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		writeError(w, "failed to escrow stake", http.StatusInternalServerError)
		return
	}

	bet := &model.Bet{
		ID:       uuid.New().String(),
		Player:   req.Player,
		BotID:    req.BotID,
		SeriesID: series.ID,
		BetType:  req.BetType,
		Amount:   req.Amount,
		Point:    point,
		PlacedAt: time.Now().UTC(),
		Payout:   decimal.Zero,
	}
	if err := s.store.InsertBet(ctx, bet); err != nil {
		// Refund the escrow; the insert failing after a successful debit
		// must not strand funds.
		s.store.CreditAccount(ctx, req.Player, req.Amount)
		writeError(w, "failed to record bet", http.StatusInternalServerError)
		return
	}

	metrics.BetsPlacedTotal.WithLabelValues(spec.Name).Inc()
	slog.Info("bet placed",
		"bet_id", bet.ID,
		"player", req.Player,
		"bot", req.BotID,
		"type", spec.Name,
		"amount", req.Amount.String(),
		"series_id", series.ID,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(bet)
}

// checkDuplicate enforces the per-(player, type) policy: single-instance
// types reject a second active bet; come/don't come allow one only once the
// prior bet has traveled to its point.
func checkDuplicate(spec bettype.Spec, active []model.Bet, seriesID string) error {
	for _, b := range active {
		if b.SeriesID != seriesID || b.BetType != spec.Type {
			continue
		}
		if spec.Kind == bettype.KindCome {
			if b.Point == 0 {
				return fmt.Errorf("%w: prior %s bet has not traveled", ErrBetAlreadyActive, spec.Name)
			}
			continue
		}
		if spec.SingleInstance {
			return fmt.Errorf("%w: %s", ErrBetAlreadyActive, spec.Name)
		}
	}
	return nil
}

// oddsPoint locates the backing bet and returns the point the odds cover:
// the series point for line odds, the base bet's own traveled point for
// come/don't come odds. Come odds are rejected until the base bet has
// traveled, so they can never back a number the base bet is not behind.
func oddsPoint(betType int, active []model.Bet, series *model.Series) (int, error) {
	base := map[int]int{
		bettype.OddsPass:     bettype.Pass,
		bettype.OddsDontPass: bettype.DontPass,
		bettype.OddsCome:     bettype.Come,
		bettype.OddsDontCome: bettype.DontCome,
	}[betType]

	found := false
	for _, b := range active {
		if b.SeriesID != series.ID || b.BetType != base {
			continue
		}
		if base == bettype.Come || base == bettype.DontCome {
			found = true
			if b.Point != 0 {
				return b.Point, nil
			}
			continue
		}
		return series.Point, nil
	}
	if found {
		baseSpec, _ := bettype.Lookup(base)
		return 0, fmt.Errorf("%w: %s bet has not traveled", ErrMissingBaseBet, baseSpec.Name)
	}
	return 0, ErrMissingBaseBet
}

// GetActiveBets handles GET /api/v1/bets/{player}.
func (s *Service) GetActiveBets(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "player")

	bets, err := s.store.GetActiveBetsByPlayer(r.Context(), player)
	if err != nil {
		writeError(w, "failed to load bets", http.StatusInternalServerError)
		return
	}
	if bets == nil {
		bets = []model.Bet{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bets)
}

// DepositRequest is the JSON body for POST /api/v1/accounts/{player}/deposit.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Deposit handles POST /api/v1/accounts/{player}/deposit.
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "player")

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	if err := s.store.CreditAccount(r.Context(), player, req.Amount); err != nil {
		writeError(w, "failed to credit account", http.StatusInternalServerError)
		return
	}

	account, err := s.store.GetAccount(r.Context(), player)
	if err != nil {
		writeError(w, "failed to load account", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// GetAccount handles GET /api/v1/accounts/{player}.
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "player")

	account, err := s.store.GetAccount(r.Context(), player)
	if err != nil {
		writeError(w, "failed to load account", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
