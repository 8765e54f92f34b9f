// Package rebate implements weekly net settlement between the bot vaults and
// the house: virtual debt tracking, pro-rata rebate entitlements on surplus
// weeks, claim handling, and expiry sweeps.
package rebate

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dicehouse/craps-engine/internal/auth"
	"github.com/dicehouse/craps-engine/internal/metrics"
	"github.com/dicehouse/craps-engine/internal/model"
	"github.com/dicehouse/craps-engine/internal/store"
)

var (
	// ErrWeekStillOpen is returned when advancing before the window elapses
	// or finalizing the currently open week.
	ErrWeekStillOpen = errors.New("rebate: week window has not elapsed")

	// ErrWeekFinalized is returned when finalizing a week twice.
	ErrWeekFinalized = errors.New("rebate: week already finalized")

	// ErrRebateExpired is returned when claiming past the expiry deadline.
	ErrRebateExpired = errors.New("rebate: entitlement expired")
)

// amountScale rounds entitlement amounts to 8 decimal places, matching the
// payout scale used everywhere else.
const amountScale = 8

// Service handles weekly finalization and rebate distribution.
type Service struct {
	store        store.Store
	authz        *auth.Authorizer
	weekDuration time.Duration
	claimWindow  time.Duration
	mu           *sync.Mutex

	now func() time.Time // injectable clock
}

// NewService creates a rebate ledger service. claimWindow is how long
// entitlements stay claimable after finalization.
func NewService(st store.Store, authz *auth.Authorizer, weekDuration, claimWindow time.Duration, mu *sync.Mutex) *Service {
	return &Service{
		store:        st,
		authz:        authz,
		weekDuration: weekDuration,
		claimWindow:  claimWindow,
		mu:           mu,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// AdvanceWeek handles POST /api/v1/weeks/advance. Closes the current week
// and opens the next once the window has elapsed.
func (s *Service) AdvanceWeek(w http.ResponseWriter, r *http.Request) {
	if err := s.authz.Authorize(r, auth.OpAdvanceWeek); err != nil {
		writeError(w, err.Error(), http.StatusForbidden)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := r.Context()
	weekID, openedAt, err := s.store.GetCurrentWeek(ctx)
	if err != nil {
		writeError(w, "failed to load current week", http.StatusInternalServerError)
		return
	}

	now := s.now()
	if now.Before(openedAt.Add(s.weekDuration)) {
		writeError(w, fmt.Sprintf("%s: week %d open until %s",
			ErrWeekStillOpen, weekID, openedAt.Add(s.weekDuration).Format(time.RFC3339)),
			http.StatusConflict)
		return
	}

	next, err := s.store.OpenNextWeek(ctx, now)
	if err != nil {
		writeError(w, "failed to open next week", http.StatusInternalServerError)
		return
	}

	slog.Info("week advanced", "closed_week", weekID, "open_week", next)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"closed_week": weekID,
		"open_week":   next,
		"opened_at":   now,
	})
}

// FinalizeWeek handles POST /api/v1/weeks/{weekID}/finalize. Nets the closed
// week's per-bot positions against the house, pays down virtual debt first,
// and distributes any surplus pro rata by contributor volume.
func (s *Service) FinalizeWeek(w http.ResponseWriter, r *http.Request) {
	if err := s.authz.Authorize(r, auth.OpFinalizeWeek); err != nil {
		writeError(w, err.Error(), http.StatusForbidden)
		return
	}

	weekID, err := strconv.ParseInt(chi.URLParam(r, "weekID"), 10, 64)
	if err != nil {
		writeError(w, "invalid week id", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := r.Context()
	current, _, err := s.store.GetCurrentWeek(ctx)
	if err != nil {
		writeError(w, "failed to load current week", http.StatusInternalServerError)
		return
	}
	if weekID >= current {
		writeError(w, fmt.Sprintf("%s: week %d is not closed", ErrWeekStillOpen, weekID), http.StatusConflict)
		return
	}

	positions, err := s.store.GetWeekPositions(ctx, weekID)
	if err != nil {
		writeError(w, "failed to load week positions", http.StatusInternalServerError)
		return
	}

	ledger, err := s.store.GetHouseLedger(ctx)
	if err != nil {
		writeError(w, "failed to load house ledger", http.StatusInternalServerError)
		return
	}

	net := decimal.Zero
	for _, pos := range positions {
		net = net.Add(pos.Net())
	}

	fin := &store.WeekFinalization{
		WeekID:      weekID,
		DebtBefore:  ledger.VirtualDebt,
		DebtPaidOff: ledger.DebtPaidOff,
	}

	surplus := decimal.Zero
	if net.IsNegative() {
		// Losing week: the shortfall becomes virtual debt carried forward.
		fin.DebtAfter = ledger.VirtualDebt.Add(net.Neg())
	} else {
		// Winning week: debt is paid down before anything is rebated.
		paydown := decimal.Min(net, ledger.VirtualDebt)
		fin.DebtAfter = ledger.VirtualDebt.Sub(paydown)
		fin.DebtPaidOff = ledger.DebtPaidOff.Add(paydown)
		surplus = net.Sub(paydown)
	}

	if surplus.IsPositive() {
		volumes, err := s.store.GetContributorVolumes(ctx, weekID)
		if err != nil {
			writeError(w, "failed to load contributor volumes", http.StatusInternalServerError)
			return
		}
		fin.Entitlements = allocate(weekID, surplus, volumes, s.now().Add(s.claimWindow))
	}

	// The store enforces exactly-once finalization, including for weeks
	// that closed with no positions.
	if err := s.store.ApplyWeekFinalization(ctx, fin); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, fmt.Sprintf("%s: week %d", ErrWeekFinalized, weekID), http.StatusConflict)
			return
		}
		writeError(w, "failed to finalize week", http.StatusInternalServerError)
		return
	}

	debtAfter, _ := fin.DebtAfter.Float64()
	metrics.VirtualDebt.Set(debtAfter)

	slog.Info("week finalized",
		"week_id", weekID,
		"net", net.String(),
		"debt_before", fin.DebtBefore.String(),
		"debt_after", fin.DebtAfter.String(),
		"surplus", surplus.String(),
		"entitlements", len(fin.Entitlements),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"week_id":      weekID,
		"net":          net,
		"debt_before":  fin.DebtBefore,
		"debt_after":   fin.DebtAfter,
		"surplus":      surplus,
		"entitlements": len(fin.Entitlements),
	})
}

// allocate splits a surplus across contributors pro rata by wagered volume.
// Shares are rounded down; the remainder goes to the last contributor so the
// allocated total never exceeds the surplus.
func allocate(weekID int64, surplus decimal.Decimal, volumes map[string]decimal.Decimal, expiresAt time.Time) []model.RebateEntitlement {
	contributors := make([]string, 0, len(volumes))
	total := decimal.Zero
	for c, v := range volumes {
		if v.IsPositive() {
			contributors = append(contributors, c)
			total = total.Add(v)
		}
	}
	if len(contributors) == 0 || !total.IsPositive() {
		return nil
	}
	sort.Strings(contributors)

	out := make([]model.RebateEntitlement, 0, len(contributors))
	remaining := surplus
	for i, c := range contributors {
		var share decimal.Decimal
		if i == len(contributors)-1 {
			share = remaining
		} else {
			share = surplus.Mul(volumes[c]).DivRound(total, amountScale)
			if share.GreaterThan(remaining) {
				share = remaining
			}
		}
		remaining = remaining.Sub(share)
		if !share.IsPositive() {
			continue
		}
		out = append(out, model.RebateEntitlement{
			ID:          uuid.New().String(),
			WeekID:      weekID,
			Contributor: c,
			Amount:      share,
			ExpiresAt:   expiresAt,
		})
	}
	return out
}

// ClaimRequest is the JSON body for POST /api/v1/rebates/{weekID}/claim.
type ClaimRequest struct {
	Player string `json:"player"`
}

// ClaimRebate handles POST /api/v1/rebates/{weekID}/claim. Credits the
// contributor's account with their entitlement for the week.
func (s *Service) ClaimRebate(w http.ResponseWriter, r *http.Request) {
	weekID, err := strconv.ParseInt(chi.URLParam(r, "weekID"), 10, 64)
	if err != nil {
		writeError(w, "invalid week id", http.StatusBadRequest)
		return
	}

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Player == "" {
		writeError(w, "player is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := r.Context()
	ents, err := s.store.GetEntitlements(ctx, weekID)
	if err != nil {
		writeError(w, "failed to load entitlements", http.StatusInternalServerError)
		return
	}

	var ent *model.RebateEntitlement
	for i := range ents {
		if ents[i].Contributor == req.Player {
			ent = &ents[i]
			break
		}
	}
	if ent == nil {
		writeError(w, "no entitlement for this week", http.StatusNotFound)
		return
	}
	if ent.Claimed || ent.Expired {
		writeError(w, store.ErrEntitlementSettled.Error(), http.StatusConflict)
		return
	}
	if s.now().After(ent.ExpiresAt) {
		writeError(w, ErrRebateExpired.Error(), http.StatusConflict)
		return
	}

	if err := s.store.ClaimEntitlement(ctx, ent.ID); err != nil {
		if errors.Is(err, store.ErrEntitlementSettled) {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		writeError(w, "failed to claim entitlement", http.StatusInternalServerError)
		return
	}

	metrics.RebatesClaimedTotal.Inc()
	slog.Info("rebate claimed",
		"entitlement_id", ent.ID,
		"week_id", weekID,
		"player", req.Player,
		"amount", ent.Amount.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ent)
}

// ProcessExpiredRebates handles POST /api/v1/rebates/{weekID}/expire.
// Forfeits every entitlement for the week that is past its deadline and
// still unclaimed. Safe to call repeatedly.
func (s *Service) ProcessExpiredRebates(w http.ResponseWriter, r *http.Request) {
	if err := s.authz.Authorize(r, auth.OpExpireRebate); err != nil {
		writeError(w, err.Error(), http.StatusForbidden)
		return
	}

	weekID, err := strconv.ParseInt(chi.URLParam(r, "weekID"), 10, 64)
	if err != nil {
		writeError(w, "invalid week id", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := r.Context()
	ents, err := s.store.GetEntitlements(ctx, weekID)
	if err != nil {
		writeError(w, "failed to load entitlements", http.StatusInternalServerError)
		return
	}

	now := s.now()
	expired := 0
	for _, ent := range ents {
		if ent.Claimed || ent.Expired || now.Before(ent.ExpiresAt) {
			continue
		}
		if err := s.store.ExpireEntitlement(ctx, ent.ID); err != nil {
			// Already settled by a concurrent claim or sweep; skip.
			if errors.Is(err, store.ErrEntitlementSettled) {
				continue
			}
			writeError(w, "failed to expire entitlement", http.StatusInternalServerError)
			return
		}
		metrics.RebatesExpiredTotal.Inc()
		expired++
	}

	if expired > 0 {
		slog.Info("rebates expired", "week_id", weekID, "count", expired)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"expired": expired})
}

// GetClaimableRebates handles GET /api/v1/rebates/{player}. Returns the
// player's unclaimed, unexpired entitlements whose deadline has not passed.
func (s *Service) GetClaimableRebates(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "player")

	ents, err := s.store.GetClaimableEntitlements(r.Context(), player)
	if err != nil {
		writeError(w, "failed to load entitlements", http.StatusInternalServerError)
		return
	}

	now := s.now()
	out := make([]model.RebateEntitlement, 0, len(ents))
	for _, ent := range ents {
		if now.Before(ent.ExpiresAt) {
			out = append(out, ent)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// GetCurrentWeek handles GET /api/v1/weeks/current. Returns the open week's
// per-bot positions and the house debt ledger.
func (s *Service) GetCurrentWeek(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	weekID, openedAt, err := s.store.GetCurrentWeek(ctx)
	if err != nil {
		writeError(w, "failed to load current week", http.StatusInternalServerError)
		return
	}
	positions, err := s.store.GetWeekPositions(ctx, weekID)
	if err != nil {
		writeError(w, "failed to load week positions", http.StatusInternalServerError)
		return
	}
	ledger, err := s.store.GetHouseLedger(ctx)
	if err != nil {
		writeError(w, "failed to load house ledger", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.WeeklyPosition{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"week_id":   weekID,
		"opened_at": openedAt,
		"positions": positions,
		"house":     ledger,
	})
}

// GetBot handles GET /api/v1/bots/{botID}.
func (s *Service) GetBot(w http.ResponseWriter, r *http.Request) {
	botID, err := strconv.Atoi(chi.URLParam(r, "botID"))
	if err != nil {
		writeError(w, "invalid bot id", http.StatusBadRequest)
		return
	}

	bot, err := s.store.GetBot(r.Context(), botID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		writeError(w, "failed to load bot", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bot)
}

// ListBots handles GET /api/v1/bots.
func (s *Service) ListBots(w http.ResponseWriter, r *http.Request) {
	bots, err := s.store.ListBots(r.Context())
	if err != nil {
		writeError(w, "failed to load bots", http.StatusInternalServerError)
		return
	}
	if bots == nil {
		bots = []model.Bot{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bots)
}

// ReplenishRequest is the JSON body for POST /api/v1/bots/{botID}/replenish.
type ReplenishRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// ReplenishBot handles POST /api/v1/bots/{botID}/replenish. Tops up a
// depleted vault and clears the depletion flag. Lifetime totals and the
// house debt position are untouched.
func (s *Service) ReplenishBot(w http.ResponseWriter, r *http.Request) {
	if err := s.authz.Authorize(r, auth.OpReplenishBot); err != nil {
		writeError(w, err.Error(), http.StatusForbidden)
		return
	}

	botID, err := strconv.Atoi(chi.URLParam(r, "botID"))
	if err != nil {
		writeError(w, "invalid bot id", http.StatusBadRequest)
		return
	}

	var req ReplenishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := r.Context()
	bot, err := s.store.GetBot(ctx, botID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		writeError(w, "failed to load bot", http.StatusInternalServerError)
		return
	}

	bot.Bankroll = bot.Bankroll.Add(req.Amount)
	bot.Depleted = false
	if err := s.store.PutBot(ctx, bot); err != nil {
		writeError(w, "failed to update bot", http.StatusInternalServerError)
		return
	}

	slog.Info("bot replenished", "bot", botID, "amount", req.Amount.String(), "bankroll", bot.Bankroll.String())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bot)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
