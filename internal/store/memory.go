package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dicehouse/craps-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu sync.RWMutex

	series []*model.Series // ordered; last is current
	rolls  map[string][]model.Roll

	bets     map[string]*model.Bet
	betOrder []string

	accounts map[string]decimal.Decimal
	bots     map[int]*model.Bot

	weekID       int64
	weekOpenedAt time.Time
	weeks        map[int64]map[int]*model.WeeklyPosition
	volumes      map[int64]map[string]decimal.Decimal
	finalized    map[int64]bool

	house model.HouseLedger
	ents  map[string]*model.RebateEntitlement
}

// NewMemoryStore creates a new in-memory store with week 0 open.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rolls:        make(map[string][]model.Roll),
		bets:         make(map[string]*model.Bet),
		accounts:     make(map[string]decimal.Decimal),
		bots:         make(map[int]*model.Bot),
		weekOpenedAt: time.Now().UTC(),
		weeks:        make(map[int64]map[int]*model.WeeklyPosition),
		volumes:      make(map[int64]map[string]decimal.Decimal),
		finalized:    make(map[int64]bool),
		ents:         make(map[string]*model.RebateEntitlement),
	}
}

// --- Series and rolls ---

func (s *MemoryStore) CreateSeries(_ context.Context, sr *model.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.series); n > 0 && s.series[n-1].Active() {
		return fmt.Errorf("%w: series %s still active", ErrConflict, s.series[n-1].ID)
	}
	cp := *sr
	s.series = append(s.series, &cp)
	return nil
}

func (s *MemoryStore) GetCurrentSeries(_ context.Context) (*model.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.series) == 0 {
		return nil, fmt.Errorf("%w: no series", ErrNotFound)
	}
	cp := *s.series[len(s.series)-1]
	return &cp, nil
}

func (s *MemoryStore) UpdateSeries(_ context.Context, sr *model.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateSeriesLocked(sr)
}

func (s *MemoryStore) updateSeriesLocked(sr *model.Series) error {
	for i, existing := range s.series {
		if existing.ID == sr.ID {
			cp := *sr
			s.series[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("%w: series %s", ErrNotFound, sr.ID)
}

func (s *MemoryStore) ListRollsBySeries(_ context.Context, seriesID string) ([]model.Roll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Roll, len(s.rolls[seriesID]))
	copy(out, s.rolls[seriesID])
	return out, nil
}

// --- Bets ---

func (s *MemoryStore) InsertBet(_ context.Context, b *model.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bets[b.ID]; ok {
		return fmt.Errorf("%w: bet %s", ErrConflict, b.ID)
	}
	cp := *b
	s.bets[b.ID] = &cp
	s.betOrder = append(s.betOrder, b.ID)
	return nil
}

func (s *MemoryStore) GetActiveBets(_ context.Context, seriesID string) ([]model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Bet
	for _, id := range s.betOrder {
		b := s.bets[id]
		if !b.Settled && b.SeriesID == seriesID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetActiveBetsByPlayer(_ context.Context, player string) ([]model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Bet
	for _, id := range s.betOrder {
		b := s.bets[id]
		if !b.Settled && b.Player == player {
			out = append(out, *b)
		}
	}
	return out, nil
}

// --- Accounts ---

func (s *MemoryStore) GetAccount(_ context.Context, player string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &model.Account{Player: player, Balance: s.accounts[player]}, nil
}

func (s *MemoryStore) CreditAccount(_ context.Context, player string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[player] = s.accounts[player].Add(amount)
	return nil
}

func (s *MemoryStore) DebitAccount(_ context.Context, player string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal := s.accounts[player]
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, player, bal, amount)
	}
	s.accounts[player] = bal.Sub(amount)
	return nil
}

// --- Bots ---

func (s *MemoryStore) PutBot(_ context.Context, b *model.Bot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *b
	s.bots[b.ID] = &cp
	return nil
}

func (s *MemoryStore) GetBot(_ context.Context, id int) (*model.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bots[id]
	if !ok {
		return nil, fmt.Errorf("%w: bot %d", ErrNotFound, id)
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) ListBots(_ context.Context) ([]model.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int, 0, len(s.bots))
	for id := range s.bots {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]model.Bot, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.bots[id])
	}
	return out, nil
}

// --- Settlement ---

// ApplySettlement applies the whole plan under one lock: all-or-nothing with
// respect to concurrent readers. Validation happened upstream; the only
// failure mode here is an unknown record, which indicates a bug.
func (s *MemoryStore) ApplySettlement(_ context.Context, plan *SettlementPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range plan.Settlements {
		if _, ok := s.bets[st.BetID]; !ok {
			return fmt.Errorf("%w: bet %s", ErrNotFound, st.BetID)
		}
	}
	for _, bp := range plan.BetPoints {
		if _, ok := s.bets[bp.BetID]; !ok {
			return fmt.Errorf("%w: bet %s", ErrNotFound, bp.BetID)
		}
	}

	if err := s.updateSeriesLocked(plan.Series); err != nil {
		return err
	}

	roll := *plan.Roll
	s.rolls[roll.SeriesID] = append(s.rolls[roll.SeriesID], roll)

	now := roll.RolledAt
	for _, st := range plan.Settlements {
		b := s.bets[st.BetID]
		b.Settled = true
		b.Outcome = st.Outcome
		b.Payout = st.Payout
		b.SettledAt = now
		if st.Payout.IsPositive() {
			s.accounts[st.Player] = s.accounts[st.Player].Add(st.Payout)
		}
	}
	for _, bp := range plan.BetPoints {
		s.bets[bp.BetID].Point = bp.Point
	}

	for _, acc := range plan.Accruals {
		pos := s.openPositionLocked(acc.BotID)
		pos.Collected = pos.Collected.Add(acc.Collected)
		pos.Issued = pos.Issued.Add(acc.Issued)
		pos.Volume = pos.Volume.Add(acc.Volume)

		if bot, ok := s.bots[acc.BotID]; ok {
			bot.TotalCollected = bot.TotalCollected.Add(acc.Collected)
			bot.TotalIssued = bot.TotalIssued.Add(acc.Issued)
			bot.Bankroll = bot.Bankroll.Add(acc.Collected).Sub(acc.Issued)
			if !bot.Bankroll.IsPositive() {
				bot.Depleted = true
			}
		}
	}

	vols, ok := s.volumes[s.weekID]
	if !ok {
		vols = make(map[string]decimal.Decimal)
		s.volumes[s.weekID] = vols
	}
	for _, cv := range plan.Volumes {
		vols[cv.Contributor] = vols[cv.Contributor].Add(cv.Volume)
	}

	return nil
}

// openPositionLocked lazily creates the open week's position for a bot.
func (s *MemoryStore) openPositionLocked(botID int) *model.WeeklyPosition {
	week, ok := s.weeks[s.weekID]
	if !ok {
		week = make(map[int]*model.WeeklyPosition)
		s.weeks[s.weekID] = week
	}
	pos, ok := week[botID]
	if !ok {
		pos = &model.WeeklyPosition{
			WeekID:   s.weekID,
			BotID:    botID,
			OpenedAt: s.weekOpenedAt,
		}
		week[botID] = pos
	}
	return pos
}

// --- Weekly accounting ---

func (s *MemoryStore) GetCurrentWeek(_ context.Context) (int64, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weekID, s.weekOpenedAt, nil
}

func (s *MemoryStore) OpenNextWeek(_ context.Context, openedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pos := range s.weeks[s.weekID] {
		pos.ClosedAt = openedAt
	}
	s.weekID++
	s.weekOpenedAt = openedAt
	return s.weekID, nil
}

func (s *MemoryStore) GetWeekPositions(_ context.Context, weekID int64) ([]model.WeeklyPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	week := s.weeks[weekID]
	ids := make([]int, 0, len(week))
	for id := range week {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]model.WeeklyPosition, 0, len(ids))
	for _, id := range ids {
		out = append(out, *week[id])
	}
	return out, nil
}

func (s *MemoryStore) GetContributorVolumes(_ context.Context, weekID int64) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(s.volumes[weekID]))
	for k, v := range s.volumes[weekID] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) ApplyWeekFinalization(_ context.Context, fin *WeekFinalization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Finalization is tracked per week, not per position: a closed week
	// with no activity still finalizes exactly once.
	if s.finalized[fin.WeekID] {
		return fmt.Errorf("%w: week %d already finalized", ErrConflict, fin.WeekID)
	}
	s.finalized[fin.WeekID] = true
	for _, pos := range s.weeks[fin.WeekID] {
		pos.Finalized = true
		pos.DebtBefore = fin.DebtBefore
		pos.DebtAfter = fin.DebtAfter
	}

	s.house.VirtualDebt = fin.DebtAfter
	s.house.DebtPaidOff = fin.DebtPaidOff

	for _, e := range fin.Entitlements {
		cp := e
		s.ents[e.ID] = &cp
	}
	return nil
}

// --- House ledger and rebates ---

func (s *MemoryStore) GetHouseLedger(_ context.Context) (*model.HouseLedger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := s.house
	return &cp, nil
}

func (s *MemoryStore) GetEntitlements(_ context.Context, weekID int64) ([]model.RebateEntitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.RebateEntitlement
	for _, e := range s.ents {
		if e.WeekID == weekID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Contributor < out[j].Contributor })
	return out, nil
}

func (s *MemoryStore) GetClaimableEntitlements(_ context.Context, contributor string) ([]model.RebateEntitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.RebateEntitlement
	for _, e := range s.ents {
		if e.Contributor == contributor && !e.Claimed && !e.Expired {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekID < out[j].WeekID })
	return out, nil
}

func (s *MemoryStore) ClaimEntitlement(_ context.Context, entitlementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.ents[entitlementID]
	if !ok {
		return fmt.Errorf("%w: entitlement %s", ErrNotFound, entitlementID)
	}
	if e.Claimed || e.Expired {
		return ErrEntitlementSettled
	}
	e.Claimed = true
	s.accounts[e.Contributor] = s.accounts[e.Contributor].Add(e.Amount)
	return nil
}

func (s *MemoryStore) ExpireEntitlement(_ context.Context, entitlementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.ents[entitlementID]
	if !ok {
		return fmt.Errorf("%w: entitlement %s", ErrNotFound, entitlementID)
	}
	if e.Claimed || e.Expired {
		return ErrEntitlementSettled
	}
	e.Expired = true
	s.house.Retained = s.house.Retained.Add(e.Amount)
	return nil
}
