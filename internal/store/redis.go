package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/dicehouse/craps-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot read paths: the current series, bot vaults, the house
// ledger, and claimable rebates. Writes go to the primary store and
// invalidate the affected keys.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Series and rolls ---

func (s *CachedStore) CreateSeries(ctx context.Context, sr *model.Series) error {
	if err := s.primary.CreateSeries(ctx, sr); err != nil {
		return err
	}
	s.cacheSeries(ctx, sr)
	return nil
}

func (s *CachedStore) GetCurrentSeries(ctx context.Context) (*model.Series, error) {
	data, err := s.rdb.Get(ctx, currentSeriesKey).Bytes()
	if err == nil {
		var sr model.Series
		if json.Unmarshal(data, &sr) == nil {
			return &sr, nil
		}
	}

	sr, err := s.primary.GetCurrentSeries(ctx)
	if err != nil {
		return nil, err
	}

	s.cacheSeries(ctx, sr)
	return sr, nil
}

func (s *CachedStore) UpdateSeries(ctx context.Context, sr *model.Series) error {
	if err := s.primary.UpdateSeries(ctx, sr); err != nil {
		return err
	}
	s.cacheSeries(ctx, sr)
	return nil
}

func (s *CachedStore) ListRollsBySeries(ctx context.Context, seriesID string) ([]model.Roll, error) {
	return s.primary.ListRollsBySeries(ctx, seriesID)
}

// --- Bets ---

func (s *CachedStore) InsertBet(ctx context.Context, b *model.Bet) error {
	return s.primary.InsertBet(ctx, b)
}

func (s *CachedStore) GetActiveBets(ctx context.Context, seriesID string) ([]model.Bet, error) {
	return s.primary.GetActiveBets(ctx, seriesID)
}

func (s *CachedStore) GetActiveBetsByPlayer(ctx context.Context, player string) ([]model.Bet, error) {
	return s.primary.GetActiveBetsByPlayer(ctx, player)
}

// --- Accounts ---

func (s *CachedStore) GetAccount(ctx context.Context, player string) (*model.Account, error) {
	return s.primary.GetAccount(ctx, player)
}

func (s *CachedStore) CreditAccount(ctx context.Context, player string, amount decimal.Decimal) error {
	return s.primary.CreditAccount(ctx, player, amount)
}

func (s *CachedStore) DebitAccount(ctx context.Context, player string, amount decimal.Decimal) error {
	return s.primary.DebitAccount(ctx, player, amount)
}

// --- Bots ---

func (s *CachedStore) PutBot(ctx context.Context, b *model.Bot) error {
	if err := s.primary.PutBot(ctx, b); err != nil {
		return err
	}
	s.rdb.Del(ctx, botKey(b.ID))
	return nil
}

func (s *CachedStore) GetBot(ctx context.Context, id int) (*model.Bot, error) {
	data, err := s.rdb.Get(ctx, botKey(id)).Bytes()
	if err == nil {
		var b model.Bot
		if json.Unmarshal(data, &b) == nil {
			return &b, nil
		}
	}

	b, err := s.primary.GetBot(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(b); err == nil {
		s.rdb.Set(ctx, botKey(id), data, s.ttl)
	}
	return b, nil
}

func (s *CachedStore) ListBots(ctx context.Context) ([]model.Bot, error) {
	return s.primary.ListBots(ctx)
}

// --- Settlement ---

func (s *CachedStore) ApplySettlement(ctx context.Context, plan *SettlementPlan) error {
	if err := s.primary.ApplySettlement(ctx, plan); err != nil {
		return err
	}
	// Settlement touches the series, bot bankrolls, and the house position.
	keys := []string{currentSeriesKey, houseLedgerKey}
	for _, acc := range plan.Accruals {
		keys = append(keys, botKey(acc.BotID))
	}
	s.rdb.Del(ctx, keys...)
	s.cacheSeries(ctx, plan.Series)
	return nil
}

// --- Weekly accounting ---

func (s *CachedStore) GetCurrentWeek(ctx context.Context) (int64, time.Time, error) {
	return s.primary.GetCurrentWeek(ctx)
}

func (s *CachedStore) OpenNextWeek(ctx context.Context, openedAt time.Time) (int64, error) {
	return s.primary.OpenNextWeek(ctx, openedAt)
}

func (s *CachedStore) GetWeekPositions(ctx context.Context, weekID int64) ([]model.WeeklyPosition, error) {
	return s.primary.GetWeekPositions(ctx, weekID)
}

func (s *CachedStore) GetContributorVolumes(ctx context.Context, weekID int64) (map[string]decimal.Decimal, error) {
	return s.primary.GetContributorVolumes(ctx, weekID)
}

func (s *CachedStore) ApplyWeekFinalization(ctx context.Context, fin *WeekFinalization) error {
	if err := s.primary.ApplyWeekFinalization(ctx, fin); err != nil {
		return err
	}
	keys := []string{houseLedgerKey}
	for _, e := range fin.Entitlements {
		keys = append(keys, claimableKey(e.Contributor))
	}
	s.rdb.Del(ctx, keys...)
	return nil
}

// --- House ledger and rebates ---

func (s *CachedStore) GetHouseLedger(ctx context.Context) (*model.HouseLedger, error) {
	data, err := s.rdb.Get(ctx, houseLedgerKey).Bytes()
	if err == nil {
		var l model.HouseLedger
		if json.Unmarshal(data, &l) == nil {
			return &l, nil
		}
	}

	l, err := s.primary.GetHouseLedger(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(l); err == nil {
		s.rdb.Set(ctx, houseLedgerKey, data, s.ttl)
	}
	return l, nil
}

func (s *CachedStore) GetEntitlements(ctx context.Context, weekID int64) ([]model.RebateEntitlement, error) {
	return s.primary.GetEntitlements(ctx, weekID)
}

func (s *CachedStore) GetClaimableEntitlements(ctx context.Context, contributor string) ([]model.RebateEntitlement, error) {
	data, err := s.rdb.Get(ctx, claimableKey(contributor)).Bytes()
	if err == nil {
		var ents []model.RebateEntitlement
		if json.Unmarshal(data, &ents) == nil {
			return ents, nil
		}
	}

	ents, err := s.primary.GetClaimableEntitlements(ctx, contributor)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(ents); err == nil {
		s.rdb.Set(ctx, claimableKey(contributor), data, s.ttl)
	}
	return ents, nil
}

func (s *CachedStore) ClaimEntitlement(ctx context.Context, entitlementID string) error {
	if err := s.primary.ClaimEntitlement(ctx, entitlementID); err != nil {
		return err
	}
	// The claimable set changed for some contributor; a targeted delete
	// would need the contributor, so keep claim volume low-touch with a
	// short TTL and invalidate the house key only.
	s.rdb.Del(ctx, houseLedgerKey)
	return nil
}

func (s *CachedStore) ExpireEntitlement(ctx context.Context, entitlementID string) error {
	if err := s.primary.ExpireEntitlement(ctx, entitlementID); err != nil {
		return err
	}
	s.rdb.Del(ctx, houseLedgerKey)
	return nil
}

// --- Cache helpers ---

func (s *CachedStore) cacheSeries(ctx context.Context, sr *model.Series) {
	if data, err := json.Marshal(sr); err == nil {
		s.rdb.Set(ctx, currentSeriesKey, data, s.ttl)
	}
}

const (
	currentSeriesKey = "series:current"
	houseLedgerKey   = "house:ledger"
)

func botKey(id int) string         { return fmt.Sprintf("bot:%d", id) }
func claimableKey(c string) string { return fmt.Sprintf("claimable:%s", c) }
