// Package store defines the persistence interface for the craps engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dicehouse/craps-engine/internal/model"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInsufficientFunds is returned by DebitAccount when the balance
	// cannot cover the amount.
	ErrInsufficientFunds = errors.New("store: insufficient funds")

	// ErrEntitlementSettled is returned when claiming or expiring an
	// entitlement that was already claimed or expired.
	ErrEntitlementSettled = errors.New("store: entitlement already settled")

	// ErrConflict is returned on duplicate inserts (e.g. a second open series).
	ErrConflict = errors.New("store: conflict")
)

// BetSettlement records the resolution of one bet within a settlement plan.
type BetSettlement struct {
	BetID   string
	Player  string
	Outcome model.Outcome
	Payout  decimal.Decimal // total credited back: 0 loss, stake push, stake+profit win
}

// BetPoint records a come/don't-come bet traveling to a point.
type BetPoint struct {
	BetID string
	Point int
}

// WeekAccrual is the per-bot delta a settlement pass adds to the open week.
type WeekAccrual struct {
	BotID     int
	Collected decimal.Decimal
	Issued    decimal.Decimal
	Volume    decimal.Decimal
}

// ContributorVolume is the per-player wagered volume a settlement pass adds
// to the open week, used later for pro-rata rebate distribution.
type ContributorVolume struct {
	Contributor string
	Volume      decimal.Decimal
}

// SettlementPlan is the complete, precomputed effect of one roll. It is
// applied atomically: either every write lands or none do.
type SettlementPlan struct {
	Roll        *model.Roll
	Series      *model.Series // post-transition series state
	Settlements []BetSettlement
	BetPoints   []BetPoint
	Accruals    []WeekAccrual
	Volumes     []ContributorVolume
}

// WeekFinalization is the complete, precomputed effect of finalizing one
// closed week, applied atomically.
type WeekFinalization struct {
	WeekID       int64
	DebtBefore   decimal.Decimal
	DebtAfter    decimal.Decimal
	DebtPaidOff  decimal.Decimal // cumulative, post-finalize
	Entitlements []model.RebateEntitlement
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Series and rolls ---

	// CreateSeries persists a new series and makes it current.
	CreateSeries(ctx context.Context, s *model.Series) error

	// GetCurrentSeries returns the most recently created series.
	GetCurrentSeries(ctx context.Context) (*model.Series, error)

	// UpdateSeries rewrites mutable series state (phase, point, pending
	// request id, end time).
	UpdateSeries(ctx context.Context, s *model.Series) error

	// ListRollsBySeries returns a series' rolls in roll order.
	ListRollsBySeries(ctx context.Context, seriesID string) ([]model.Roll, error)

	// --- Bets ---

	// InsertBet appends a new active bet.
	InsertBet(ctx context.Context, b *model.Bet) error

	// GetActiveBets returns all unsettled bets for a series.
	GetActiveBets(ctx context.Context, seriesID string) ([]model.Bet, error)

	// GetActiveBetsByPlayer returns a player's unsettled bets.
	GetActiveBetsByPlayer(ctx context.Context, player string) ([]model.Bet, error)

	// --- Accounts (escrow/custody) ---

	// GetAccount returns a player's account, creating a zero balance view
	// for unknown players.
	GetAccount(ctx context.Context, player string) (*model.Account, error)

	// CreditAccount adds to a player's balance.
	CreditAccount(ctx context.Context, player string, amount decimal.Decimal) error

	// DebitAccount subtracts from a player's balance, failing with
	// ErrInsufficientFunds rather than going negative.
	DebitAccount(ctx context.Context, player string, amount decimal.Decimal) error

	// --- Bots ---

	// PutBot inserts or replaces a bot vault record.
	PutBot(ctx context.Context, b *model.Bot) error

	// GetBot returns one bot vault.
	GetBot(ctx context.Context, id int) (*model.Bot, error)

	// ListBots returns all bot vaults ordered by id.
	ListBots(ctx context.Context) ([]model.Bot, error)

	// --- Settlement ---

	// ApplySettlement applies a roll's full resolution atomically: the roll
	// insert, series transition, bet settlements and travels, payout
	// credits, bot totals, and weekly accruals.
	ApplySettlement(ctx context.Context, plan *SettlementPlan) error

	// --- Weekly accounting ---

	// GetCurrentWeek returns the open week id and its open time.
	GetCurrentWeek(ctx context.Context) (int64, time.Time, error)

	// OpenNextWeek closes the current week and opens the next, returning
	// the new week id.
	OpenNextWeek(ctx context.Context, openedAt time.Time) (int64, error)

	// GetWeekPositions returns all per-bot positions recorded for a week.
	GetWeekPositions(ctx context.Context, weekID int64) ([]model.WeeklyPosition, error)

	// GetContributorVolumes returns per-player wagered volume for a week.
	GetContributorVolumes(ctx context.Context, weekID int64) (map[string]decimal.Decimal, error)

	// ApplyWeekFinalization marks a week's positions finalized, rewrites
	// the house ledger debt fields, and inserts the week's entitlements —
	// atomically.
	ApplyWeekFinalization(ctx context.Context, fin *WeekFinalization) error

	// --- House ledger and rebates ---

	// GetHouseLedger returns the global debt/retained position.
	GetHouseLedger(ctx context.Context) (*model.HouseLedger, error)

	// GetEntitlements returns all entitlements for a week.
	GetEntitlements(ctx context.Context, weekID int64) ([]model.RebateEntitlement, error)

	// GetClaimableEntitlements returns a contributor's unclaimed,
	// unexpired entitlements.
	GetClaimableEntitlements(ctx context.Context, contributor string) ([]model.RebateEntitlement, error)

	// ClaimEntitlement marks an entitlement claimed and credits the
	// contributor's account in one step.
	ClaimEntitlement(ctx context.Context, entitlementID string) error

	// ExpireEntitlement marks an entitlement expired and moves its amount
	// into the house retained bucket. Fails with ErrEntitlementSettled if
	// already claimed or expired.
	ExpireEntitlement(ctx context.Context, entitlementID string) error
}
