// Package model defines the core domain types shared across the craps engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Phase is the craps series phase.
type Phase string

const (
	PhaseComeOut  Phase = "COME_OUT"
	PhasePoint    Phase = "POINT"
	PhaseSevenOut Phase = "SEVEN_OUT"
)

// Series is one craps come-out-to-resolution cycle. A series stays open
// across point-made resolutions and terminates only on seven-out.
// Invariant: Point != 0 ⇔ Phase == PhasePoint.
type Series struct {
	ID               string    `json:"id" db:"id"`
	Seq              int64     `json:"seq" db:"seq"` // monotonically increasing
	Phase            Phase     `json:"phase" db:"phase"`
	Point            int       `json:"point" db:"point"` // 0 = no point established
	PendingRequestID string    `json:"pending_request_id,omitempty" db:"pending_request_id"`
	StartedAt        time.Time `json:"started_at" db:"started_at"`
	EndedAt          time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// Active reports whether the series can still accept rolls.
func (s *Series) Active() bool {
	return s.Phase != PhaseSevenOut
}

// Roll is one resolved dice outcome belonging to a series. Immutable once
// created; retained indefinitely so repeater/bonus bets can be evaluated
// from history instead of derived counters.
type Roll struct {
	ID        string    `json:"id" db:"id"`
	SeriesID  string    `json:"series_id" db:"series_id"`
	RequestID string    `json:"request_id" db:"request_id"`
	Die1      int       `json:"die1" db:"die1"`
	Die2      int       `json:"die2" db:"die2"`
	Total     int       `json:"total" db:"total"`
	Phase     Phase     `json:"phase" db:"phase"` // phase the roll was made in
	Point     int       `json:"point" db:"point"` // point at roll time
	RolledAt  time.Time `json:"rolled_at" db:"rolled_at"`
}

// Hard reports whether the roll came as a double.
func (r *Roll) Hard() bool { return r.Die1 == r.Die2 }

// Outcome classifies a settled bet.
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLose Outcome = "LOSE"
	OutcomePush Outcome = "PUSH"
)

// Bet is one player's wager on one bet type, backed by one bot vault.
// Created on placement, marked settled by the settlement engine, never
// physically deleted.
type Bet struct {
	ID       string          `json:"id" db:"id"`
	Player   string          `json:"player" db:"player"`
	BotID    int             `json:"bot_id" db:"bot_id"`
	SeriesID string          `json:"series_id" db:"series_id"`
	BetType  int             `json:"bet_type" db:"bet_type"`
	Amount   decimal.Decimal `json:"amount" db:"amount"`
	// Point is the traveled come/don't-come point, or the point the odds
	// back, copied from the base bet at placement. 0 = not applicable /
	// pending.
	Point     int             `json:"point,omitempty" db:"point"`
	PlacedAt  time.Time       `json:"placed_at" db:"placed_at"`
	Settled   bool            `json:"settled" db:"settled"`
	Outcome   Outcome         `json:"outcome,omitempty" db:"outcome"`
	Payout    decimal.Decimal `json:"payout" db:"payout"` // total returned: 0 loss, amount push, amount+profit win
	SettledAt time.Time       `json:"settled_at,omitempty" db:"settled_at"`
}

// WeeklyPosition aggregates one bot's house-level accounting over one
// 7-day window. Exactly one open position per bot at any time; finalized
// positions are immutable.
type WeeklyPosition struct {
	WeekID     int64           `json:"week_id" db:"week_id"`
	BotID      int             `json:"bot_id" db:"bot_id"`
	Collected  decimal.Decimal `json:"collected" db:"collected"` // losing-bet principal received
	Issued     decimal.Decimal `json:"issued" db:"issued"`       // winning-bet profit paid
	Volume     decimal.Decimal `json:"volume" db:"volume"`       // total wagered through this bot
	OpenedAt   time.Time       `json:"opened_at" db:"opened_at"`
	ClosedAt   time.Time       `json:"closed_at,omitempty" db:"closed_at"`
	Finalized  bool            `json:"finalized" db:"finalized"`
	DebtBefore decimal.Decimal `json:"debt_before" db:"debt_before"`
	DebtAfter  decimal.Decimal `json:"debt_after" db:"debt_after"`
}

// Net is collected minus issued (signed).
func (w *WeeklyPosition) Net() decimal.Decimal {
	return w.Collected.Sub(w.Issued)
}

// HouseLedger is the global debt position of the house across all bots.
// VirtualDebt never goes negative; DebtPaidOff only grows.
type HouseLedger struct {
	VirtualDebt decimal.Decimal `json:"virtual_debt" db:"virtual_debt"`
	DebtPaidOff decimal.Decimal `json:"debt_paid_off" db:"debt_paid_off"`
	Retained    decimal.Decimal `json:"retained" db:"retained"` // forfeited expired rebates
}

// RebateEntitlement is a contributor's pro-rata claim on one week's
// post-debt surplus. Unclaimed entitlements past ExpiresAt are forfeited.
type RebateEntitlement struct {
	ID          string          `json:"id" db:"id"`
	WeekID      int64           `json:"week_id" db:"week_id"`
	Contributor string          `json:"contributor" db:"contributor"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	ExpiresAt   time.Time       `json:"expires_at" db:"expires_at"`
	Claimed     bool            `json:"claimed" db:"claimed"`
	Expired     bool            `json:"expired" db:"expired"`
}

// Bot is one of the ten liquidity vaults that back bets. Lifetime totals
// survive replenishment; only the depletion flag resets.
type Bot struct {
	ID             int             `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Bankroll       decimal.Decimal `json:"bankroll" db:"bankroll"`
	TotalCollected decimal.Decimal `json:"total_collected" db:"total_collected"`
	TotalIssued    decimal.Decimal `json:"total_issued" db:"total_issued"`
	Depleted       bool            `json:"depleted" db:"depleted"`
}

// Account is a player's on-platform balance used for escrow and payouts.
type Account struct {
	Player  string          `json:"player" db:"player"`
	Balance decimal.Decimal `json:"balance" db:"balance"`
}
