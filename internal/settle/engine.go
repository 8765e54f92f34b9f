// Package settle resolves every active bet against a dice roll and applies
// the outcome as one atomic settlement plan.
//
// Resolution is order-independent by construction: each bet's result is
// computed from the same immutable context (the roll, the phase it was made
// in, and the series' roll history), and nothing is written until the whole
// plan is assembled. Either every affected bet settles or none do.
package settle

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dicehouse/craps-engine/internal/bettype"
	"github.com/dicehouse/craps-engine/internal/metrics"
	"github.com/dicehouse/craps-engine/internal/model"
	"github.com/dicehouse/craps-engine/internal/store"
)

// Engine computes and applies settlement plans.
type Engine struct {
	store store.Store
}

// NewEngine creates a settlement engine.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// resolution is the outcome of one bet against one roll.
type resolution struct {
	settle  bool
	outcome model.Outcome
	num     int64 // profit ratio for wins
	den     int64
	travel  int // come/don't-come point to record (0 = no travel)
}

var keep = resolution{}

func lose() resolution { return resolution{settle: true, outcome: model.OutcomeLose} }
func push() resolution { return resolution{settle: true, outcome: model.OutcomePush} }
func win(num, den int64) resolution {
	return resolution{settle: true, outcome: model.OutcomeWin, num: num, den: den}
}

// SettleRoll resolves all of a series' active bets against roll, persists the
// plan atomically (roll insert, series transition, settlements, payouts,
// weekly accruals), and returns it. series must carry the post-transition
// state; roll carries the phase and point the dice were thrown under.
func (e *Engine) SettleRoll(ctx context.Context, series *model.Series, roll *model.Roll) (*store.SettlementPlan, error) {
	start := time.Now()

	bets, err := e.store.GetActiveBets(ctx, series.ID)
	if err != nil {
		return nil, fmt.Errorf("settle: load active bets: %w", err)
	}
	history, err := e.store.ListRollsBySeries(ctx, series.ID)
	if err != nil {
		return nil, fmt.Errorf("settle: load roll history: %w", err)
	}

	plan := &store.SettlementPlan{Roll: roll, Series: series}

	accruals := make(map[int]*store.WeekAccrual)
	volumes := make(map[string]decimal.Decimal)

	for i := range bets {
		b := &bets[i]
		res := resolveBet(b, roll, history)

		if res.travel != 0 {
			plan.BetPoints = append(plan.BetPoints, store.BetPoint{BetID: b.ID, Point: res.travel})
			continue
		}
		if !res.settle {
			continue
		}

		var payout decimal.Decimal
		switch res.outcome {
		case model.OutcomeWin:
			payout = b.Amount.Add(bettype.Profit(b.Amount, res.num, res.den))
		case model.OutcomePush:
			payout = b.Amount
		case model.OutcomeLose:
			payout = decimal.Zero
		}

		plan.Settlements = append(plan.Settlements, store.BetSettlement{
			BetID:   b.ID,
			Player:  b.Player,
			Outcome: res.outcome,
			Payout:  payout,
		})

		acc, ok := accruals[b.BotID]
		if !ok {
			acc = &store.WeekAccrual{BotID: b.BotID}
			accruals[b.BotID] = acc
		}
		acc.Volume = acc.Volume.Add(b.Amount)
		volumes[b.Player] = volumes[b.Player].Add(b.Amount)

		switch res.outcome {
		case model.OutcomeLose:
			// House keeps the escrowed principal.
			acc.Collected = acc.Collected.Add(b.Amount)
		case model.OutcomeWin:
			// Only the profit counts as issued; principal was escrow.
			acc.Issued = acc.Issued.Add(payout.Sub(b.Amount))
		}

		metrics.BetsSettledTotal.WithLabelValues(string(res.outcome)).Inc()
	}

	for _, acc := range accruals {
		plan.Accruals = append(plan.Accruals, *acc)
	}
	for player, vol := range volumes {
		plan.Volumes = append(plan.Volumes, store.ContributorVolume{Contributor: player, Volume: vol})
	}

	if err := e.store.ApplySettlement(ctx, plan); err != nil {
		return nil, fmt.Errorf("settle: apply plan: %w", err)
	}

	metrics.SettlementLatency.Observe(time.Since(start).Seconds())
	return plan, nil
}

// resolveBet decides a single bet's fate. roll.Phase/roll.Point are the
// state the dice were thrown under; history holds the series' earlier rolls.
func resolveBet(b *model.Bet, roll *model.Roll, history []model.Roll) resolution {
	spec, err := bettype.Lookup(b.BetType)
	if err != nil {
		// Unknown types cannot be placed; an active one is unreachable.
		return keep
	}

	total := roll.Total

	switch spec.Kind {
	case bettype.KindLine:
		return resolveLine(b.BetType, roll)

	case bettype.KindCome:
		return resolveCome(b, total)

	case bettype.KindField:
		if num, den, wins := bettype.FieldProfit(total); wins {
			return win(num, den)
		}
		return lose()

	case bettype.KindPlace:
		// Place bets are off during the come-out roll.
		if roll.Phase != model.PhasePoint {
			return keep
		}
		if total == spec.Number {
			return win(spec.Num, spec.Den)
		}
		if total == 7 {
			return lose()
		}
		return keep

	case bettype.KindLay:
		if total == 7 {
			return win(spec.Num, spec.Den)
		}
		if total == spec.Number {
			return lose()
		}
		return keep

	case bettype.KindBuy:
		if total == spec.Number {
			return win(spec.Num, spec.Den)
		}
		if total == 7 {
			return lose()
		}
		return keep

	case bettype.KindHardway:
		if total == spec.Number {
			if roll.Hard() {
				return win(spec.Num, spec.Den)
			}
			return lose() // easy way
		}
		if total == 7 {
			return lose()
		}
		return keep

	case bettype.KindOdds:
		return resolveOdds(b, total)

	case bettype.KindOneRoll:
		return resolveOneRoll(b.BetType, spec, roll)

	case bettype.KindRepeater:
		if total == 7 {
			return lose()
		}
		if total == spec.Number && countTotal(history, spec.Number)+1 >= spec.Repeats {
			return win(spec.Num, spec.Den)
		}
		return keep

	case bettype.KindBonus:
		return resolveBonus(b.BetType, spec, roll, history)
	}
	return keep
}

func resolveLine(betType int, roll *model.Roll) resolution {
	total := roll.Total

	if roll.Phase == model.PhaseComeOut {
		switch betType {
		case bettype.Pass:
			switch {
			case total == 7 || total == 11:
				return win(1, 1)
			case total == 2 || total == 3 || total == 12:
				return lose()
			}
		case bettype.DontPass:
			switch {
			case total == 2 || total == 3:
				return win(1, 1)
			case total == 7 || total == 11:
				return lose()
			case total == 12:
				return push() // bar 12
			}
		}
		return keep // point established, line bets ride
	}

	// Point phase.
	switch betType {
	case bettype.Pass:
		if total == roll.Point {
			return win(1, 1)
		}
		if total == 7 {
			return lose()
		}
	case bettype.DontPass:
		if total == 7 {
			return win(1, 1)
		}
		if total == roll.Point {
			return lose()
		}
	}
	return keep
}

// resolveCome handles come/don't come, including the traveling stage where
// the bet's own point is established on its first roll.
func resolveCome(b *model.Bet, total int) resolution {
	if b.Point == 0 {
		// Fresh bet: next roll is its personal come-out.
		switch b.BetType {
		case bettype.Come:
			switch {
			case total == 7 || total == 11:
				return win(1, 1)
			case total == 2 || total == 3 || total == 12:
				return lose()
			}
		case bettype.DontCome:
			switch {
			case total == 2 || total == 3:
				return win(1, 1)
			case total == 7 || total == 11:
				return lose()
			case total == 12:
				return push()
			}
		}
		return resolution{travel: total}
	}

	// Traveled: resolves against its own point.
	switch b.BetType {
	case bettype.Come:
		if total == b.Point {
			return win(1, 1)
		}
		if total == 7 {
			return lose()
		}
	case bettype.DontCome:
		if total == 7 {
			return win(1, 1)
		}
		if total == b.Point {
			return lose()
		}
	}
	return keep
}

// resolveOdds settles true-odds backing. The backed point was captured on
// the bet at placement.
func resolveOdds(b *model.Bet, total int) resolution {
	num, den := bettype.TrueOdds(b.Point)
	if num == 0 {
		return keep // no valid point recorded; unreachable via placement rules
	}

	switch b.BetType {
	case bettype.OddsPass, bettype.OddsCome:
		if total == b.Point {
			return win(num, den)
		}
		if total == 7 {
			return lose()
		}
	case bettype.OddsDontPass, bettype.OddsDontCome:
		if total == 7 {
			return win(den, num) // inverse odds
		}
		if total == b.Point {
			return lose()
		}
	}
	return keep
}

func resolveOneRoll(betType int, spec bettype.Spec, roll *model.Roll) resolution {
	total := roll.Total

	switch {
	case betType == bettype.CrapsEleven:
		if total == 2 || total == 3 || total == 12 {
			return win(3, 1)
		}
		if total == 11 {
			return win(7, 1)
		}
		return lose()

	case betType == bettype.AnyCraps:
		if total == 2 || total == 3 || total == 12 {
			return win(spec.Num, spec.Den)
		}
		return lose()

	case bettype.IsHop(betType):
		if total == spec.Number && roll.Hard() {
			return win(spec.Num, spec.Den)
		}
		return lose()

	default: // Next 2..12
		if total == spec.Number {
			return win(spec.Num, spec.Den)
		}
		return lose()
	}
}

// resolveBonus settles the series-history bonus bets. Small/Tall/All die on
// any 7 and win the moment their set completes; Fire resolves only at
// seven-out on the count of distinct points made.
func resolveBonus(betType int, spec bettype.Spec, roll *model.Roll, history []model.Roll) resolution {
	total := roll.Total

	if betType == bettype.Fire {
		if roll.Phase == model.PhasePoint && total == 7 {
			made := distinctPointsMade(history)
			if num, den, wins := bettype.FireProfit(made); wins {
				return win(num, den)
			}
			return lose()
		}
		return keep
	}

	// Small / Tall / All.
	if total == 7 {
		return lose()
	}

	seen := make(map[int]bool, len(history)+1)
	for _, r := range history {
		seen[r.Total] = true
	}
	seen[total] = true

	complete := func(lo, hi int) bool {
		for t := lo; t <= hi; t++ {
			if t != 7 && !seen[t] {
				return false
			}
		}
		return true
	}

	switch betType {
	case bettype.Small:
		if complete(2, 6) {
			return win(spec.Num, spec.Den)
		}
	case bettype.Tall:
		if complete(8, 12) {
			return win(spec.Num, spec.Den)
		}
	case bettype.All:
		if complete(2, 6) && complete(8, 12) {
			return win(spec.Num, spec.Den)
		}
	}
	return keep
}

// countTotal counts earlier occurrences of a total in the series.
func countTotal(history []model.Roll, total int) int {
	n := 0
	for _, r := range history {
		if r.Total == total {
			n++
		}
	}
	return n
}

// distinctPointsMade counts distinct point values hit during the series.
// A point is made on a point-phase roll whose total equals its point.
func distinctPointsMade(history []model.Roll) int {
	made := make(map[int]bool)
	for _, r := range history {
		if r.Phase == model.PhasePoint && r.Total == r.Point {
			made[r.Point] = true
		}
	}
	return len(made)
}
