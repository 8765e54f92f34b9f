// Package bettype enumerates the 64 supported craps bet types and their
// payout table. Each entry carries fixed odds as an integer ratio plus the
// placement rules the bet ledger enforces. Settlement logic that depends on
// more than a ratio (field bonus totals, true odds, tiered bonus payouts)
// lives in the settlement engine; this package is the single source of truth
// for the numbers.
package bettype

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dicehouse/craps-engine/internal/model"
)

// Bet type identifiers. The table is fixed at exactly 64 entries; ids are
// wire-level and must never be renumbered.
const (
	Pass     = 0
	DontPass = 1
	Come     = 2
	DontCome = 3
	Field    = 4

	Place4  = 5
	Place5  = 6
	Place6  = 7
	Place8  = 8
	Place9  = 9
	Place10 = 10

	Lay4  = 11
	Lay5  = 12
	Lay6  = 13
	Lay8  = 14
	Lay9  = 15
	Lay10 = 16

	Buy4  = 17
	Buy5  = 18
	Buy6  = 19
	Buy8  = 20
	Buy9  = 21
	Buy10 = 22

	Hard4  = 23
	Hard6  = 24
	Hard8  = 25
	Hard10 = 26

	OddsPass     = 27
	OddsDontPass = 28
	OddsCome     = 29
	OddsDontCome = 30

	CrapsEleven = 31 // C&E: 3:1 on 2/3/12, 7:1 on 11
	AnyCraps    = 32

	Next2  = 33
	Next3  = 34
	Next4  = 35
	Next5  = 36
	Next6  = 37
	Next7  = 38
	Next8  = 39
	Next9  = 40
	Next10 = 41
	Next11 = 42
	Next12 = 43

	Repeater2  = 44
	Repeater3  = 45
	Repeater4  = 46
	Repeater5  = 47
	Repeater6  = 48
	Repeater8  = 49
	Repeater9  = 50
	Repeater10 = 51
	Repeater11 = 52
	Repeater12 = 53

	Fire  = 54
	Small = 55
	Tall  = 56
	All   = 57

	Hop11 = 58
	Hop22 = 59
	Hop33 = 60
	Hop44 = 61
	Hop55 = 62
	Hop66 = 63

	// Count is the size of the bet-type table.
	Count = 64
)

// Kind groups bet types by settlement behavior.
type Kind int

const (
	KindLine     Kind = iota // pass / don't pass
	KindCome                 // come / don't come (traveling)
	KindField                // one-roll field
	KindPlace                // number before 7
	KindLay                  // 7 before number
	KindBuy                  // number before 7 at true odds
	KindHardway              // hard total before 7 or easy way
	KindOdds                 // true-odds backing of a line bet
	KindOneRoll              // resolves on every roll
	KindRepeater             // total must repeat N times before 7
	KindBonus                // resolves from series history at seven-out
)

var (
	ErrUnknownBetType = errors.New("bettype: unknown bet type")
	ErrWrongPhase     = errors.New("bettype: bet not placeable in current phase")
)

// Spec describes one bet type. Num:Den is the profit ratio for a win; kinds
// whose payout varies (odds, C&E, fire) leave it zero and the settlement
// engine computes the ratio from context.
type Spec struct {
	Type   int
	Name   string
	Kind   Kind
	Num    int64 // profit numerator
	Den    int64 // profit denominator
	Number int   // target total (place/lay/buy/hard/next/repeater), 0 if n/a
	// Repeats is the required hit count for repeater bets.
	Repeats int
	// SingleInstance rejects a second active bet of this type per player.
	SingleInstance bool
}

var table = [Count]Spec{
	Pass:     {Pass, "Pass Line", KindLine, 1, 1, 0, 0, true},
	DontPass: {DontPass, "Don't Pass", KindLine, 1, 1, 0, 0, true},
	Come:     {Come, "Come", KindCome, 1, 1, 0, 0, false},
	DontCome: {DontCome, "Don't Come", KindCome, 1, 1, 0, 0, false},
	Field:    {Field, "Field", KindField, 1, 1, 0, 0, false},

	Place4:  {Place4, "Place 4", KindPlace, 9, 5, 4, 0, true},
	Place5:  {Place5, "Place 5", KindPlace, 7, 5, 5, 0, true},
	Place6:  {Place6, "Place 6", KindPlace, 7, 6, 6, 0, true},
	Place8:  {Place8, "Place 8", KindPlace, 7, 6, 8, 0, true},
	Place9:  {Place9, "Place 9", KindPlace, 7, 5, 9, 0, true},
	Place10: {Place10, "Place 10", KindPlace, 9, 5, 10, 0, true},

	Lay4:  {Lay4, "Lay 4", KindLay, 1, 2, 4, 0, true},
	Lay5:  {Lay5, "Lay 5", KindLay, 2, 3, 5, 0, true},
	Lay6:  {Lay6, "Lay 6", KindLay, 5, 6, 6, 0, true},
	Lay8:  {Lay8, "Lay 8", KindLay, 5, 6, 8, 0, true},
	Lay9:  {Lay9, "Lay 9", KindLay, 2, 3, 9, 0, true},
	Lay10: {Lay10, "Lay 10", KindLay, 1, 2, 10, 0, true},

	Buy4:  {Buy4, "Buy 4", KindBuy, 2, 1, 4, 0, true},
	Buy5:  {Buy5, "Buy 5", KindBuy, 3, 2, 5, 0, true},
	Buy6:  {Buy6, "Buy 6", KindBuy, 6, 5, 6, 0, true},
	Buy8:  {Buy8, "Buy 8", KindBuy, 6, 5, 8, 0, true},
	Buy9:  {Buy9, "Buy 9", KindBuy, 3, 2, 9, 0, true},
	Buy10: {Buy10, "Buy 10", KindBuy, 2, 1, 10, 0, true},

	Hard4:  {Hard4, "Hard 4", KindHardway, 7, 1, 4, 0, true},
	Hard6:  {Hard6, "Hard 6", KindHardway, 9, 1, 6, 0, true},
	Hard8:  {Hard8, "Hard 8", KindHardway, 9, 1, 8, 0, true},
	Hard10: {Hard10, "Hard 10", KindHardway, 7, 1, 10, 0, true},

	OddsPass:     {OddsPass, "Pass Odds", KindOdds, 0, 0, 0, 0, true},
	OddsDontPass: {OddsDontPass, "Don't Pass Odds", KindOdds, 0, 0, 0, 0, true},
	OddsCome:     {OddsCome, "Come Odds", KindOdds, 0, 0, 0, 0, true},
	OddsDontCome: {OddsDontCome, "Don't Come Odds", KindOdds, 0, 0, 0, 0, true},

	CrapsEleven: {CrapsEleven, "Craps & Eleven", KindOneRoll, 0, 0, 0, 0, false},
	AnyCraps:    {AnyCraps, "Any Craps", KindOneRoll, 7, 1, 0, 0, false},

	Next2:  {Next2, "Next 2", KindOneRoll, 30, 1, 2, 0, false},
	Next3:  {Next3, "Next 3", KindOneRoll, 15, 1, 3, 0, false},
	Next4:  {Next4, "Next 4", KindOneRoll, 10, 1, 4, 0, false},
	Next5:  {Next5, "Next 5", KindOneRoll, 7, 1, 5, 0, false},
	Next6:  {Next6, "Next 6", KindOneRoll, 6, 1, 6, 0, false},
	Next7:  {Next7, "Next 7", KindOneRoll, 4, 1, 7, 0, false},
	Next8:  {Next8, "Next 8", KindOneRoll, 6, 1, 8, 0, false},
	Next9:  {Next9, "Next 9", KindOneRoll, 7, 1, 9, 0, false},
	Next10: {Next10, "Next 10", KindOneRoll, 10, 1, 10, 0, false},
	Next11: {Next11, "Next 11", KindOneRoll, 15, 1, 11, 0, false},
	Next12: {Next12, "Next 12", KindOneRoll, 30, 1, 12, 0, false},

	Repeater2:  {Repeater2, "Repeater 2", KindRepeater, 40, 1, 2, 2, true},
	Repeater3:  {Repeater3, "Repeater 3", KindRepeater, 50, 1, 3, 3, true},
	Repeater4:  {Repeater4, "Repeater 4", KindRepeater, 65, 1, 4, 4, true},
	Repeater5:  {Repeater5, "Repeater 5", KindRepeater, 80, 1, 5, 5, true},
	Repeater6:  {Repeater6, "Repeater 6", KindRepeater, 90, 1, 6, 6, true},
	Repeater8:  {Repeater8, "Repeater 8", KindRepeater, 90, 1, 8, 6, true},
	Repeater9:  {Repeater9, "Repeater 9", KindRepeater, 80, 1, 9, 5, true},
	Repeater10: {Repeater10, "Repeater 10", KindRepeater, 65, 1, 10, 4, true},
	Repeater11: {Repeater11, "Repeater 11", KindRepeater, 50, 1, 11, 3, true},
	Repeater12: {Repeater12, "Repeater 12", KindRepeater, 40, 1, 12, 2, true},

	Fire:  {Fire, "Fire", KindBonus, 0, 0, 0, 0, true},
	Small: {Small, "All Small", KindBonus, 34, 1, 0, 0, true},
	Tall:  {Tall, "All Tall", KindBonus, 34, 1, 0, 0, true},
	All:   {All, "Make 'Em All", KindBonus, 175, 1, 0, 0, true},

	Hop11: {Hop11, "Hop 1-1", KindOneRoll, 30, 1, 2, 0, false},
	Hop22: {Hop22, "Hop 2-2", KindOneRoll, 30, 1, 4, 0, false},
	Hop33: {Hop33, "Hop 3-3", KindOneRoll, 30, 1, 6, 0, false},
	Hop44: {Hop44, "Hop 4-4", KindOneRoll, 30, 1, 8, 0, false},
	Hop55: {Hop55, "Hop 5-5", KindOneRoll, 30, 1, 10, 0, false},
	Hop66: {Hop66, "Hop 6-6", KindOneRoll, 30, 1, 12, 0, false},
}

// Lookup returns the spec for a bet type id.
func Lookup(betType int) (Spec, error) {
	if betType < 0 || betType >= Count {
		return Spec{}, fmt.Errorf("%w: %d", ErrUnknownBetType, betType)
	}
	return table[betType], nil
}

// IsHop reports whether the bet type is a hopping-double one-roll bet,
// which requires the exact double, not just the total.
func IsHop(betType int) bool {
	return betType >= Hop11 && betType <= Hop66
}

// CheckPhase validates placement legality against the series phase.
// rollsInSeries gates bonus/repeater bets to the start of a series so they
// cannot be bought after part of their qualifying history has happened.
func CheckPhase(spec Spec, phase model.Phase, rollsInSeries int) error {
	switch spec.Kind {
	case KindLine:
		if phase != model.PhaseComeOut {
			return fmt.Errorf("%w: %s only on come-out", ErrWrongPhase, spec.Name)
		}
	case KindCome, KindOdds, KindPlace:
		if phase != model.PhasePoint {
			return fmt.Errorf("%w: %s only after a point is established", ErrWrongPhase, spec.Name)
		}
	case KindRepeater, KindBonus:
		if phase != model.PhaseComeOut || rollsInSeries != 0 {
			return fmt.Errorf("%w: %s only before the first roll of a series", ErrWrongPhase, spec.Name)
		}
	default:
		// Field, lay, buy, hardways and one-roll props work in any live phase.
		if phase == model.PhaseSevenOut {
			return fmt.Errorf("%w: series is over", ErrWrongPhase)
		}
	}
	return nil
}

// TrueOdds returns the profit ratio for backing a point at true odds
// (pass/come side). The don't side is the inverse.
func TrueOdds(point int) (num, den int64) {
	switch point {
	case 4, 10:
		return 2, 1
	case 5, 9:
		return 3, 2
	case 6, 8:
		return 6, 5
	}
	return 0, 0
}

// FieldProfit returns the field profit ratio for a total: 2 pays double,
// 12 pays triple, other field numbers pay even money.
func FieldProfit(total int) (num, den int64, wins bool) {
	switch total {
	case 2:
		return 2, 1, true
	case 12:
		return 3, 1, true
	case 3, 4, 9, 10, 11:
		return 1, 1, true
	}
	return 0, 0, false
}

// FireProfit returns the tiered fire-bet profit ratio for the number of
// distinct points made during the series. Fewer than four points loses.
func FireProfit(pointsMade int) (num, den int64, wins bool) {
	switch {
	case pointsMade >= 6:
		return 999, 1, true
	case pointsMade == 5:
		return 249, 1, true
	case pointsMade == 4:
		return 24, 1, true
	}
	return 0, 0, false
}

// Profit computes amount * num / den with the engine's payout precision.
func Profit(amount decimal.Decimal, num, den int64) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(num)).DivRound(decimal.NewFromInt(den), PayoutScale)
}

// PayoutScale is the number of decimal places payouts are rounded to.
const PayoutScale int32 = 8
