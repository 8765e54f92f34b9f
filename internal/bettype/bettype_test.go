package bettype_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dicehouse/craps-engine/internal/bettype"
	"github.com/dicehouse/craps-engine/internal/model"
)

func TestTableComplete(t *testing.T) {
	for id := 0; id < bettype.Count; id++ {
		spec, err := bettype.Lookup(id)
		if err != nil {
			t.Fatalf("Lookup(%d): %v", id, err)
		}
		if spec.Type != id {
			t.Errorf("entry %d has Type %d", id, spec.Type)
		}
		if spec.Name == "" {
			t.Errorf("entry %d has no name", id)
		}
	}
}

func TestLookupBounds(t *testing.T) {
	for _, id := range []int{-1, bettype.Count, 1000} {
		if _, err := bettype.Lookup(id); !errors.Is(err, bettype.ErrUnknownBetType) {
			t.Errorf("Lookup(%d): expected ErrUnknownBetType, got %v", id, err)
		}
	}
}

func TestCheckPhase(t *testing.T) {
	lookup := func(id int) bettype.Spec {
		spec, err := bettype.Lookup(id)
		if err != nil {
			t.Fatalf("Lookup(%d): %v", id, err)
		}
		return spec
	}

	cases := []struct {
		name    string
		betType int
		phase   model.Phase
		rolls   int
		wantErr bool
	}{
		{"pass on come-out", bettype.Pass, model.PhaseComeOut, 3, false},
		{"pass with point up", bettype.Pass, model.PhasePoint, 3, true},
		{"come on come-out", bettype.Come, model.PhaseComeOut, 0, true},
		{"come with point up", bettype.Come, model.PhasePoint, 1, false},
		{"odds with point up", bettype.OddsPass, model.PhasePoint, 1, false},
		{"odds on come-out", bettype.OddsPass, model.PhaseComeOut, 0, true},
		{"place with point up", bettype.Place6, model.PhasePoint, 1, false},
		{"place on come-out", bettype.Place6, model.PhaseComeOut, 0, true},
		{"field any live phase", bettype.Field, model.PhasePoint, 4, false},
		{"field after seven-out", bettype.Field, model.PhaseSevenOut, 4, true},
		{"hardway on come-out", bettype.Hard8, model.PhaseComeOut, 0, false},
		{"repeater before first roll", bettype.Repeater6, model.PhaseComeOut, 0, false},
		{"repeater mid-series", bettype.Repeater6, model.PhaseComeOut, 2, true},
		{"fire with point up", bettype.Fire, model.PhasePoint, 1, true},
		{"all small before first roll", bettype.Small, model.PhaseComeOut, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := bettype.CheckPhase(lookup(tc.betType), tc.phase, tc.rolls)
			if tc.wantErr && !errors.Is(err, bettype.ErrWrongPhase) {
				t.Errorf("expected ErrWrongPhase, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestTrueOdds(t *testing.T) {
	cases := []struct {
		point    int
		num, den int64
	}{
		{4, 2, 1}, {10, 2, 1},
		{5, 3, 2}, {9, 3, 2},
		{6, 6, 5}, {8, 6, 5},
		{7, 0, 0}, {0, 0, 0},
	}
	for _, tc := range cases {
		num, den := bettype.TrueOdds(tc.point)
		if num != tc.num || den != tc.den {
			t.Errorf("TrueOdds(%d) = %d:%d, want %d:%d", tc.point, num, den, tc.num, tc.den)
		}
	}
}

func TestFieldProfit(t *testing.T) {
	for total := 2; total <= 12; total++ {
		num, den, wins := bettype.FieldProfit(total)
		switch total {
		case 2:
			if !wins || num != 2 || den != 1 {
				t.Errorf("field 2 should pay 2:1, got %d:%d wins=%v", num, den, wins)
			}
		case 12:
			if !wins || num != 3 || den != 1 {
				t.Errorf("field 12 should pay 3:1, got %d:%d wins=%v", num, den, wins)
			}
		case 3, 4, 9, 10, 11:
			if !wins || num != 1 || den != 1 {
				t.Errorf("field %d should pay 1:1, got %d:%d wins=%v", total, num, den, wins)
			}
		default:
			if wins {
				t.Errorf("field %d should lose", total)
			}
		}
	}
}

func TestFireProfit(t *testing.T) {
	for made := 0; made <= 6; made++ {
		num, _, wins := bettype.FireProfit(made)
		switch {
		case made < 4:
			if wins {
				t.Errorf("fire with %d points should lose", made)
			}
		case made == 4:
			if !wins || num != 24 {
				t.Errorf("fire with 4 points should pay 24:1, got %d wins=%v", num, wins)
			}
		case made == 5:
			if !wins || num != 249 {
				t.Errorf("fire with 5 points should pay 249:1, got %d wins=%v", num, wins)
			}
		default:
			if !wins || num != 999 {
				t.Errorf("fire with %d points should pay 999:1, got %d wins=%v", made, num, wins)
			}
		}
	}
}

func TestProfit(t *testing.T) {
	// 30 at 7:6 (place six) profits exactly 35.
	got := bettype.Profit(decimal.NewFromInt(30), 7, 6)
	if !got.Equal(decimal.NewFromInt(35)) {
		t.Errorf("Profit(30, 7, 6) = %s, want 35", got)
	}

	// Non-terminating division rounds at the payout scale.
	got = bettype.Profit(decimal.NewFromInt(10), 7, 6)
	want, _ := decimal.NewFromString("11.66666667")
	if !got.Equal(want) {
		t.Errorf("Profit(10, 7, 6) = %s, want %s", got, want)
	}
}

func TestRepeaterLadderSymmetry(t *testing.T) {
	pairs := [][2]int{
		{bettype.Repeater2, bettype.Repeater12},
		{bettype.Repeater3, bettype.Repeater11},
		{bettype.Repeater4, bettype.Repeater10},
		{bettype.Repeater5, bettype.Repeater9},
		{bettype.Repeater6, bettype.Repeater8},
	}
	for _, p := range pairs {
		lo, _ := bettype.Lookup(p[0])
		hi, _ := bettype.Lookup(p[1])
		if lo.Num != hi.Num || lo.Repeats != hi.Repeats {
			t.Errorf("repeater %d and %d should mirror: %d:%d×%d vs %d:%d×%d",
				lo.Number, hi.Number, lo.Num, lo.Den, lo.Repeats, hi.Num, hi.Den, hi.Repeats)
		}
	}
}
