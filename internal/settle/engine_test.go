package settle_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dicehouse/craps-engine/internal/bettype"
	"github.com/dicehouse/craps-engine/internal/model"
	"github.com/dicehouse/craps-engine/internal/settle"
	"github.com/dicehouse/craps-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// table drives a craps series against a real memory store, mirroring the
// game service's phase transition so settlement sees the same inputs it
// would in production.
type table struct {
	t      *testing.T
	st     *store.MemoryStore
	eng    *settle.Engine
	series *model.Series
	nBet   int
	nRoll  int
}

func newTable(t *testing.T) *table {
	t.Helper()
	st := store.NewMemoryStore()
	series := &model.Series{
		ID:        "series-1",
		Seq:       1,
		Phase:     model.PhaseComeOut,
		StartedAt: time.Now().UTC(),
	}
	if err := st.CreateSeries(context.Background(), series); err != nil {
		t.Fatalf("create series: %v", err)
	}
	if err := st.PutBot(context.Background(), &model.Bot{ID: 0, Name: "vault-0", Bankroll: d(100000)}); err != nil {
		t.Fatalf("seed bot: %v", err)
	}
	return &table{t: t, st: st, eng: settle.NewEngine(st), series: series}
}

// bet escrows and records a wager for "shooter" against bot 0.
func (tb *table) bet(betType int, amount float64) *model.Bet {
	tb.t.Helper()
	tb.nBet++
	amt := d(amount)
	if err := tb.st.CreditAccount(context.Background(), "shooter", amt); err != nil {
		tb.t.Fatalf("fund account: %v", err)
	}
	if err := tb.st.DebitAccount(context.Background(), "shooter", amt); err != nil {
		tb.t.Fatalf("escrow: %v", err)
	}
	b := &model.Bet{
		ID:       fmt.Sprintf("bet-%d", tb.nBet),
		Player:   "shooter",
		BotID:    0,
		SeriesID: tb.series.ID,
		BetType:  betType,
		Amount:   amt,
		PlacedAt: time.Now().UTC(),
		Payout:   decimal.Zero,
	}
	if err := tb.st.InsertBet(context.Background(), b); err != nil {
		tb.t.Fatalf("insert bet: %v", err)
	}
	return b
}

// roll throws the dice and settles, returning the applied plan.
func (tb *table) roll(die1, die2 int) *store.SettlementPlan {
	tb.t.Helper()
	tb.nRoll++
	total := die1 + die2
	now := time.Now().UTC()

	roll := &model.Roll{
		ID:        fmt.Sprintf("roll-%d", tb.nRoll),
		SeriesID:  tb.series.ID,
		RequestID: fmt.Sprintf("req-%d", tb.nRoll),
		Die1:      die1,
		Die2:      die2,
		Total:     total,
		Phase:     tb.series.Phase,
		Point:     tb.series.Point,
		RolledAt:  now,
	}

	next := *tb.series
	if next.Phase == model.PhaseComeOut {
		if total != 7 && total != 11 && total != 2 && total != 3 && total != 12 {
			next.Phase = model.PhasePoint
			next.Point = total
		}
	} else {
		switch {
		case total == next.Point:
			next.Phase = model.PhaseComeOut
			next.Point = 0
		case total == 7:
			next.Phase = model.PhaseSevenOut
			next.Point = 0
			next.EndedAt = now
		}
	}

	plan, err := tb.eng.SettleRoll(context.Background(), &next, roll)
	if err != nil {
		tb.t.Fatalf("settle roll %d-%d: %v", die1, die2, err)
	}
	tb.series = &next
	return plan
}

func (tb *table) balance() decimal.Decimal {
	tb.t.Helper()
	acct, err := tb.st.GetAccount(context.Background(), "shooter")
	if err != nil {
		tb.t.Fatalf("get account: %v", err)
	}
	return acct.Balance
}

func (tb *table) activeBet(id string) *model.Bet {
	tb.t.Helper()
	// Active-bet queries exclude settled bets, so a missing bet means
	// it settled; read the payout from the plan in most tests, the
	// balance here.
	bets, err := tb.st.GetActiveBetsByPlayer(context.Background(), "shooter")
	if err != nil {
		tb.t.Fatalf("get bets: %v", err)
	}
	for i := range bets {
		if bets[i].ID == id {
			return &bets[i]
		}
	}
	return nil
}

func findSettlement(plan *store.SettlementPlan, betID string) *store.BetSettlement {
	for i := range plan.Settlements {
		if plan.Settlements[i].BetID == betID {
			return &plan.Settlements[i]
		}
	}
	return nil
}

// --- Line bets ---

func TestPassNaturalWins(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.Pass, 100)

	plan := tb.roll(3, 4) // 7 on come-out

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeWin {
		t.Fatalf("pass should win on a natural, got %+v", st)
	}
	if !st.Payout.Equal(d(200)) {
		t.Errorf("even-money payout should be 200, got %s", st.Payout)
	}
	if !tb.balance().Equal(d(200)) {
		t.Errorf("balance should be 200 after payout, got %s", tb.balance())
	}
}

func TestPassCrapsLoses(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.Pass, 100)

	plan := tb.roll(1, 1) // 2 on come-out

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeLose {
		t.Fatalf("pass should lose on craps, got %+v", st)
	}
	if !tb.balance().IsZero() {
		t.Errorf("losing stake stays with the house, balance %s", tb.balance())
	}
}

func TestDontPassBarTwelve(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.DontPass, 100)

	plan := tb.roll(6, 6) // 12 on come-out

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomePush {
		t.Fatalf("don't pass should push on 12, got %+v", st)
	}
	if !st.Payout.Equal(d(100)) {
		t.Errorf("push should return the stake, got %s", st.Payout)
	}
}

func TestPassPointMade(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.Pass, 100)

	plan := tb.roll(2, 2) // point 4
	if findSettlement(plan, b.ID) != nil {
		t.Fatal("pass should ride when a point is established")
	}
	if tb.series.Phase != model.PhasePoint || tb.series.Point != 4 {
		t.Fatalf("expected point 4, got %s/%d", tb.series.Phase, tb.series.Point)
	}

	plan = tb.roll(1, 3) // 4 again: point made
	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeWin {
		t.Fatalf("pass should win when the point is made, got %+v", st)
	}
	if tb.series.Phase != model.PhaseComeOut {
		t.Errorf("series should return to come-out, got %s", tb.series.Phase)
	}
	if !tb.series.Active() {
		t.Error("point made must not end the series")
	}
}

func TestSevenOutEndsSeries(t *testing.T) {
	tb := newTable(t)
	pass := tb.bet(bettype.Pass, 100)
	dont := tb.bet(bettype.DontPass, 50)

	tb.roll(3, 3) // point 6
	plan := tb.roll(4, 3)

	if st := findSettlement(plan, pass.ID); st == nil || st.Outcome != model.OutcomeLose {
		t.Errorf("pass should lose at seven-out, got %+v", st)
	}
	if st := findSettlement(plan, dont.ID); st == nil || st.Outcome != model.OutcomeWin {
		t.Errorf("don't pass should win at seven-out, got %+v", st)
	}
	if tb.series.Active() {
		t.Error("seven-out must end the series")
	}
}

// --- Multi-roll bets ---

func TestFieldPaysDoubleOnTwo(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.Field, 10)

	plan := tb.roll(1, 1)

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeWin {
		t.Fatalf("field should win on 2, got %+v", st)
	}
	if !st.Payout.Equal(d(30)) { // stake + 2x profit
		t.Errorf("field 2 payout should be 30, got %s", st.Payout)
	}
}

func TestHardwayEasyLoses(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.Hard8, 10)

	plan := tb.roll(6, 2) // easy 8

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeLose {
		t.Fatalf("hard 8 should lose on easy 8, got %+v", st)
	}
}

func TestHardwayHardWins(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.Hard8, 10)

	plan := tb.roll(4, 4)

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeWin {
		t.Fatalf("hard 8 should win on 4-4, got %+v", st)
	}
	if !st.Payout.Equal(d(100)) { // 10 + 9:1
		t.Errorf("hard 8 payout should be 100, got %s", st.Payout)
	}
}

func TestPlaceOffDuringComeOut(t *testing.T) {
	tb := newTable(t)
	tb.roll(3, 2) // point 5
	b := tb.bet(bettype.Place6, 30)

	tb.roll(2, 3) // point made, back to come-out

	plan := tb.roll(3, 4) // 7 on come-out: place bets are off
	if findSettlement(plan, b.ID) != nil {
		t.Fatal("place bet must not settle on a come-out 7")
	}

	tb.roll(3, 3) // point 6... place 6 wins immediately? No: point-establishing roll.
	if got := tb.activeBet(b.ID); got == nil {
		t.Fatal("place 6 should still be active")
	}

	plan = tb.roll(4, 2) // 6 with point up
	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeWin {
		t.Fatalf("place 6 should win on 6 during point phase, got %+v", st)
	}
	if !st.Payout.Equal(d(65)) { // 30 + 35
		t.Errorf("place 6 payout should be 65, got %s", st.Payout)
	}
}

func TestComeBetTravels(t *testing.T) {
	tb := newTable(t)
	tb.roll(2, 3) // point 5
	b := tb.bet(bettype.Come, 100)

	plan := tb.roll(5, 5) // come bet travels to 10
	if findSettlement(plan, b.ID) != nil {
		t.Fatal("come bet should travel, not settle")
	}
	traveled := tb.activeBet(b.ID)
	if traveled == nil || traveled.Point != 10 {
		t.Fatalf("come bet should carry point 10, got %+v", traveled)
	}

	plan = tb.roll(6, 4) // 10: come point hit
	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeWin {
		t.Fatalf("traveled come bet should win on its point, got %+v", st)
	}
	if !st.Payout.Equal(d(200)) {
		t.Errorf("come payout should be 200, got %s", st.Payout)
	}
}

// --- Lay and buy bets ---

func TestLayBetsPayAgainstTheNumber(t *testing.T) {
	cases := []struct {
		name    string
		betType int
		amount  float64
		payout  float64
	}{
		{"lay 4 pays 1:2", bettype.Lay4, 100, 150},
		{"lay 9 pays 2:3", bettype.Lay9, 90, 150},
		{"lay 6 pays 5:6", bettype.Lay6, 60, 110},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tb := newTable(t)
			b := tb.bet(tc.betType, tc.amount)

			plan := tb.roll(3, 4) // lay bets are always working, come-out 7 included

			st := findSettlement(plan, b.ID)
			if st == nil || st.Outcome != model.OutcomeWin {
				t.Fatalf("lay should win on 7, got %+v", st)
			}
			if !st.Payout.Equal(d(tc.payout)) {
				t.Errorf("payout should be %v, got %s", tc.payout, st.Payout)
			}
		})
	}
}

func TestLayBetLosesOnItsNumber(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.Lay10, 100)

	plan := tb.roll(5, 5)

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeLose {
		t.Fatalf("lay 10 should lose when the 10 rolls, got %+v", st)
	}
}

func TestBuyBetsPayTableOdds(t *testing.T) {
	cases := []struct {
		name    string
		betType int
		amount  float64
		dice    [2]int
		payout  float64
	}{
		{"buy 4 pays 2:1", bettype.Buy4, 50, [2]int{1, 3}, 150},
		{"buy 5 pays 3:2", bettype.Buy5, 40, [2]int{2, 3}, 100},
		{"buy 8 pays 6:5", bettype.Buy8, 50, [2]int{5, 3}, 110},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tb := newTable(t)
			b := tb.bet(tc.betType, tc.amount)

			plan := tb.roll(tc.dice[0], tc.dice[1])

			st := findSettlement(plan, b.ID)
			if st == nil || st.Outcome != model.OutcomeWin {
				t.Fatalf("buy should win on its number, got %+v", st)
			}
			if !st.Payout.Equal(d(tc.payout)) {
				t.Errorf("payout should be %v, got %s", tc.payout, st.Payout)
			}
		})
	}
}

func TestBuyBetDiesOnSeven(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.Buy6, 30)

	plan := tb.roll(5, 2)

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeLose {
		t.Fatalf("buy 6 should lose on 7, got %+v", st)
	}
}

// --- Don't come ---

func TestDontComeBarTwelve(t *testing.T) {
	tb := newTable(t)
	tb.roll(2, 2) // point 4
	b := tb.bet(bettype.DontCome, 100)

	plan := tb.roll(6, 6)

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomePush {
		t.Fatalf("don't come should push on 12, got %+v", st)
	}
	if !st.Payout.Equal(d(100)) {
		t.Errorf("push should return the stake, got %s", st.Payout)
	}
}

func TestDontComeTravelsAndWinsOnSevenOut(t *testing.T) {
	tb := newTable(t)
	tb.roll(2, 2) // point 4
	b := tb.bet(bettype.DontCome, 100)

	plan := tb.roll(4, 4) // travels behind the 8
	if findSettlement(plan, b.ID) != nil {
		t.Fatal("don't come bet should travel, not settle")
	}
	traveled := tb.activeBet(b.ID)
	if traveled == nil || traveled.Point != 8 {
		t.Fatalf("don't come bet should sit behind 8, got %+v", traveled)
	}

	plan = tb.roll(3, 4) // seven-out
	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeWin {
		t.Fatalf("traveled don't come should win on 7, got %+v", st)
	}
	if !st.Payout.Equal(d(200)) {
		t.Errorf("don't come payout should be 200, got %s", st.Payout)
	}
}

func TestOddsPayTrue(t *testing.T) {
	tb := newTable(t)
	tb.roll(2, 2) // point 4

	// The bet ledger captures the series point on odds bets at placement.
	b := &model.Bet{
		ID:       "odds-1",
		Player:   "shooter",
		BotID:    0,
		SeriesID: tb.series.ID,
		BetType:  bettype.OddsPass,
		Amount:   d(50),
		Point:    4,
		PlacedAt: time.Now().UTC(),
		Payout:   decimal.Zero,
	}
	if err := tb.st.InsertBet(context.Background(), b); err != nil {
		t.Fatalf("insert odds bet: %v", err)
	}

	plan := tb.roll(1, 3) // point made
	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeWin {
		t.Fatalf("pass odds should win on the point, got %+v", st)
	}
	if !st.Payout.Equal(d(150)) { // 50 + 2:1
		t.Errorf("odds on 4 should pay 150, got %s", st.Payout)
	}
}

func TestDontPassOddsPayInverse(t *testing.T) {
	tb := newTable(t)
	tb.roll(2, 2) // point 4

	b := &model.Bet{
		ID:       "odds-1",
		Player:   "shooter",
		BotID:    0,
		SeriesID: tb.series.ID,
		BetType:  bettype.OddsDontPass,
		Amount:   d(100),
		Point:    4,
		PlacedAt: time.Now().UTC(),
		Payout:   decimal.Zero,
	}
	if err := tb.st.InsertBet(context.Background(), b); err != nil {
		t.Fatalf("insert odds bet: %v", err)
	}

	plan := tb.roll(3, 4) // seven-out
	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeWin {
		t.Fatalf("don't pass odds should win on 7, got %+v", st)
	}
	if !st.Payout.Equal(d(150)) { // 100 + 1:2 behind the 4
		t.Errorf("don't odds on 4 should pay 150, got %s", st.Payout)
	}
}

// --- One-roll props ---

func TestCrapsElevenSplit(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.CrapsEleven, 12)

	plan := tb.roll(5, 6) // 11

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeWin {
		t.Fatalf("C&E should win on 11, got %+v", st)
	}
	if !st.Payout.Equal(d(96)) { // 12 + 7:1
		t.Errorf("C&E on 11 should pay 96, got %s", st.Payout)
	}
}

func TestCrapsElevenCrapsSide(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.CrapsEleven, 12)

	plan := tb.roll(1, 2) // 3

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeWin {
		t.Fatalf("C&E should win on craps, got %+v", st)
	}
	if !st.Payout.Equal(d(48)) { // 12 + 3:1
		t.Errorf("C&E on craps should pay 48, got %s", st.Payout)
	}
}

func TestNextRollResolvesEveryThrow(t *testing.T) {
	tb := newTable(t)
	hit := tb.bet(bettype.Next12, 10)
	miss := tb.bet(bettype.Next4, 10)

	plan := tb.roll(6, 6)

	st := findSettlement(plan, hit.ID)
	if st == nil || st.Outcome != model.OutcomeWin {
		t.Fatalf("next 12 should win on 12, got %+v", st)
	}
	if !st.Payout.Equal(d(310)) { // 10 + 30:1
		t.Errorf("next 12 payout should be 310, got %s", st.Payout)
	}

	st = findSettlement(plan, miss.ID)
	if st == nil || st.Outcome != model.OutcomeLose {
		t.Fatalf("next 4 should lose on any other total, got %+v", st)
	}
}

func TestHopNeedsExactDouble(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.Hop33, 10)

	plan := tb.roll(2, 4) // 6 the easy way

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeLose {
		t.Fatalf("hop 3-3 should lose on easy 6, got %+v", st)
	}
}

// --- Repeater and bonus bets ---

func TestRepeaterWinsOnNthHit(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.Repeater2, 5) // needs two 2s before a 7

	plan := tb.roll(1, 1)
	if findSettlement(plan, b.ID) != nil {
		t.Fatal("repeater should not settle on the first hit")
	}
	tb.roll(3, 2) // establishes point 5, irrelevant to the repeater
	plan = tb.roll(1, 1)

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeWin {
		t.Fatalf("repeater 2 should win on the second 2, got %+v", st)
	}
	if !st.Payout.Equal(d(205)) { // 5 + 40:1
		t.Errorf("repeater 2 payout should be 205, got %s", st.Payout)
	}
}

func TestRepeaterDiesOnSeven(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.Repeater2, 5)

	tb.roll(1, 1)
	plan := tb.roll(3, 4) // 7 on come-out kills the repeater

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeLose {
		t.Fatalf("repeater should lose on any 7, got %+v", st)
	}
}

func TestAllSmallCompletes(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.Small, 10)

	tb.roll(1, 1) // 2
	tb.roll(1, 2) // 3 (come-out craps, series stays)
	tb.roll(2, 2) // 4: point
	tb.roll(2, 3) // 5
	plan := tb.roll(3, 3) // 6 completes 2..6

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeWin {
		t.Fatalf("all small should win once 2-6 are rolled, got %+v", st)
	}
	if !st.Payout.Equal(d(350)) { // 10 + 34:1
		t.Errorf("all small payout should be 350, got %s", st.Payout)
	}
}

func TestTallCompletes(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.Tall, 10)

	tb.roll(4, 4) // 8: point
	tb.roll(4, 5) // 9
	tb.roll(5, 5) // 10
	tb.roll(5, 6) // 11
	plan := tb.roll(6, 6) // 12 completes 8..12

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeWin {
		t.Fatalf("tall should win once 8-12 are rolled, got %+v", st)
	}
	if !st.Payout.Equal(d(350)) { // 10 + 34:1
		t.Errorf("tall payout should be 350, got %s", st.Payout)
	}
}

func TestTallDiesOnSeven(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.Tall, 10)

	plan := tb.roll(3, 4) // any 7, come-out included

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeLose {
		t.Fatalf("tall should lose on 7, got %+v", st)
	}
}

func TestAllNeedsBothHalves(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.All, 2)

	tb.roll(1, 1) // 2
	tb.roll(1, 2) // 3
	tb.roll(2, 2) // 4: point
	tb.roll(2, 3) // 5
	plan := tb.roll(3, 3) // 6: small half done, the bet rides
	if findSettlement(plan, b.ID) != nil {
		t.Fatal("all must not settle on the small half alone")
	}

	tb.roll(4, 4) // 8
	tb.roll(4, 5) // 9
	tb.roll(5, 5) // 10
	tb.roll(5, 6) // 11
	plan = tb.roll(6, 6) // 12 completes both halves

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeWin {
		t.Fatalf("all should win once 2-12 (ex 7) are rolled, got %+v", st)
	}
	if !st.Payout.Equal(d(352)) { // 2 + 175:1
		t.Errorf("all payout should be 352, got %s", st.Payout)
	}
}

func TestFireResolvesAtSevenOut(t *testing.T) {
	tb := newTable(t)
	b := tb.bet(bettype.Fire, 10)

	// Make four distinct points, then seven out.
	points := [][2]int{{2, 2}, {2, 3}, {3, 3}, {4, 4}}
	for _, p := range points {
		tb.roll(p[0], p[1]) // establish
		tb.roll(p[0], p[1]) // make it
	}
	tb.roll(4, 5)         // point 9
	plan := tb.roll(3, 4) // seven-out

	st := findSettlement(plan, b.ID)
	if st == nil || st.Outcome != model.OutcomeWin {
		t.Fatalf("fire with 4 points should win at seven-out, got %+v", st)
	}
	if !st.Payout.Equal(d(250)) { // 10 + 24:1
		t.Errorf("fire payout should be 250, got %s", st.Payout)
	}
}

// --- Accounting ---

func TestAccrualsRecordVolumeAndNet(t *testing.T) {
	tb := newTable(t)
	tb.bet(bettype.Pass, 100)
	tb.bet(bettype.Field, 50)

	tb.roll(3, 4) // natural: pass wins 100 profit, field loses 50

	positions, err := tb.st.GetWeekPositions(context.Background(), 0)
	if err != nil {
		t.Fatalf("week positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected one bot position, got %d", len(positions))
	}
	pos := positions[0]
	if !pos.Volume.Equal(d(150)) {
		t.Errorf("volume should be 150, got %s", pos.Volume)
	}
	if !pos.Collected.Equal(d(50)) {
		t.Errorf("collected should be 50 (field stake), got %s", pos.Collected)
	}
	if !pos.Issued.Equal(d(100)) {
		t.Errorf("issued should be 100 (pass profit), got %s", pos.Issued)
	}
	if !pos.Net().Equal(d(-50)) {
		t.Errorf("net should be -50, got %s", pos.Net())
	}

	vols, err := tb.st.GetContributorVolumes(context.Background(), 0)
	if err != nil {
		t.Fatalf("volumes: %v", err)
	}
	if !vols["shooter"].Equal(d(150)) {
		t.Errorf("contributor volume should be 150, got %s", vols["shooter"])
	}
}

func TestUnresolvedBetsCountNoVolume(t *testing.T) {
	tb := newTable(t)
	tb.bet(bettype.Pass, 100)

	tb.roll(2, 2) // point established, nothing settles

	vols, err := tb.st.GetContributorVolumes(context.Background(), 0)
	if err != nil {
		t.Fatalf("volumes: %v", err)
	}
	if !vols["shooter"].IsZero() {
		t.Errorf("volume counts at settlement, not placement; got %s", vols["shooter"])
	}
}
