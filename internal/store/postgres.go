package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dicehouse/craps-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Composite operations (settlement, finalization, claims) run in a single
// transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Series and rolls ---

func (s *PostgresStore) CreateSeries(ctx context.Context, sr *model.Series) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO series (id, seq, phase, point, pending_request_id, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sr.ID, sr.Seq, sr.Phase, sr.Point, sr.PendingRequestID, sr.StartedAt, nullTime(sr.EndedAt),
	)
	return err
}

func (s *PostgresStore) GetCurrentSeries(ctx context.Context) (*model.Series, error) {
	sr, err := scanSeries(s.pool.QueryRow(ctx,
		`SELECT id, seq, phase, point, pending_request_id, started_at, ended_at
		 FROM series ORDER BY seq DESC LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: no series", ErrNotFound)
	}
	return sr, err
}

func (s *PostgresStore) UpdateSeries(ctx context.Context, sr *model.Series) error {
	return updateSeries(ctx, s.pool, sr)
}

// execer covers both *pgxpool.Pool and pgx.Tx so series updates can run
// standalone or inside a settlement transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updateSeries(ctx context.Context, q execer, sr *model.Series) error {
	tag, err := q.Exec(ctx,
		`UPDATE series
		 SET phase = $2, point = $3, pending_request_id = $4, ended_at = $5
		 WHERE id = $1`,
		sr.ID, sr.Phase, sr.Point, sr.PendingRequestID, nullTime(sr.EndedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: series %s", ErrNotFound, sr.ID)
	}
	return nil
}

func (s *PostgresStore) ListRollsBySeries(ctx context.Context, seriesID string) ([]model.Roll, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, series_id, request_id, die1, die2, total, phase, point, rolled_at
		 FROM rolls WHERE series_id = $1 ORDER BY rolled_at, id`, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Roll
	for rows.Next() {
		var r model.Roll
		if err := rows.Scan(&r.ID, &r.SeriesID, &r.RequestID,
			&r.Die1, &r.Die2, &r.Total, &r.Phase, &r.Point, &r.RolledAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Bets ---

func (s *PostgresStore) InsertBet(ctx context.Context, b *model.Bet) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bets (id, player, bot_id, series_id, bet_type, amount, point, placed_at, settled, payout)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, FALSE, 0)`,
		b.ID, b.Player, b.BotID, b.SeriesID, b.BetType, b.Amount.String(), b.Point, b.PlacedAt,
	)
	return err
}

const betColumns = `id, player, bot_id, series_id, bet_type,
	amount::TEXT, point, placed_at, settled,
	COALESCE(outcome, ''), payout::TEXT, settled_at`

func (s *PostgresStore) GetActiveBets(ctx context.Context, seriesID string) ([]model.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betColumns+`
		 FROM bets WHERE series_id = $1 AND NOT settled ORDER BY placed_at, id`, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBets(rows)
}

func (s *PostgresStore) GetActiveBetsByPlayer(ctx context.Context, player string) ([]model.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betColumns+`
		 FROM bets WHERE player = $1 AND NOT settled ORDER BY placed_at, id`, player)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBets(rows)
}

func scanBets(rows pgx.Rows) ([]model.Bet, error) {
	var out []model.Bet
	for rows.Next() {
		var b model.Bet
		var amountS, payoutS, outcomeS string
		var settledAt *time.Time

		if err := rows.Scan(&b.ID, &b.Player, &b.BotID, &b.SeriesID, &b.BetType,
			&amountS, &b.Point, &b.PlacedAt, &b.Settled,
			&outcomeS, &payoutS, &settledAt); err != nil {
			return nil, err
		}

		b.Amount, _ = decimal.NewFromString(amountS)
		b.Payout, _ = decimal.NewFromString(payoutS)
		b.Outcome = model.Outcome(outcomeS)
		if settledAt != nil {
			b.SettledAt = *settledAt
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- Accounts ---

func (s *PostgresStore) GetAccount(ctx context.Context, player string) (*model.Account, error) {
	var balS string
	err := s.pool.QueryRow(ctx,
		`SELECT balance::TEXT FROM accounts WHERE player = $1`, player).Scan(&balS)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.Account{Player: player, Balance: decimal.Zero}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", player, err)
	}

	bal, _ := decimal.NewFromString(balS)
	return &model.Account{Player: player, Balance: bal}, nil
}

func (s *PostgresStore) CreditAccount(ctx context.Context, player string, amount decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (player, balance) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (player) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance`,
		player, amount.String(),
	)
	return err
}

func (s *PostgresStore) DebitAccount(ctx context.Context, player string, amount decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET balance = balance - $2::NUMERIC
		 WHERE player = $1 AND balance >= $2::NUMERIC`,
		player, amount.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s needs %s", ErrInsufficientFunds, player, amount)
	}
	return nil
}

// --- Bots ---

func (s *PostgresStore) PutBot(ctx context.Context, b *model.Bot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bots (id, name, bankroll, total_collected, total_issued, depleted)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name, bankroll = EXCLUDED.bankroll,
		     total_collected = EXCLUDED.total_collected,
		     total_issued = EXCLUDED.total_issued,
		     depleted = EXCLUDED.depleted`,
		b.ID, b.Name, b.Bankroll.String(),
		b.TotalCollected.String(), b.TotalIssued.String(), b.Depleted,
	)
	return err
}

const botColumns = `id, name, bankroll::TEXT, total_collected::TEXT, total_issued::TEXT, depleted`

func (s *PostgresStore) GetBot(ctx context.Context, id int) (*model.Bot, error) {
	var b model.Bot
	var bankrollS, collectedS, issuedS string

	err := s.pool.QueryRow(ctx,
		`SELECT `+botColumns+` FROM bots WHERE id = $1`, id).
		Scan(&b.ID, &b.Name, &bankrollS, &collectedS, &issuedS, &b.Depleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: bot %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get bot %d: %w", id, err)
	}

	b.Bankroll, _ = decimal.NewFromString(bankrollS)
	b.TotalCollected, _ = decimal.NewFromString(collectedS)
	b.TotalIssued, _ = decimal.NewFromString(issuedS)
	return &b, nil
}

func (s *PostgresStore) ListBots(ctx context.Context) ([]model.Bot, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+botColumns+` FROM bots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Bot
	for rows.Next() {
		var b model.Bot
		var bankrollS, collectedS, issuedS string
		if err := rows.Scan(&b.ID, &b.Name, &bankrollS, &collectedS, &issuedS, &b.Depleted); err != nil {
			return nil, err
		}
		b.Bankroll, _ = decimal.NewFromString(bankrollS)
		b.TotalCollected, _ = decimal.NewFromString(collectedS)
		b.TotalIssued, _ = decimal.NewFromString(issuedS)
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- Settlement ---

func (s *PostgresStore) ApplySettlement(ctx context.Context, plan *SettlementPlan) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	roll := plan.Roll
	if _, err := tx.Exec(ctx,
		`INSERT INTO rolls (id, series_id, request_id, die1, die2, total, phase, point, rolled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		roll.ID, roll.SeriesID, roll.RequestID,
		roll.Die1, roll.Die2, roll.Total, roll.Phase, roll.Point, roll.RolledAt,
	); err != nil {
		return err
	}

	if err := updateSeries(ctx, tx, plan.Series); err != nil {
		return err
	}

	for _, st := range plan.Settlements {
		tag, err := tx.Exec(ctx,
			`UPDATE bets
			 SET settled = TRUE, outcome = $2, payout = $3::NUMERIC, settled_at = $4
			 WHERE id = $1 AND NOT settled`,
			st.BetID, st.Outcome, st.Payout.String(), roll.RolledAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: bet %s", ErrNotFound, st.BetID)
		}
		if st.Payout.IsPositive() {
			if _, err := tx.Exec(ctx,
				`INSERT INTO accounts (player, balance) VALUES ($1, $2::NUMERIC)
				 ON CONFLICT (player) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance`,
				st.Player, st.Payout.String(),
			); err != nil {
				return err
			}
		}
	}

	for _, bp := range plan.BetPoints {
		tag, err := tx.Exec(ctx,
			`UPDATE bets SET point = $2 WHERE id = $1 AND NOT settled`, bp.BetID, bp.Point)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: bet %s", ErrNotFound, bp.BetID)
		}
	}

	var weekID int64
	var openedAt time.Time
	if err := tx.QueryRow(ctx,
		`SELECT week_id, opened_at FROM weeks ORDER BY week_id DESC LIMIT 1`).
		Scan(&weekID, &openedAt); err != nil {
		return err
	}

	for _, acc := range plan.Accruals {
		if _, err := tx.Exec(ctx,
			`INSERT INTO week_positions (week_id, bot_id, collected, issued, volume, opened_at)
			 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)
			 ON CONFLICT (week_id, bot_id) DO UPDATE
			 SET collected = week_positions.collected + EXCLUDED.collected,
			     issued = week_positions.issued + EXCLUDED.issued,
			     volume = week_positions.volume + EXCLUDED.volume`,
			weekID, acc.BotID,
			acc.Collected.String(), acc.Issued.String(), acc.Volume.String(), openedAt,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE bots
			 SET total_collected = total_collected + $2::NUMERIC,
			     total_issued = total_issued + $3::NUMERIC,
			     bankroll = bankroll + $2::NUMERIC - $3::NUMERIC,
			     depleted = depleted OR (bankroll + $2::NUMERIC - $3::NUMERIC) <= 0
			 WHERE id = $1`,
			acc.BotID, acc.Collected.String(), acc.Issued.String(),
		); err != nil {
			return err
		}
	}

	for _, cv := range plan.Volumes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO week_volumes (week_id, contributor, volume)
			 VALUES ($1, $2, $3::NUMERIC)
			 ON CONFLICT (week_id, contributor) DO UPDATE
			 SET volume = week_volumes.volume + EXCLUDED.volume`,
			weekID, cv.Contributor, cv.Volume.String(),
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// --- Weekly accounting ---

func (s *PostgresStore) GetCurrentWeek(ctx context.Context) (int64, time.Time, error) {
	var weekID int64
	var openedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT week_id, opened_at FROM weeks ORDER BY week_id DESC LIMIT 1`).
		Scan(&weekID, &openedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, time.Time{}, fmt.Errorf("%w: no open week", ErrNotFound)
	}
	return weekID, openedAt, err
}

func (s *PostgresStore) OpenNextWeek(ctx context.Context, openedAt time.Time) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var current int64
	if err := tx.QueryRow(ctx,
		`SELECT week_id FROM weeks ORDER BY week_id DESC LIMIT 1`).Scan(&current); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE week_positions SET closed_at = $2 WHERE week_id = $1`, current, openedAt); err != nil {
		return 0, err
	}

	next := current + 1
	if _, err := tx.Exec(ctx,
		`INSERT INTO weeks (week_id, opened_at) VALUES ($1, $2)`, next, openedAt); err != nil {
		return 0, err
	}

	return next, tx.Commit(ctx)
}

const positionColumns = `week_id, bot_id, collected::TEXT, issued::TEXT, volume::TEXT,
	opened_at, closed_at, finalized, debt_before::TEXT, debt_after::TEXT`

func (s *PostgresStore) GetWeekPositions(ctx context.Context, weekID int64) ([]model.WeeklyPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM week_positions WHERE week_id = $1 ORDER BY bot_id`, weekID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WeeklyPosition
	for rows.Next() {
		var p model.WeeklyPosition
		var collectedS, issuedS, volumeS, debtBeforeS, debtAfterS string
		var closedAt *time.Time

		if err := rows.Scan(&p.WeekID, &p.BotID, &collectedS, &issuedS, &volumeS,
			&p.OpenedAt, &closedAt, &p.Finalized, &debtBeforeS, &debtAfterS); err != nil {
			return nil, err
		}

		p.Collected, _ = decimal.NewFromString(collectedS)
		p.Issued, _ = decimal.NewFromString(issuedS)
		p.Volume, _ = decimal.NewFromString(volumeS)
		p.DebtBefore, _ = decimal.NewFromString(debtBeforeS)
		p.DebtAfter, _ = decimal.NewFromString(debtAfterS)
		if closedAt != nil {
			p.ClosedAt = *closedAt
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetContributorVolumes(ctx context.Context, weekID int64) (map[string]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT contributor, volume::TEXT FROM week_volumes WHERE week_id = $1`, weekID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var contributor, volS string
		if err := rows.Scan(&contributor, &volS); err != nil {
			return nil, err
		}
		out[contributor], _ = decimal.NewFromString(volS)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ApplyWeekFinalization(ctx context.Context, fin *WeekFinalization) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// The weeks row is the finalization record: a closed week with no
	// positions still finalizes exactly once.
	tag, err := tx.Exec(ctx,
		`UPDATE weeks SET finalized = TRUE WHERE week_id = $1 AND NOT finalized`, fin.WeekID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: week %d already finalized", ErrConflict, fin.WeekID)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE week_positions
		 SET finalized = TRUE, debt_before = $2::NUMERIC, debt_after = $3::NUMERIC
		 WHERE week_id = $1`,
		fin.WeekID, fin.DebtBefore.String(), fin.DebtAfter.String(),
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE house_ledger SET virtual_debt = $1::NUMERIC, debt_paid_off = $2::NUMERIC WHERE id = 1`,
		fin.DebtAfter.String(), fin.DebtPaidOff.String(),
	); err != nil {
		return err
	}

	for _, e := range fin.Entitlements {
		if _, err := tx.Exec(ctx,
			`INSERT INTO entitlements (id, week_id, contributor, amount, expires_at, claimed, expired)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5, FALSE, FALSE)`,
			e.ID, e.WeekID, e.Contributor, e.Amount.String(), e.ExpiresAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// --- House ledger and rebates ---

func (s *PostgresStore) GetHouseLedger(ctx context.Context) (*model.HouseLedger, error) {
	var debtS, paidS, retainedS string
	err := s.pool.QueryRow(ctx,
		`SELECT virtual_debt::TEXT, debt_paid_off::TEXT, retained::TEXT
		 FROM house_ledger WHERE id = 1`).Scan(&debtS, &paidS, &retainedS)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.HouseLedger{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get house ledger: %w", err)
	}

	var l model.HouseLedger
	l.VirtualDebt, _ = decimal.NewFromString(debtS)
	l.DebtPaidOff, _ = decimal.NewFromString(paidS)
	l.Retained, _ = decimal.NewFromString(retainedS)
	return &l, nil
}

const entitlementColumns = `id, week_id, contributor, amount::TEXT, expires_at, claimed, expired`

func (s *PostgresStore) GetEntitlements(ctx context.Context, weekID int64) ([]model.RebateEntitlement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entitlementColumns+`
		 FROM entitlements WHERE week_id = $1 ORDER BY contributor`, weekID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntitlements(rows)
}

func (s *PostgresStore) GetClaimableEntitlements(ctx context.Context, contributor string) ([]model.RebateEntitlement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entitlementColumns+`
		 FROM entitlements
		 WHERE contributor = $1 AND NOT claimed AND NOT expired
		 ORDER BY week_id`, contributor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntitlements(rows)
}

func scanEntitlements(rows pgx.Rows) ([]model.RebateEntitlement, error) {
	var out []model.RebateEntitlement
	for rows.Next() {
		var e model.RebateEntitlement
		var amountS string
		if err := rows.Scan(&e.ID, &e.WeekID, &e.Contributor, &amountS,
			&e.ExpiresAt, &e.Claimed, &e.Expired); err != nil {
			return nil, err
		}
		e.Amount, _ = decimal.NewFromString(amountS)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ClaimEntitlement(ctx context.Context, entitlementID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var contributor, amountS string
	var claimed, expired bool
	err = tx.QueryRow(ctx,
		`SELECT contributor, amount::TEXT, claimed, expired
		 FROM entitlements WHERE id = $1 FOR UPDATE`, entitlementID).
		Scan(&contributor, &amountS, &claimed, &expired)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: entitlement %s", ErrNotFound, entitlementID)
	}
	if err != nil {
		return err
	}
	if claimed || expired {
		return ErrEntitlementSettled
	}

	if _, err := tx.Exec(ctx,
		`UPDATE entitlements SET claimed = TRUE WHERE id = $1`, entitlementID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO accounts (player, balance) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (player) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance`,
		contributor, amountS,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ExpireEntitlement(ctx context.Context, entitlementID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var amountS string
	var claimed, expired bool
	err = tx.QueryRow(ctx,
		`SELECT amount::TEXT, claimed, expired
		 FROM entitlements WHERE id = $1 FOR UPDATE`, entitlementID).
		Scan(&amountS, &claimed, &expired)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: entitlement %s", ErrNotFound, entitlementID)
	}
	if err != nil {
		return err
	}
	if claimed || expired {
		return ErrEntitlementSettled
	}

	if _, err := tx.Exec(ctx,
		`UPDATE entitlements SET expired = TRUE WHERE id = $1`, entitlementID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE house_ledger SET retained = retained + $1::NUMERIC WHERE id = 1`, amountS); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scanSeries(row pgx.Row) (*model.Series, error) {
	var sr model.Series
	var endedAt *time.Time
	if err := row.Scan(&sr.ID, &sr.Seq, &sr.Phase, &sr.Point,
		&sr.PendingRequestID, &sr.StartedAt, &endedAt); err != nil {
		return nil, err
	}
	if endedAt != nil {
		sr.EndedAt = *endedAt
	}
	return &sr, nil
}
