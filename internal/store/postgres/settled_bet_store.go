package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

// SettledBetStore implements domain.SettledBetStore. Decimal columns travel as
// text so no numeric codec is needed on either side.
type SettledBetStore struct {
	pool *pgxpool.Pool
}

// NewSettledBetStore creates a SettledBetStore backed by the given pool.
func NewSettledBetStore(pool *pgxpool.Pool) *SettledBetStore {
	return &SettledBetStore{pool: pool}
}

const settledBetSelectCols = `id, user_id, match_id, market_id, kind, selection,
	stake::text, odds::text, COALESCE(line::text, ''), score_at_placement,
	cards_at_placement, window_end, period, status, payout::text, placed_at, settled_at`

// Insert records a settlement. Re-inserting the same bet id is a no-op so a
// retried publish cannot double-count.
func (s *SettledBetStore) Insert(ctx context.Context, ev domain.BetSettled) error {
	b := ev.Bet
	settledAt := time.Now().UTC()
	if b.SettledAt != nil {
		settledAt = *b.SettledAt
	}
	var line any
	if !b.Line.IsZero() {
		line = b.Line.String()
	}

	const query = `
		INSERT INTO settled_bets (
			id, user_id, match_id, market_id, kind, selection,
			stake, odds, line, score_at_placement, cards_at_placement,
			window_end, period, status, payout, final_score, placed_at, settled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::text::numeric, $8::text::numeric, $9::text::numeric, $10, $11,
			$12, $13, $14, $15::text::numeric, $16, $17, $18
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.UserID, b.MatchID, b.MarketID, string(b.Kind), string(b.Selection),
		b.Stake.String(), b.Odds.String(), line, b.ScoreAtPlacement, b.CardsAtPlacement,
		b.WindowEnd, string(b.Period), string(b.Status), ev.Payout.String(), ev.FinalScore,
		b.PlacedAt, settledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert settled bet %s: %w", b.ID, err)
	}
	return nil
}

// ListByUser returns a user's settled bets, most recently settled first.
func (s *SettledBetStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + settledBetSelectCols + ` FROM settled_bets WHERE user_id = $1`
	args := []any{userID}
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND settled_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND settled_at <= $%d", len(args))
	}
	query += " ORDER BY settled_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled bets for %s: %w", userID, err)
	}
	return scanBets(rows)
}

// ListBefore returns up to limit bets settled before the cutoff, oldest first.
func (s *SettledBetStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Bet, error) {
	query := `SELECT ` + settledBetSelectCols + ` FROM settled_bets
		WHERE settled_at < $1 ORDER BY settled_at ASC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled bets before %s: %w", before.Format(time.RFC3339), err)
	}
	return scanBets(rows)
}

// DeleteBefore removes bets settled before the cutoff and returns the count.
func (s *SettledBetStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM settled_bets WHERE settled_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete settled bets before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanBets(rows pgx.Rows) ([]domain.Bet, error) {
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		var (
			b                         domain.Bet
			kind, sel, period, status string
			stake, odds, line, payout string
			settledAt                 time.Time
		)
		if err := rows.Scan(
			&b.ID, &b.UserID, &b.MatchID, &b.MarketID, &kind, &sel,
			&stake, &odds, &line, &b.ScoreAtPlacement,
			&b.CardsAtPlacement, &b.WindowEnd, &period, &status, &payout, &b.PlacedAt, &settledAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan settled bet: %w", err)
		}
		b.Kind = domain.MarketKind(kind)
		b.Selection = domain.Selection(sel)
		b.Period = domain.Period(period)
		b.Status = domain.BetStatus(status)
		b.SettledAt = &settledAt

		var err error
		if b.Stake, err = decimal.NewFromString(stake); err != nil {
			return nil, fmt.Errorf("postgres: parse stake of %s: %w", b.ID, err)
		}
		if b.Odds, err = decimal.NewFromString(odds); err != nil {
			return nil, fmt.Errorf("postgres: parse odds of %s: %w", b.ID, err)
		}
		if b.Payout, err = decimal.NewFromString(payout); err != nil {
			return nil, fmt.Errorf("postgres: parse payout of %s: %w", b.ID, err)
		}
		if line != "" {
			if b.Line, err = decimal.NewFromString(line); err != nil {
				return nil, fmt.Errorf("postgres: parse line of %s: %w", b.ID, err)
			}
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: settled bets rows: %w", err)
	}
	return bets, nil
}

var _ domain.SettledBetStore = (*SettledBetStore)(nil)
