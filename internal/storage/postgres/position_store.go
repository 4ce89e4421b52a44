package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/storage"
)

const positionColumns = `
	id, name, version, capital, initial_capital, division_count, per_trade_amount,
	target_profit_pct, compounding_rate, quantity, average_price, profit, cash_balance,
	phase, phase_start_index, settled, settled_at, split_ratio, splits, created_at, updated_at`

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// GetAll returns every position ordered by creation time.
func (s *PositionStore) GetAll(ctx context.Context) ([]*domain.Position, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+positionColumns+` FROM positions ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query positions")
	}
	defer rows.Close()

	var out []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "iterate positions")
}

// GetByID returns ErrNotFound if the position does not exist.
func (s *PositionStore) GetByID(ctx context.Context, id string) (*domain.Position, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if err != nil {
		if isNotFoundError(errors.Cause(err)) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// Create inserts p. Returns ErrDuplicateKey if the id exists.
func (s *PositionStore) Create(ctx context.Context, p *domain.Position) (string, error) {
	if p == nil {
		return "", storage.ErrInvalidInput
	}
	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}

	splits, err := marshalSplits(p.Splits)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err = s.pool.Exec(ctx, query,
		id,
		p.Name,
		string(p.Version),
		p.Capital,
		p.InitialCapital,
		p.DivisionCount,
		p.PerTradeAmount,
		p.TargetProfitPct,
		p.CompoundingRate,
		p.Quantity,
		p.AveragePrice,
		p.Profit,
		p.CashBalance,
		p.Phase.String(),
		p.PhaseStartIndex,
		p.Settled,
		p.SettledAt,
		p.SplitRatio,
		splits,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return "", storage.ErrDuplicateKey
		}
		return "", errors.Wrap(err, "insert position")
	}
	return id, nil
}

// Update writes the non-nil fields of patch.
func (s *PositionStore) Update(ctx context.Context, id string, patch domain.PositionPatch) error {
	sets, args, err := patchAssignments(patch)
	if err != nil {
		return err
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE positions SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "update position")
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes the position; transactions and ledger rows cascade.
func (s *PositionStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete position")
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func patchAssignments(p domain.PositionPatch) ([]string, []interface{}, error) {
	var (
		sets []string
		args []interface{}
	)
	add := func(column string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Capital != nil {
		add("capital", *p.Capital)
	}
	if p.PerTradeAmount != nil {
		add("per_trade_amount", *p.PerTradeAmount)
	}
	if p.Quantity != nil {
		add("quantity", *p.Quantity)
	}
	if p.AveragePrice != nil {
		add("average_price", *p.AveragePrice)
	}
	if p.Profit != nil {
		add("profit", *p.Profit)
	}
	if p.CashBalance != nil {
		add("cash_balance", *p.CashBalance)
	}
	if p.Phase != nil {
		add("phase", p.Phase.String())
	}
	if p.PhaseStartIndex != nil {
		add("phase_start_index", *p.PhaseStartIndex)
	}
	if p.Settled != nil {
		add("settled", *p.Settled)
	}
	if p.SettledAt != nil {
		add("settled_at", *p.SettledAt)
	}
	if p.SplitRatio != nil {
		add("split_ratio", *p.SplitRatio)
	}
	if p.Splits != nil {
		splits, err := marshalSplits(p.Splits)
		if err != nil {
			return nil, nil, err
		}
		add("splits", splits)
	}
	add("updated_at", time.Now().UTC())

	return sets, args, nil
}

func marshalSplits(splits []domain.StockSplit) ([]byte, error) {
	if splits == nil {
		splits = []domain.StockSplit{}
	}
	b, err := json.Marshal(splits)
	return b, errors.Wrap(err, "marshal splits")
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var (
		p       domain.Position
		version string
		phase   string
		splits  []byte
	)
	err := row.Scan(
		&p.ID,
		&p.Name,
		&version,
		&p.Capital,
		&p.InitialCapital,
		&p.DivisionCount,
		&p.PerTradeAmount,
		&p.TargetProfitPct,
		&p.CompoundingRate,
		&p.Quantity,
		&p.AveragePrice,
		&p.Profit,
		&p.CashBalance,
		&phase,
		&p.PhaseStartIndex,
		&p.Settled,
		&p.SettledAt,
		&p.SplitRatio,
		&splits,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "scan position")
	}

	p.Version = domain.StrategyVersion(version)
	if p.Phase, err = domain.ParsePhase(phase); err != nil {
		return nil, err
	}
	if len(splits) > 0 {
		if err := json.Unmarshal(splits, &p.Splits); err != nil {
			return nil, errors.Wrap(err, "unmarshal splits")
		}
	}
	if len(p.Splits) == 0 {
		p.Splits = nil
	}
	return &p, nil
}
