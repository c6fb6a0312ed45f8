package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/promotion"
)

const (
	promotionColumns = `id, name, description, priority, active, valid_from, valid_to,
		branch_ids, stackable, excludes, logic, effect`

	activePromotionsSQL = `SELECT ` + promotionColumns + `
		FROM promotions
		WHERE active
		  AND (valid_from IS NULL OR valid_from <= $2)
		  AND (valid_to IS NULL OR valid_to >= $2)
		  AND (cardinality(branch_ids) = 0 OR $1 = '' OR $1 = ANY(branch_ids))
		ORDER BY priority, created_at, id`

	listPromotionsSQL = `SELECT ` + promotionColumns + `
		FROM promotions ORDER BY priority, created_at, id`

	upsertPromotionSQL = `INSERT INTO promotions (` + promotionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			priority = EXCLUDED.priority,
			active = EXCLUDED.active,
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to,
			branch_ids = EXCLUDED.branch_ids,
			stackable = EXCLUDED.stackable,
			excludes = EXCLUDED.excludes,
			logic = EXCLUDED.logic,
			effect = EXCLUDED.effect,
			updated_at = NOW()`
)

var _ promotion.Source = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Source backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// ActivePromotions returns active promotions valid at now for branchID,
// ordered by priority. An empty branchID matches every promotion.
//
// Rows whose logic or effect cannot be decoded are logged and skipped.
// Effects with an unknown type are returned as is; the engine reports them.
func (r *PromotionRepository) ActivePromotions(ctx context.Context, branchID string, now time.Time) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, activePromotionsSQL, branchID, now)
	if err != nil {
		return nil, errors.Wrapf(err, "query active promotions for branch %q", branchID)
	}
	return collectPromotions(ctx, rows)
}

// List returns every stored promotion, active or not.
func (r *PromotionRepository) List(ctx context.Context) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, listPromotionsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "query promotions")
	}
	return collectPromotions(ctx, rows)
}

// Upsert inserts p or replaces the stored promotion with the same id.
func (r *PromotionRepository) Upsert(ctx context.Context, p promotion.Promotion) error {
	if p.Effect == nil {
		return errors.Errorf("promotion %q has no effect", p.ID)
	}
	var logic []byte
	if p.HasLogic() {
		logic = encode(p.EncodeLogic)
	}
	effect := encode(p.Effect.Encode)

	_, err := r.pool.Exec(ctx, upsertPromotionSQL,
		p.ID, p.Name, p.Description, p.Priority, p.Active, p.ValidFrom, p.ValidTo,
		nonNil(p.BranchIDs), p.Stackable, nonNil(p.Excludes), logic, effect,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert promotion %q", p.ID)
	}
	return nil
}

type promotionRow struct {
	promotion.Promotion
	logic  []byte
	effect []byte
}

func collectPromotions(ctx context.Context, rows pgx.Rows) ([]promotion.Promotion, error) {
	scanned, err := pgx.CollectRows(rows, scanPromotion)
	if err != nil {
		return nil, errors.Wrap(err, "scan promotions")
	}

	lg := zctx.From(ctx)
	out := make([]promotion.Promotion, 0, len(scanned))
	for _, row := range scanned {
		p, err := row.decode()
		if err != nil {
			lg.Warn("Skipping stored promotion",
				zap.String("promo_id", row.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func scanPromotion(row pgx.CollectableRow) (promotionRow, error) {
	var (
		p        promotionRow
		priority int32
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &priority, &p.Active, &p.ValidFrom, &p.ValidTo,
		&p.BranchIDs, &p.Stackable, &p.Excludes, &p.logic, &p.effect,
	)
	p.Priority = int(priority)
	return p, err
}

func (row promotionRow) decode() (promotion.Promotion, error) {
	p := row.Promotion
	if len(row.logic) > 0 {
		if err := p.DecodeLogic(jx.DecodeBytes(row.logic)); err != nil {
			return p, errors.Wrap(err, "decode logic")
		}
	}

	var ev discount.Event
	if err := ev.Decode(jx.DecodeBytes(row.effect)); err != nil {
		return p, errors.Wrap(err, "decode effect")
	}
	p.Effect = &ev
	return p, nil
}

func encode(fn func(*jx.Encoder)) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)
	return append([]byte(nil), e.Bytes()...)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
