package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pos-pricing/internal/domain/tax"
)

const (
	activeTaxesSQL = `SELECT code, name, rate, scope, active, categories
		FROM tax_definitions WHERE active ORDER BY sort_order, code`

	upsertTaxSQL = `INSERT INTO tax_definitions (code, name, rate, scope, active, categories, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			rate = EXCLUDED.rate,
			scope = EXCLUDED.scope,
			active = EXCLUDED.active,
			categories = EXCLUDED.categories,
			sort_order = EXCLUDED.sort_order`
)

var _ tax.Source = (*TaxRepository)(nil)

// TaxRepository implements tax.Source backed by PostgreSQL.
type TaxRepository struct {
	pool *pgxpool.Pool
}

// NewTaxRepository returns a TaxRepository that uses the given pool.
func NewTaxRepository(pool *pgxpool.Pool) *TaxRepository {
	return &TaxRepository{pool: pool}
}

// ActiveTaxes returns the active tax definitions in application order.
func (r *TaxRepository) ActiveTaxes(ctx context.Context) ([]tax.Definition, error) {
	rows, err := r.pool.Query(ctx, activeTaxesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "query active taxes")
	}
	defs, err := pgx.CollectRows(rows, scanTax)
	if err != nil {
		return nil, errors.Wrap(err, "scan taxes")
	}
	return defs, nil
}

// Upsert stores def at position order.
func (r *TaxRepository) Upsert(ctx context.Context, def tax.Definition, order int) error {
	_, err := r.pool.Exec(ctx, upsertTaxSQL,
		def.Code, def.Name, def.Rate, string(def.Scope), def.Active, nonNil(def.Categories), order,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert tax %q", def.Code)
	}
	return nil
}

func scanTax(row pgx.CollectableRow) (tax.Definition, error) {
	var (
		def   tax.Definition
		scope string
	)
	err := row.Scan(&def.Code, &def.Name, &def.Rate, &scope, &def.Active, &def.Categories)
	def.Scope = tax.Scope(scope)
	return def, err
}
