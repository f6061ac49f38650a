package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/threadline/storefront/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, percent_off, description, valid_from, valid_until, active
		FROM coupons WHERE UPPER(code) = UPPER($1)`

	upsertCouponSQL = `INSERT INTO coupons (code, percent_off, description, valid_from, valid_until, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE SET
			percent_off = EXCLUDED.percent_off,
			description = EXCLUDED.description,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			active = EXCLUDED.active`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive).
// Returns coupon.ErrInvalidCoupon when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &rule, nil
}

// Upsert inserts or replaces a coupon rule. Used by the seed and ingest
// commands.
func (r *CouponRepository) Upsert(ctx context.Context, rule *coupon.Rule) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		rule.Code, rule.PercentOff, rule.Description,
		rule.ValidFrom, rule.ValidUntil, rule.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", rule.Code, err)
	}
	return nil
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule       coupon.Rule
		percentOff decimal.Decimal
		validFrom  *time.Time
		validUntil *time.Time
	)
	err := row.Scan(&rule.Code, &percentOff, &rule.Description, &validFrom, &validUntil, &rule.Active)
	rule.PercentOff = percentOff
	rule.ValidFrom = validFrom
	rule.ValidUntil = validUntil
	return rule, err
}
