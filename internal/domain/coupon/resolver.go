package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Repository provides lookup of coupon rules by code.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
}

// RepoResolver implements Resolver by looking up rules from a Repository
// and checking their validity window.
type RepoResolver struct {
	repo Repository
	now  func() time.Time
}

// NewRepoResolver creates a RepoResolver backed by the given Repository.
func NewRepoResolver(repo Repository) *RepoResolver {
	return &RepoResolver{repo: repo, now: time.Now}
}

// Resolve looks up the rule for the given code and checks that it is active
// and inside its validity window.
func (r *RepoResolver) Resolve(ctx context.Context, code string) (*Rule, error) {
	rule, err := r.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !rule.Active {
		return nil, ErrInvalidCoupon
	}

	now := r.now()
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, ErrCouponExpired
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return nil, ErrCouponExpired
	}

	return rule, nil
}
