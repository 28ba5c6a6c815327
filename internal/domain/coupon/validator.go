package coupon

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

// Validator validates a coupon code against a set of cart items and returns
// the computed discount. Validate has no side effects; Redeem records one
// use and is called once the order using the coupon has been stored.
type Validator interface {
	Validate(ctx context.Context, code string, items []Item) (*Discount, error)
	Redeem(ctx context.Context, code string) error
}

// RepoValidator implements Validator by looking up rules in a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the rule for code, checks its validity window and usage
// limit, and applies it to items.
func (v *RepoValidator) Validate(ctx context.Context, code string, items []Item) (*Discount, error) {
	rule, err := v.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := v.now()
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, ErrCouponExpired
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return nil, ErrCouponExpired
	}
	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return nil, ErrCouponUsageLimitReached
	}

	d, err := Apply(rule, items)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Redeem records one use of code.
func (v *RepoValidator) Redeem(ctx context.Context, code string) error {
	if err := v.repo.IncrementUses(ctx, NormalizeCode(code)); err != nil {
		return errors.Wrap(err, "increment coupon uses")
	}
	return nil
}

// FilteredValidator rejects codes that are certainly unknown before asking
// the next validator. False positives fall through to next.
type FilteredValidator struct {
	fpRate float64
	filter atomic.Pointer[bloom.BloomFilter]
	next   Validator
}

// NewFilteredValidator builds a bloom filter over codes sized for the given
// false positive rate.
func NewFilteredValidator(codes []string, fpRate float64, next Validator) *FilteredValidator {
	v := &FilteredValidator{fpRate: fpRate, next: next}
	v.Reload(codes)
	return v
}

// Reload replaces the filter with one built over codes. Validations running
// concurrently see either the old or the new filter.
func (v *FilteredValidator) Reload(codes []string) {
	n := uint(len(codes))
	if n == 0 {
		n = 1
	}
	filter := bloom.NewWithEstimates(n, v.fpRate)
	for _, code := range codes {
		filter.AddString(NormalizeCode(code))
	}
	v.filter.Store(filter)
}

// Validate implements Validator.
func (v *FilteredValidator) Validate(ctx context.Context, code string, items []Item) (*Discount, error) {
	if !v.filter.Load().TestString(NormalizeCode(code)) {
		return nil, ErrInvalidCoupon
	}
	return v.next.Validate(ctx, code, items)
}

// Redeem implements Validator.
func (v *FilteredValidator) Redeem(ctx context.Context, code string) error {
	return v.next.Redeem(ctx, code)
}

// NormalizeCode upper-cases and trims a code; codes are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
