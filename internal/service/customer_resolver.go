package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-gateway/internal/models"
	"payment-gateway/internal/processor"
	"payment-gateway/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var identityNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:payment-gateway:customer-identity"))

// IdentityLocker serializes work per key across service instances.
type IdentityLocker interface {
	AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
	ExtendLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error)
}

// CustomerIdentity is the deduplication key. Comparison is exact and case
// sensitive on all three fields. Email is required since it filters the scan.
type CustomerIdentity struct {
	Name    string `json:"name"`
	Email   string `json:"email" binding:"required"`
	Contact string `json:"contact"`
}

func (id CustomerIdentity) matches(c models.Customer) bool {
	return c.Name == id.Name && c.Email == id.Email && c.Contact == id.Contact
}

// ResolveResult is the customer found or created for an identity
type ResolveResult struct {
	Customer *models.Customer
	Created  bool
}

// ResolverOptions tunes paging and locking. Zero values fall back to defaults.
type ResolverOptions struct {
	PageSize     int
	MaxPages     int
	LockTTL      time.Duration
	LockWait     time.Duration
	PollInterval time.Duration
}

func (o ResolverOptions) withDefaults() ResolverOptions {
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 50
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 10 * time.Second
	}
	if o.LockWait <= 0 {
		o.LockWait = 3 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 50 * time.Millisecond
	}
	return o
}

// CustomerResolver finds or creates the processor customer for an identity
type CustomerResolver struct {
	processor processor.Client
	locker    IdentityLocker
	opts      ResolverOptions
	logger    *zap.Logger
}

// NewCustomerResolver creates a resolver. locker may be nil, in which case
// concurrent resolutions of a new identity can each create a customer.
func NewCustomerResolver(p processor.Client, locker IdentityLocker, opts ResolverOptions) *CustomerResolver {
	return &CustomerResolver{
		processor: p,
		locker:    locker,
		opts:      opts.withDefaults(),
		logger:    util.GetLogger(),
	}
}

// IdentityKey derives a stable key from the identity tuple. It names the
// resolution lock and is recorded on created customers.
func IdentityKey(id CustomerIdentity) string {
	return uuid.NewSHA1(identityNamespace, []byte(id.Name+"\x00"+id.Email+"\x00"+id.Contact)).String()
}

// Resolve returns the existing customer matching id exactly, or creates one.
func (r *CustomerResolver) Resolve(ctx context.Context, id CustomerIdentity) (*ResolveResult, error) {
	ctx, span := util.StartSpan(ctx, "CustomerResolver.Resolve")
	defer span.End()

	if err := requireFields([][2]string{{"email", id.Email}}); err != nil {
		util.FailSpan(span, err)
		return nil, err
	}

	key := IdentityKey(id)

	var held *heldLock
	if r.locker != nil {
		var err error
		held, err = r.lock(ctx, key)
		if err != nil {
			util.CustomerResolutionsTotal.WithLabelValues("busy").Inc()
			util.FailSpan(span, err)
			return nil, err
		}
		defer held.release()
	}

	existing, pages, err := r.findExact(ctx, id, held)
	util.CustomerPagesScanned.Observe(float64(pages))
	if err == nil && existing == nil {
		err = held.refresh(ctx)
	}
	if err != nil {
		if errors.Is(err, ErrResolutionInProgress) {
			util.CustomerResolutionsTotal.WithLabelValues("busy").Inc()
		} else {
			util.CustomerResolutionsTotal.WithLabelValues("error").Inc()
		}
		util.FailSpan(span, err)
		return nil, err
	}

	if existing != nil {
		util.CustomerResolutionsTotal.WithLabelValues("existing").Inc()
		r.logger.Info("Existing customer matched",
			zap.String("customer_id", existing.ID),
			zap.Int("pages", pages))
		return &ResolveResult{Customer: existing, Created: false}, nil
	}

	created, err := r.processor.CreateCustomer(ctx, processor.CustomerRequest{
		Name:           id.Name,
		Email:          id.Email,
		Contact:        id.Contact,
		IdempotencyKey: key,
	})
	if err != nil {
		util.CustomerResolutionsTotal.WithLabelValues("error").Inc()
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	util.CustomerResolutionsTotal.WithLabelValues("created").Inc()
	r.logger.Info("Customer created",
		zap.String("customer_id", created.ID),
		zap.Int("pages", pages))
	return &ResolveResult{Customer: created, Created: true}, nil
}

// findExact pages through customers filtered by email until a match turns up,
// a short page signals the end, or MaxPages is reached. The held lock is
// renewed before every page after the first.
func (r *CustomerResolver) findExact(ctx context.Context, id CustomerIdentity, held *heldLock) (*models.Customer, int, error) {
	for page := 0; page < r.opts.MaxPages; page++ {
		if page > 0 {
			if err := held.refresh(ctx); err != nil {
				return nil, page, err
			}
		}

		items, err := r.processor.ListCustomers(ctx, processor.CustomerQuery{
			Email: id.Email,
			Count: r.opts.PageSize,
			Skip:  page * r.opts.PageSize,
		})
		if err != nil {
			return nil, page + 1, fmt.Errorf("failed to list customers: %w", err)
		}

		for i := range items {
			if id.matches(items[i]) {
				c := items[i]
				return &c, page + 1, nil
			}
		}

		if len(items) < r.opts.PageSize {
			return nil, page + 1, nil
		}
	}

	r.logger.Warn("Customer scan stopped at page limit; a match beyond it would be duplicated",
		zap.Int("max_pages", r.opts.MaxPages),
		zap.Int("page_size", r.opts.PageSize))
	return nil, r.opts.MaxPages, nil
}

// heldLock is an acquired identity lock. A nil *heldLock stands for running
// unlocked and all its methods are no-ops.
type heldLock struct {
	r     *CustomerResolver
	key   string
	token string
}

// refresh pushes the lock expiry out by another LockTTL. It fails with
// ErrResolutionInProgress once the lock has expired and may belong to
// another resolver. Backend errors are logged and tolerated.
func (l *heldLock) refresh(ctx context.Context) error {
	if l == nil {
		return nil
	}
	ok, err := l.r.locker.ExtendLock(ctx, l.key, l.token, l.r.opts.LockTTL)
	if err != nil {
		l.r.logger.Warn("Failed to extend identity lock", zap.Error(err))
		return nil
	}
	if !ok {
		l.r.logger.Warn("Identity lock lost during customer scan", zap.String("lock", l.key))
		return ErrResolutionInProgress
	}
	return nil
}

func (l *heldLock) release() {
	if l == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.r.locker.ReleaseLock(ctx, l.key, l.token); err != nil {
		l.r.logger.Warn("Failed to release identity lock", zap.Error(err))
	}
}

// lock waits up to LockWait for the identity lock. If the lock backend itself
// fails, resolution proceeds unlocked rather than refusing service.
func (r *CustomerResolver) lock(ctx context.Context, key string) (*heldLock, error) {
	lockKey := "customer:" + key
	token := uuid.NewString()
	deadline := time.Now().Add(r.opts.LockWait)

	for {
		ok, err := r.locker.AcquireLock(ctx, lockKey, token, r.opts.LockTTL)
		if err != nil {
			r.logger.Warn("Identity lock unavailable, resolving without it", zap.Error(err))
			return nil, nil
		}
		if ok {
			return &heldLock{r: r, key: lockKey, token: token}, nil
		}

		if !time.Now().Before(deadline) {
			return nil, ErrResolutionInProgress
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.opts.PollInterval):
		}
	}
}
