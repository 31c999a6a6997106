package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	applog "github.com/janisto/waitlist/internal/platform/logging"
	"github.com/janisto/waitlist/internal/platform/metrics"
	"github.com/janisto/waitlist/internal/platform/timeutil"
)

// Service registers validated submissions.
type Service interface {
	Register(ctx context.Context, draft Draft) (*Result, error)
}

// Defaults for Options.
const (
	DefaultMaxAttempts = 3
	DefaultTimeout     = 3 * time.Second
	DefaultBackoff     = 50 * time.Millisecond
)

// Options tunes a Registrar. Zero values select the defaults.
type Options struct {
	MaxAttempts int
	// Timeout bounds each store attempt.
	Timeout time.Duration
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
	Metrics *metrics.Metrics
	Clock   func() time.Time
	NewID   func() string
}

// Registrar implements Service on top of a Store with bounded retries.
type Registrar struct {
	store Store
	opts  Options
}

var _ Service = (*Registrar)(nil)

// NewRegistrar creates a Registrar backed by store.
func NewRegistrar(store Store, opts Options) *Registrar {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	} else if opts.Backoff == 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Registrar{store: store, opts: opts}
}

// Register stores the draft or reconciles it with an existing signup.
//
// Store calls run detached from ctx cancellation so a client disconnect does
// not abort a write in flight. No further attempt starts once ctx is done.
func (r *Registrar) Register(ctx context.Context, draft Draft) (*Result, error) {
	detached := context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			r.opts.Metrics.Retry()
			if err := r.wait(ctx, attempt-1); err != nil {
				lastErr = err
				break
			}
		}

		attemptCtx, cancel := context.WithTimeout(detached, r.opts.Timeout)
		start := time.Now()
		res, err := r.registerOnce(attemptCtx, draft)
		cancel()
		r.opts.Metrics.Attempt(time.Since(start), err)

		if err == nil {
			r.audit(ctx, res)
			return res, nil
		}
		lastErr = err
		applog.LogWarn(ctx, "store attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.opts.MaxAttempts),
			zap.Error(err),
		)
	}

	applog.LogError(ctx, "signup could not be stored", lastErr, zap.Int("max_attempts", r.opts.MaxAttempts))
	return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, lastErr)
}

func (r *Registrar) wait(ctx context.Context, n int) error {
	timer := time.NewTimer(r.opts.Backoff * time.Duration(n))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Registrar) registerOnce(ctx context.Context, draft Draft) (*Result, error) {
	existing, err := r.store.Get(ctx, draft.Email)
	switch {
	case errors.Is(err, ErrNotFound):
		now := r.opts.Clock()
		signup := Signup{
			ID:          r.opts.NewID(),
			Email:       draft.Email,
			Consent:     true,
			Name:        draft.Name,
			UseCase:     draft.UseCase,
			SubmittedAt: now,
			UpdatedAt:   now,
		}
		err = r.store.Insert(ctx, &signup)
		if err == nil {
			return &Result{Outcome: Created, Signup: signup}, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return nil, err
		}
		// Lost the insert race; reconcile with the winner.
		existing, err = r.store.Get(ctx, draft.Email)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	params, fields := changes(existing, draft)
	if params.Empty() {
		return &Result{Outcome: AlreadyRegistered, Signup: *existing}, nil
	}
	params.UpdatedAt = r.opts.Clock()
	updated, err := r.store.Update(ctx, draft.Email, params)
	if err != nil {
		return nil, err
	}
	return &Result{Outcome: AlreadyRegistered, Signup: *updated, Updated: fields}, nil
}

// changes returns the supplied fields that differ from the stored signup.
func changes(existing *Signup, draft Draft) (UpdateParams, []string) {
	var (
		params UpdateParams
		fields []string
	)
	if draft.Name != "" && draft.Name != existing.Name {
		name := draft.Name
		params.Name = &name
		fields = append(fields, "name")
	}
	if draft.UseCase != "" && draft.UseCase != existing.UseCase {
		useCase := draft.UseCase
		params.UseCase = &useCase
		fields = append(fields, "useCase")
	}
	return params, fields
}

func (r *Registrar) audit(ctx context.Context, res *Result) {
	switch {
	case res.Outcome == Created:
		applog.LogAuditEvent(ctx, "create", "signup", res.Signup.ID, applog.AuditSuccess, nil)
	case len(res.Updated) > 0:
		applog.LogAuditEvent(ctx, "update", "signup", res.Signup.ID, applog.AuditSuccess, map[string]any{
			"fields": res.Updated,
		})
	default:
		applog.LogInfo(ctx, "signup already registered", zap.String("signup_id", res.Signup.ID))
	}
}
