// Package reconcile merges extracted candidates into the persisted catalog.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rabatt-cli/internal/lock"
	"github.com/sells-group/rabatt-cli/internal/model"
	"github.com/sells-group/rabatt-cli/internal/store"
)

const (
	// MinProbability is the quality floor for accepting a candidate.
	MinProbability = model.MediumTrustThreshold
	// ChangeThreshold is the probability delta an existing code needs
	// before it is rewritten.
	ChangeThreshold = 10
)

// Reconciler inserts new codes and refreshes known ones.
type Reconciler struct {
	store  store.Store
	locker  lock.Locker
	now     func() time.Time
	newSalt func() string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLocker serializes reconciliation per store.
func WithLocker(l lock.Locker) Option {
	return func(r *Reconciler) { r.locker = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates a Reconciler over st.
func New(st store.Store, opts ...Option) *Reconciler {
	r := &Reconciler{store: st, now: time.Now, newSalt: shortSalt}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Reconcile applies candidates for one store and returns the number of new
// codes inserted. Individual failures are logged and skipped.
func (r *Reconciler) Reconcile(ctx context.Context, storeID, storeName string, candidates []model.Candidate) int {
	log := zap.L().With(zap.String("store", storeID))

	if r.locker != nil {
		lease, err := r.locker.Acquire(ctx, storeID)
		if err != nil {
			log.Warn("reconcile: lock unavailable, skipping store", zap.Error(err))
			return 0
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("reconcile: release lock", zap.Error(err))
			}
		}()
	}

	added, updated := 0, 0
	for _, c := range candidates {
		if c.Probability < MinProbability {
			continue
		}

		outcome, err := r.apply(ctx, storeID, c)
		if err != nil {
			log.Warn("reconcile: candidate failed",
				zap.String("code", c.Code),
				zap.Error(err),
			)
			continue
		}
		switch outcome {
		case outcomeInserted:
			added++
			log.Info("reconcile: added code", zap.String("code", c.Code), zap.Int("probability", c.Probability))
		case outcomeUpdated:
			updated++
		}
	}

	if added+updated > 0 {
		if err := r.store.TouchStore(ctx, storeID, r.now().UTC()); err != nil {
			log.Warn("reconcile: touch store", zap.Error(err))
		}
	}

	log.Info("reconcile: store done",
		zap.String("name", storeName),
		zap.Int("candidates", len(candidates)),
		zap.Int("added", added),
		zap.Int("updated", updated),
	)
	return added
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeInserted
	outcomeUpdated
)

func (r *Reconciler) apply(ctx context.Context, storeID string, c model.Candidate) (outcome, error) {
	existing, err := r.store.FindCode(ctx, storeID, c.Code)
	switch {
	case err == nil:
		return r.refresh(ctx, existing, c)
	case !errors.Is(err, store.ErrNotFound):
		return outcomeUnchanged, eris.Wrap(err, "reconcile: find code")
	}

	now := r.now().UTC()
	code := model.DiscountCode{
		ID:           CodeID(storeID, c.Code, now),
		StoreID:      storeID,
		Code:         c.Code,
		Description:  c.Description,
		Savings:      c.Savings,
		Context:      c.Context,
		LastVerified: now,
		IsActive:     true,
	}
	code.SetProbability(c.Probability)

	for attempt := 1; ; attempt++ {
		err = r.store.InsertCode(ctx, code)
		if err == nil {
			return outcomeInserted, nil
		}
		if !errors.Is(err, store.ErrCodeExists) {
			return outcomeUnchanged, eris.Wrap(err, "reconcile: insert code")
		}

		// Lost an insert race; the winner's row takes the update path.
		existing, err = r.store.FindCode(ctx, storeID, c.Code)
		if err == nil {
			return r.refresh(ctx, existing, c)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return outcomeUnchanged, eris.Wrap(err, "reconcile: re-read code")
		}

		// No row holds this exact code, so the conflict was on the id: a
		// different spelling normalized to the same id in the same millisecond.
		if attempt >= maxIDAttempts {
			return outcomeUnchanged, eris.Errorf("reconcile: id collision for %s after %d attempts", code.ID, attempt)
		}
		code.ID = saltedID(storeID, c.Code, now, r.newSalt())
		zap.L().Debug("reconcile: id collision, retrying with salt",
			zap.String("store_id", storeID),
			zap.String("id", code.ID),
		)
	}
}

// maxIDAttempts bounds inserts of one candidate when its id keeps colliding.
const maxIDAttempts = 3

func (r *Reconciler) refresh(ctx context.Context, existing *model.DiscountCode, c model.Candidate) (outcome, error) {
	if abs(existing.Probability-c.Probability) <= ChangeThreshold {
		return outcomeUnchanged, nil
	}

	p := model.ClampProbability(c.Probability)
	err := r.store.RefreshCode(ctx, existing.ID, store.CodeRefresh{
		Description:  c.Description,
		Savings:      c.Savings,
		Context:      c.Context,
		Probability:  p,
		TrustLevel:   model.TrustLevelFor(p),
		LastVerified: r.now().UTC(),
	})
	if err != nil {
		return outcomeUnchanged, eris.Wrapf(err, "reconcile: refresh code %s", existing.ID)
	}
	return outcomeUpdated, nil
}

// CodeID builds the identifier for a newly discovered code.
func CodeID(storeID, code string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%d", storeID, Normalize(code), at.UnixMilli())
}

func saltedID(storeID, code string, at time.Time, salt string) string {
	return CodeID(storeID, code, at) + "_" + salt
}

func shortSalt() string {
	return uuid.NewString()[:8]
}

// Normalize lowercases code and drops everything outside [a-z0-9].
func Normalize(code string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(code) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
