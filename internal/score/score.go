// Package score recomputes code probabilities from recent user reports.
package score

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rabatt-cli/internal/model"
	"github.com/sells-group/rabatt-cli/internal/store"
)

const (
	// MinReports is the sample size below which a code is left alone.
	MinReports = 3
	// RetireBelow deactivates a code whose blended probability drops under it.
	RetireBelow = 30
	// DefaultWindowDays is the report look-back used by the daily cycle.
	DefaultWindowDays = 7
)

// Blend mixes the stored probability (weight 0.7) with the observed success
// rate (weight 0.3) and returns the clamped result. Halves round up. The
// arithmetic is done on integers so results are exact.
func Blend(existing, worked, failed int) int {
	total := worked + failed
	p := model.ClampProbability(existing)
	if total <= 0 {
		return p
	}
	num := 7*p*total + 300*worked
	den := 10 * total
	return model.ClampProbability((2*num + den) / (2 * den))
}

// Aggregator applies report-driven probability updates.
type Aggregator struct {
	store store.Store
	now   func() time.Time
}

// New creates an Aggregator over st.
func New(st store.Store) *Aggregator {
	return &Aggregator{store: st, now: time.Now}
}

// Recompute reads reports from the last windowDays days and rescores every
// active code with at least MinReports of them. It returns the updates
// applied and the number of reports read. Only a report read failure is
// returned as an error.
func (a *Aggregator) Recompute(ctx context.Context, windowDays int) ([]model.CodeUpdate, int, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	now := a.now().UTC()
	since := now.AddDate(0, 0, -windowDays)

	reports, err := a.store.ReportsSince(ctx, since)
	if err != nil {
		return nil, 0, eris.Wrap(err, "score: read reports")
	}

	tally := model.TallyReports(reports)
	ids := make([]string, 0, len(tally))
	for id, t := range tally {
		if t.Total() >= MinReports {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var updates []model.CodeUpdate
	for _, id := range ids {
		t := tally[id]
		log := zap.L().With(zap.String("code_id", id))

		code, err := a.store.GetCode(ctx, id)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				log.Warn("score: load code", zap.Error(err))
			}
			continue
		}
		if !code.IsActive {
			continue
		}

		p := Blend(code.Probability, t.Worked, t.Failed)
		u := model.CodeUpdate{
			CodeID:         id,
			OldProbability: code.Probability,
			NewProbability: p,
			TrustLevel:     model.TrustLevelFor(p),
			Worked:         t.Worked,
			Failed:         t.Failed,
			Deactivated:    p < RetireBelow,
			VerifiedAt:     now,
		}
		if err := a.store.ApplyScore(ctx, u); err != nil {
			log.Warn("score: apply update", zap.Error(err))
			continue
		}
		if u.Deactivated {
			log.Info("score: code retired", zap.Int("probability", p))
		}
		updates = append(updates, u)
	}

	zap.L().Info("score: recompute complete",
		zap.Int("reports", len(reports)),
		zap.Int("updated", len(updates)),
	)
	return updates, len(reports), nil
}

// Deactivated counts updates that retired their code.
func Deactivated(updates []model.CodeUpdate) int {
	n := 0
	for _, u := range updates {
		if u.Deactivated {
			n++
		}
	}
	return n
}
