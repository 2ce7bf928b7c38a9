// Package sweep retires codes whose validity date has passed.
package sweep

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rabatt-cli/internal/store"
)

// Sweeper deactivates expired codes.
type Sweeper struct {
	store store.Store
	now   func() time.Time
}

// New creates a Sweeper over st.
func New(st store.Store) *Sweeper {
	return &Sweeper{store: st, now: time.Now}
}

// Sweep marks every active code with valid_until before now inactive and
// returns how many rows changed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.DeactivateExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sweep: deactivate expired")
	}
	zap.L().Info("sweep: expired codes deactivated", zap.Int("count", n))
	return n, nil
}
