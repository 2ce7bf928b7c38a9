package catalog

import (
	"context"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/rabatt-cli/internal/model"
	"github.com/sells-group/rabatt-cli/internal/reconcile"
	"github.com/sells-group/rabatt-cli/internal/store"
)

// SeedFile is the catalog.yaml layout.
type SeedFile struct {
	Stores []SeedStore `yaml:"stores"`
}

// SeedStore is one store entry with optional starting codes.
type SeedStore struct {
	model.Store  `yaml:",inline"`
	Codes        []model.Candidate   `yaml:"codes"`
	Alternatives []model.Alternative `yaml:"alternatives"`
}

// SeedResult counts what a seed run wrote.
type SeedResult struct {
	Stores       int `json:"stores"`
	Alternatives int `json:"alternatives"`
	Codes        int `json:"codes"`
}

// LoadSeed reads and validates a catalog seed file.
func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read seed %s", path)
	}
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "catalog: parse seed")
	}
	for _, st := range f.Stores {
		if st.ID == "" || st.Name == "" {
			return nil, eris.Errorf("catalog: seed store missing id or name: %+v", st.Store)
		}
		for _, a := range st.Alternatives {
			if !a.Type.Valid() {
				return nil, eris.Errorf("catalog: store %s has unknown alternative type %q", st.ID, a.Type)
			}
		}
	}
	return &f, nil
}

// Seed upserts stores and alternatives and inserts codes that are not yet
// present. Existing codes are left untouched so re-seeding is safe.
func (s *Service) Seed(ctx context.Context, f *SeedFile) (SeedResult, error) {
	var res SeedResult
	now := s.now().UTC()

	for _, st := range f.Stores {
		if err := s.store.UpsertStore(ctx, st.Store); err != nil {
			return res, eris.Wrapf(err, "catalog: seed store %s", st.ID)
		}
		res.Stores++

		for _, a := range st.Alternatives {
			a.StoreID = st.ID
			if a.ID == "" {
				a.ID = st.ID + "-" + string(a.Type)
			}
			if err := s.store.UpsertAlternative(ctx, a); err != nil {
				return res, eris.Wrapf(err, "catalog: seed alternative %s", a.ID)
			}
			res.Alternatives++
		}

		for _, c := range st.Codes {
			_, err := s.store.FindCode(ctx, st.ID, c.Code)
			if err == nil {
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return res, eris.Wrapf(err, "catalog: seed lookup %s/%s", st.ID, c.Code)
			}

			code := model.DiscountCode{
				ID:           reconcile.CodeID(st.ID, c.Code, now),
				StoreID:      st.ID,
				Code:         c.Code,
				Description:  c.Description,
				Savings:      c.Savings,
				Context:      c.Context,
				LastVerified: now,
				IsActive:     true,
			}
			code.SetProbability(c.Probability)
			if err := s.store.InsertCode(ctx, code); err != nil && !errors.Is(err, store.ErrCodeExists) {
				return res, eris.Wrapf(err, "catalog: seed code %s/%s", st.ID, c.Code)
			}
			res.Codes++
		}
	}

	zap.L().Info("catalog: seed complete",
		zap.Int("stores", res.Stores),
		zap.Int("alternatives", res.Alternatives),
		zap.Int("codes", res.Codes),
	)
	return res, nil
}
