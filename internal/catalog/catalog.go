// Package catalog serves the read side of the discount directory and
// accepts user reports.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"

	"github.com/sells-group/rabatt-cli/internal/model"
	"github.com/sells-group/rabatt-cli/internal/store"
)

// ListingMinProbability hides codes below the medium tier from readers.
const ListingMinProbability = model.MediumTrustThreshold

var (
	// ErrUnknownCode is returned when a report names a code that does not exist.
	ErrUnknownCode = errors.New("catalog: unknown code")
	// ErrInvalidReport is returned when a report's user context fails validation.
	ErrInvalidReport = errors.New("catalog: invalid report")
)

// Code is the public view of a discount code.
type Code struct {
	ID           string           `json:"id"`
	Code         string           `json:"code"`
	Description  string           `json:"description"`
	Probability  int              `json:"probability"`
	TrustLevel   model.TrustLevel `json:"trustLevel"`
	Context      []string         `json:"context"`
	ValidUntil   *time.Time       `json:"validUntil,omitempty"`
	LastVerified time.Time        `json:"lastVerified"`
	Savings      string           `json:"savings,omitempty"`
	AffiliateURL string           `json:"affiliateUrl,omitempty"`
}

// Alternative is the public view of a savings suggestion.
type Alternative struct {
	Type        model.AlternativeType `json:"type"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	ActionLabel string                `json:"actionLabel,omitempty"`
	ActionURL   string                `json:"actionUrl,omitempty"`
}

// Store is one store with its listable codes and alternatives.
type Store struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Logo         string        `json:"logo,omitempty"`
	Category     string        `json:"category"`
	Codes        []Code        `json:"codes"`
	Alternatives []Alternative `json:"alternatives"`
	// LastUpdated is a calendar date, YYYY-MM-DD.
	LastUpdated string `json:"lastUpdated"`
}

// Service reads the catalog and records reports.
type Service struct {
	store store.Store
	now   func() time.Time
	newID func() string
}

// New creates a Service over st.
func New(st store.Store) *Service {
	return &Service{store: st, now: time.Now, newID: uuid.NewString}
}

// Stores returns every store ordered by name with its active, unexpired codes
// at or above the listing threshold.
func (s *Service) Stores(ctx context.Context) ([]Store, error) {
	stores, err := s.store.ListStores(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list stores")
	}
	codes, err := s.store.ListActiveCodes(ctx, ListingMinProbability)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list codes")
	}
	alts, err := s.store.ListAlternatives(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list alternatives")
	}

	// Codes past their validity date stay hidden until the sweeper retires them.
	now := s.now().UTC()
	byStore := make(map[string][]Code)
	for _, c := range codes {
		if c.Expired(now) {
			continue
		}
		byStore[c.StoreID] = append(byStore[c.StoreID], toCode(c))
	}
	altsByStore := make(map[string][]Alternative)
	for _, a := range alts {
		altsByStore[a.StoreID] = append(altsByStore[a.StoreID], Alternative{
			Type:        a.Type,
			Title:       a.Title,
			Description: a.Description,
			ActionLabel: a.ActionLabel,
			ActionURL:   a.ActionURL,
		})
	}

	out := make([]Store, 0, len(stores))
	for _, st := range stores {
		view := Store{
			ID:           st.ID,
			Name:         st.Name,
			Logo:         st.Logo,
			Category:     st.Category,
			Codes:        byStore[st.ID],
			Alternatives: altsByStore[st.ID],
			LastUpdated:  st.LastUpdated.UTC().Format(time.DateOnly),
		}
		if view.Codes == nil {
			view.Codes = []Code{}
		}
		if view.Alternatives == nil {
			view.Alternatives = []Alternative{}
		}
		out = append(out, view)
	}
	return out, nil
}

func toCode(c model.DiscountCode) Code {
	ctx := c.Context
	if ctx == nil {
		ctx = []string{}
	}
	return Code{
		ID:           c.ID,
		Code:         c.Code,
		Description:  c.Description,
		Probability:  c.Probability,
		TrustLevel:   c.TrustLevel,
		Context:      ctx,
		ValidUntil:   c.ValidUntil,
		LastVerified: c.LastVerified,
		Savings:      c.Savings,
		AffiliateURL: c.AffiliateURL,
	}
}

// Search keeps stores whose name or category contains query, ignoring case.
// A blank query returns stores unchanged.
func Search(stores []Store, query string) []Store {
	fold := cases.Fold()
	q := fold.String(strings.TrimSpace(query))
	if q == "" {
		return stores
	}

	var out []Store
	for _, st := range stores {
		if strings.Contains(fold.String(st.Name), q) || strings.Contains(fold.String(st.Category), q) {
			out = append(out, st)
		}
	}
	if out == nil {
		out = []Store{}
	}
	return out
}

// ReportCode records whether a code worked and returns the report id.
func (s *Service) ReportCode(ctx context.Context, codeID string, worked bool, uc *model.UserContext) (string, error) {
	if _, err := s.store.GetCode(ctx, codeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUnknownCode
		}
		return "", eris.Wrap(err, "catalog: load code")
	}

	r := model.CodeReport{
		ID:         s.newID(),
		CodeID:     codeID,
		Worked:     worked,
		ReportedAt: s.now().UTC(),
	}
	if uc != nil {
		if err := uc.Validate(); err != nil {
			return "", eris.Wrap(ErrInvalidReport, err.Error())
		}
		raw, err := json.Marshal(uc)
		if err != nil {
			return "", eris.Wrap(err, "catalog: marshal user context")
		}
		r.UserContext = raw
	}

	if err := s.store.InsertReport(ctx, r); err != nil {
		return "", eris.Wrap(err, "catalog: insert report")
	}
	return r.ID, nil
}
