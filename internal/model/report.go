package model

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/rotisserie/eris"
)

// CodeReport is one user observation of whether a code worked. Reports are
// immutable once written.
type CodeReport struct {
	ID          string          `json:"id"`
	CodeID      string          `json:"code_id"`
	Worked      bool            `json:"worked"`
	ReportedAt  time.Time       `json:"reported_at"`
	UserContext json.RawMessage `json:"user_context,omitempty"`
}

// ReportTally counts worked/failed reports for a single code.
type ReportTally struct {
	Worked int
	Failed int
}

// Total returns the number of reports in the tally.
func (t ReportTally) Total() int { return t.Worked + t.Failed }

// TallyReports groups reports by code id.
func TallyReports(reports []CodeReport) map[string]ReportTally {
	out := make(map[string]ReportTally)
	for _, r := range reports {
		t := out[r.CodeID]
		if r.Worked {
			t.Worked++
		} else {
			t.Failed++
		}
		out[r.CodeID] = t
	}
	return out
}

// UserContext describes the shopper's situation when a report was filed.
type UserContext struct {
	CustomerType    string `json:"customerType"`
	ShoppingContext string `json:"shoppingContext"`
	PriceContext    string `json:"priceContext"`
	IsStudent       bool   `json:"isStudent"`
}

var (
	customerTypes    = []string{"new", "existing", "unknown"}
	shoppingContexts = []string{"app", "browser", "unknown"}
	priceContexts    = []string{"sale", "fullprice", "unknown"}
)

// Validate rejects enum fields holding unknown values. Empty fields are
// treated as unknown.
func (u UserContext) Validate() error {
	checks := []struct {
		field   string
		value   string
		allowed []string
	}{
		{"customerType", u.CustomerType, customerTypes},
		{"shoppingContext", u.ShoppingContext, shoppingContexts},
		{"priceContext", u.PriceContext, priceContexts},
	}
	for _, c := range checks {
		if c.value != "" && !slices.Contains(c.allowed, c.value) {
			return eris.Errorf("invalid %s %q", c.field, c.value)
		}
	}
	return nil
}
