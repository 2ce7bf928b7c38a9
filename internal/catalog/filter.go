package catalog

import (
	"strings"

	"github.com/sells-group/rabatt-cli/internal/model"
)

// MaxCodesPerStore caps how many codes a filtered store shows.
const MaxCodesPerStore = 3

// ForContext drops codes whose conditions rule out the shopper described by
// uc, then keeps at most MaxCodesPerStore of the rest in order.
func ForContext(st Store, uc model.UserContext) Store {
	kept := make([]Code, 0, MaxCodesPerStore)
	for _, c := range st.Codes {
		if len(kept) == MaxCodesPerStore {
			break
		}
		if c.Probability < ListingMinProbability {
			continue
		}
		if hasCondition(c, "ny kunde") && uc.CustomerType == "existing" {
			continue
		}
		if hasCondition(c, "kun i app") && uc.ShoppingContext == "browser" {
			continue
		}
		if hasCondition(c, "student") && !uc.IsStudent {
			continue
		}
		kept = append(kept, c)
	}
	st.Codes = kept
	return st
}

func hasCondition(c Code, needle string) bool {
	for _, cond := range c.Context {
		if strings.Contains(strings.ToLower(cond), needle) {
			return true
		}
	}
	return false
}
