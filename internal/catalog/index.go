package catalog

import (
	"strings"

	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

// MRPColumns lists the MRP header spellings seen in catalog exports, in the
// order they are tried.
var MRPColumns = []string{"MRP (₹)", "MRP ", "MRP", "mrp", "MRP(₹)", "MRP(₹) "}

// Row is one catalog export row keyed by its raw header.
type Row map[string]string

// Index maps product slugs to catalog rows.
type Index map[string]Row

// MRP returns the first MRP cell of the row that parses to a positive
// price. Placeholders such as "N/A" fall through to the next spelling.
func (r Row) MRP() (string, bool) {
	for _, col := range MRPColumns {
		v, ok := r[col]
		if !ok || pricing.ParsePrice(v) <= 0 {
			continue
		}
		return v, true
	}
	return "", false
}

// LookupMRP implements pricing.MRPLookup.
func (idx Index) LookupMRP(slug string) (string, bool) {
	if idx == nil {
		return "", false
	}
	row, ok := idx[strings.TrimSpace(slug)]
	if !ok {
		return "", false
	}
	return row.MRP()
}
