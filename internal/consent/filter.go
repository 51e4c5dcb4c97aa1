// Package consent decides which destinations may receive an event given the
// visitor's consent flags.
package consent

import (
	"strings"

	"beacon-admission-service/internal/model"
)

// Category is the consent a destination needs.
type Category string

const (
	CategoryMarketing Category = "marketing"
	CategoryAnalytics Category = "analytics"
)

// Outcome summarises one Apply call for metrics.
type Outcome string

const (
	OutcomeAllAdmitted    Outcome = "all_admitted"
	OutcomePartial        Outcome = "partial"
	OutcomeNoneAdmitted   Outcome = "none_admitted"
	OutcomeSaleOfDataOut  Outcome = "sale_of_data_opt_out"
	OutcomeNoDestinations Outcome = "no_destinations"
)

var categories = map[string]Category{
	"google":    CategoryAnalytics,
	"meta":      CategoryMarketing,
	"tiktok":    CategoryMarketing,
	"pinterest": CategoryMarketing,
	"snapchat":  CategoryMarketing,
	"twitter":   CategoryMarketing,
	"microsoft": CategoryMarketing,
}

// dualUse platforms are analytics by default and marketing under strict policy.
var dualUse = map[string]struct{}{
	"google": {},
}

// Filter applies consent to destination platforms.
type Filter struct {
	strictAnalytics bool
}

// NewFilter builds a Filter. strictAnalytics reclassifies dual-use platforms
// as marketing.
func NewFilter(strictAnalytics bool) *Filter {
	return &Filter{strictAnalytics: strictAnalytics}
}

// CategoryFor returns the consent category of platform. Unknown platforms
// need marketing consent.
func (f *Filter) CategoryFor(platform string) Category {
	p := strings.ToLower(strings.TrimSpace(platform))
	if _, ok := dualUse[p]; ok && f.strictAnalytics {
		return CategoryMarketing
	}
	if cat, ok := categories[p]; ok {
		return cat
	}
	return CategoryMarketing
}

// Decision is the per-request result of the filter.
type Decision struct {
	Admitted         []string
	Skipped          []string
	SaleOfDataOptOut bool
	Outcome          Outcome
}

// Apply splits platforms into admitted and skipped. Only an explicit true
// admits a category; a sale-of-data opt-out skips everything.
func (f *Filter) Apply(c *model.Consent, platforms []string) Decision {
	d := Decision{
		Admitted: make([]string, 0, len(platforms)),
		Skipped:  make([]string, 0, len(platforms)),
	}
	if c == nil {
		c = &model.Consent{}
	}

	d.SaleOfDataOptOut = c.SaleOfData != nil && !*c.SaleOfData
	if d.SaleOfDataOptOut {
		d.Skipped = append(d.Skipped, platforms...)
		d.Outcome = OutcomeSaleOfDataOut
		return d
	}

	for _, p := range platforms {
		if granted(c, f.CategoryFor(p)) {
			d.Admitted = append(d.Admitted, p)
		} else {
			d.Skipped = append(d.Skipped, p)
		}
	}

	switch {
	case len(platforms) == 0:
		d.Outcome = OutcomeNoDestinations
	case len(d.Skipped) == 0:
		d.Outcome = OutcomeAllAdmitted
	case len(d.Admitted) == 0:
		d.Outcome = OutcomeNoneAdmitted
	default:
		d.Outcome = OutcomePartial
	}
	return d
}

func granted(c *model.Consent, cat Category) bool {
	var flag *bool
	switch cat {
	case CategoryAnalytics:
		flag = c.Analytics
	default:
		flag = c.Marketing
	}
	return flag != nil && *flag
}
