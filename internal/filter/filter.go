// Package filter holds the record filters the orchestrator applies before
// accepting an extracted job. These are data-shaping collaborators, not part
// of the crawl engine itself.
package filter

import (
	"regexp"
	"strings"

	"github.com/hireloop/jobharvester/internal/crawl"
)

// ExcludedCompanies rejects records whose company matches an exclusion entry
// (case-insensitive exact match after trimming).
func ExcludedCompanies(names []string) crawl.RecordFilter {
	excluded := make(map[string]struct{}, len(names))
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key != "" {
			excluded[key] = struct{}{}
		}
	}
	return crawl.RecordFilterFunc(func(record crawl.RawJobRecord) bool {
		_, found := excluded[strings.ToLower(strings.TrimSpace(record.Company))]
		return !found
	})
}

var salaryWordingPattern = regexp.MustCompile(
	`(?i)\$\s*\d|\d+\s*(k\b|/\s*(hr|hour)|per\s+(hour|day|week|month|year)|an?\s+(hour|day|week|month|year))`,
)

// SalaryShapedCompany rejects records whose company field looks like a
// salary figure, which happens when selector drift maps the wrong node.
func SalaryShapedCompany() crawl.RecordFilter {
	return crawl.RecordFilterFunc(func(record crawl.RawJobRecord) bool {
		company := strings.TrimSpace(record.Company)
		if company == "" {
			return false
		}
		return !looksLikeSalary(company)
	})
}

func looksLikeSalary(s string) bool {
	if !strings.ContainsAny(s, "$0123456789") {
		return false
	}
	numeric := 0
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '$' || r == ',' || r == '.' {
			numeric++
		}
	}
	// Mostly digits/currency, or explicit salary wording around a number.
	if numeric*2 > len(s) {
		return true
	}
	return salaryWordingPattern.MatchString(s)
}
