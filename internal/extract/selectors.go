package extract

// FieldSelectors maps one record field to its ordered fallback selector list.
// First non-empty match wins. Keeping these as data means markup drift is a
// config change, not a control-flow change.
type FieldSelectors struct {
	Field     string
	Required  bool
	Selectors []string
}

// CardSelectors are tried in order to locate job cards on a results view.
func CardSelectors() []string {
	return []string{
		".job_seen_beacon",
		".jobsearch-SerpJobCard",
		"div.cardOutline",
		"[data-testid=\"slider_item\"]",
		".result",
	}
}

// DefaultFieldSelectors returns the fallback tables for each extracted field.
// Title and company are the only fields whose absence invalidates a record.
func DefaultFieldSelectors() []FieldSelectors {
	return []FieldSelectors{
		{
			Field:    "title",
			Required: true,
			Selectors: []string{
				"h2.jobTitle span[title]",
				"h2.jobTitle a",
				"h2.jobTitle",
				"a.jcs-JobTitle",
				".title a",
			},
		},
		{
			Field:    "company",
			Required: true,
			Selectors: []string{
				"[data-testid=\"company-name\"]",
				"span.companyName",
				".company",
				".companyInfo a",
			},
		},
		{
			Field: "location",
			Selectors: []string{
				"[data-testid=\"text-location\"]",
				"div.companyLocation",
				".location",
			},
		},
		{
			Field: "salary",
			Selectors: []string{
				".salary-snippet-container",
				"[data-testid=\"attribute_snippet_testid\"]",
				".metadata.salary-snippet-container",
				".salaryText",
			},
		},
		{
			Field: "description",
			Selectors: []string{
				"[data-testid=\"belowJobSnippet\"] ul",
				".job-snippet",
				".summary",
			},
		},
	}
}

// detailLinkSelectors locate the anchor carrying the job key and detail URL.
func detailLinkSelectors() []string {
	return []string{
		"h2.jobTitle a",
		"a.jcs-JobTitle",
		".title a",
	}
}

// postedDateSelectors locate the relative posting-age text.
func postedDateSelectors() []string {
	return []string{
		"[data-testid=\"myJobsStateDate\"]",
		"span.date",
		".result-link-bar .date",
	}
}

// jobTypeSelectors locate employment-type metadata when present.
func jobTypeSelectors() []string {
	return []string{
		"[data-testid=\"attribute_snippet_testid\"]:nth-of-type(2)",
		".metadata:not(.salary-snippet-container) .attribute_snippet",
	}
}
