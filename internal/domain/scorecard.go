package domain

// Grade advisory confidence bucket attached to a published signal.
// It never gates publication.
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
)

// Rank orders grades for cycle tie-breaks, higher is better.
func (g Grade) Rank() int {
	switch g {
	case GradeAPlus:
		return 4
	case GradeA:
		return 3
	case GradeB:
		return 2
	case GradeC:
		return 1
	default:
		return 0
	}
}

// Factor one scored line of a candidate's evaluation.
type Factor struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
	Passed bool   `json:"passed"`
	// Detail short human-readable annotation for alerts.
	Detail string `json:"detail,omitempty"`
}

// ScoreCard factor tally of a graded candidate. The grade is a pure
// function of the tally; rebuilding the card yields the same grade.
type ScoreCard struct {
	// Filters the six context filters, in evaluation order.
	Filters []Factor `json:"filters"`
	// Confluence smart-money confluence factors, in evaluation order.
	Confluence []Factor `json:"confluence"`
	// FiltersPassed count of passing context filters.
	FiltersPassed int `json:"filters_passed"`
	// ConfluenceCount count of present confluence factors.
	ConfluenceCount int `json:"confluence_count"`
	// Composite weighted sum of all passing factors.
	Composite int `json:"composite"`
	Grade     Grade `json:"grade"`
}

// FailedFilters returns the names of filters that did not pass.
func (c ScoreCard) FailedFilters() []string {
	var out []string
	for _, f := range c.Filters {
		if !f.Passed {
			out = append(out, f.Name)
		}
	}
	return out
}
