// Package quality scores an extracted job's completeness as a pure
// function of its fields, with no I/O, so it is cheaply table-driven
// tested.
package quality

import (
	"net/url"
	"strings"
	"time"

	"jobpipe/internal/model"
)

// Score is the result of scoring one job.
type Score struct {
	Value       float64
	Grade       model.QualityGrade
	NeedsReview bool
	Factors     map[string]float64
	Issues      []string
}

// weight contributes to the completeness score. credit returns the
// fraction of amount earned: 1 for a fully valid field, 0.5 for a
// present-but-thin field (description only), 0 for missing/invalid.
type weight struct {
	field  string
	amount float64
	credit func(model.Job) float64
}

var weights = []weight{
	{"title", 0.20, func(j model.Job) float64 {
		t := strings.TrimSpace(j.Title)
		if len(t) >= 5 && len(t) <= 500 {
			return 1
		}
		return 0
	}},
	{"apply_url", 0.20, func(j model.Job) float64 {
		if validURLScheme(j.ApplyURL) {
			return 1
		}
		return 0
	}},
	{"location", 0.15, func(j model.Job) float64 {
		if nonEmpty(j.LocationRaw) || j.IsRemote {
			return 1
		}
		return 0
	}},
	{"deadline", 0.15, func(j model.Job) float64 {
		if j.Deadline != nil && !j.Deadline.IsZero() {
			return 1
		}
		return 0
	}},
	{"description", 0.10, func(j model.Job) float64 {
		n := len(strings.TrimSpace(j.Description))
		switch {
		case n >= 50:
			return 1
		case n > 0:
			return 0.5
		default:
			return 0
		}
	}},
	{"org_name", 0.10, func(j model.Job) float64 {
		if nonEmpty(j.OrgName) {
			return 1
		}
		return 0
	}},
	{"geocoding_present", 0.05, func(j model.Job) float64 {
		if (j.Latitude != nil && j.Longitude != nil) || j.IsRemote {
			return 1
		}
		return 0
	}},
	{"country_present", 0.05, func(j model.Job) float64 {
		if nonEmpty(j.Country) || nonEmpty(j.CountryISO) {
			return 1
		}
		return 0
	}},
}

// ScoreJob evaluates job's completeness, producing a value in [0,1] and
// the grade that value falls into, per the fixed thresholds in
// model.DeriveGrade.
func ScoreJob(j model.Job) Score {
	factors := make(map[string]float64, len(weights))
	var issues []string
	total := 0.0

	for _, w := range weights {
		credit := w.credit(j)
		earned := w.amount * credit
		total += earned
		factors[w.field] = earned

		switch {
		case w.field == "apply_url" && credit == 0:
			// distinguished below: empty vs. present-but-invalid
		case credit == 0:
			issues = append(issues, "missing:"+w.field)
		case credit < 1:
			issues = append(issues, "short:"+w.field)
		}
	}

	if total > 1 {
		total = 1
	}

	switch {
	case strings.TrimSpace(j.ApplyURL) == "":
		issues = append(issues, "missing:apply_url")
	case !validURLScheme(j.ApplyURL):
		issues = append(issues, "invalid_url")
	}
	if j.Deadline != nil && j.Deadline.Before(time.Now().UTC()) {
		issues = append(issues, "deadline_in_past")
	}

	grade := model.DeriveGrade(total)
	needsReview := grade == model.GradeLow || grade == model.GradeVeryLow || hasIssueKind(issues, "invalid_url") || hasIssueKind(issues, "deadline_in_past")

	return Score{
		Value:       total,
		Grade:       grade,
		NeedsReview: needsReview,
		Factors:     factors,
		Issues:      issues,
	}
}

func nonEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}

// validURLScheme reports whether raw parses as an http(s) URL.
func validURLScheme(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func hasIssueKind(issues []string, kind string) bool {
	for _, i := range issues {
		if i == kind {
			return true
		}
	}
	return false
}
