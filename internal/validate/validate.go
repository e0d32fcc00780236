// Package validate applies pre-upsert checks to a batch of candidate
// jobs before they reach the dedupe/upsert engine: hard errors block a
// row from being persisted at all, warnings persist but are flagged
// for review.
package validate

import (
	"fmt"
	"net/url"
	"strings"

	"jobpipe/internal/model"
)

// applyURLDenylistPrefixes are apply_url values that can never be a
// usable application link, regardless of what scheme parsing says.
var applyURLDenylistPrefixes = []string{
	"#", "javascript:", "mailto:", "tel:", "data:",
}

const minTitleLength = 5

// Candidate is a job parsed out of the extractor cascade, not yet
// persisted.
type Candidate struct {
	Job          model.Job
	SourceURL    string
	RawPageID    *string
}

// Issue is a single validation finding against one candidate.
type Issue struct {
	Field   string
	Message string
	Hard    bool
}

// Result partitions a batch into rows that may proceed to upsert and
// rows that must not, plus non-blocking warnings on the valid rows.
type Result struct {
	Valid    []Candidate
	Invalid  []Rejected
	Warnings map[int][]Issue // index into Valid
	Stats    Stats
}

// Rejected is a candidate that failed a hard check.
type Rejected struct {
	Candidate Candidate
	Issues    []Issue
}

type Stats struct {
	Total      int
	ValidCount int
	Rejected   int
	DupsInBatch int
}

// Validate checks every candidate in jobs. Hard-error candidates are
// moved to Result.Invalid; the caller is expected to turn each into a
// model.FailedInsert with Operation = model.OpValidation. Within-batch
// canonical_hash duplicates: the first occurrence wins, later ones are
// rejected as duplicates (S4 scenario).
func Validate(jobs []Candidate) Result {
	res := Result{Warnings: make(map[int][]Issue)}
	res.Stats.Total = len(jobs)

	seen := make(map[string]struct{}, len(jobs))

	for _, c := range jobs {
		hard, soft := checkCandidate(c)

		if c.Job.CanonicalHash != "" {
			if _, dup := seen[c.Job.CanonicalHash]; dup {
				hard = append(hard, Issue{Field: "canonical_hash", Message: "duplicate within batch", Hard: true})
				res.Stats.DupsInBatch++
			} else {
				seen[c.Job.CanonicalHash] = struct{}{}
			}
		}

		if len(hard) > 0 {
			res.Invalid = append(res.Invalid, Rejected{Candidate: c, Issues: hard})
			res.Stats.Rejected++
			continue
		}

		idx := len(res.Valid)
		res.Valid = append(res.Valid, c)
		if len(soft) > 0 {
			res.Warnings[idx] = soft
		}
	}

	res.Stats.ValidCount = len(res.Valid)
	return res
}

func checkCandidate(c Candidate) (hard, soft []Issue) {
	j := c.Job

	title := strings.TrimSpace(j.Title)
	if title == "" {
		hard = append(hard, Issue{Field: "title", Message: "title is required", Hard: true})
	} else if len(title) < minTitleLength {
		hard = append(hard, Issue{Field: "title", Message: "validate.short_title", Hard: true})
	}

	applyURL := strings.TrimSpace(j.ApplyURL)
	if applyURL == "" {
		hard = append(hard, Issue{Field: "apply_url", Message: "apply_url is required", Hard: true})
	} else if !validApplyURL(applyURL) {
		hard = append(hard, Issue{Field: "apply_url", Message: "validate.invalid_url", Hard: true})
	}

	if j.CanonicalHash == "" {
		hard = append(hard, Issue{Field: "canonical_hash", Message: "canonical_hash could not be computed", Hard: true})
	}

	if strings.TrimSpace(j.OrgName) == "" {
		soft = append(soft, Issue{Field: "org_name", Message: "missing organisation name"})
	}
	if strings.TrimSpace(j.LocationRaw) == "" && !j.IsRemote {
		soft = append(soft, Issue{Field: "location", Message: "missing location"})
	}
	if j.Deadline != nil && j.Deadline.IsZero() {
		soft = append(soft, Issue{Field: "deadline", Message: "deadline is a zero timestamp"})
	}
	if len(strings.TrimSpace(j.Description)) < 30 {
		soft = append(soft, Issue{Field: "description", Message: "description is unusually short"})
	}

	return hard, soft
}

// validApplyURL reports whether an apply_url is a usable http(s) link:
// not on the denylist and not some other unusable scheme.
func validApplyURL(raw string) bool {
	lower := strings.ToLower(raw)
	for _, prefix := range applyURLDenylistPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// FailureReason renders issues for model.FailedInsert.Error.
func FailureReason(issues []Issue) string {
	parts := make([]string, 0, len(issues))
	for _, i := range issues {
		parts = append(parts, fmt.Sprintf("%s: %s", i.Field, i.Message))
	}
	return strings.Join(parts, "; ")
}
