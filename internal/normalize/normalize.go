// Package normalize turns raw extracted field strings into the
// cleaned-up values stored on a model.Job: dates, locations, salary
// and employment-type vocabulary. A deadline the rules cannot parse
// escalates to the configured AI client, sharing the run's
// extract.Budget; other fields are handled by rules only.
package normalize

import (
	"context"
	"regexp"
	"strings"
	"time"

	"jobpipe/internal/extract"
	"jobpipe/internal/llm"
	"jobpipe/internal/model"
)

// dateLayouts is the list of formats the hand-rolled parser tries in
// order. No date-parsing library was present anywhere in the
// retrieved dependency pack, so this stays on the standard library;
// see DESIGN.md.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"01/02/2006",
	"02/01/2006",
	"Monday, January 2, 2006",
}

// ParseDate tries every known layout, trimming ordinal suffixes
// ("21st" -> "21") first since several sources emit them.
func ParseDate(raw string) (time.Time, bool) {
	cleaned := stripOrdinalSuffix(strings.TrimSpace(raw))
	if cleaned == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var ordinalRegex = regexp.MustCompile(`(\d+)(st|nd|rd|th)\b`)

func stripOrdinalSuffix(s string) string {
	return ordinalRegex.ReplaceAllString(s, "$1")
}

// countryISO maps a handful of commonly seen country name spellings to
// ISO-3166 alpha-2. Sources that already emit an ISO code pass
// through unchanged.
var countryISO = map[string]string{
	"united states": "US", "usa": "US", "united states of america": "US",
	"united kingdom": "GB", "uk": "GB",
	"switzerland": "CH", "france": "FR", "germany": "DE", "italy": "IT",
	"spain": "ES", "kenya": "KE", "nigeria": "NG", "south africa": "ZA",
	"india": "IN", "brazil": "BR", "mexico": "MX", "canada": "CA",
	"australia": "AU", "netherlands": "NL", "belgium": "BE",
	"uganda": "UG", "tanzania": "TZ", "ghana": "GH", "ethiopia": "ET",
	"egypt": "EG", "morocco": "MA", "jordan": "JO", "lebanon": "LB",
	"thailand": "TH", "philippines": "PH", "indonesia": "ID",
	"bangladesh": "BD", "pakistan": "PK", "nepal": "NP",
}

// remoteKeywords mark a location string as remote rather than a
// physical place.
var remoteKeywords = []string{"remote", "work from home", "telecommute", "anywhere"}

// Location is the parsed result of a raw location string.
type Location struct {
	Country    string
	CountryISO string
	City       string
	IsRemote   bool
}

// SplitLocation parses "City, Country" style strings and detects
// remote postings. It is intentionally forgiving: a string with no
// recognizable country still returns City set to the whole input.
func SplitLocation(raw string) Location {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)

	for _, kw := range remoteKeywords {
		if strings.Contains(lower, kw) {
			return Location{IsRemote: true}
		}
	}

	if trimmed == "" {
		return Location{}
	}

	parts := strings.Split(trimmed, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	last := strings.ToLower(parts[len(parts)-1])
	if iso, ok := countryISO[last]; ok {
		city := ""
		if len(parts) > 1 {
			city = strings.Join(parts[:len(parts)-1], ", ")
		}
		return Location{Country: parts[len(parts)-1], CountryISO: iso, City: city}
	}
	if len(last) == 2 {
		return Location{Country: strings.ToUpper(last), CountryISO: strings.ToUpper(last), City: strings.Join(parts[:len(parts)-1], ", ")}
	}

	return Location{City: trimmed}
}

// CleanSalary trims the string and collapses whitespace runs to one
// space. Currency symbols are kept and no unit conversion is
// attempted: the raw string is preserved for display.
func CleanSalary(raw string) string {
	s := strings.TrimSpace(raw)
	s = regexp.MustCompile(`\s+`).ReplaceAllString(s, " ")
	return s
}

// Normalizer applies the rule-based cleanups above, escalating to the
// AI client only for fields the rules could not resolve.
type Normalizer struct {
	client llm.Client
	cache  *llm.ResponseCache
}

func NewNormalizer(client llm.Client) *Normalizer {
	return &Normalizer{client: client}
}

// NewNormalizerWithCache is NewNormalizer plus a ResponseCache
// consulted before spending AI budget on an identical raw value.
func NewNormalizerWithCache(client llm.Client, cache *llm.ResponseCache) *Normalizer {
	return &Normalizer{client: client, cache: cache}
}

// Apply mutates job's normalized fields from the raw extracted
// values. An unparsed deadline falls through to the AI client when
// budget allows; a failure there leaves Deadline unset. Locations are
// split by SplitLocation only and are never sent to the AI client.
func (n *Normalizer) Apply(ctx context.Context, job *model.Job, rawDeadline string, budget *extract.Budget) {
	loc := SplitLocation(job.LocationRaw)
	job.Country = loc.Country
	job.CountryISO = loc.CountryISO
	job.City = loc.City
	job.IsRemote = job.IsRemote || loc.IsRemote

	job.SalaryRaw = CleanSalary(job.SalaryRaw)
	job.EmploymentType = normalizeEmploymentType(job.EmploymentType)

	if rawDeadline == "" {
		return
	}
	if t, ok := ParseDate(rawDeadline); ok {
		job.Deadline = &t
		return
	}

	if n.client == nil {
		return
	}

	req := llm.NormalizeRequest{FieldName: "deadline", RawValue: rawDeadline}

	var cacheKey string
	if n.cache != nil {
		cacheKey = llm.NormalizeKey(req)
		if cached, ok := n.cache.GetNormalize(ctx, cacheKey); ok {
			if t, ok := ParseDate(cached.Value); ok {
				job.Deadline = &t
			}
			return
		}
	}

	if !budget.Take() {
		return
	}
	res, err := n.client.NormalizeField(ctx, req)
	if err != nil || res.Value == "" {
		return
	}
	if n.cache != nil {
		n.cache.PutNormalize(ctx, cacheKey, res)
	}
	if t, ok := ParseDate(res.Value); ok {
		job.Deadline = &t
	}
}

var employmentTypeAliases = map[string]string{
	"full time": "full_time", "full-time": "full_time", "fulltime": "full_time",
	"part time": "part_time", "part-time": "part_time", "parttime": "part_time",
	"contract": "contract", "contractor": "contract", "consultant": "consultant",
	"internship": "internship", "intern": "internship",
	"temporary": "temporary", "temp": "temporary",
	"volunteer": "volunteer",
}

func normalizeEmploymentType(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return ""
	}
	if norm, ok := employmentTypeAliases[key]; ok {
		return norm
	}
	return raw
}
