// Package queryparse turns a raw query string into a structured ParsedQuery:
// filter tokens (type:, date:, entity:, score:, -exclude, "phrase") are
// extracted and stripped, and whatever remains becomes the free-text query.
//
// Parsing never fails. Tokens the parser recognizes but cannot resolve (an
// unknown document type, an unparseable date) are stripped from the text and
// dropped from the filters: search degrades to "ignore the filter I didn't
// understand" rather than failing the whole query.
package queryparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/medscribe/clinsearch/pkg/types"
)

var (
	typeRe    = regexp.MustCompile(`(?i)\btype:(\S+)`)
	dateRe    = regexp.MustCompile(`(?i)\bdate:(\S+)`)
	entityRe  = regexp.MustCompile(`(?i)\bentity:([a-z_]+):([\w,.\-]+)`)
	scoreRe   = regexp.MustCompile(`(?i)\bscore:>(\d+(?:\.\d+)?)`)
	excludeRe = regexp.MustCompile(`(^|\s)-(\w+)`)
	phraseRe  = regexp.MustCompile(`"([^"]+)"`)

	yearValueRe  = regexp.MustCompile(`^(\d{4})$`)
	monthValueRe = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	dayValueRe   = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
)

// documentTypes maps recognized type: values to their canonical category.
var documentTypes = map[string]string{
	"pdf":   "pdf",
	"docx":  "docx",
	"txt":   "txt",
	"png":   "image",
	"jpg":   "image",
	"jpeg":  "image",
	"image": "image",
}

// Parser extracts structured filters from raw query strings.
// Parsing is deterministic given the input string and the clock, which is
// needed to resolve relative date aliases like "last-week".
type Parser struct {
	aliases map[string]string
	now     func() time.Time
}

// NewParser returns a Parser using the default entity category aliases and
// the system clock.
func NewParser() *Parser {
	return &Parser{
		aliases: types.EntityCategoryAliases(),
		now:     time.Now,
	}
}

// NewParserAt returns a Parser with an injected clock. Used by tests and by
// callers replaying historical queries.
func NewParserAt(now func() time.Time) *Parser {
	p := NewParser()
	if now != nil {
		p.now = now
	}
	return p
}

// Parse extracts every recognized filter token from raw and returns the
// structured query. Extraction order is type → date → entity → score →
// exclude → phrase, each stage operating on the string left by the previous
// one, so later patterns never re-match text already consumed.
func (p *Parser) Parse(raw string) types.ParsedQuery {
	q := types.ParsedQuery{
		DocumentTypes: make(map[string]bool),
		EntityFilters: make(map[string]map[string]bool),
		ExcludeTerms:  make(map[string]bool),
	}

	rest := raw
	rest = p.extractTypes(rest, &q)
	rest = p.extractDates(rest, &q)
	rest = p.extractEntities(rest, &q)
	rest = p.extractScore(rest, &q)
	rest = p.extractExcludes(rest, &q)
	rest = p.extractPhrases(rest, &q)

	q.Text = strings.Join(strings.Fields(rest), " ")

	// Normalize empty collections to nil so HasFilters and equality checks
	// behave the same for parsed and hand-built queries.
	if len(q.DocumentTypes) == 0 {
		q.DocumentTypes = nil
	}
	if len(q.EntityFilters) == 0 {
		q.EntityFilters = nil
	}
	if len(q.ExcludeTerms) == 0 {
		q.ExcludeTerms = nil
	}
	return q
}

func (p *Parser) extractTypes(s string, q *types.ParsedQuery) string {
	for _, m := range typeRe.FindAllStringSubmatch(s, -1) {
		if category, ok := documentTypes[strings.ToLower(m[1])]; ok {
			q.DocumentTypes[category] = true
		}
		// Unrecognized extensions are dropped silently but still stripped.
	}
	return typeRe.ReplaceAllString(s, " ")
}

func (p *Parser) extractDates(s string, q *types.ParsedQuery) string {
	for _, m := range dateRe.FindAllStringSubmatch(s, -1) {
		if r, ok := p.resolveDateValue(strings.ToLower(m[1])); ok && q.DateRange == nil {
			q.DateRange = r
		}
	}
	return dateRe.ReplaceAllString(s, " ")
}

func (p *Parser) extractEntities(s string, q *types.ParsedQuery) string {
	for _, m := range entityRe.FindAllStringSubmatch(s, -1) {
		category := strings.ToLower(m[1])
		if canonical, ok := p.aliases[category]; ok {
			category = canonical
		}
		values := q.EntityFilters[category]
		if values == nil {
			values = make(map[string]bool)
			q.EntityFilters[category] = values
		}
		for _, v := range strings.Split(m[2], ",") {
			v = strings.TrimSpace(strings.ToLower(v))
			if v != "" {
				values[v] = true
			}
		}
	}
	return entityRe.ReplaceAllString(s, " ")
}

func (p *Parser) extractScore(s string, q *types.ParsedQuery) string {
	for _, m := range scoreRe.FindAllStringSubmatch(s, -1) {
		threshold, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		// Values above 1 are percentages.
		if threshold > 1 {
			threshold /= 100
		}
		if threshold < 0 {
			threshold = 0
		}
		if threshold > 1 {
			threshold = 1
		}
		q.MinScore = threshold
	}
	return scoreRe.ReplaceAllString(s, " ")
}

func (p *Parser) extractExcludes(s string, q *types.ParsedQuery) string {
	for _, m := range excludeRe.FindAllStringSubmatch(s, -1) {
		q.ExcludeTerms[strings.ToLower(m[2])] = true
	}
	return excludeRe.ReplaceAllString(s, " ")
}

// extractPhrases records quoted phrases and removes the quotes while leaving
// the phrase text in place: exact phrases still participate in keyword
// matching.
func (p *Parser) extractPhrases(s string, q *types.ParsedQuery) string {
	for _, m := range phraseRe.FindAllStringSubmatch(s, -1) {
		q.ExactPhrases = append(q.ExactPhrases, m[1])
	}
	return phraseRe.ReplaceAllString(s, "$1")
}

// resolveDateValue turns a date: token value into an inclusive range.
// Supported forms: named aliases, a 4-digit year (1990–2100), YYYY-MM, and
// YYYY-MM-DD. Returns ok=false for anything else.
func (p *Parser) resolveDateValue(value string) (*types.DateRange, bool) {
	now := p.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch value {
	case "today":
		return &types.DateRange{Start: midnight, End: now}, true
	case "yesterday":
		start := midnight.AddDate(0, 0, -1)
		return &types.DateRange{Start: start, End: midnight.Add(-time.Second)}, true
	case "last-week":
		return &types.DateRange{Start: now.AddDate(0, 0, -7), End: now}, true
	case "last-month":
		return &types.DateRange{Start: now.AddDate(0, 0, -30), End: now}, true
	case "last-year":
		return &types.DateRange{Start: now.AddDate(0, 0, -365), End: now}, true
	case "this-week":
		// Week starts on Monday.
		offset := (int(now.Weekday()) + 6) % 7
		return &types.DateRange{Start: midnight.AddDate(0, 0, -offset), End: now}, true
	case "this-month":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return &types.DateRange{Start: start, End: now}, true
	case "this-year":
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return &types.DateRange{Start: start, End: now}, true
	}

	if m := yearValueRe.FindStringSubmatch(value); m != nil {
		year, _ := strconv.Atoi(m[1])
		if year < 1990 || year > 2100 {
			return nil, false
		}
		start := time.Date(year, 1, 1, 0, 0, 0, 0, now.Location())
		end := time.Date(year, 12, 31, 23, 59, 59, 0, now.Location())
		return &types.DateRange{Start: start, End: end}, true
	}

	if m := monthValueRe.FindStringSubmatch(value); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return nil, false
		}
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, now.Location())
		end := start.AddDate(0, 1, 0).Add(-time.Second)
		return &types.DateRange{Start: start, End: end}, true
	}

	if dayValueRe.MatchString(value) {
		t, err := time.ParseInLocation("2006-01-02", value, now.Location())
		if err != nil {
			return nil, false
		}
		return &types.DateRange{Start: t, End: t.AddDate(0, 0, 1).Add(-time.Second)}, true
	}

	return nil, false
}
