package privacy

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/raaihank/lexmask/internal/alias"
)

// Detector names accepted in privacy.detectors.
const (
	DetectorBlacklist    = "blacklist"
	DetectorEntities     = "entities"
	DetectorOrganization = "organization"
	DetectorEmail        = "email"
	DetectorCard         = "card"
	DetectorNationalID   = "national_id"
	DetectorProperNoun   = "proper_noun"
)

// Detector finds sensitive spans in the current text of a pass.
type Detector interface {
	Name() string
	Find(ctx context.Context, p *Pass) []Span
}

// GetDefaultRules returns the structured-pattern rules in pipeline order.
func GetDefaultRules() []DetectionRule {
	return []DetectionRule{
		{
			Name:     DetectorEmail,
			Category: alias.CategoryEmail,
			Pattern:  regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		},
		{
			Name:     DetectorCard,
			Category: alias.CategoryCardNumber,
			Pattern:  regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`),
		},
		{
			Name:     DetectorNationalID,
			Category: alias.CategoryNationalID,
			Pattern:  regexp.MustCompile(`\b\d{3}[-.]?\d{2}[-.]?\d{4}\b`),
		},
	}
}

type ruleDetector struct {
	rule DetectionRule
}

func (d ruleDetector) Name() string { return d.rule.Name }

func (d ruleDetector) Find(_ context.Context, p *Pass) []Span {
	return spansOf(d.rule.Pattern, p.Text, d.rule.Category)
}

func spansOf(re *regexp.Regexp, text string, c alias.Category) []Span {
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	spans := make([]Span, 0, len(locs))
	for _, loc := range locs {
		spans = append(spans, Span{Start: loc[0], End: loc[1], Category: c})
	}
	return spans
}

// wordSpans is spansOf for patterns that must match whole words. RE2's \b
// only knows ASCII, so boundaries are checked on the surrounding runes. A
// match rejected for its boundary is retried one rune further on.
func wordSpans(re *regexp.Regexp, text string, c alias.Category) []Span {
	var spans []Span
	for pos := 0; pos <= len(text); {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if end == start {
			pos = end + 1
			continue
		}
		if !wholeWord(text, start, end) {
			_, size := utf8.DecodeRuneInString(text[start:])
			pos = start + size
			continue
		}
		spans = append(spans, Span{Start: start, End: end, Category: c})
		pos = end
	}
	return spans
}

// wholeWord reports whether text[start:end] is not glued to a neighbouring
// word character on a side where it starts or ends with one.
func wholeWord(text string, start, end int) bool {
	first, _ := utf8.DecodeRuneInString(text[start:end])
	if isWordRune(first) && start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(prev) {
			return false
		}
	}
	last, _ := utf8.DecodeLastRuneInString(text[start:end])
	if isWordRune(last) && end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(next) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// literalPattern matches term case-insensitively. Word boundaries are
// checked by wordSpans.
func literalPattern(term string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(term))
}

// longestFirst sorts terms by descending length, ties broken lexically.
func longestFirst(terms []string) []string {
	out := append([]string(nil), terms...)
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

type organizationDetector struct {
	pattern *regexp.Regexp
}

// newOrganizationDetector matches one or more capitalised words followed by
// a corporate suffix. The suffix is case-insensitive.
func newOrganizationDetector(suffixes []string) *organizationDetector {
	var alts []string
	for _, s := range longestFirst(suffixes) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		words := strings.Fields(s)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alts = append(alts, strings.Join(words, `\s+`))
	}
	if len(alts) == 0 {
		return &organizationDetector{}
	}

	expr := `(?:\p{Lu}[\p{L}\p{N}&'-]*\s+)+(?i:` + strings.Join(alts, "|") + `)`
	return &organizationDetector{pattern: regexp.MustCompile(expr)}
}

func (d *organizationDetector) Name() string { return DetectorOrganization }

func (d *organizationDetector) Find(_ context.Context, p *Pass) []Span {
	if d.pattern == nil {
		return nil
	}
	return wordSpans(d.pattern, p.Text, alias.CategoryOrganization)
}

// Proper-noun fallback policies.
const (
	FallbackAuto   = "auto"
	FallbackAlways = "always"
	FallbackNever  = "never"
)

var properNounPattern = regexp.MustCompile(`\p{Lu}\p{L}+(?:\s+\p{Lu}\p{L}+)+`)

type properNounDetector struct {
	policy string
}

func (d properNounDetector) Name() string { return DetectorProperNoun }

func (d properNounDetector) Find(_ context.Context, p *Pass) []Span {
	switch d.policy {
	case FallbackNever:
		return nil
	case FallbackAlways:
	default:
		if p.EntitiesRecognized {
			return nil
		}
	}
	return wordSpans(properNounPattern, p.Text, alias.CategoryPerson)
}
