package privacy

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/raaihank/lexmask/internal/alias"
	"github.com/raaihank/lexmask/internal/logger"
	"github.com/raaihank/lexmask/internal/ner"
	"go.uber.org/zap"
)

const minEntityRunes = 3

// entityDetector turns recognizer output into spans. People are matched
// before organizations, and within each group longer forms first.
type entityDetector struct {
	recognizer ner.Recognizer
	logger     *logger.Logger
}

func (d *entityDetector) Name() string { return DetectorEntities }

func (d *entityDetector) Find(ctx context.Context, p *Pass) []Span {
	if d.recognizer == nil || !d.recognizer.Ready() {
		return nil
	}

	entities, err := d.recognizer.Recognize(ctx, p.Text)
	if err != nil {
		d.logger.Debug("NER step skipped", zap.Error(err))
		return nil
	}
	p.EntitiesRecognized = true

	var spans []Span
	spans = append(spans, formSpans(p.Text, entities.People, alias.CategoryPerson)...)
	spans = append(spans, formSpans(p.Text, entities.Organizations, alias.CategoryOrganization)...)
	return spans
}

func formSpans(text string, forms []string, c alias.Category) []Span {
	seen := make(map[string]bool, len(forms))
	var keep []string
	for _, f := range forms {
		f = strings.TrimSpace(f)
		if utf8.RuneCountInString(f) < minEntityRunes || seen[f] {
			continue
		}
		seen[f] = true
		keep = append(keep, f)
	}

	var spans []Span
	for _, f := range longestFirst(keep) {
		spans = append(spans, wordSpans(literalPattern(f), text, c)...)
	}
	return spans
}
