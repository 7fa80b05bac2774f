package privacy

import (
	"errors"
	"regexp"

	"github.com/raaihank/lexmask/internal/alias"
)

// ErrInputTooLarge is returned by Redact when the input exceeds
// privacy.max_input_bytes.
var ErrInputTooLarge = errors.New("privacy: input exceeds max_input_bytes")

// DetectionRule is a named regular-expression detector for one category.
type DetectionRule struct {
	Name     string
	Category alias.Category
	Pattern  *regexp.Regexp
}

// Span is a byte range of the current text that should be aliased.
type Span struct {
	Start    int
	End      int
	Category alias.Category
}

// Finding summarises what one detector replaced. It never carries the
// original values.
type Finding struct {
	Detector string         `json:"detector"`
	Category alias.Category `json:"category"`
	Count    int            `json:"count"`
}

// Result is the outcome of a redaction pass.
type Result struct {
	Text      string    `json:"text"`
	WasMasked bool      `json:"was_masked"`
	Findings  []Finding `json:"findings"`
}

// Pass is the state shared by the detectors of one redaction pass.
type Pass struct {
	// Text is the current text, with earlier detectors' substitutions applied.
	Text string
	// EntitiesRecognized is set when the NER step succeeded in this pass.
	EntitiesRecognized bool
}
