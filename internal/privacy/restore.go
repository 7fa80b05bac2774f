package privacy

import (
	"strings"

	"github.com/raaihank/lexmask/internal/alias"
)

// Restore replaces every known token with its original value. Unknown
// tokens are left as they are.
func (e *Engine) Restore(text string) string {
	text = e.StripMarkers(text)
	return alias.TokenPattern.ReplaceAllStringFunc(text, e.store.Resolve)
}

// Reveal replaces known tokens with original+marker for display. Text that
// already carries the marker is returned unchanged.
func (e *Engine) Reveal(text string) string {
	marker := e.config.Marker
	if marker != "" && strings.Contains(text, marker) {
		return text
	}

	return alias.TokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		original := e.store.Resolve(token)
		if original == token {
			return token
		}
		return original + marker
	})
}
