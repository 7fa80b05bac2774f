package ner

import "strings"

// Span is a labelled byte range of the source text.
type Span struct {
	Label string
	Start int
	End   int
}

// argmax returns the index of the largest value in each row of a row-major
// rows x cols matrix.
func argmax(data []float32, rows, cols int) []int {
	out := make([]int, rows)
	for r := 0; r < rows; r++ {
		row := data[r*cols : (r+1)*cols]
		best := 0
		for c := 1; c < cols; c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		out[r] = best
	}
	return out
}

func splitLabel(label string) (prefix, typ string) {
	if label == "" || label == "O" {
		return "O", ""
	}
	if len(label) > 2 && (label[0] == 'B' || label[0] == 'I') && label[1] == '-' {
		return label[:1], label[2:]
	}
	return "I", label
}

// DecodeBIO groups per-token labels into entity spans. Only the first
// sub-token of a word carries a label; continuation pieces extend whatever
// entity their word belongs to.
func DecodeBIO(enc Encoding, labelIDs []int, labels []string) []Span {
	var (
		spans []Span
		cur   *Span
	)

	closeCur := func() {
		if cur != nil {
			spans = append(spans, *cur)
			cur = nil
		}
	}

	for i, tok := range enc.Tokens {
		if tok.Word < 0 || i >= len(labelIDs) {
			continue
		}
		if !tok.First {
			if cur != nil {
				cur.End = tok.End
			}
			continue
		}

		label := "O"
		if id := labelIDs[i]; id >= 0 && id < len(labels) {
			label = labels[id]
		}
		prefix, typ := splitLabel(label)

		switch {
		case typ == "":
			closeCur()
		case prefix == "B" || cur == nil || cur.Label != typ:
			closeCur()
			cur = &Span{Label: typ, Start: tok.Start, End: tok.End}
		default:
			cur.End = tok.End
		}
	}
	closeCur()

	return spans
}

// entitiesFromSpans maps PER/ORG spans to distinct literal substrings.
func entitiesFromSpans(text string, spans []Span) Entities {
	var entities Entities
	seen := make(map[string]bool)

	for _, s := range spans {
		if s.Start < 0 || s.End > len(text) || s.Start >= s.End {
			continue
		}
		surface := text[s.Start:s.End]
		switch strings.ToUpper(s.Label) {
		case "PER", "PERSON":
			if !seen["p:"+surface] {
				seen["p:"+surface] = true
				entities.People = append(entities.People, surface)
			}
		case "ORG", "ORGANIZATION":
			if !seen["o:"+surface] {
				seen["o:"+surface] = true
				entities.Organizations = append(entities.Organizations, surface)
			}
		}
	}
	return entities
}
