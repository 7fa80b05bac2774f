package ner

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxWordRunes = 100

// Tokenizer is a BERT WordPiece tokenizer that keeps byte offsets into the
// source text so predicted labels can be mapped back to literal substrings.
type Tokenizer struct {
	vocab     map[string]int64
	unk       int64
	cls       int64
	sep       int64
	maxLength int
	lowercase bool
}

// Token is one sub-word unit. Special tokens have Word == -1.
type Token struct {
	ID    int64
	Start int
	End   int
	Word  int
	First bool
}

// Encoding is the model input for a single sequence.
type Encoding struct {
	Tokens        []Token
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	Truncated     bool
}

// NewTokenizer builds a tokenizer from an in-memory vocabulary.
func NewTokenizer(vocab map[string]int64, maxLength int, lowercase bool) (*Tokenizer, error) {
	t := &Tokenizer{vocab: vocab, maxLength: maxLength, lowercase: lowercase}

	for name, dst := range map[string]*int64{"[UNK]": &t.unk, "[CLS]": &t.cls, "[SEP]": &t.sep} {
		id, ok := vocab[name]
		if !ok {
			return nil, fmt.Errorf("vocabulary is missing %s", name)
		}
		*dst = id
	}

	if maxLength < 3 {
		return nil, fmt.Errorf("max length %d is too small", maxLength)
	}
	return t, nil
}

// LoadTokenizer reads a vocab.txt file (one token per line, id = line number).
func LoadTokenizer(path string, maxLength int, lowercase bool) (*Tokenizer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary: %w", err)
	}
	defer file.Close()

	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(file)
	var id int64
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r")
		if token != "" {
			vocab[token] = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}

	return NewTokenizer(vocab, maxLength, lowercase)
}

type word struct {
	start, end int
}

// splitWords splits on whitespace and isolates punctuation, BERT style.
func splitWords(text string) []word {
	var words []word
	start := -1

	for i, r := range text {
		switch {
		case unicode.IsSpace(r):
			if start >= 0 {
				words = append(words, word{start, i})
				start = -1
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			if start >= 0 {
				words = append(words, word{start, i})
				start = -1
			}
			words = append(words, word{i, i + utf8.RuneLen(r)})
		default:
			if start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		words = append(words, word{start, len(text)})
	}
	return words
}

// wordPiece returns the pieces of w as [start, end) byte ranges relative to
// w with their ids, using greedy longest-match-first.
func (t *Tokenizer) wordPiece(w string) ([]int64, [][2]int) {
	if utf8.RuneCountInString(w) > maxWordRunes {
		return []int64{t.unk}, [][2]int{{0, len(w)}}
	}

	var (
		ids    []int64
		ranges [][2]int
	)
	start := 0
	for start < len(w) {
		end := len(w)
		found := false
		for end > start {
			key := w[start:end]
			if t.lowercase {
				key = strings.ToLower(key)
			}
			if start > 0 {
				key = "##" + key
			}
			if id, ok := t.vocab[key]; ok {
				ids = append(ids, id)
				ranges = append(ranges, [2]int{start, end})
				found = true
				break
			}
			_, size := utf8.DecodeLastRuneInString(w[start:end])
			end -= size
		}
		if !found {
			return []int64{t.unk}, [][2]int{{0, len(w)}}
		}
		start = end
	}
	return ids, ranges
}

// Encode tokenizes text into a single [CLS] ... [SEP] sequence, truncating
// to the configured maximum length.
func (t *Tokenizer) Encode(text string) Encoding {
	enc := Encoding{}
	enc.Tokens = append(enc.Tokens, Token{ID: t.cls, Start: -1, End: -1, Word: -1})

	limit := t.maxLength - 1
words:
	for wi, w := range splitWords(text) {
		ids, ranges := t.wordPiece(text[w.start:w.end])
		for k, id := range ids {
			if len(enc.Tokens) >= limit {
				enc.Truncated = true
				break words
			}
			enc.Tokens = append(enc.Tokens, Token{
				ID:    id,
				Start: w.start + ranges[k][0],
				End:   w.start + ranges[k][1],
				Word:  wi,
				First: k == 0,
			})
		}
	}

	enc.Tokens = append(enc.Tokens, Token{ID: t.sep, Start: -1, End: -1, Word: -1})

	enc.InputIDs = make([]int64, len(enc.Tokens))
	enc.AttentionMask = make([]int64, len(enc.Tokens))
	enc.TokenTypeIDs = make([]int64, len(enc.Tokens))
	for i, tok := range enc.Tokens {
		enc.InputIDs[i] = tok.ID
		enc.AttentionMask[i] = 1
	}
	return enc
}
