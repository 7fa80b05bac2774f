package ner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raaihank/lexmask/internal/config"
	"github.com/raaihank/lexmask/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRecognizer struct {
	entities Entities
}

func (staticRecognizer) Ready() bool { return true }

func (s staticRecognizer) Recognize(context.Context, string) (Entities, error) {
	return s.entities, nil
}

func waitDone(t *testing.T, a *Async) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("recognizer did not finish loading")
	}
}

func TestAsyncBecomesReady(t *testing.T) {
	release := make(chan struct{})
	want := Entities{People: []string{"Jane Doe"}}

	a := NewAsync(context.Background(), func(context.Context) (Recognizer, error) {
		<-release
		return staticRecognizer{entities: want}, nil
	}, logger.Nop())

	assert.False(t, a.Ready())
	_, err := a.Recognize(context.Background(), "Jane Doe")
	assert.ErrorIs(t, err, ErrNotReady)

	close(release)
	waitDone(t, a)

	assert.True(t, a.Ready())
	assert.False(t, a.Failed())
	got, err := a.Recognize(context.Background(), "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAsyncLoadFailure(t *testing.T) {
	a := NewAsync(context.Background(), func(context.Context) (Recognizer, error) {
		return nil, errors.New("model missing")
	}, logger.Nop())
	waitDone(t, a)

	assert.True(t, a.Failed())
	assert.False(t, a.Ready())
	_, err := a.Recognize(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestNewDisabled(t *testing.T) {
	r := New(context.Background(), config.NERConfig{Enabled: false}, logger.Nop())
	assert.False(t, r.Ready())
}

func TestHTTPRecognizer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/ner", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		assert.Equal(t, "John Smith works at Acme", req["text"])
		_ = json.NewEncoder(w).Encode(Entities{People: []string{"John Smith"}, Organizations: []string{"Acme"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := NewHTTPRecognizer(config.NERConfig{URL: srv.URL + "/ner", HealthURL: srv.URL + "/health"})
	assert.False(t, h.Ready())
	require.NoError(t, h.WaitReady(context.Background(), 10*time.Millisecond))
	assert.True(t, h.Ready())

	got, err := h.Recognize(context.Background(), "John Smith works at Acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"John Smith"}, got.People)
	assert.Equal(t, []string{"Acme"}, got.Organizations)
}

func TestHTTPRecognizerUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h := NewHTTPRecognizer(config.NERConfig{URL: srv.URL, HealthURL: srv.URL})
	assert.Error(t, h.Probe(context.Background()))
	assert.False(t, h.Ready())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.WaitReady(ctx, 10*time.Millisecond), context.DeadlineExceeded)

	_, err := h.Recognize(context.Background(), "text")
	assert.Error(t, err)
}

func testTokenizer(t *testing.T, maxLength int) *Tokenizer {
	t.Helper()
	vocab := map[string]int64{
		"[PAD]": 0, "[UNK]": 1, "[CLS]": 2, "[SEP]": 3,
		"John": 4, "Smith": 5, "works": 6, "at": 7, "Ac": 8, "##me": 9, "Corp": 10, ".": 11,
	}
	tok, err := NewTokenizer(vocab, maxLength, false)
	require.NoError(t, err)
	return tok
}

func TestTokenizerOffsets(t *testing.T) {
	text := "John Smith works at Acme Corp."
	enc := testTokenizer(t, 64).Encode(text)

	require.Len(t, enc.Tokens, 10)
	assert.Equal(t, []int64{2, 4, 5, 6, 7, 8, 9, 10, 11, 3}, enc.InputIDs)
	assert.False(t, enc.Truncated)

	acme := enc.Tokens[5]
	assert.Equal(t, "Ac", text[acme.Start:acme.End])
	assert.True(t, acme.First)
	me := enc.Tokens[6]
	assert.Equal(t, "me", text[me.Start:me.End])
	assert.False(t, me.First)
	assert.Equal(t, acme.Word, me.Word)
	assert.Equal(t, ".", text[enc.Tokens[8].Start:enc.Tokens[8].End])
}

func TestTokenizerUnknownAndTruncation(t *testing.T) {
	tok := testTokenizer(t, 4)

	enc := tok.Encode("Zed works at Acme")
	require.Len(t, enc.Tokens, 4)
	assert.True(t, enc.Truncated)
	assert.Equal(t, []int64{2, 1, 6, 3}, enc.InputIDs)
	assert.Equal(t, 0, enc.Tokens[1].Start)
	assert.Equal(t, 3, enc.Tokens[1].End)
}

func TestTokenizerMultibyteWordPieces(t *testing.T) {
	vocab := map[string]int64{"[PAD]": 0, "[UNK]": 1, "[CLS]": 2, "[SEP]": 3, "Zo": 4, "##ë": 5, "Mü": 6, "##ller": 7}
	tok, err := NewTokenizer(vocab, 16, false)
	require.NoError(t, err)

	text := "Zoë Müller"
	enc := tok.Encode(text)
	assert.Equal(t, []int64{2, 4, 5, 6, 7, 3}, enc.InputIDs)
	assert.Equal(t, "ë", text[enc.Tokens[2].Start:enc.Tokens[2].End])
	assert.Equal(t, "Mü", text[enc.Tokens[3].Start:enc.Tokens[3].End])
}

func TestNewTokenizerRequiresSpecialTokens(t *testing.T) {
	_, err := NewTokenizer(map[string]int64{"[CLS]": 0}, 16, false)
	assert.Error(t, err)
}

func TestDecodeBIO(t *testing.T) {
	text := "John Smith works at Acme Corp."
	enc := testTokenizer(t, 64).Encode(text)
	labels := []string{"O", "B-PER", "I-PER", "B-ORG", "I-ORG"}
	//            CLS John Smith works at Ac ##me Corp . SEP
	ids := []int{0, 1, 2, 0, 0, 3, 0, 4, 0, 0}

	spans := DecodeBIO(enc, ids, labels)
	require.Len(t, spans, 2)

	got := entitiesFromSpans(text, spans)
	assert.Equal(t, []string{"John Smith"}, got.People)
	assert.Equal(t, []string{"Acme Corp"}, got.Organizations)
}

func TestDecodeBIOStartsNewEntityOnB(t *testing.T) {
	text := "John Smith works"
	enc := testTokenizer(t, 64).Encode(text)
	labels := []string{"O", "B-PER", "I-PER"}
	ids := []int{0, 1, 1, 0, 0}

	got := entitiesFromSpans(text, DecodeBIO(enc, ids, labels))
	assert.Equal(t, []string{"John", "Smith"}, got.People)
}

func TestArgmax(t *testing.T) {
	data := []float32{
		0.1, 0.9, 0.0,
		2.0, -1, 1.5,
	}
	assert.Equal(t, []int{1, 0}, argmax(data, 2, 3))
}
