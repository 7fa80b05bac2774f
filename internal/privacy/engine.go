// Package privacy implements the reversible redaction pipeline: an ordered
// set of detectors whose matches are replaced by alias tokens, and the
// inverse restoration.
package privacy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/raaihank/lexmask/internal/alias"
	"github.com/raaihank/lexmask/internal/config"
	"github.com/raaihank/lexmask/internal/logger"
	"github.com/raaihank/lexmask/internal/ner"
	"go.uber.org/zap"
)

// Engine redacts and restores text against one alias store.
type Engine struct {
	store      *alias.Store
	blacklist  *Blacklist
	recognizer ner.Recognizer
	detectors  []Detector

	mu      sync.RWMutex
	enabled map[string]bool

	config config.PrivacyConfig
	logger *logger.Logger
}

// New creates an engine. recognizer may be nil when NER is not configured.
func New(cfg config.PrivacyConfig, store *alias.Store, blacklist *Blacklist, recognizer ner.Recognizer, log *logger.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("alias store is required")
	}
	if blacklist == nil {
		blacklist = NewBlacklist(nil, "")
	}
	if recognizer == nil {
		recognizer = ner.Unavailable{}
	}
	log = log.WithComponent("privacy")

	suffixes := cfg.OrganizationSuffixes
	if len(suffixes) == 0 {
		suffixes = config.DefaultOrganizationSuffixes
	}

	detectors := []Detector{
		blacklist,
		&entityDetector{recognizer: recognizer, logger: log},
		newOrganizationDetector(suffixes),
	}
	for _, rule := range GetDefaultRules() {
		detectors = append(detectors, ruleDetector{rule: rule})
	}
	detectors = append(detectors, properNounDetector{policy: cfg.ProperNounFallback})

	e := &Engine{
		store:      store,
		blacklist:  blacklist,
		recognizer: recognizer,
		detectors:  detectors,
		enabled:    make(map[string]bool),
		config:     cfg,
		logger:     log,
	}

	if err := e.configureDetectors(cfg.Detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	log.Info("Redaction engine initialized",
		zap.Int("total_detectors", len(e.detectors)),
		zap.Strings("enabled_detectors", e.EnabledDetectors()),
		zap.String("proper_noun_fallback", cfg.ProperNounFallback),
	)

	return e, nil
}

// configureDetectors enables the named detectors. An empty list enables all.
func (e *Engine) configureDetectors(names []string) error {
	for _, d := range e.detectors {
		e.enabled[d.Name()] = len(names) == 0
	}

	for _, name := range names {
		if name == "all" {
			for _, d := range e.detectors {
				e.enabled[d.Name()] = true
			}
			continue
		}
		if _, ok := e.enabled[name]; !ok {
			return fmt.Errorf("unknown detector: %s", name)
		}
		e.enabled[name] = true
	}
	return nil
}

// SetDetectorEnabled toggles a detector by name.
func (e *Engine) SetDetectorEnabled(name string, on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.enabled[name]; !ok {
		return fmt.Errorf("unknown detector: %s", name)
	}
	e.enabled[name] = on
	e.logger.Info("Detector toggled", zap.String("detector", name), zap.Bool("enabled", on))
	return nil
}

// EnabledDetectors lists enabled detectors in pipeline order.
func (e *Engine) EnabledDetectors() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var names []string
	for _, d := range e.detectors {
		if e.enabled[d.Name()] {
			names = append(names, d.Name())
		}
	}
	return names
}

func (e *Engine) isEnabled(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled[name]
}

// Store returns the alias store backing the engine.
func (e *Engine) Store() *alias.Store { return e.store }

// Blacklist returns the user blacklist.
func (e *Engine) Blacklist() *Blacklist { return e.blacklist }

// NERReady reports whether the recognizer is currently usable.
func (e *Engine) NERReady() bool { return e.recognizer.Ready() }

// StripMarkers removes presentation markers left by Reveal.
func (e *Engine) StripMarkers(text string) string {
	if e.config.Marker == "" {
		return text
	}
	return strings.ReplaceAll(text, e.config.Marker, "")
}

// Redact replaces every detected sensitive span with its alias token. The
// only errors are oversized input and alias persistence failures; on error
// no text is returned.
func (e *Engine) Redact(ctx context.Context, text string) (Result, error) {
	if e.config.MaxInputBytes > 0 && len(text) > e.config.MaxInputBytes {
		return Result{}, ErrInputTooLarge
	}

	text = e.StripMarkers(text)
	if !e.config.Enabled {
		return Result{Text: text, Findings: []Finding{}}, nil
	}

	p := &Pass{Text: text}
	findings := make([]Finding, 0)

	for _, d := range e.detectors {
		if !e.isEnabled(d.Name()) {
			continue
		}

		spans := d.Find(ctx, p)
		if len(spans) == 0 {
			continue
		}

		out, counts, err := e.substitute(ctx, p.Text, spans)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", d.Name(), err)
		}
		p.Text = out

		for _, c := range alias.Categories {
			if n := counts[c]; n > 0 {
				findings = append(findings, Finding{Detector: d.Name(), Category: c, Count: n})
				e.logger.Debug("Sensitive spans masked",
					zap.String("detector", d.Name()),
					zap.String("category", string(c)),
					zap.Int("count", n),
				)
			}
		}
	}

	return Result{
		Text:      p.Text,
		WasMasked: len(findings) > 0,
		Findings:  findings,
	}, nil
}

// substitute aliases the accepted spans of text. Spans are taken in the
// order given; one that overlaps an existing token or an already accepted
// span is dropped.
func (e *Engine) substitute(ctx context.Context, text string, spans []Span) (string, map[alias.Category]int, error) {
	taken := alias.TokenPattern.FindAllStringIndex(text, -1)

	accepted := make([]Span, 0, len(spans))
	for _, s := range spans {
		s = trimSpan(text, s)
		if s.Start >= s.End || overlaps(s, taken) {
			continue
		}
		taken = append(taken, []int{s.Start, s.End})
		accepted = append(accepted, s)
	}
	if len(accepted) == 0 {
		return text, nil, nil
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })

	counts := make(map[alias.Category]int)
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range accepted {
		token, err := e.store.GetOrCreate(ctx, text[s.Start:s.End], s.Category)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(text[last:s.Start])
		b.WriteString(token)
		last = s.End
		counts[s.Category]++
	}
	b.WriteString(text[last:])

	return b.String(), counts, nil
}

func trimSpan(text string, s Span) Span {
	if s.Start < 0 {
		s.Start = 0
	}
	if s.End > len(text) {
		s.End = len(text)
	}
	for s.Start < s.End && isSpace(text[s.Start]) {
		s.Start++
	}
	for s.End > s.Start && isSpace(text[s.End-1]) {
		s.End--
	}
	return s
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func overlaps(s Span, ranges [][]int) bool {
	for _, r := range ranges {
		if s.Start < r[1] && r[0] < s.End {
			return true
		}
	}
	return false
}
