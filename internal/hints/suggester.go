package hints

import (
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Source string

const (
	SourceHistory Source = "history"
	SourceRule    Source = "rule"
)

type Suggestion struct {
	Classification
	Source  Source `json:"source"`
	Pattern string `json:"pattern,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Uses    int    `json:"uses,omitempty"`
}

// Suggester looks up past classifications first and falls back to keyword
// rules. Either part may be nil.
type Suggester struct {
	store *Store
	rules *Rules
	log   zerolog.Logger
}

func NewSuggester(store *Store, rules *Rules, log zerolog.Logger) *Suggester {
	return &Suggester{store: store, rules: rules, log: log}
}

// Record never fails: a broken cache must not break the write that fed it.
func (s *Suggester) Record(entityID uuid.UUID, description string, c Classification) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Record(entityID, description, c); err != nil {
		s.log.Warn().Err(err).Str("pattern", Pattern(description)).Msg("failed to record classification hint")
	}
}

func (s *Suggester) Suggest(entityID uuid.UUID, description string) (*Suggestion, bool) {
	if s == nil {
		return nil, false
	}
	if s.store != nil {
		hint, err := s.store.Lookup(entityID, description)
		switch {
		case err == nil:
			return &Suggestion{
				Classification: hint.Classification,
				Source:         SourceHistory,
				Pattern:        hint.Pattern,
				Uses:           hint.Uses,
			}, true
		case !errors.Is(err, ErrNotFound):
			s.log.Warn().Err(err).Msg("failed to read classification hint")
		}
	}
	if rule, ok := s.rules.Match(description); ok {
		return &Suggestion{
			Classification: rule.Classification,
			Source:         SourceRule,
			Rule:           rule.Name,
		}, true
	}
	return nil, false
}
