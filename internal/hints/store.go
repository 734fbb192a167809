// Package hints remembers how transactions were classified when they were
// pushed, so that later transactions with a similar description can be
// pre-filled.
package hints

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned when no hint exists for a pattern.
var ErrNotFound = errors.New("hint not found")

const bucketHints = "hints"

// Classification is the user-chosen part of a push.
type Classification struct {
	Type          models.RemoteType `json:"type" yaml:"type"`
	CategoryID    string            `json:"category_id,omitempty" yaml:"category_id"`
	CategoryName  string            `json:"category_name,omitempty" yaml:"category_name"`
	ContactID     string            `json:"contact_id,omitempty" yaml:"contact_id"`
	ContactName   string            `json:"contact_name,omitempty" yaml:"contact_name"`
	PaymentMethod string            `json:"payment_method,omitempty" yaml:"payment_method"`
}

// Hint is the last classification used for a description pattern and how
// often the pattern has been seen.
type Hint struct {
	Pattern        string         `json:"pattern"`
	Classification Classification `json:"classification"`
	Uses           int            `json:"uses"`
	LastUsed       time.Time      `json:"last_used"`
}

// Store keeps hints in a bbolt file, one bucket per entity.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the hint database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create hint directory: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open hint database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketHints))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", bucketHints, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores c as the latest classification for the description's
// pattern within an entity and bumps its usage count.
func (s *Store) Record(entityID uuid.UUID, description string, c Classification) error {
	pattern := Pattern(description)
	if pattern == "" {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket([]byte(bucketHints)).CreateBucketIfNotExists(entityID[:])
		if err != nil {
			return err
		}

		hint := Hint{Pattern: pattern}
		if data := b.Get([]byte(pattern)); data != nil {
			if err := json.Unmarshal(data, &hint); err != nil {
				return fmt.Errorf("failed to unmarshal hint: %w", err)
			}
		}
		hint.Classification = c
		hint.Uses++
		hint.LastUsed = time.Now().UTC()

		data, err := json.Marshal(hint)
		if err != nil {
			return fmt.Errorf("failed to marshal hint: %w", err)
		}
		return b.Put([]byte(pattern), data)
	})
}

// Lookup returns the hint for the description's pattern.
func (s *Store) Lookup(entityID uuid.UUID, description string) (*Hint, error) {
	pattern := Pattern(description)
	if pattern == "" {
		return nil, ErrNotFound
	}

	var hint Hint
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketHints)).Bucket(entityID[:])
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(pattern))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &hint)
	})
	if err != nil {
		return nil, err
	}
	return &hint, nil
}

var nonLetters = regexp.MustCompile(`[^\p{L}\s]+`)

const patternWords = 3

// Pattern reduces a bank description to a stable key: upper case, digits and
// punctuation dropped, first three words. "POS 1234 STARBUCKS #88 SEATTLE"
// and "POS 9876 STARBUCKS #12 SEATTLE" share a pattern.
func Pattern(description string) string {
	s := nonLetters.ReplaceAllString(strings.ToUpper(description), " ")
	words := strings.Fields(s)
	if len(words) > patternWords {
		words = words[:patternWords]
	}
	return strings.Join(words, " ")
}
