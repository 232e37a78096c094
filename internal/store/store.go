package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"mentor-ai/internal/domain"
)

// DefaultKey is the slot key the conversation list is stored under.
const DefaultKey = "mentorAI-conversations"

// Store reads and writes the full conversation list to a Slot. Every mutation
// rewrites the whole list.
type Store struct {
	slot   Slot
	key    string
	logger *slog.Logger
	newID  func() string
	now    func() time.Time
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if k := strings.TrimSpace(key); k != "" {
			s.key = k
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides conversation id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// New returns a Store backed by slot.
func New(slot Slot, opts ...Option) (*Store, error) {
	if slot == nil {
		return nil, errors.New("store: slot must not be nil")
	}
	s := &Store{
		slot:   slot,
		key:    DefaultKey,
		logger: slog.Default(),
		newID:  NewID,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "store", "key", s.key)
	return s, nil
}

// Load returns the persisted conversations. A missing or unreadable slot
// yields an empty list; the failure is logged, never returned.
func (s *Store) Load() []domain.Conversation {
	raw, err := s.slot.Read(s.key)
	if err != nil {
		if !errors.Is(err, ErrSlotEmpty) {
			s.logger.Error("failed to read saved conversations", "err", err)
		}
		return []domain.Conversation{}
	}

	var convs []domain.Conversation
	if err := json.Unmarshal(raw, &convs); err != nil {
		s.logger.Error("failed to parse saved conversations", "err", err)
		return []domain.Conversation{}
	}

	out := make([]domain.Conversation, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.Clone())
	}
	return out
}

// Save overwrites the slot with all.
func (s *Store) Save(all []domain.Conversation) error {
	if all == nil {
		all = []domain.Conversation{}
	}
	raw, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("store: marshal conversations: %w", err)
	}
	if err := s.slot.Write(s.key, raw); err != nil {
		return fmt.Errorf("store: save: %w", err)
	}
	return nil
}

// CreateNew builds an unsaved conversation, optionally seeded with first.
func (s *Store) CreateNew(first *domain.Message) domain.Conversation {
	conv := domain.Conversation{
		ID:        s.newID(),
		Title:     domain.PlaceholderTitle,
		Messages:  []domain.Message{},
		CreatedAt: s.now(),
	}
	if first != nil {
		conv.Messages = append(conv.Messages, *first)
		if first.Text != "" {
			conv.Title = domain.TitleFromText(first.Text)
		}
	}
	return conv
}

// Upsert replaces the conversation with the same id in place, or prepends conv
// when it is new, then persists the result. The returned list is valid even
// when persisting fails.
func (s *Store) Upsert(conv domain.Conversation, all []domain.Conversation) ([]domain.Conversation, error) {
	updated := make([]domain.Conversation, 0, len(all)+1)
	replaced := false
	for _, c := range all {
		if c.ID == conv.ID {
			updated = append(updated, conv.Clone())
			replaced = true
			continue
		}
		updated = append(updated, c)
	}
	if !replaced {
		updated = append([]domain.Conversation{conv.Clone()}, updated...)
	}
	return updated, s.Save(updated)
}

// Remove drops the conversation with id and persists the result. An unknown
// id still rewrites the slot.
func (s *Store) Remove(id string, all []domain.Conversation) ([]domain.Conversation, error) {
	updated := make([]domain.Conversation, 0, len(all))
	for _, c := range all {
		if c.ID != id {
			updated = append(updated, c)
		}
	}
	return updated, s.Save(updated)
}

// NewID returns a short base-36 token drawn from a random UUID. Uniqueness is
// best effort.
func NewID() string {
	u := uuid.New()
	return strconv.FormatUint(binary.BigEndian.Uint64(u[8:]), 36)
}
