package chat

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"mentor-ai/internal/domain"
)

// ErrorMessage is the user-facing text for any failed question.
const ErrorMessage = "Failed to get a response. Please try again."

// Asker is the question-answering capability.
type Asker interface {
	Ask(ctx context.Context, question, conversationID string) (domain.Answer, error)
}

// ConversationStore is what the controller needs from persistence.
type ConversationStore interface {
	Load() []domain.Conversation
	CreateNew(first *domain.Message) domain.Conversation
	Upsert(conv domain.Conversation, all []domain.Conversation) ([]domain.Conversation, error)
	Remove(id string, all []domain.Conversation) ([]domain.Conversation, error)
}

// Controller holds the conversation list and the active conversation.
type Controller struct {
	store  ConversationStore
	asker  Asker
	logger *slog.Logger

	mu            sync.Mutex
	conversations []domain.Conversation
	active        *domain.Conversation
	loading       bool
	lastErr       string
	lastErrKind   domain.ErrorKind
	listeners     []func(State)

	// pending holds ids of chats created by NewChat that have no message yet.
	// They live in memory only.
	pending map[string]bool
}

// New returns a Controller. Call Initialize before use.
func New(store ConversationStore, asker Asker, logger *slog.Logger) (*Controller, error) {
	if store == nil {
		return nil, errors.New("chat: conversation store must not be nil")
	}
	if asker == nil {
		return nil, errors.New("chat: asker must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:         store,
		asker:         asker,
		logger:        logger.With("component", "chat"),
		conversations: []domain.Conversation{},
		pending:       map[string]bool{},
	}, nil
}

// Subscribe registers fn to receive a snapshot after every state change.
func (c *Controller) Subscribe(fn func(State)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Initialize loads saved conversations and activates the most recent one, or
// starts a new chat when none are saved.
func (c *Controller) Initialize() {
	loaded := c.store.Load()

	c.mu.Lock()
	c.conversations = loaded
	c.pending = map[string]bool{}
	if len(loaded) == 0 {
		c.newChatLocked()
	} else {
		c.setActiveLocked(loaded[0])
	}
	c.logger.Info("conversations loaded", "count", len(loaded))
	c.unlockAndNotify()
}

// NewChat starts an empty conversation and makes it active. It is not
// persisted until it receives a message.
func (c *Controller) NewChat() {
	c.mu.Lock()
	c.newChatLocked()
	c.unlockAndNotify()
}

// SelectConversation activates the conversation with id. Unknown ids are ignored.
func (c *Controller) SelectConversation(id string) {
	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	c.setActiveLocked(c.conversations[i])
	c.unlockAndNotify()
}

// SendMessage appends text to the active conversation, asks the question, and
// appends the answer. Blank text, or no active conversation, is a no-op.
// Failures are recorded on the state and never returned.
func (c *Controller) SendMessage(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return
	}
	conv := c.active.Clone()
	conv.Messages = append(conv.Messages, domain.Message{IsUser: true, Text: text})
	if len(conv.Messages) == 1 {
		conv.Title = domain.TitleFromText(text)
	}
	c.persistLocked(conv)
	c.setActiveLocked(conv)
	c.loading = true
	c.lastErr = ""
	c.lastErrKind = ""
	c.unlockAndNotify()

	answer, err := c.asker.Ask(ctx, text, conv.BackendConversationID)

	c.mu.Lock()
	defer c.unlockAndNotify()
	c.loading = false

	if err != nil {
		c.lastErr = ErrorMessage
		c.lastErrKind = domain.KindOf(err)
		c.logger.Error("question failed", "conversation_id", conv.ID, "kind", c.lastErrKind, "err", err)
		return
	}

	if c.indexLocked(conv.ID) < 0 {
		c.logger.Warn("dropping answer for removed conversation", "conversation_id", conv.ID)
		return
	}

	final := conv.Clone()
	final.Messages = append(final.Messages, domain.Message{IsUser: false, Text: answer.Answer})
	if answer.ConversationID != "" {
		final.BackendConversationID = answer.ConversationID
	}
	c.persistLocked(final)
	if c.active != nil && c.active.ID == final.ID {
		c.setActiveLocked(final)
	}
}

// ClearChat replaces the active conversation with a new empty one. The
// previous conversation is removed from the list and from storage.
func (c *Controller) ClearChat() {
	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return
	}
	c.removeLocked(c.active.ID)
	c.newChatLocked()
	c.unlockAndNotify()
}

// DeleteConversation removes the conversation with id. When it was active the
// head of the remaining list becomes active, or a new chat is started.
func (c *Controller) DeleteConversation(id string) {
	c.mu.Lock()
	wasActive := c.active != nil && c.active.ID == id
	c.removeLocked(id)
	if wasActive {
		if len(c.conversations) > 0 {
			c.setActiveLocked(c.conversations[0])
		} else {
			c.newChatLocked()
		}
	}
	c.unlockAndNotify()
}

func (c *Controller) newChatLocked() {
	conv := c.store.CreateNew(nil)
	c.pending[conv.ID] = true
	c.conversations = append([]domain.Conversation{conv}, c.conversations...)
	c.setActiveLocked(conv)
}

func (c *Controller) setActiveLocked(conv domain.Conversation) {
	cp := conv.Clone()
	c.active = &cp
}

// persistLocked upserts conv. Pending chats are left out of the stored
// snapshot but keep their place in memory.
func (c *Controller) persistLocked(conv domain.Conversation) {
	delete(c.pending, conv.ID)
	saved, err := c.store.Upsert(conv, c.savedLocked())
	if err != nil {
		c.logger.Error("failed to save conversation", "conversation_id", conv.ID, "err", err)
	}
	c.conversations = c.mergeLocked(saved, "")
}

func (c *Controller) removeLocked(id string) {
	delete(c.pending, id)
	saved, err := c.store.Remove(id, c.savedLocked())
	if err != nil {
		c.logger.Error("failed to remove conversation", "conversation_id", id, "err", err)
	}
	c.conversations = c.mergeLocked(saved, id)
}

func (c *Controller) savedLocked() []domain.Conversation {
	out := make([]domain.Conversation, 0, len(c.conversations))
	for _, conv := range c.conversations {
		if !c.pending[conv.ID] {
			out = append(out, conv)
		}
	}
	return out
}

// mergeLocked rebuilds the in-memory list from the stored one, keeping pending
// chats where they were and dropping removed.
func (c *Controller) mergeLocked(saved []domain.Conversation, removed string) []domain.Conversation {
	byID := make(map[string]domain.Conversation, len(saved))
	out := make([]domain.Conversation, 0, len(saved)+len(c.pending))
	for _, conv := range saved {
		byID[conv.ID] = conv
		if c.indexLocked(conv.ID) < 0 {
			out = append(out, conv)
		}
	}
	for _, conv := range c.conversations {
		if conv.ID == removed {
			continue
		}
		if s, ok := byID[conv.ID]; ok {
			out = append(out, s)
		} else if c.pending[conv.ID] {
			out = append(out, conv)
		}
	}
	return out
}

func (c *Controller) indexLocked(id string) int {
	for i, conv := range c.conversations {
		if conv.ID == id {
			return i
		}
	}
	return -1
}

// unlockAndNotify releases the lock and delivers a snapshot to subscribers
// outside of it.
func (c *Controller) unlockAndNotify() {
	snap := c.snapshotLocked()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}
