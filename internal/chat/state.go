package chat

import "mentor-ai/internal/domain"

// State is a copy of the controller state handed to the presentation layer.
type State struct {
	Conversations []domain.Conversation
	Active        *domain.Conversation
	Loading       bool
	Error         string
	ErrorKind     domain.ErrorKind
}

// ActiveID returns the active conversation id, or "" when none is active.
func (s State) ActiveID() string {
	if s.Active == nil {
		return ""
	}
	return s.Active.ID
}

func (c *Controller) snapshotLocked() State {
	convs := make([]domain.Conversation, 0, len(c.conversations))
	for _, conv := range c.conversations {
		convs = append(convs, conv.Clone())
	}
	var active *domain.Conversation
	if c.active != nil {
		cp := c.active.Clone()
		active = &cp
	}
	return State{
		Conversations: convs,
		Active:        active,
		Loading:       c.loading,
		Error:         c.lastErr,
		ErrorKind:     c.lastErrKind,
	}
}
