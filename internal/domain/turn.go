package domain

// Turn is one completed question/answer exchange persisted by the tutoring
// service.
type Turn struct {
	PK             string
	SK             string
	ConversationID string
	Question       string
	Answer         string
	TTL            int64
}

// ConversationMeta stores aggregate server-side conversation state.
type ConversationMeta struct {
	PK             string
	SK             string
	ConversationID string
	LastActivity   string
	Turns          int
	TTL            int64
}
