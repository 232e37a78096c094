package domain

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape sent to LLM
// integrations when assembling a tutoring prompt.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
