package chat

// Role is the speaker of a model-facing turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the history sent to the language model.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
