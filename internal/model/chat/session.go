package chat

import "time"

// Session tracks a server-side conversation history keyed by the client's session id.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
