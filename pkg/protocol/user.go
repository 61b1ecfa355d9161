package protocol

// User is a directory record for an end-user who has interacted with the bot.
// Handle and DisplayName are last-write-wins: every inbound event overwrites
// them with whatever the transport reported.
type User struct {
	ID          string   `json:"id"`
	Handle      string   `json:"handle,omitempty"` // human-readable handle without the @ prefix, may be empty
	DisplayName string   `json:"display_name,omitempty"`
	Channel     string   `json:"channel"` // connector the user talks through (e.g. "telegram")
	ChatID      string   `json:"chat_id"` // delivery destination on that connector
	Tickets     []string `json:"tickets"` // ticket ids in creation order
	Active      string   `json:"active_ticket,omitempty"`
}
