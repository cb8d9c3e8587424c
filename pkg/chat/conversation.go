package chat

// ConversationSummary is a lightweight listing entry used to populate a
// conversation list. It carries no message bodies. The full transcript of
// a conversation is held as a plain message list; order is append-only.
type ConversationSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Turn is the wire form of a message sent to the relay: role and content
// only, no client-side identity.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turns converts a message list to wire form. System messages are passed
// through; the relay prepends its own persona regardless.
func Turns(messages []*Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, Turn{Role: string(m.Role), Content: m.Content})
	}
	return turns
}
