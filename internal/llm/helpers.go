// In file: internal/llm/helpers.go

// Package llm contains the upstream model plumbing: the client interface,
// provider clients, the model catalog and selector, availability probing and
// the guard that bounds every remote call.
package llm

// Conversation builds the common system + user message pair.
func Conversation(system, user string, images ...Image) []Message {
	msgs := make([]Message, 0, 2)
	if system != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: user, Images: images})
	return msgs
}
