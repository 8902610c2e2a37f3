package chat

// NoChat is the sentinel chat id meaning no chat is selected yet.
const NoChat uint64 = 0

// State is one browser session's view of the chat UI: which chat is active
// and the conversation buffer for it. It is stored per session token, never
// process-wide, so concurrent users cannot see each other's conversations.
type State struct {
	ActiveChatID uint64 `json:"active_chat_id"`
	Buffer       Buffer `json:"buffer"`
}

// StartChat activates a freshly created chat. The buffer is always cleared:
// a new chat starts with an empty conversation.
func (s *State) StartChat(chatID uint64) {
	s.ActiveChatID = chatID
	s.Buffer.Reset()
}

// Select makes chatID the active chat. Switching away from another chat
// clears the buffer before any reconciliation runs, so history cannot leak
// across chats. Re-selecting the active chat keeps the buffer.
func (s *State) Select(chatID uint64) {
	if chatID != s.ActiveChatID {
		s.Buffer.Reset()
	}
	s.ActiveChatID = chatID
}

// ChatDeleted records that the active chat's rows are gone. The session
// falls back to nextChatID (the user's next most recent chat, or NoChat)
// with an empty buffer.
func (s *State) ChatDeleted(nextChatID uint64) {
	s.ActiveChatID = nextChatID
	s.Buffer.Reset()
}
