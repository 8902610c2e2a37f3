package chat

import "testing"

func TestStartChat_ClearsBuffer(t *testing.T) {
	st := &State{ActiveChatID: 4}
	st.Buffer.Append(RoleUser, "old talk")

	st.StartChat(9)

	if st.ActiveChatID != 9 {
		t.Fatalf("expected active chat 9, got %d", st.ActiveChatID)
	}
	if st.Buffer.Len() != 0 {
		t.Fatalf("starting a chat must clear the buffer")
	}
}

func TestSelect_DifferentChatClearsBuffer(t *testing.T) {
	st := &State{ActiveChatID: 4}
	st.Buffer.Append(RoleUser, "chat four history")

	st.Select(5)

	if st.ActiveChatID != 5 {
		t.Fatalf("expected active chat 5, got %d", st.ActiveChatID)
	}
	if st.Buffer.Len() != 0 {
		t.Fatalf("switching chats must clear the buffer before reconciliation")
	}
}

func TestSelect_SameChatKeepsBuffer(t *testing.T) {
	st := &State{ActiveChatID: 4}
	st.Buffer.Append(RoleUser, "still here")

	st.Select(4)

	if st.Buffer.Len() != 1 {
		t.Fatalf("re-selecting the active chat must keep the buffer")
	}
}

func TestSelect_FromNoChat(t *testing.T) {
	st := &State{}
	st.Buffer.Append(RoleUser, "floating")

	st.Select(2)

	if st.ActiveChatID != 2 {
		t.Fatalf("expected active chat 2, got %d", st.ActiveChatID)
	}
	if st.Buffer.Len() != 0 {
		t.Fatalf("attaching to a chat from NoChat must clear the buffer")
	}
}

func TestChatDeleted_FallsBackAndClears(t *testing.T) {
	st := &State{ActiveChatID: 4}
	st.Buffer.Append(RoleUser, "doomed")

	st.ChatDeleted(3)
	if st.ActiveChatID != 3 || st.Buffer.Len() != 0 {
		t.Fatalf("expected fallback to 3 with empty buffer, got %+v", st)
	}

	st.ChatDeleted(NoChat)
	if st.ActiveChatID != NoChat {
		t.Fatalf("expected NoChat when nothing remains")
	}
}
