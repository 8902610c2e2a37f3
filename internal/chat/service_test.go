package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gopherchat/gopherchat/internal/assistant"
	"github.com/gopherchat/gopherchat/internal/common"
)

// memStateStore is an in-memory StateStore for tests.
type memStateStore struct {
	mu     sync.Mutex
	states map[string]*State
}

func newMemStateStore() *memStateStore {
	return &memStateStore{states: make(map[string]*State)}
}

func (m *memStateStore) Load(ctx context.Context, sessionID string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[sessionID]
	if !ok {
		return &State{}, nil
	}
	cp := *st
	cp.Buffer.Entries = append([]Entry(nil), st.Buffer.Entries...)
	return &cp, nil
}

func (m *memStateStore) Save(ctx context.Context, sessionID string, st *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *st
	cp.Buffer.Entries = append([]Entry(nil), st.Buffer.Entries...)
	m.states[sessionID] = &cp
	return nil
}

func (m *memStateStore) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sessionID)
	return nil
}

type scriptedProvider struct {
	reply string
	err   error
	last  []assistant.Message
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []assistant.Message) (string, error) {
	p.last = append([]assistant.Message(nil), messages...)
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func newTestService(t *testing.T, prov assistant.Provider, window int) (*Service, *Repo) {
	t.Helper()
	db := openTestDB(t)
	repo := NewRepo(db)
	bot := assistant.NewBot(prov, time.Second, "")
	return NewService(repo, newMemStateStore(), bot, window), repo
}

func TestSendMessage_PersistsTurnAndRenames(t *testing.T) {
	prov := &scriptedProvider{reply: "hello there"}
	svc, repo := newTestService(t, prov, 20)
	ctx := context.Background()

	c, err := svc.StartChat(ctx, 1, "sid")
	if err != nil {
		t.Fatalf("start chat: %v", err)
	}

	view, err := svc.SendMessage(ctx, 1, "sid", c.ID, "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(view.Messages) != 2 {
		t.Fatalf("expected 2 messages in view, got %d", len(view.Messages))
	}
	if view.Name != "hi" {
		t.Fatalf("expected chat renamed to %q, got %q", "hi", view.Name)
	}

	stored, err := repo.ListMessages(ctx, c.ID, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 2 || stored[0].Role != RoleUser || stored[1].Role != RoleAssistant {
		t.Fatalf("unexpected stored rows: %+v", stored)
	}
}

func TestSendMessage_EmptyText(t *testing.T) {
	svc, _ := newTestService(t, &scriptedProvider{reply: "x"}, 20)

	_, err := svc.SendMessage(context.Background(), 1, "sid", NoChat, "   ")
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSendMessage_UpstreamFailureLeavesStoreUntouched(t *testing.T) {
	prov := &scriptedProvider{err: errors.New("model exploded")}
	svc, repo := newTestService(t, prov, 20)
	ctx := context.Background()

	c, err := svc.StartChat(ctx, 1, "sid")
	if err != nil {
		t.Fatalf("start chat: %v", err)
	}

	_, err = svc.SendMessage(ctx, 1, "sid", c.ID, "hi")
	if !errors.Is(err, common.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}

	stored, err := repo.ListMessages(ctx, c.ID, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("failed turn must persist nothing, got %d rows", len(stored))
	}
}

func TestSendMessage_ForeignChat(t *testing.T) {
	svc, _ := newTestService(t, &scriptedProvider{reply: "x"}, 20)
	ctx := context.Background()

	c, err := svc.StartChat(ctx, 1, "sid-owner")
	if err != nil {
		t.Fatalf("start chat: %v", err)
	}

	_, err = svc.SendMessage(ctx, 2, "sid-intruder", c.ID, "hi")
	if !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSendMessage_ContextWindowBoundsPrompt(t *testing.T) {
	prov := &scriptedProvider{reply: "ok"}
	window := 3
	svc, _ := newTestService(t, prov, window)
	ctx := context.Background()

	c, err := svc.StartChat(ctx, 1, "sid")
	if err != nil {
		t.Fatalf("start chat: %v", err)
	}

	for _, text := range []string{"one", "two", "three"} {
		if _, err := svc.SendMessage(ctx, 1, "sid", c.ID, text); err != nil {
			t.Fatalf("send %q: %v", text, err)
		}
	}

	// last prompt: window entries of history plus the new user input
	if len(prov.last) != window+1 {
		t.Fatalf("expected %d prompt messages, got %d", window+1, len(prov.last))
	}
	last := prov.last[len(prov.last)-1]
	if last.Role != assistant.RoleUser || last.Content != "three" {
		t.Fatalf("prompt must end with the new user message, got %+v", last)
	}
}

func TestSendMessage_ResetCommandClearsBuffer(t *testing.T) {
	prov := &scriptedProvider{reply: "hello"}
	svc, repo := newTestService(t, prov, 20)
	ctx := context.Background()

	c, err := svc.StartChat(ctx, 1, "sid")
	if err != nil {
		t.Fatalf("start chat: %v", err)
	}
	if _, err := svc.SendMessage(ctx, 1, "sid", c.ID, "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}

	view, err := svc.SendMessage(ctx, 1, "sid", c.ID, "/reset")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if view.Note == "" {
		t.Fatalf("expected a command note")
	}
	// the reconcile after /reset hydrates the emptied buffer from the store,
	// so history is not lost, just refetched
	if len(view.Messages) != 2 {
		t.Fatalf("stored history must survive /reset, got %d", len(view.Messages))
	}

	stored, err := repo.ListMessages(ctx, c.ID, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("/reset must not add rows, got %d", len(stored))
	}
}

func TestViewChat_SwitchingChatsResetsBufferAndRecoversHistory(t *testing.T) {
	prov := &scriptedProvider{reply: "answer"}
	svc, _ := newTestService(t, prov, 20)
	ctx := context.Background()

	first, err := svc.StartChat(ctx, 1, "sid")
	if err != nil {
		t.Fatalf("start first: %v", err)
	}
	if _, err := svc.SendMessage(ctx, 1, "sid", first.ID, "about go"); err != nil {
		t.Fatalf("send: %v", err)
	}

	second, err := svc.StartChat(ctx, 1, "sid")
	if err != nil {
		t.Fatalf("start second: %v", err)
	}
	view, err := svc.ViewChat(ctx, 1, "sid", second.ID)
	if err != nil {
		t.Fatalf("view second: %v", err)
	}
	if len(view.Messages) != 0 {
		t.Fatalf("new chat must start empty, got %+v", view.Messages)
	}

	// switching back recovers the first chat's history from the store
	view, err = svc.ViewChat(ctx, 1, "sid", first.ID)
	if err != nil {
		t.Fatalf("view first: %v", err)
	}
	if len(view.Messages) != 2 || view.Messages[0].Content != "about go" {
		t.Fatalf("expected recovered history, got %+v", view.Messages)
	}
	if view.Name != "about go" {
		t.Fatalf("expected name %q, got %q", "about go", view.Name)
	}
}

func TestViewChat_IsIdempotent(t *testing.T) {
	prov := &scriptedProvider{reply: "answer"}
	svc, repo := newTestService(t, prov, 20)
	ctx := context.Background()

	c, err := svc.StartChat(ctx, 1, "sid")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.SendMessage(ctx, 1, "sid", c.ID, "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.ViewChat(ctx, 1, "sid", c.ID); err != nil {
			t.Fatalf("view %d: %v", i, err)
		}
	}

	stored, err := repo.ListMessages(ctx, c.ID, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("repeated views must not duplicate rows, got %d", len(stored))
	}
}

func TestDeleteChat_FallsBackToMostRecent(t *testing.T) {
	prov := &scriptedProvider{reply: "answer"}
	svc, repo := newTestService(t, prov, 20)
	ctx := context.Background()

	older, err := svc.StartChat(ctx, 1, "sid")
	if err != nil {
		t.Fatalf("start older: %v", err)
	}
	newer, err := svc.StartChat(ctx, 1, "sid")
	if err != nil {
		t.Fatalf("start newer: %v", err)
	}
	if _, err := svc.SendMessage(ctx, 1, "sid", newer.ID, "doomed"); err != nil {
		t.Fatalf("send: %v", err)
	}

	next, err := svc.DeleteChat(ctx, 1, "sid", newer.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if next != older.ID {
		t.Fatalf("expected fallback to chat %d, got %d", older.ID, next)
	}

	// messages are gone with the chat
	msgs, err := repo.ListMessages(ctx, newer.ID, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("delete must cascade to messages, %d left", len(msgs))
	}

	// deleting the last chat leaves the session with no chat selected
	next, err = svc.DeleteChat(ctx, 1, "sid", older.ID)
	if err != nil {
		t.Fatalf("delete older: %v", err)
	}
	if next != NoChat {
		t.Fatalf("expected NoChat, got %d", next)
	}
}

func TestDeleteChat_ForeignChat(t *testing.T) {
	svc, _ := newTestService(t, &scriptedProvider{reply: "x"}, 20)
	ctx := context.Background()

	c, err := svc.StartChat(ctx, 1, "sid")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := svc.DeleteChat(ctx, 2, "sid-2", c.ID); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestGenerateAssistantReplyAndInsert(t *testing.T) {
	prov := &scriptedProvider{reply: "from the worker"}
	svc, repo := newTestService(t, prov, 20)
	ctx := context.Background()

	c, err := svc.StartChat(ctx, 1, "sid")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.InsertUserMessage(ctx, 1, c.ID, "async question"); err != nil {
		t.Fatalf("insert user message: %v", err)
	}

	reply, msgID, err := svc.GenerateAssistantReplyAndInsert(ctx, 1, c.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "from the worker" || msgID == 0 {
		t.Fatalf("unexpected result reply=%q id=%d", reply, msgID)
	}

	stored, err := repo.ListMessages(ctx, c.ID, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 2 || stored[1].Role != RoleAssistant {
		t.Fatalf("unexpected rows: %+v", stored)
	}

	// the requesting session recovers the worker's row on its next view
	view, err := svc.ViewChat(ctx, 1, "sid", c.ID)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(view.Messages) != 2 || view.Messages[1].Content != "from the worker" {
		t.Fatalf("expected worker reply in view, got %+v", view.Messages)
	}
}
