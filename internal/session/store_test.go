package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gopherchat/gopherchat/internal/chat"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, time.Hour), mr
}

func TestLoad_FreshSession(t *testing.T) {
	store, _ := newTestStore(t)

	st, err := store.Load(context.Background(), "sid-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.ActiveChatID != chat.NoChat {
		t.Fatalf("fresh session should have no chat selected, got %d", st.ActiveChatID)
	}
	if st.Buffer.Len() != 0 {
		t.Fatalf("fresh session should have empty buffer")
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	st := &chat.State{ActiveChatID: 7}
	st.Buffer.Append(chat.RoleUser, "hi")
	st.Buffer.Append(chat.RoleAssistant, "hello")

	if err := store.Save(ctx, "sid-1", st); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load(ctx, "sid-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ActiveChatID != 7 {
		t.Fatalf("expected active chat 7, got %d", got.ActiveChatID)
	}
	if got.Buffer.Len() != 2 {
		t.Fatalf("expected 2 buffer entries, got %d", got.Buffer.Len())
	}
	if got.Buffer.Entries[0].Content != "hi" || got.Buffer.Entries[1].Content != "hello" {
		t.Fatalf("buffer order lost: %+v", got.Buffer.Entries)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	a := &chat.State{ActiveChatID: 1}
	a.Buffer.Append(chat.RoleUser, "alice says")
	if err := store.Save(ctx, "sid-a", a); err != nil {
		t.Fatalf("save a: %v", err)
	}

	b, err := store.Load(ctx, "sid-b")
	if err != nil {
		t.Fatalf("load b: %v", err)
	}
	if b.ActiveChatID != chat.NoChat || b.Buffer.Len() != 0 {
		t.Fatalf("session b must not see session a's state: %+v", b)
	}
}

func TestClear(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	st := &chat.State{ActiveChatID: 3}
	if err := store.Save(ctx, "sid-1", st); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Clear(ctx, "sid-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	got, err := store.Load(ctx, "sid-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ActiveChatID != chat.NoChat {
		t.Fatalf("cleared session should be fresh")
	}
}

func TestStateExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	st := &chat.State{ActiveChatID: 3}
	if err := store.Save(ctx, "sid-1", st); err != nil {
		t.Fatalf("save: %v", err)
	}

	mr.FastForward(2 * time.Hour)

	got, err := store.Load(ctx, "sid-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ActiveChatID != chat.NoChat {
		t.Fatalf("expired session should come back fresh")
	}
}

func TestLoad_CorruptStateDropped(t *testing.T) {
	store, mr := newTestStore(t)

	mr.Set("chat:state:sid-1", "{not json")

	got, err := store.Load(context.Background(), "sid-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ActiveChatID != chat.NoChat || got.Buffer.Len() != 0 {
		t.Fatalf("corrupt state should be replaced with a fresh one")
	}
}
