package chat

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/gopherchat/gopherchat/internal/common"
)

// Reconciler keeps the session store and a conversation buffer consistent
// for the chat currently being viewed, and keeps the chat's display name
// fresh. Every call runs its writes inside one transaction: a mid-merge
// failure rolls back and leaves previously committed rows untouched.
type Reconciler struct {
	repo *Repo
}

func NewReconciler(repo *Repo) *Reconciler {
	return &Reconciler{repo: repo}
}

// Reconcile merges the buffer into the store and the store back into the
// buffer, renames the chat after the most recently created user message,
// and returns the merged history in insertion order.
//
// chatID == NoChat means no chat is selected yet: the store is not touched
// and the buffer is returned as-is. The operation is idempotent: a second
// call with an unchanged buffer writes nothing.
func (r *Reconciler) Reconcile(ctx context.Context, chatID, userID uint64, buf *Buffer) ([]Entry, error) {
	if chatID == NoChat {
		return buf.Snapshot(), nil
	}

	c, err := r.repo.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: chat %d", common.ErrNotFound, chatID)
		}
		return nil, fmt.Errorf("load chat %d: %w", chatID, err)
	}
	if c.UserID != userID {
		return nil, fmt.Errorf("%w: chat %d does not belong to user %d", common.ErrUnauthorized, chatID, userID)
	}

	var merged []Entry
	err = r.repo.Transaction(ctx, func(tx *Repo) error {
		stored, err := tx.ListMessages(ctx, chatID, userID)
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}

		// Drain buffer entries missing from the store, in buffer order.
		// Freshly inserted rows join the local view so later comparisons
		// see them.
		lastUserContent := ""
		for _, e := range buf.Snapshot() {
			if storedContains(stored, e.Role, e.Content) {
				continue
			}
			m := &Message{
				ChatID:  chatID,
				UserID:  userID,
				Role:    e.Role,
				Content: e.Content,
			}
			if err := tx.InsertMessage(ctx, m); err != nil {
				return fmt.Errorf("%w: insert message: %v", common.ErrStoreWrite, err)
			}
			stored = append(stored, *m)
			if e.Role == RoleUser {
				lastUserContent = e.Content
			}
		}

		// The display name follows the most recently created user message.
		// Creation order breaks ties, so the last insert above wins.
		if lastUserContent != "" && lastUserContent != c.Name {
			if err := tx.UpdateChatName(ctx, chatID, userID, lastUserContent); err != nil {
				return fmt.Errorf("%w: update chat name: %v", common.ErrStoreWrite, err)
			}
		}

		// Hydrate the buffer with store-only rows so a freshly attached
		// session recovers prior history.
		for _, m := range stored {
			if !buf.Contains(m.Role, m.Content) {
				buf.Append(m.Role, m.Content)
			}
		}

		merged = make([]Entry, 0, len(stored))
		for _, m := range stored {
			merged = append(merged, Entry{Role: m.Role, Content: m.Content})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func storedContains(msgs []Message, role, content string) bool {
	for _, m := range msgs {
		if m.Role == role && m.Content == content {
			return true
		}
	}
	return false
}
