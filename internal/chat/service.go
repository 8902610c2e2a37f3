package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/gopherchat/gopherchat/internal/assistant"
	"github.com/gopherchat/gopherchat/internal/common"
)

// StateStore persists per-session chat state (active chat + buffer), keyed
// by the browser session id. Implemented by internal/session on redis.
type StateStore interface {
	Load(ctx context.Context, sessionID string) (*State, error)
	Save(ctx context.Context, sessionID string, st *State) error
	Clear(ctx context.Context, sessionID string) error
}

// Service orchestrates the session store, the reconciler, per-session state
// and the assistant.
type Service struct {
	repo              *Repo
	rec               *Reconciler
	states            StateStore
	bot               *assistant.Bot
	contextWindowSize int
}

func NewService(repo *Repo, states StateStore, bot *assistant.Bot, contextWindowSize int) *Service {
	if contextWindowSize <= 0 || contextWindowSize > 100 {
		contextWindowSize = 20
	}
	return &Service{
		repo:              repo,
		rec:               NewReconciler(repo),
		states:            states,
		bot:               bot,
		contextWindowSize: contextWindowSize,
	}
}

// View is what a chat page render needs: the active chat, its current name
// and the merged message sequence. Note carries command feedback.
type View struct {
	ChatID   uint64  `json:"chat_id"`
	Name     string  `json:"name,omitempty"`
	Messages []Entry `json:"messages"`
	Note     string  `json:"note,omitempty"`
}

func (s *Service) ListChats(ctx context.Context, userID uint64) ([]Chat, error) {
	return s.repo.ListChats(ctx, userID)
}

// StartChat creates a new chat row and makes it the session's active chat
// with an empty buffer.
func (s *Service) StartChat(ctx context.Context, userID uint64, sessionID string) (*Chat, error) {
	c := &Chat{UserID: userID, Name: DefaultChatName}
	if err := s.repo.CreateChat(ctx, c); err != nil {
		return nil, fmt.Errorf("%w: create chat: %v", common.ErrStoreWrite, err)
	}

	st, err := s.states.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st.StartChat(c.ID)
	if err := s.states.Save(ctx, sessionID, st); err != nil {
		return nil, err
	}
	return c, nil
}

// ViewChat is the page-load path: select the chat (clearing the buffer when
// switching), reconcile, and return the merged history.
func (s *Service) ViewChat(ctx context.Context, userID uint64, sessionID string, chatID uint64) (*View, error) {
	st, err := s.states.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st.Select(chatID)

	msgs, err := s.rec.Reconcile(ctx, chatID, userID, &st.Buffer)
	if err != nil {
		return nil, err
	}
	if err := s.states.Save(ctx, sessionID, st); err != nil {
		return nil, err
	}

	view := &View{ChatID: chatID, Messages: msgs}
	if chatID != NoChat {
		if c, err := s.repo.GetChat(ctx, chatID); err == nil {
			view.Name = c.Name
		}
	}
	return view, nil
}

// SendMessage runs one turn: slash commands mutate the buffer locally,
// anything else goes through the assistant. Either way the turn ends with a
// reconcile so new entries are persisted and the chat is renamed. The
// assistant call happens outside any store transaction.
func (s *Service) SendMessage(ctx context.Context, userID uint64, sessionID string, chatID uint64, text string) (*View, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty message", common.ErrValidation)
	}

	if chatID != NoChat {
		if _, err := s.ownedChat(ctx, chatID, userID); err != nil {
			return nil, err
		}
	}

	st, err := s.states.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st.Select(chatID)

	var note string
	if s.bot.IsCommand(text) {
		history, n := s.bot.ExecuteCommand(ctx, text, toAssistantMessages(st.Buffer.Entries))
		st.Buffer.Entries = toEntries(history)
		note = n
	} else {
		window := toAssistantMessages(tail(st.Buffer.Entries, s.contextWindowSize))
		_, reply, err := s.bot.RunInference(ctx, window, text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrUpstream, err)
		}
		st.Buffer.Append(RoleUser, text)
		st.Buffer.Append(RoleAssistant, reply)
	}

	msgs, err := s.rec.Reconcile(ctx, chatID, userID, &st.Buffer)
	if err != nil {
		return nil, err
	}
	if err := s.states.Save(ctx, sessionID, st); err != nil {
		return nil, err
	}

	view := &View{ChatID: chatID, Messages: msgs, Note: note}
	if chatID != NoChat {
		if c, err := s.repo.GetChat(ctx, chatID); err == nil {
			view.Name = c.Name
		}
	}
	return view, nil
}

// DeleteChat removes the chat and its messages. When the deleted chat was
// the session's active one, the session falls back to the next most recent
// chat (or none) with a cleared buffer. Returns the new active chat id.
func (s *Service) DeleteChat(ctx context.Context, userID uint64, sessionID string, chatID uint64) (uint64, error) {
	if _, err := s.ownedChat(ctx, chatID, userID); err != nil {
		return NoChat, err
	}
	if err := s.repo.DeleteChat(ctx, chatID, userID); err != nil {
		return NoChat, fmt.Errorf("%w: delete chat: %v", common.ErrStoreWrite, err)
	}

	st, err := s.states.Load(ctx, sessionID)
	if err != nil {
		return NoChat, err
	}
	if st.ActiveChatID == chatID {
		next := NoChat
		if chats, err := s.repo.ListChats(ctx, userID); err == nil && len(chats) > 0 {
			next = chats[0].ID
		}
		st.ChatDeleted(next)
		if err := s.states.Save(ctx, sessionID, st); err != nil {
			return NoChat, err
		}
	}
	return st.ActiveChatID, nil
}

// ClearSession drops the per-session chat state, e.g. on logout.
func (s *Service) ClearSession(ctx context.Context, sessionID string) error {
	return s.states.Clear(ctx, sessionID)
}

// InsertUserMessage persists a user message directly, used by the async
// path before the job is queued. The chat gets renamed on the next
// reconcile.
func (s *Service) InsertUserMessage(ctx context.Context, userID, chatID uint64, content string) error {
	if _, err := s.ownedChat(ctx, chatID, userID); err != nil {
		return err
	}
	m := &Message{ChatID: chatID, UserID: userID, Role: RoleUser, Content: content}
	if err := s.repo.InsertMessage(ctx, m); err != nil {
		return fmt.Errorf("%w: insert message: %v", common.ErrStoreWrite, err)
	}
	return nil
}

func (s *Service) CreateJob(ctx context.Context, job *Job) error {
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("%w: create job: %v", common.ErrStoreWrite, err)
	}
	return nil
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: job %s", common.ErrNotFound, jobID)
		}
		return nil, err
	}
	return j, nil
}

// GenerateAssistantReplyAndInsert builds the assistant context from stored
// history and persists the reply. Used by the worker; the requesting
// session picks the new row up on its next reconcile.
func (s *Service) GenerateAssistantReplyAndInsert(ctx context.Context, userID, chatID uint64) (string, uint64, error) {
	if _, err := s.ownedChat(ctx, chatID, userID); err != nil {
		return "", 0, err
	}

	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, chatID, userID, s.contextWindowSize)
	if err != nil {
		return "", 0, err
	}

	// provider expects oldest first
	history := make([]assistant.Message, 0, len(recentDesc))
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		history = append(history, assistant.Message{Role: m.Role, Content: m.Content})
	}

	reply, err := s.bot.Reply(ctx, history)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", common.ErrUpstream, err)
	}

	m := &Message{ChatID: chatID, UserID: userID, Role: RoleAssistant, Content: reply}
	if err := s.repo.InsertMessage(ctx, m); err != nil {
		return "", 0, fmt.Errorf("%w: insert assistant message: %v", common.ErrStoreWrite, err)
	}
	return reply, m.ID, nil
}

func (s *Service) ownedChat(ctx context.Context, chatID, userID uint64) (*Chat, error) {
	c, err := s.repo.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: chat %d", common.ErrNotFound, chatID)
		}
		return nil, err
	}
	if c.UserID != userID {
		return nil, fmt.Errorf("%w: chat %d does not belong to user %d", common.ErrUnauthorized, chatID, userID)
	}
	return c, nil
}

func toAssistantMessages(entries []Entry) []assistant.Message {
	out := make([]assistant.Message, 0, len(entries))
	for _, e := range entries {
		out = append(out, assistant.Message{Role: e.Role, Content: e.Content})
	}
	return out
}

func toEntries(msgs []assistant.Message) []Entry {
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Entry{Role: m.Role, Content: m.Content})
	}
	return out
}

func tail(entries []Entry, n int) []Entry {
	if n <= 0 || len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}
