package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrTimeout reports that the provider did not answer within the configured
// deadline. The turn is recoverable: callers keep the history unchanged.
var ErrTimeout = errors.New("assistant: inference timed out")

// Bot wraps a provider with the conversational behavior of the chat UI:
// slash commands and a bounded inference call. Bot itself holds no
// conversation state; the history lives in the caller's per-session buffer
// and is passed through each call.
type Bot struct {
	mu       sync.RWMutex
	provider Provider
	model    string

	timeout time.Duration
	system  string

	// set via AllowModelSwitch
	registry     *Registry
	providerName string
}

func NewBot(provider Provider, timeout time.Duration, systemMessage string) *Bot {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Bot{provider: provider, timeout: timeout, system: systemMessage}
}

// AllowModelSwitch lets the /model command swap the active model through the
// registry. Without it /model only reports the configured model.
func (b *Bot) AllowModelSwitch(reg *Registry, providerName, model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registry = reg
	b.providerName = providerName
	b.model = model
}

// SwitchModel replaces the provider with one built for the given model.
func (b *Bot) SwitchModel(ctx context.Context, model string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.registry == nil {
		return errors.New("model switching is not enabled")
	}
	p, err := b.registry.Get(ctx, b.providerName, model)
	if err != nil {
		return err
	}
	b.provider = p
	b.model = model
	return nil
}

// Model returns the active model name, if known.
func (b *Bot) Model() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

func (b *Bot) IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// ExecuteCommand handles a slash command against the given history and
// returns the updated history plus a note for the user.
func (b *Bot) ExecuteCommand(ctx context.Context, text string, history []Message) ([]Message, string) {
	cmd := strings.Fields(strings.TrimSpace(text))
	if len(cmd) == 0 {
		return history, ""
	}
	switch cmd[0] {
	case "/reset":
		return nil, "conversation reset"
	case "/model":
		if len(cmd) == 1 {
			model := b.Model()
			if model == "" {
				return history, "no model configured"
			}
			return history, fmt.Sprintf("current model: %s", model)
		}
		if err := b.SwitchModel(ctx, cmd[1]); err != nil {
			return history, fmt.Sprintf("cannot switch model: %v", err)
		}
		return history, fmt.Sprintf("model switched to %s", cmd[1])
	case "/help":
		return history, "commands: /reset clears the conversation, /model shows or switches the model, /help shows this message"
	default:
		return history, fmt.Sprintf("unknown command %s, try /help", cmd[0])
	}
}

// Reply asks the provider for a completion of the given history, bounded by
// the bot's timeout. The history must already end with the user's latest
// message.
func (b *Bot) Reply(ctx context.Context, history []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	prompt := make([]Message, 0, len(history)+1)
	if b.system != "" {
		prompt = append(prompt, Message{Role: RoleSystem, Content: b.system})
	}
	prompt = append(prompt, history...)

	b.mu.RLock()
	provider := b.provider
	b.mu.RUnlock()

	reply, err := provider.Chat(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", err
	}
	return reply, nil
}

// RunInference appends the user input to the history, asks the provider for
// a reply, and returns the extended history (user entry then assistant
// entry) together with the reply. On failure the original history is
// returned untouched so nothing half-finished reaches persistence.
func (b *Bot) RunInference(ctx context.Context, history []Message, input string) ([]Message, string, error) {
	prompt := append(append([]Message(nil), history...), Message{Role: RoleUser, Content: input})

	reply, err := b.Reply(ctx, prompt)
	if err != nil {
		return history, "", err
	}

	updated := append(prompt, Message{Role: RoleAssistant, Content: reply})
	return updated, reply, nil
}
