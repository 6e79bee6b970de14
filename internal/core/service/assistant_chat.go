package service

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/port"
)

const (
	assistantHistoryTurns = 5
	assistantTimeout      = 15 * time.Second

	AssistantGreeting = "Hi there! I'm FlowBot. How can I help you today? You can ask me about food recommendations, track your order, or answer questions about our service!"
	AssistantFallback = "I'm having trouble connecting right now. Please try again in a moment."
)

var assistantGreetingSuggestions = []string{"Food recommendations", "Track my order", "Show today's offers"}

// AssistantMessage is one entry of the chatbot transcript.
type AssistantMessage struct {
	ID          string          `json:"id"`
	Role        domain.ChatRole `json:"role"`
	Content     string          `json:"content"`
	Suggestions []string        `json:"suggestions,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// AssistantChat is one client's conversation with the chatbot. A failed
// completion never breaks the conversation: a local fallback reply is
// appended instead.
type AssistantChat struct {
	assistant port.Assistant
	notices   *NoticeBoard
	clock     clock.Clock

	mu         sync.Mutex
	transcript []AssistantMessage
	busy       bool
}

func NewAssistantChat(assistant port.Assistant, notices *NoticeBoard, clk clock.Clock) *AssistantChat {
	c := &AssistantChat{
		assistant: assistant,
		notices:   notices,
		clock:     clk,
	}
	c.transcript = []AssistantMessage{c.message(domain.RoleAssistant, AssistantGreeting, assistantGreetingSuggestions)}
	return c
}

func (c *AssistantChat) message(role domain.ChatRole, content string, suggestions []string) AssistantMessage {
	return AssistantMessage{
		ID:          uuid.NewString(),
		Role:        role,
		Content:     content,
		Suggestions: suggestions,
		CreatedAt:   c.clock.Now(),
	}
}

// Ask sends text with the last few turns as context and returns the reply
// appended to the transcript. Blank input and input arriving while a
// previous question is still being answered are rejected.
func (c *AssistantChat) Ask(ctx context.Context, userID, text string) (AssistantMessage, error) {
	if isBlank(text) {
		return AssistantMessage{}, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return AssistantMessage{}, ErrBusy
	}
	c.busy = true
	history := c.historyLocked()
	c.transcript = append(c.transcript, c.message(domain.RoleUser, text, nil))
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, assistantTimeout)
	defer cancel()

	var reply AssistantMessage
	resp, err := c.assistant.Complete(ctx, domain.AssistantRequest{
		Message: text,
		UserID:  userID,
		Context: domain.AssistantContext{ChatHistory: history},
	})
	if err != nil {
		log.Warn().Err(err).Msg("assistant: completion failed")
		c.notices.Post(domain.NoticeError, "Failed to get response", "Please try again later.")
		reply = c.message(domain.RoleAssistant, AssistantFallback, nil)
	} else {
		suggestions := resp.Suggestions
		if suggestions == nil {
			suggestions = []string{}
		}
		reply = c.message(domain.RoleAssistant, resp.Text, suggestions)
	}

	c.mu.Lock()
	c.transcript = append(c.transcript, reply)
	c.mu.Unlock()
	return reply, nil
}

func (c *AssistantChat) historyLocked() []domain.ChatTurn {
	start := len(c.transcript) - assistantHistoryTurns
	if start < 0 {
		start = 0
	}
	turns := make([]domain.ChatTurn, 0, len(c.transcript)-start)
	for _, m := range c.transcript[start:] {
		turns = append(turns, domain.ChatTurn{Role: m.Role, Content: m.Content})
	}
	return turns
}

func (c *AssistantChat) Transcript() []AssistantMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]AssistantMessage, len(c.transcript))
	copy(out, c.transcript)
	return out
}
