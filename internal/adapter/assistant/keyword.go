// Package assistant provides the completion services behind the chatbot.
package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/rl1809/food-flow/internal/core/domain"
)

var ErrNoMessage = errors.New("no message provided")

const memoryTTL = 30 * time.Minute

type reply struct {
	text        string
	suggestions []string
}

type topic struct {
	name     string
	keywords []string
	replies  []reply
}

var topics = []topic{
	{
		name:     "recommend",
		keywords: []string{"recommend", "suggestion", "hungry"},
		replies: []reply{
			{
				text:        "Based on your profile, I'd recommend trying the Spicy Thai Curry Bowl from Bangkok Street 🍜 or the Mediterranean Veggie Wrap from Green Life 🌯. Both have excellent ratings from customers with similar preferences!",
				suggestions: []string{"Show Thai food", "Show vegetarian options", "I want something else"},
			},
			{
				text:        "How about the Classic Cheeseburger from Burger Palace 🍔 or a Margherita Pizza from Pizza Heaven 🍕? Both are crowd favourites right now!",
				suggestions: []string{"Show burgers", "Show pizza", "Something lighter"},
			},
		},
	},
	{
		name:     "track",
		keywords: []string{"track", "order", "delivery"},
		replies: []reply{
			{
				text:        "I can help track your order! Could you provide your order number? If you don't have it, I can look it up using your name or phone number.",
				suggestions: []string{"My order number is #12345", "Look up by my phone", "When will my food arrive?"},
			},
			{
				text:        "You can follow every step of your delivery from the Orders page. Most orders arrive within 35 minutes of being placed.",
				suggestions: []string{"Open my orders", "Contact my driver", "Report a problem"},
			},
		},
	},
	{
		name:     "offers",
		keywords: []string{"special", "discount", "offer"},
		replies: []reply{
			{
				text:        "Today's special offers: 20% off on all orders above $25 with code FLOW20, free delivery on your first 3 orders, and buy-one-get-one on selected desserts! 🎁",
				suggestions: []string{"Use FLOW20 code", "Show dessert offers", "Any weekend deals?"},
			},
			{
				text:        "Featured restaurants like Burger Palace, Sushi Delight and Curry House have the lowest delivery fees this week. Don't forget code FLOW20 on orders above $25! 🎉",
				suggestions: []string{"Show featured restaurants", "Use FLOW20 code"},
			},
		},
	},
}

var fallbackTopic = topic{
	name: "default",
	replies: []reply{
		{
			text:        "I'm here to help with food recommendations, track your orders, or answer questions about our service. What would you like assistance with today?",
			suggestions: []string{"Recommend food", "Track my order", "Show current offers"},
		},
		{
			text:        "I didn't quite catch that. I can recommend dishes, check on an order or tell you about current deals.",
			suggestions: []string{"Recommend food", "Track my order", "Show current offers"},
		},
	},
}

// Keyword answers with canned replies chosen by keyword. It remembers, per
// user and topic, which reply was given last so a repeated question gets a
// different answer.
type Keyword struct {
	// mu serializes the read-advance-write of a rotation.
	mu     sync.Mutex
	memory *ttlcache.Cache[string, int]
}

func NewKeyword() *Keyword {
	return &Keyword{
		memory: ttlcache.New[string, int](
			ttlcache.WithTTL[string, int](memoryTTL),
		),
	}
}

// Start runs the memory expiry loop until Stop is called.
func (k *Keyword) Start() {
	go k.memory.Start()
}

func (k *Keyword) Stop() {
	k.memory.Stop()
}

func (k *Keyword) Complete(_ context.Context, req domain.AssistantRequest) (domain.AssistantReply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return domain.AssistantReply{}, ErrNoMessage
	}

	t := match(req.Message)
	r := t.replies[k.next(req.UserID, t)]
	return domain.AssistantReply{
		Text:        r.text,
		Suggestions: append([]string(nil), r.suggestions...),
	}, nil
}

func (k *Keyword) next(userID string, t topic) int {
	if userID == "" {
		return 0
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	key := userID + ":" + t.name
	index := 0
	if item := k.memory.Get(key); item != nil {
		index = (item.Value() + 1) % len(t.replies)
	}
	k.memory.Set(key, index, ttlcache.DefaultTTL)
	return index
}

func match(message string) topic {
	lower := strings.ToLower(message)
	for _, t := range topics {
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				return t
			}
		}
	}
	return fallbackTopic
}
