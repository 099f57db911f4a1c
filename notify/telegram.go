package notify

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender is the part of *tgbotapi.BotAPI the sink uses.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// maxTelegramGroups bounds the forwarded-group memory; the oldest groups are
// forgotten first.
const maxTelegramGroups = 1024

// TelegramSink mirrors HR alerts into one Telegram chat. Only probation
// notifications are forwarded, once per Group: the fan-out writes one record
// per recipient but the chat needs a single message. A failed send releases
// the group so the next recipient's copy retries it.
type TelegramSink struct {
	bot    TelegramSender
	chatID int64

	mu    sync.Mutex
	sent  map[string]struct{}
	order []string
}

// NewTelegramSink authorizes the bot token.
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewTelegramSinkWithSender(bot, chatID), nil
}

// NewTelegramSinkWithSender is used by tests.
func NewTelegramSinkWithSender(bot TelegramSender, chatID int64) *TelegramSink {
	return &TelegramSink{bot: bot, chatID: chatID, sent: make(map[string]struct{})}
}

func (s *TelegramSink) Publish(_ context.Context, n Notification) error {
	if n.Category != CategoryProbation {
		return nil
	}
	if !s.claim(n.Group) {
		return nil
	}
	msg := tgbotapi.NewMessage(s.chatID, n.Title+"\n"+n.Message)
	if _, err := s.bot.Send(msg); err != nil {
		s.release(n.Group)
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// claim returns false if group was already forwarded. Ungrouped
// notifications are always forwarded.
func (s *TelegramSink) claim(group string) bool {
	if group == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sent[group]; ok {
		return false
	}
	s.sent[group] = struct{}{}
	s.order = append(s.order, group)
	if len(s.order) > maxTelegramGroups {
		delete(s.sent, s.order[0])
		s.order = s.order[1:]
	}
	return true
}

func (s *TelegramSink) release(group string) {
	if group == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sent[group]; !ok {
		return
	}
	delete(s.sent, group)
	for i, g := range s.order {
		if g == group {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
