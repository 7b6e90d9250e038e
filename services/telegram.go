package services

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// TelegramSession is one live connection to the Telegram Bot API, bound to a
// single bot token. A new token requires a new session.
type TelegramSession interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	UpdatesChan(timeoutSecs int) tgbotapi.UpdatesChannel
	Stop()
}

// SessionFactory opens a TelegramSession for the given bot token.
type SessionFactory func(botToken string) (TelegramSession, error)

// botAPISession wraps *tgbotapi.BotAPI and throttles outbound calls;
// Telegram rejects bots sending more than ~30 messages per second.
type botAPISession struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
}

// NewBotAPISession connects to the Telegram Bot API with long polling.
func NewBotAPISession(botToken string) (TelegramSession, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	return &botAPISession{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(25), 5),
	}, nil
}

func (s *botAPISession) wait() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.limiter.Wait(ctx)
}

func (s *botAPISession) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := s.wait(); err != nil {
		return tgbotapi.Message{}, fmt.Errorf("telegram send throttled out: %w", err)
	}
	return s.api.Send(c)
}

func (s *botAPISession) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if err := s.wait(); err != nil {
		return nil, fmt.Errorf("telegram request throttled out: %w", err)
	}
	return s.api.Request(c)
}

func (s *botAPISession) UpdatesChan(timeoutSecs int) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSecs
	return s.api.GetUpdatesChan(u)
}

func (s *botAPISession) Stop() {
	s.api.StopReceivingUpdates()
}
