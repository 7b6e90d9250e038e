package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"payment-bot-service/models"
	"payment-bot-service/repository"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// SessionState is the lifecycle state of the Telegram session.
type SessionState string

const (
	StateStopped  SessionState = "stopped"
	StateStarting SessionState = "starting"
	StateRunning  SessionState = "running"
)

// Inline keyboard callback commands.
const (
	callbackPay    = "CMD_PAY"
	callbackCancel = "CMD_CANCEL"
)

// User-facing replies.
const (
	msgWelcome = "Добро пожаловать!\nНажмите «Оплатить» или отправьте команду /pay, чтобы получить счёт и завершить оплату."
	msgNotConfigured = "Bot is not configured. Please set tokens in settings."
	msgBadAmount     = "Некорректная сумма. Укажите целое число в минорных единицах (например, копейках) больше 0."
	msgBadCurrency   = "Некорректная валюта. Используйте 3 заглавные буквы (например, RUB, USD, EUR)."
	msgBadSettings   = "Настройки оплаты некорректны. Обратитесь к администратору."
	msgActivePending = "У вас уже есть активная ожидающая оплата. Пожалуйста, завершите её или дождитесь, пока срок действия истечёт.\nЧтобы отменить текущую оплату, нажмите «Отменить» ниже или отправьте /cancel, затем используйте /pay для создания новой оплаты."
	msgInvoiceFailed = "Не удалось создать счёт. Проверьте валюту (3 заглавные буквы), сумму (целое число в минорных единицах) и название (до 32 символов, без переводов строк). Администратору: проверьте логи сервера."
	msgInternalError = "Произошла внутренняя ошибка. Попробуйте позже."
	msgNothingCancel = "Активной ожидающей оплаты не найдено."
	msgCanceled      = "Текущая оплата отменена. Вы можете вызвать /pay для новой оплаты."
	msgNotFound      = "Payment record was not found."
	msgWrongChat     = "Payment does not belong to this chat."
	msgExpired       = "Payment expired. Please create a new one with /pay."
	msgAlreadyPaid   = "Payment already confirmed."
	defaultDescription    = "Pay for the service"
	defaultSuccessMessage = "Payment received: {amount} {currency}. Thank you!"
)

// BotService owns the Telegram session lifecycle and handles every inbound
// bot event. All state transitions happen under a single mutex, so at most
// one start/stop/reconfigure is in flight at a time.
type BotService struct {
	payments repository.PaymentRepository
	settings repository.SettingRepository
	factory  SessionFactory
	logger   *zap.Logger

	paymentTTL  time.Duration
	pollTimeout int

	// mu guards session lifecycle state; cfgMu guards only the settings
	// cache so running handlers never contend with a stop in progress.
	mu           sync.Mutex
	state        SessionState
	session      TelegramSession
	consumerDone chan struct{}

	cfgMu  sync.RWMutex
	cached *models.Setting
}

func NewBotService(
	payments repository.PaymentRepository,
	settings repository.SettingRepository,
	factory SessionFactory,
	paymentTTL time.Duration,
	pollTimeout int,
	logger *zap.Logger,
) *BotService {
	return &BotService{
		payments:    payments,
		settings:    settings,
		factory:     factory,
		paymentTTL:  paymentTTL,
		pollTimeout: pollTimeout,
		logger:      logger,
		state:       StateStopped,
	}
}

// State returns the current session state.
func (b *BotService) State() SessionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Init loads settings and starts the session when tokens are configured.
// Called once at process start, after store connectivity is confirmed.
func (b *BotService) Init(ctx context.Context) {
	setting, err := b.settings.Get(ctx)
	if err != nil {
		b.logger.Error("Bot init: failed to load settings", zap.Error(err))
		return
	}

	b.setCached(setting)

	if !setting.HasValidTokens() {
		b.logger.Info("Bot not initialized: tokens not configured")
		return
	}
	if err := b.Start(ctx); err != nil {
		b.logger.Error("Bot init: start failed", zap.Error(err))
	}
}

// Start opens the Telegram session. It is a no-op when the session is
// already starting or running. Open failures revert the state to stopped.
func (b *BotService) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startLocked(ctx)
}

func (b *BotService) startLocked(ctx context.Context) error {
	if b.state != StateStopped {
		return nil
	}
	b.state = StateStarting

	setting := b.getCached()
	if setting == nil {
		loaded, err := b.settings.Get(ctx)
		if err != nil {
			b.state = StateStopped
			return fmt.Errorf("load settings: %w", err)
		}
		setting = loaded
		b.setCached(loaded)
	}

	if !setting.HasValidTokens() {
		b.state = StateStopped
		b.logger.Info("Bot not started: invalid or missing tokens")
		return nil
	}

	session, err := b.factory(setting.TelegramBotToken)
	if err != nil {
		b.state = StateStopped
		return fmt.Errorf("open telegram session: %w", err)
	}

	updates := session.UpdatesChan(b.pollTimeout)
	done := make(chan struct{})
	go b.consume(session, updates, done)

	b.session = session
	b.consumerDone = done
	b.state = StateRunning
	b.logger.Info("Bot started with long polling")
	return nil
}

// Stop closes the Telegram session and waits for the in-flight update, if
// any, to finish. It is a no-op when already stopped; a failing close is
// logged and the state still becomes stopped.
func (b *BotService) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
}

func (b *BotService) stopLocked() {
	if b.state == StateStopped {
		return
	}
	if b.session != nil {
		b.session.Stop()
		if b.consumerDone != nil {
			<-b.consumerDone
		}
		b.session = nil
		b.consumerDone = nil
	}
	b.state = StateStopped
	b.logger.Info("Bot stopped")
}

// Reconfigure replaces the cached settings and restarts the session under
// the new tokens. A full stop/start is the only way to rebind the token:
// the Bot API client fixes it at connection open. Session failures are
// logged, never returned; the settings update must survive a bad token.
func (b *BotService) Reconfigure(ctx context.Context, setting *models.Setting) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if setting == nil {
		loaded, err := b.settings.Get(ctx)
		if err != nil {
			b.logger.Error("Reconfigure: failed to load settings", zap.Error(err))
			return
		}
		setting = loaded
	}
	b.setCached(setting)

	if !setting.HasValidTokens() {
		b.stopLocked()
		b.logger.Info("Reconfigure: tokens missing, bot is not running")
		return
	}

	b.stopLocked()
	if err := b.startLocked(ctx); err != nil {
		b.logger.Error("Reconfigure: restart failed", zap.Error(err))
	}
}

func (b *BotService) getCached() *models.Setting {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return b.cached
}

func (b *BotService) setCached(setting *models.Setting) {
	b.cfgMu.Lock()
	b.cached = setting
	b.cfgMu.Unlock()
}

// currentSetting returns the cached settings, loading them on a cache miss.
func (b *BotService) currentSetting(ctx context.Context) (*models.Setting, error) {
	if cached := b.getCached(); cached != nil {
		return cached, nil
	}

	loaded, err := b.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	b.setCached(loaded)
	return loaded, nil
}

// consume reads updates until the session closes its channel. Updates are
// handled one at a time; a handler already running when Stop is called
// finishes against the old session.
func (b *BotService) consume(session TelegramSession, updates tgbotapi.UpdatesChannel, done chan struct{}) {
	defer close(done)
	for update := range updates {
		b.dispatch(session, update)
	}
}

// dispatch routes one update to its handler. Handler failures are logged
// and answered with a best-effort user notice; nothing here may panic the
// consumer loop, so one malformed update cannot take the bot offline.
func (b *BotService) dispatch(session TelegramSession, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch {
	case update.PreCheckoutQuery != nil:
		b.handlePreCheckout(session, update.PreCheckoutQuery)

	case update.CallbackQuery != nil:
		b.handleCallback(ctx, session, update.CallbackQuery)

	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		b.handleSuccessfulPayment(ctx, session, update.Message)

	case update.Message != nil:
		b.handleMessage(ctx, session, update.Message)
	}
}

func (b *BotService) handleMessage(ctx context.Context, session TelegramSession, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}

	switch strings.TrimSpace(msg.Text) {
	case "/start":
		b.handleStart(session, msg.Chat.ID)
	case "/pay":
		b.handlePay(ctx, session, msg.Chat.ID, userID)
	case "/cancel":
		b.handleCancel(ctx, session, msg.Chat.ID)
	}
}

func (b *BotService) handleCallback(ctx context.Context, session TelegramSession, query *tgbotapi.CallbackQuery) {
	if query.Message != nil && query.Message.Chat != nil {
		chatID := query.Message.Chat.ID
		var userID int64
		if query.From != nil {
			userID = query.From.ID
		}
		switch query.Data {
		case callbackPay:
			b.handlePay(ctx, session, chatID, userID)
		case callbackCancel:
			b.handleCancel(ctx, session, chatID)
		}
	}

	if _, err := session.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Error("Failed to answer callback query", zap.String("callback_id", query.ID), zap.Error(err))
	}
}

// handlePreCheckout always approves: invoice validation already guaranteed
// well-formed terms, and Telegram requires an answer within its window.
func (b *BotService) handlePreCheckout(session TelegramSession, query *tgbotapi.PreCheckoutQuery) {
	answer := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: query.ID,
		OK:                 true,
	}
	if _, err := session.Request(answer); err != nil {
		b.logger.Error("Failed to answer pre-checkout query", zap.String("query_id", query.ID), zap.Error(err))
	}
}

func (b *BotService) handleStart(session TelegramSession, chatID int64) {
	msg := tgbotapi.NewMessage(chatID, msgWelcome)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Оплатить", callbackPay),
		),
	)
	if _, err := session.Send(msg); err != nil {
		b.logger.Error("/start reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// handlePay is the purchase command: validate configuration, enforce the
// one-active-invoice rule, persist a pending payment, then send the invoice.
func (b *BotService) handlePay(ctx context.Context, session TelegramSession, chatID, userID int64) {
	setting, err := b.currentSetting(ctx)
	if err != nil {
		b.logger.Error("/pay: failed to load settings", zap.Int64("chat_id", chatID), zap.Error(err))
		b.reply(session, chatID, msgInternalError)
		return
	}

	if !setting.HasValidTokens() {
		b.reply(session, chatID, msgNotConfigured)
		return
	}

	now := time.Now().UTC()
	active, err := b.payments.FindActivePending(ctx, chatID, now)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		b.logger.Error("/pay: active pending lookup failed", zap.Int64("chat_id", chatID), zap.Error(err))
		b.reply(session, chatID, msgInternalError)
		return
	}
	if active != nil {
		msg := tgbotapi.NewMessage(chatID, msgActivePending)
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Отменить", callbackCancel),
			),
		)
		if _, err := session.Send(msg); err != nil {
			b.logger.Error("/pay: active pending reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		return
	}

	invoice, err := BuildInvoiceData(setting)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			switch verr.Kind {
			case KindAmount:
				b.reply(session, chatID, msgBadAmount)
			case KindCurrency:
				b.reply(session, chatID, msgBadCurrency)
			default:
				b.reply(session, chatID, msgBadSettings)
			}
		} else {
			b.reply(session, chatID, msgBadSettings)
		}
		return
	}

	description := setting.PaymentDescription
	if description == "" {
		description = defaultDescription
	}

	payment := &models.Payment{
		ChatID:      chatID,
		UserID:      userID,
		Payload:     newPayload(),
		Status:      models.StatusPending,
		Title:       invoice.Title,
		Description: description,
		Currency:    invoice.Currency,
		Amount:      invoice.Amount,
		ExpiresAt:   now.Add(b.paymentTTL),
	}

	// The pending record must exist before the provider call so a failed
	// send stays observable and eventually expires.
	if err := b.payments.Create(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrDuplicatePayload) {
			payment.Payload = newPayload()
			err = b.payments.Create(ctx, payment)
		}
		if err != nil {
			b.logger.Error("/pay: failed to persist payment", zap.Int64("chat_id", chatID), zap.Error(err))
			b.reply(session, chatID, msgInternalError)
			return
		}
	}

	inv := tgbotapi.NewInvoice(
		chatID,
		invoice.Title,
		description,
		payment.Payload,
		setting.TelegramProviderToken,
		"pay",
		invoice.Currency,
		[]tgbotapi.LabeledPrice{{Label: invoice.Label, Amount: invoice.Amount}},
	)

	sent, err := session.Send(inv)
	if err != nil {
		b.logger.Error("/pay: sendInvoice failed",
			zap.Int64("chat_id", chatID),
			zap.String("payload", payment.Payload),
			zap.String("currency", invoice.Currency),
			zap.Int("amount", invoice.Amount),
			zap.String("title", invoice.Title),
			zap.String("label", invoice.Label),
			zap.Error(err),
		)
		b.reply(session, chatID, msgInvoiceFailed)
		return
	}

	if sent.MessageID != 0 {
		if err := b.payments.UpdateFields(ctx, payment.ID, bson.M{"invoice_message_id": sent.MessageID}); err != nil {
			b.logger.Error("/pay: failed to persist invoice message id",
				zap.String("payload", payment.Payload), zap.Error(err))
		}
	}
}

// handleCancel deletes the invoice messages of every active pending payment
// for the chat and marks them failed. Delete failures do not abort the loop.
func (b *BotService) handleCancel(ctx context.Context, session TelegramSession, chatID int64) {
	now := time.Now().UTC()
	payments, err := b.payments.FindAllActivePending(ctx, chatID, now)
	if err != nil {
		b.logger.Error("/cancel: active pending lookup failed", zap.Int64("chat_id", chatID), zap.Error(err))
		b.reply(session, chatID, msgInternalError)
		return
	}
	if len(payments) == 0 {
		b.reply(session, chatID, msgNothingCancel)
		return
	}

	for _, p := range payments {
		if p.InvoiceMessageID != 0 {
			if _, err := session.Request(tgbotapi.NewDeleteMessage(chatID, p.InvoiceMessageID)); err != nil {
				b.logger.Error("/cancel: failed to delete invoice message",
					zap.Int64("chat_id", chatID), zap.Int("message_id", p.InvoiceMessageID), zap.Error(err))
			}
		}
		if err := b.payments.UpdateFields(ctx, p.ID, bson.M{"status": models.StatusFailed}); err != nil {
			b.logger.Error("/cancel: failed to update payment",
				zap.String("payload", p.Payload), zap.Error(err))
		}
	}

	b.reply(session, chatID, msgCanceled)
}

// handleSuccessfulPayment confirms a payment by its payload. Duplicate
// deliveries and stale payments get an informational reply and no mutation.
func (b *BotService) handleSuccessfulPayment(ctx context.Context, session TelegramSession, msg *tgbotapi.Message) {
	sp := msg.SuccessfulPayment
	if sp == nil || msg.Chat == nil || sp.InvoicePayload == "" {
		return
	}
	chatID := msg.Chat.ID

	payment, err := b.payments.FindByPayload(ctx, sp.InvoicePayload)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			b.reply(session, chatID, msgNotFound)
		} else {
			b.logger.Error("successful_payment: lookup failed",
				zap.String("payload", sp.InvoicePayload), zap.Error(err))
			b.reply(session, chatID, msgInternalError)
		}
		return
	}

	if payment.ChatID != chatID {
		b.reply(session, chatID, msgWrongChat)
		return
	}
	if payment.Status == models.StatusExpired {
		b.reply(session, chatID, msgExpired)
		return
	}
	if payment.Status == models.StatusSucceeded {
		b.reply(session, chatID, msgAlreadyPaid)
		return
	}

	err = b.payments.UpdateFields(ctx, payment.ID, bson.M{
		"status":                     models.StatusSucceeded,
		"provider_payment_charge_id": sp.ProviderPaymentChargeID,
		"telegram_payment_charge_id": sp.TelegramPaymentChargeID,
	})
	if err != nil {
		b.logger.Error("successful_payment: failed to persist transition",
			zap.String("payload", payment.Payload), zap.Error(err))
		b.reply(session, chatID, msgInternalError)
		return
	}

	b.reply(session, chatID, b.RenderSuccessMessage(ctx, payment))
}

// RenderSuccessMessage fills the configured success template with the
// amount and currency stored on the payment.
func (b *BotService) RenderSuccessMessage(ctx context.Context, payment *models.Payment) string {
	template := defaultSuccessMessage
	if setting, err := b.currentSetting(ctx); err == nil && setting.SuccessMessage != "" {
		template = setting.SuccessMessage
	}
	return ApplyPlaceholders(template, payment.Amount, payment.Currency)
}

// ErrSessionNotRunning is returned by SendChatMessage without a live session.
var ErrSessionNotRunning = errors.New("telegram session is not running")

// SendChatMessage sends text to a chat over the running session. Used by
// the admin API to re-send notifications.
func (b *BotService) SendChatMessage(chatID int64, text string) error {
	b.mu.Lock()
	session := b.session
	b.mu.Unlock()
	if session == nil {
		return ErrSessionNotRunning
	}
	_, err := session.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (b *BotService) reply(session TelegramSession, chatID int64, text string) {
	if _, err := session.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error("Failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// newPayload builds a globally unique idempotency token for one purchase
// attempt: millisecond timestamp plus a random UUID suffix. Uniqueness is
// ultimately enforced by the store's unique index on payload.
func newPayload() string {
	return fmt.Sprintf("%d_%s", time.Now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", ""))
}
