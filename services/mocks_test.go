package services

import (
	"context"
	"sync"
	"time"

	"payment-bot-service/models"
	"payment-bot-service/repository"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- In-memory payment repository ---

type memPaymentRepo struct {
	mu          sync.Mutex
	payments    []*models.Payment
	failCreate  error
	expireErr   error
	dupNextOnce bool
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{}
}

func (m *memPaymentRepo) Create(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	if m.dupNextOnce {
		m.dupNextOnce = false
		return repository.ErrDuplicatePayload
	}
	for _, existing := range m.payments {
		if existing.Payload == p.Payload {
			return repository.ErrDuplicatePayload
		}
	}
	p.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	m.payments = append(m.payments, &cp)
	return nil
}

func (m *memPaymentRepo) FindByPayload(_ context.Context, payload string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.Payload == payload {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memPaymentRepo) FindActivePending(_ context.Context, chatID int64, now time.Time) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ChatID == chatID && p.Status == models.StatusPending && p.ExpiresAt.After(now) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memPaymentRepo) FindAllActivePending(_ context.Context, chatID int64, now time.Time) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if p.ChatID == chatID && p.Status == models.StatusPending && p.ExpiresAt.After(now) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memPaymentRepo) FindLatestSucceeded(_ context.Context, chatID int64) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.payments) - 1; i >= 0; i-- {
		if m.payments[i].ChatID == chatID && m.payments[i].Status == models.StatusSucceeded {
			cp := *m.payments[i]
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memPaymentRepo) UpdateFields(_ context.Context, id primitive.ObjectID, updates bson.M) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ID != id {
			continue
		}
		if v, ok := updates["status"]; ok {
			p.Status = v.(models.Status)
		}
		if v, ok := updates["invoice_message_id"]; ok {
			p.InvoiceMessageID = v.(int)
		}
		if v, ok := updates["provider_payment_charge_id"]; ok {
			p.ProviderPaymentChargeID = v.(string)
		}
		if v, ok := updates["telegram_payment_charge_id"]; ok {
			p.TelegramPaymentChargeID = v.(string)
		}
		p.UpdatedAt = time.Now().UTC()
		return nil
	}
	return repository.ErrNotFound
}

func (m *memPaymentRepo) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expireErr != nil {
		return 0, m.expireErr
	}
	var count int64
	for _, p := range m.payments {
		if p.Status == models.StatusPending && p.ExpiresAt.Before(now) {
			p.Status = models.StatusExpired
			p.UpdatedAt = time.Now().UTC()
			count++
		}
	}
	return count, nil
}

func (m *memPaymentRepo) List(_ context.Context, status models.Status, limit, skip int64) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if status == "" || p.Status == status {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memPaymentRepo) CountByStatus(_ context.Context) (*models.PaymentStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.PaymentStats{ByStatus: make(map[models.Status]int64), GeneratedAt: time.Now().UTC()}
	for _, p := range m.payments {
		stats.ByStatus[p.Status]++
		stats.Total++
	}
	return stats, nil
}

func (m *memPaymentRepo) byPayload(payload string) *models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.Payload == payload {
			return p
		}
	}
	return nil
}

func (m *memPaymentRepo) all() []models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Payment, 0, len(m.payments))
	for _, p := range m.payments {
		out = append(out, *p)
	}
	return out
}

// --- In-memory settings repository ---

type memSettingRepo struct {
	mu      sync.Mutex
	setting *models.Setting
	getErr  error
}

func newMemSettingRepo(setting *models.Setting) *memSettingRepo {
	return &memSettingRepo{setting: setting}
}

func (m *memSettingRepo) Get(_ context.Context) (*models.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.setting == nil {
		m.setting = models.DefaultSetting()
		m.setting.ID = primitive.NewObjectID()
		m.setting.UpdatedAt = time.Now().UTC()
	}
	cp := *m.setting
	return &cp, nil
}

func (m *memSettingRepo) Replace(ctx context.Context, req *models.UpdateSettingRequest) (*models.Setting, error) {
	if _, err := m.Get(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := repository.ApplySettingUpdates(m.setting, req); err != nil {
		return nil, err
	}
	m.setting.UpdatedAt = time.Now().UTC()
	cp := *m.setting
	return &cp, nil
}

// --- Fake Telegram session ---

type fakeSession struct {
	mu         sync.Mutex
	sent       []tgbotapi.Chattable
	requests   []tgbotapi.Chattable
	sendErr    error
	invoiceErr error
	nextMsgID  int
	updates    chan tgbotapi.Update
	stopOnce   sync.Once
	stopped    bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{updates: make(chan tgbotapi.Update, 16)}
}

func (f *fakeSession) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, isInvoice := c.(tgbotapi.InvoiceConfig); isInvoice && f.invoiceErr != nil {
		return tgbotapi.Message{}, f.invoiceErr
	}
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	f.nextMsgID++
	return tgbotapi.Message{MessageID: f.nextMsgID}, nil
}

func (f *fakeSession) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSession) UpdatesChan(_ int) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeSession) Stop() {
	f.stopOnce.Do(func() {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
		close(f.updates)
	})
}

func (f *fakeSession) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg.Text)
		}
	}
	return out
}

func (f *fakeSession) lastText() string {
	texts := f.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (f *fakeSession) invoices() []tgbotapi.InvoiceConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.InvoiceConfig
	for _, c := range f.sent {
		if inv, ok := c.(tgbotapi.InvoiceConfig); ok {
			out = append(out, inv)
		}
	}
	return out
}

func (f *fakeSession) deletions() []tgbotapi.DeleteMessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.DeleteMessageConfig
	for _, c := range f.requests {
		if del, ok := c.(tgbotapi.DeleteMessageConfig); ok {
			out = append(out, del)
		}
	}
	return out
}

func (f *fakeSession) preCheckoutAnswers() []tgbotapi.PreCheckoutConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.PreCheckoutConfig
	for _, c := range f.requests {
		if ans, ok := c.(tgbotapi.PreCheckoutConfig); ok {
			out = append(out, ans)
		}
	}
	return out
}

// --- Fake session factory ---

type fakeFactory struct {
	mu       sync.Mutex
	sessions []*fakeSession
	openErr  error
}

func (ff *fakeFactory) open(_ string) (TelegramSession, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.openErr != nil {
		return nil, ff.openErr
	}
	s := newFakeSession()
	ff.sessions = append(ff.sessions, s)
	return s, nil
}

func (ff *fakeFactory) opened() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.sessions)
}

func (ff *fakeFactory) last() *fakeSession {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.sessions) == 0 {
		return nil
	}
	return ff.sessions[len(ff.sessions)-1]
}
