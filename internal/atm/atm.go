// internal/atm/atm.go

// Package atm 實作單台 ATM 的 session 狀態機與交易流程：
// 認證、存款、提款、帳戶轉帳、現金轉帳，以及 session 收據與管理員稽核查詢。
//
// 每台 ATM 以一把互斥鎖序列化其 session 與現金庫存；帳本變動委派給 bank 套件，
// 取鎖順序固定為 ATM → Bank，銀行端不會反向取 ATM 的鎖。
package atm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"atmnet/internal/bank"
	"atmnet/internal/cash"
	"atmnet/internal/txlog"
)

const (
	MaxSessionEvents         = 50
	MaxBankSlots             = 10
	MaxInsertItems           = 50
	MaxWithdrawalsPerSession = 3
	MaxWithdrawalAmount      = 500000
	MaxPasswordAttempts      = 3
)

// Access 決定 ATM 是否接受主行以外的卡片。
type Access string

const (
	AccessSingleBank Access = "single"
	AccessMultiBank  Access = "multi"
)

var supportedLanguages = []language.Tag{language.English, language.Korean}

var languageMatcher = language.NewMatcher(supportedLanguages)

// Config 為建立 ATM 所需的設定；快照還原時亦以此重建。
type Config struct {
	Serial      string
	PrimaryBank string
	Access      Access
	Bilingual   bool
	Language    language.Tag
	Fees        *Fees
	Cash        cash.Bundle
	Accepted    []string
	Stats       Stats
}

// ATM 為共享網路中的一台提款機。
type ATM struct {
	mu        sync.Mutex
	serial    string
	primary   string
	access    Access
	bilingual bool
	lang      language.Tag
	fees      Fees
	accepted  []string
	inv       *cash.Inventory

	session  *Session
	attempts map[string]int
	stats    Stats

	registry *bank.Registry
	log      *txlog.Log
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// Option 設定 ATM。
type Option func(*ATM)

// WithLogger 指定 logger。
func WithLogger(l *zap.Logger) Option {
	return func(m *ATM) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock 替換時間來源。
func WithClock(now func() time.Time) Option {
	return func(m *ATM) {
		if now != nil {
			m.now = now
		}
	}
}

// New 建立 ATM。主行必須已在 registry 中，且永遠列在接受清單第一位。
func New(cfg Config, registry *bank.Registry, log *txlog.Log, opts ...Option) (*ATM, error) {
	if cfg.Serial == "" {
		return nil, fmt.Errorf("atm serial is required")
	}
	if registry == nil || log == nil {
		return nil, fmt.Errorf("atm %s: registry and transaction log are required", cfg.Serial)
	}
	if _, err := registry.Bank(cfg.PrimaryBank); err != nil {
		return nil, fmt.Errorf("atm %s primary bank: %w", cfg.Serial, err)
	}
	switch cfg.Access {
	case "":
		cfg.Access = AccessSingleBank
	case AccessSingleBank, AccessMultiBank:
	default:
		return nil, fmt.Errorf("atm %s: unknown access mode %q", cfg.Serial, cfg.Access)
	}
	fees := DefaultFees()
	if cfg.Fees != nil {
		fees = *cfg.Fees
	}
	if err := fees.Validate(); err != nil {
		return nil, fmt.Errorf("atm %s: %w", cfg.Serial, err)
	}
	if !cfg.Cash.Valid() {
		return nil, fmt.Errorf("atm %s initial cash: %w", cfg.Serial, bank.ErrBadAmount)
	}

	m := &ATM{
		serial:    cfg.Serial,
		primary:   cfg.PrimaryBank,
		access:    cfg.Access,
		bilingual: cfg.Bilingual,
		lang:      language.English,
		fees:      fees,
		accepted:  []string{cfg.PrimaryBank},
		inv:       cash.NewInventory(cfg.Cash),
		attempts:  make(map[string]int),
		stats:     cfg.Stats,
		registry:  registry,
		log:       log,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer("atmnet/atm"),
		now:       time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	m.logger = m.logger.With(zap.String("atm", m.serial))

	for _, id := range cfg.Accepted {
		if err := m.AddAcceptedBank(id); err != nil {
			return nil, fmt.Errorf("atm %s accepted bank %s: %w", cfg.Serial, id, err)
		}
	}
	if cfg.Language != language.Und {
		if err := m.SetLanguage(cfg.Language); err != nil {
			return nil, fmt.Errorf("atm %s: %w", cfg.Serial, err)
		}
	}
	return m, nil
}

func (m *ATM) Serial() string      { return m.serial }
func (m *ATM) PrimaryBank() string { return m.primary }
func (m *ATM) Access() Access      { return m.access }
func (m *ATM) Bilingual() bool     { return m.bilingual }
func (m *ATM) Fees() Fees          { return m.fees }

// AddAcceptedBank 將銀行加入接受清單。重複加入為 no-op。
func (m *ATM) AddAcceptedBank(id string) error {
	if _, err := m.registry.Bank(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.supportsLocked(id) {
		return nil
	}
	if m.access == AccessSingleBank {
		return fmt.Errorf("%s on single-bank atm: %w", id, ErrBankNotAccepted)
	}
	if len(m.accepted) >= MaxBankSlots {
		return ErrBankSlotsFull
	}
	m.accepted = append(m.accepted, id)
	return nil
}

// AcceptedBanks 回傳接受清單拷貝，主行在首位。
func (m *ATM) AcceptedBanks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.accepted...)
}

// Supports 回報此 ATM 是否接受該銀行的卡片。
func (m *ATM) Supports(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.supportsLocked(id)
}

func (m *ATM) supportsLocked(id string) bool {
	for _, a := range m.accepted {
		if a == id {
			return true
		}
	}
	return false
}

// SetLanguage 設定介面語言。非雙語機只提供英文：要求其他語言時退回英文並回傳 ErrLanguageUnsupported。
func (m *ATM) SetLanguage(tag language.Tag) error {
	_, idx, conf := languageMatcher.Match(tag)
	m.mu.Lock()
	defer m.mu.Unlock()
	if conf == language.No {
		m.lang = language.English
		return fmt.Errorf("%s: %w", tag, ErrLanguageUnsupported)
	}
	want := supportedLanguages[idx]
	if want != language.English && !m.bilingual {
		m.lang = language.English
		return fmt.Errorf("%s: %w", tag, ErrLanguageUnsupported)
	}
	m.lang = want
	return nil
}

// Language 回傳目前介面語言。
func (m *ATM) Language() language.Tag {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lang
}

// LoadCash 補鈔。
func (m *ATM) LoadCash(b cash.Bundle) error {
	if !b.Valid() {
		return fmt.Errorf("load cash: %w", bank.ErrBadAmount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inv.Add(b)
	m.logger.Info("cash loaded", zap.Int64("value", b.TotalValue()), zap.Int64("inventory", m.inv.TotalValue()))
	return nil
}

// Cash 回傳目前庫存快照。
func (m *ATM) Cash() cash.Bundle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inv.Snapshot()
}

// Stats 回傳 session 統計。
func (m *ATM) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Mode 回傳目前模式；無 session 時為 ModeIdle。
func (m *ATM) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ModeIdle
	}
	return m.session.Mode
}

// Session 回傳目前 session 的拷貝。
func (m *ATM) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return m.session.clone(), true
}

// Receipt 回傳目前 session 的事件清單，格式化交由表現層。
func (m *ATM) Receipt() ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, ErrSessionNotActive
	}
	return append([]Event(nil), m.session.Events...), nil
}

// Transactions 供管理員 session 查閱全網交易紀錄。
func (m *ATM) Transactions() ([]txlog.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, ErrSessionNotActive
	}
	if m.session.Mode != ModeAdmin {
		return nil, ErrWrongMode
	}
	return m.log.All(), nil
}

// State 為 ATM 的可持久化狀態。
type State struct {
	Serial      string
	PrimaryBank string
	Access      Access
	Bilingual   bool
	Language    string
	Fees        Fees
	Cash        cash.Bundle
	Accepted    []string
	Stats       Stats
}

// Export 匯出 ATM 狀態（不含進行中的 session）。
func (m *ATM) Export() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Serial:      m.serial,
		PrimaryBank: m.primary,
		Access:      m.access,
		Bilingual:   m.bilingual,
		Language:    m.lang.String(),
		Fees:        m.fees,
		Cash:        m.inv.Snapshot(),
		Accepted:    append([]string(nil), m.accepted...),
		Stats:       m.stats,
	}
}

// span 開啟一段追蹤並回傳結束函式；結束時記錄錯誤碼並寫入拒絕日誌。
func (m *ATM) span(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, sp := m.tracer.Start(ctx, "atm."+op, trace.WithAttributes(
		attribute.String("atm.serial", m.serial),
	))
	return ctx, func(err error) {
		if err != nil {
			code := CodeOf(err)
			sp.RecordError(err)
			sp.SetStatus(codes.Error, code.String())
			m.logger.Info("request rejected",
				zap.String("op", op),
				zap.String("code", code.String()),
				zap.Error(err),
			)
		}
		sp.End()
	}
}

func newSessionID() string { return uuid.NewString() }
