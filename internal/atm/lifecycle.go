// internal/atm/lifecycle.go

package atm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"atmnet/internal/bank"
)

// StartCustomerSession 以已驗證的卡片開始客戶 session。
// account 為 nil 表示卡片無效：session 立即結束並回傳 ErrAccountNotFound。
func (m *ATM) StartCustomerSession(card bank.Card, account *bank.AccountRef, primary bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCustomerLocked(card, account, primary)
}

func (m *ATM) startCustomerLocked(card bank.Card, account *bank.AccountRef, primary bool) error {
	if m.session != nil {
		m.logger.Info("session start ignored", zap.String("session", m.session.ID))
		return ErrSessionActive
	}
	if account == nil {
		m.logger.Info("invalid card, session ended", zap.String("card", card.Number))
		return fmt.Errorf("card %s: %w", card.Number, bank.ErrAccountNotFound)
	}
	ref := *account
	m.session = &Session{
		ID:          newSessionID(),
		Mode:        ModeCustomer,
		Card:        card,
		Account:     &ref,
		PrimaryCard: primary,
		Events:      make([]Event, 0, MaxSessionEvents),
		StartedAt:   m.now(),
	}
	m.stats.Total++
	m.stats.Customer++
	m.logger.Info("customer session started",
		zap.String("session", m.session.ID),
		zap.String("bank", ref.BankID),
		zap.String("account", ref.Number),
		zap.Bool("primary", primary),
	)
	return nil
}

// StartAdminSession 以管理卡開始管理員 session。
func (m *ATM) StartAdminSession(card bank.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startAdminLocked(card)
}

func (m *ATM) startAdminLocked(card bank.Card) error {
	if m.session != nil {
		m.logger.Info("session start ignored", zap.String("session", m.session.ID))
		return ErrSessionActive
	}
	if !card.IsAdmin() {
		return fmt.Errorf("card %s is not an admin card: %w", card.Number, bank.ErrAuthFailed)
	}
	m.session = &Session{
		ID:        newSessionID(),
		Mode:      ModeAdmin,
		Card:      card,
		StartedAt: m.now(),
	}
	m.stats.Total++
	m.stats.Admin++
	m.logger.Info("admin session started", zap.String("session", m.session.ID))
	return nil
}

// EndSession 無條件清除 session 狀態並回傳其事件；無 session 時為 no-op。
func (m *ATM) EndSession() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endLocked()
}

func (m *ATM) endLocked() []Event {
	if m.session == nil {
		return nil
	}
	events := m.session.Events
	m.logger.Info("session ended", zap.String("session", m.session.ID), zap.Int("events", len(events)))
	m.session = nil
	return events
}

// InsertCard 驗證客戶卡片與密碼並開始客戶 session。
// 同一張卡連續 MaxPasswordAttempts 次密碼錯誤回傳 ErrTooManyAttempts，計數歸零。
func (m *ATM) InsertCard(ctx context.Context, card, password string) (err error) {
	_, end := m.span(ctx, "insert_card")
	defer func() { end(err) }()

	b, err := m.registry.BankByCard(card)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return ErrSessionActive
	}
	if !m.supportsLocked(b.ID()) {
		return fmt.Errorf("card %s from %s: %w", card, b.ID(), ErrBankNotAccepted)
	}
	acct, err := b.VerifyUser(card, password)
	if err != nil {
		if errors.Is(err, bank.ErrAuthFailed) {
			return m.failedAttemptLocked(card)
		}
		return err
	}
	delete(m.attempts, card)
	c, _ := acct.Card()
	ref := acct.Ref()
	return m.startCustomerLocked(c, &ref, b.ID() == m.primary)
}

// InsertAdminCard 以主行的管理卡憑證開始管理員 session。
func (m *ATM) InsertAdminCard(ctx context.Context, card, password string) (err error) {
	_, end := m.span(ctx, "insert_admin_card")
	defer func() { end(err) }()

	b, err := m.registry.Bank(m.primary)
	if err != nil {
		return err
	}
	admin, ok := b.AdminCard()
	if !ok || admin.Number != card {
		return fmt.Errorf("card %s: %w", card, bank.ErrAuthFailed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return ErrSessionActive
	}
	if !b.VerifyAdmin(card, password) {
		return m.failedAttemptLocked(card)
	}
	delete(m.attempts, card)
	return m.startAdminLocked(admin)
}

func (m *ATM) failedAttemptLocked(card string) error {
	m.attempts[card]++
	if m.attempts[card] >= MaxPasswordAttempts {
		delete(m.attempts, card)
		return fmt.Errorf("card %s: %w", card, ErrTooManyAttempts)
	}
	return fmt.Errorf("card %s (%d/%d): %w", card, m.attempts[card], MaxPasswordAttempts, bank.ErrAuthFailed)
}
