// internal/atm/engine.go

package atm

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"atmnet/internal/bank"
	"atmnet/internal/cash"
	"atmnet/internal/txlog"
)

// DepositRequest 為一次存款投入的內容：現金、支票與另外投入的手續費現金。
type DepositRequest struct {
	Cash        cash.Bundle
	CheckAmount int64
	FeeCash     cash.Bundle
	CheckCount  int
}

// customerLocked 檢查客戶 session 前置條件。
// 事件紀錄已滿時強制結束 session 並回傳 ErrSessionLogFull；此時不做任何變動。
func (m *ATM) customerLocked() (*Session, error) {
	if m.session == nil {
		return nil, ErrSessionNotActive
	}
	if m.session.Mode != ModeCustomer {
		return nil, ErrWrongMode
	}
	if len(m.session.Events) >= MaxSessionEvents {
		m.endLocked()
		return nil, ErrSessionLogFull
	}
	return m.session, nil
}

// record 寫入 session 事件與全網交易紀錄。
func (m *ATM) record(ctx context.Context, s *Session, ev Event, tx txlog.Transaction) Event {
	tx.ATMSerial = m.serial
	tx.CardNumber = s.Card.Number
	tx.Note = ev.Note
	saved := m.log.Append(ctx, tx)
	ev.TxID = saved.ID
	s.Events = append(s.Events, ev)
	m.logger.Info("transaction completed",
		zap.String("session", s.ID),
		zap.String("kind", string(ev.Kind)),
		zap.Int64("amount", ev.Amount),
		zap.Int64("fee", ev.Fee),
		zap.Int64("tx", saved.ID),
	)
	return ev
}

// RequestDeposit 將現金與支票存入 session 帳戶。手續費必須以另外投入的現金付清。
func (m *ATM) RequestDeposit(ctx context.Context, req DepositRequest) (ev Event, err error) {
	ctx, end := m.span(ctx, "deposit")
	defer func() { end(err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.customerLocked()
	if err != nil {
		return Event{}, err
	}
	if !req.Cash.Valid() || !req.FeeCash.Valid() || req.CheckAmount < 0 || req.CheckCount < 0 {
		return Event{}, fmt.Errorf("deposit contents: %w", bank.ErrBadAmount)
	}
	if req.Cash.MaxCount() > MaxInsertItems || req.FeeCash.MaxCount() > MaxInsertItems || req.CheckCount > MaxInsertItems {
		return Event{}, fmt.Errorf("more than %d items of one kind: %w", MaxInsertItems, ErrItemLimit)
	}
	if items := req.Cash.ItemCount() + req.CheckCount; items > MaxInsertItems {
		return Event{}, fmt.Errorf("%d items inserted, max %d: %w", items, MaxInsertItems, ErrItemLimit)
	}
	if req.CheckAmount > math.MaxInt64-req.Cash.TotalValue() {
		return Event{}, fmt.Errorf("check amount %d: %w", req.CheckAmount, bank.ErrBadAmount)
	}
	amount := req.Cash.TotalValue() + req.CheckAmount
	if amount <= 0 {
		return Event{}, fmt.Errorf("deposit amount %d: %w", amount, bank.ErrBadAmount)
	}
	fee := m.fees.Deposit(s.PrimaryCard)
	if paid := req.FeeCash.TotalValue(); paid != fee {
		return Event{}, fmt.Errorf("fee %d, inserted %d: %w", fee, paid, ErrFeeMismatch)
	}

	b, err := m.registry.Bank(s.Account.BankID)
	if err != nil {
		return Event{}, err
	}
	if _, err := b.Deposit(s.Account.Number, amount); err != nil {
		return Event{}, err
	}
	m.inv.Add(req.Cash)
	m.inv.Add(req.FeeCash)

	return m.record(ctx, s, Event{
		Kind:   txlog.KindDeposit,
		Amount: amount,
		Fee:    fee,
		Target: s.Account.Number,
		Cash:   req.Cash,
		Note:   "Deposit completed",
	}, txlog.Transaction{
		Kind:          txlog.KindDeposit,
		BankID:        s.Account.BankID,
		AccountNumber: s.Account.Number,
		Amount:        amount,
		Fee:           fee,
	}), nil
}

// RequestWithdrawal 以庫存可精確湊出的鈔票組合出鈔；帳戶扣除金額加手續費。
func (m *ATM) RequestWithdrawal(ctx context.Context, amount int64) (ev Event, err error) {
	ctx, end := m.span(ctx, "withdraw")
	defer func() { end(err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.customerLocked()
	if err != nil {
		return Event{}, err
	}
	if s.Withdrawals >= MaxWithdrawalsPerSession {
		return Event{}, ErrWithdrawalLimit
	}
	if amount <= 0 || amount%cash.MinNote != 0 || amount > MaxWithdrawalAmount {
		return Event{}, fmt.Errorf("withdrawal amount %d: %w", amount, bank.ErrBadAmount)
	}
	bundle, exact := cash.BuildWithdrawalBundle(amount, m.inv.Snapshot())
	if !exact {
		return Event{}, fmt.Errorf("amount %d: %w", amount, ErrInexactBundle)
	}
	if !m.inv.HasEnough(bundle) {
		return Event{}, ErrInsufficientCash
	}
	fee := m.fees.Withdrawal(s.PrimaryCard)

	b, err := m.registry.Bank(s.Account.BankID)
	if err != nil {
		return Event{}, err
	}
	if _, err := b.Withdraw(s.Account.Number, amount+fee); err != nil {
		return Event{}, err
	}
	m.inv.Remove(bundle)
	s.Withdrawals++

	return m.record(ctx, s, Event{
		Kind:   txlog.KindWithdrawal,
		Amount: amount,
		Fee:    fee,
		Source: s.Account.Number,
		Cash:   bundle,
		Note:   "Withdrawal completed",
	}, txlog.Transaction{
		Kind:          txlog.KindWithdrawal,
		BankID:        s.Account.BankID,
		AccountNumber: s.Account.Number,
		Amount:        amount,
		Fee:           fee,
	}), nil
}

// RequestAccountTransfer 從 session 帳戶轉帳至 dest；跨行時經雙方清算帳戶結算。
func (m *ATM) RequestAccountTransfer(ctx context.Context, dest bank.AccountRef, amount int64) (ev Event, err error) {
	ctx, end := m.span(ctx, "account_transfer")
	defer func() { end(err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.customerLocked()
	if err != nil {
		return Event{}, err
	}
	src := *s.Account
	if dest == src {
		return Event{}, bank.ErrSameAccount
	}
	if amount <= 0 {
		return Event{}, fmt.Errorf("transfer amount %d: %w", amount, bank.ErrBadAmount)
	}
	if _, err := m.registry.FindAccount(dest); err != nil {
		return Event{}, err
	}
	fee := m.fees.Transfer(m.primary, src.BankID, dest.BankID)
	if err := m.registry.Transfer(ctx, src, dest, amount, fee); err != nil {
		return Event{}, err
	}

	return m.record(ctx, s, Event{
		Kind:   txlog.KindAccountTransfer,
		Amount: amount,
		Fee:    fee,
		Source: src.Number,
		Target: dest.Number,
		Note:   "Account transfer completed",
	}, txlog.Transaction{
		Kind:          txlog.KindAccountTransfer,
		BankID:        src.BankID,
		AccountNumber: src.Number,
		Amount:        amount,
		Fee:           fee,
		Target:        &txlog.Counterparty{BankID: dest.BankID, AccountNumber: dest.Number},
	}), nil
}

// RequestCashTransfer 以投入的現金扣除手續費後存入 dest；整疊現金歸入 ATM 庫存。
func (m *ATM) RequestCashTransfer(ctx context.Context, dest bank.AccountRef, inserted cash.Bundle) (ev Event, err error) {
	ctx, end := m.span(ctx, "cash_transfer")
	defer func() { end(err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.customerLocked()
	if err != nil {
		return Event{}, err
	}
	if !inserted.Valid() || inserted.IsZero() {
		return Event{}, fmt.Errorf("cash transfer contents: %w", bank.ErrBadAmount)
	}
	if inserted.MaxCount() > MaxInsertItems {
		return Event{}, fmt.Errorf("more than %d items of one kind: %w", MaxInsertItems, ErrItemLimit)
	}
	if items := inserted.ItemCount(); items > MaxInsertItems {
		return Event{}, fmt.Errorf("%d items inserted, max %d: %w", items, MaxInsertItems, ErrItemLimit)
	}
	b, err := m.registry.Bank(dest.BankID)
	if err != nil {
		return Event{}, err
	}
	fee := m.fees.CashTransferAny
	amount := inserted.TotalValue() - fee
	if amount <= 0 {
		return Event{}, fmt.Errorf("inserted %d does not cover fee %d: %w", inserted.TotalValue(), fee, bank.ErrBadAmount)
	}
	if _, err := b.Deposit(dest.Number, amount); err != nil {
		return Event{}, err
	}
	m.inv.Add(inserted)

	return m.record(ctx, s, Event{
		Kind:   txlog.KindCashTransfer,
		Amount: amount,
		Fee:    fee,
		Target: dest.Number,
		Cash:   inserted,
		Note:   "Cash transfer completed",
	}, txlog.Transaction{
		Kind:          txlog.KindCashTransfer,
		BankID:        dest.BankID,
		AccountNumber: dest.Number,
		Amount:        amount,
		Fee:           fee,
	}), nil
}
