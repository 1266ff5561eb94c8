// internal/bank/settlement.go

package bank

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// settlementStep 標示跨行清算的各個步驟。
type settlementStep int

const (
	stepCreditSourceClearing settlementStep = iota + 1
	stepClearingToClearing
	stepClearingToDestination
)

func (s settlementStep) String() string {
	switch s {
	case stepCreditSourceClearing:
		return "credit_source_clearing"
	case stepClearingToClearing:
		return "clearing_to_clearing"
	case stepClearingToDestination:
		return "clearing_to_destination"
	default:
		return "unknown"
	}
}

// Transfer 將 amount 由 from 轉入 to，並由 from 另扣 fee。
//
// 同行：from 扣 amount+fee，to 入 amount，手續費留在銀行（不再入帳）。
// 跨行：from 扣款後，金額依序經 來源行清算帳戶 → 目的行清算帳戶 → to；
// 任一步失敗即反向補償所有已完成步驟並退回 amount+fee，回傳 ErrSettlementRollback。
//
// 兩家銀行的鎖依 ID 排序後在整個流程中持有，清算帳戶在鎖釋放前必定回到原餘額。
func (r *Registry) Transfer(ctx context.Context, from, to AccountRef, amount, fee int64) (err error) {
	_, span := r.tracer.Start(ctx, "bank.Transfer")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("from.bank", from.BankID),
		attribute.String("to.bank", to.BankID),
		attribute.Int64("amount", amount),
		attribute.Int64("fee", fee),
	)

	if from == to {
		return ErrSameAccount
	}
	if amount <= 0 || fee < 0 || amount > math.MaxInt64-fee {
		return ErrBadAmount
	}
	fromBank, err := r.Bank(from.BankID)
	if err != nil {
		return err
	}
	toBank, err := r.Bank(to.BankID)
	if err != nil {
		return err
	}

	unlock := lockPair(fromBank, toBank)
	defer unlock()

	src, ok := fromBank.accts[from.Number]
	if !ok {
		return fmt.Errorf("%s/%s: %w", from.BankID, from.Number, ErrAccountNotFound)
	}
	dst, ok := toBank.accts[to.Number]
	if !ok {
		return fmt.Errorf("%s/%s: %w", to.BankID, to.Number, ErrAccountNotFound)
	}

	totalCost := amount + fee
	if src.Balance < totalCost {
		return ErrInsufficient
	}
	if err := src.debit(totalCost); err != nil {
		return err
	}

	if fromBank == toBank {
		if err := dst.credit(amount); err != nil {
			_ = src.credit(totalCost)
			return err
		}
		return nil
	}
	return r.settle(fromBank, toBank, src, dst, amount, totalCost)
}

// settle 執行跨行的三個步驟；呼叫端已持有兩家銀行的鎖且 src 已被扣款。
func (r *Registry) settle(fromBank, toBank *Bank, src, dst *Account, amount, totalCost int64) error {
	fromClr, toClr := fromBank.clearing, toBank.clearing

	refund := func(step settlementStep, cause error) error {
		// 退款是 credit，金額為正必定成功
		_ = src.credit(totalCost)
		r.logger.Warn("settlement rolled back",
			zap.String("from_bank", fromBank.id),
			zap.String("to_bank", toBank.id),
			zap.String("step", step.String()),
			zap.Int64("amount", amount),
			zap.Error(cause),
		)
		return fmt.Errorf("%s: %w", step, errors.Join(ErrSettlementRollback, cause))
	}

	// (a)
	if err := r.run(stepCreditSourceClearing, func() error { return fromClr.credit(amount) }); err != nil {
		return refund(stepCreditSourceClearing, err)
	}

	// (b)
	if err := r.run(stepClearingToClearing, func() error { return move(fromClr, toClr, amount) }); err != nil {
		_ = fromClr.debit(amount)
		return refund(stepClearingToClearing, err)
	}

	// (c)
	if err := r.run(stepClearingToDestination, func() error { return move(toClr, dst, amount) }); err != nil {
		_ = move(toClr, fromClr, amount)
		_ = fromClr.debit(amount)
		return refund(stepClearingToDestination, err)
	}
	return nil
}

func (r *Registry) run(step settlementStep, fn func() error) error {
	if r.fault != nil {
		if err := r.fault(step); err != nil {
			return err
		}
	}
	return fn()
}

// move 由 src 扣款再入帳 dst；任一邊失敗時兩邊餘額皆不變。
func move(src, dst *Account, amount int64) error {
	if err := src.debit(amount); err != nil {
		return err
	}
	if err := dst.credit(amount); err != nil {
		_ = src.credit(amount)
		return err
	}
	return nil
}

// lockPair 依銀行 ID 順序取鎖，避免兩台 ATM 反向轉帳時死結。
func lockPair(a, b *Bank) (unlock func()) {
	if a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}
	first, second := a, b
	if second.id < first.id {
		first, second = second, first
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}
