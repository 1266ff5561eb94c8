// internal/atm/codes.go

package atm

import (
	"errors"

	"atmnet/internal/bank"
)

// Code 為抽象結果代碼；表現層依此查找在地化訊息或對應 HTTP 狀態。
type Code string

const (
	CodeOK                Code = "OK"
	CodeSessionNotActive  Code = "SESSION_NOT_ACTIVE"
	CodeSessionActive     Code = "SESSION_ACTIVE"
	CodeWrongMode         Code = "WRONG_MODE"
	CodeInvalidAmount     Code = "INVALID_AMOUNT"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeInsufficientCash  Code = "INSUFFICIENT_CASH_INVENTORY"
	CodeInexactBundle     Code = "INEXACT_BUNDLE"
	CodeItemLimit         Code = "ITEM_LIMIT_EXCEEDED"
	CodeFeeMismatch       Code = "FEE_MISMATCH"
	CodeAccountNotFound   Code = "ACCOUNT_NOT_FOUND"
	CodeBankNotFound      Code = "BANK_NOT_FOUND"
	CodeBankNotAccepted   Code = "BANK_NOT_ACCEPTED"
	CodeSameAccount       Code = "SAME_ACCOUNT_TRANSFER"
	CodeSessionLogFull    Code = "SESSION_LOG_FULL"
	CodeSettlement        Code = "SETTLEMENT_ROLLBACK"
	CodeWithdrawalLimit   Code = "WITHDRAWAL_LIMIT"
	CodeAuthFailed        Code = "AUTH_FAILED"
	CodeTooManyAttempts   Code = "TOO_MANY_ATTEMPTS"
	CodeUnknown           Code = "UNKNOWN"
)

func (c Code) String() string { return string(c) }

// 順序有意義：清算回滾會同時包住底層原因（例如餘額不足），必須先比對。
var codeTable = []struct {
	err  error
	code Code
}{
	{bank.ErrSettlementRollback, CodeSettlement},
	{ErrSessionLogFull, CodeSessionLogFull},
	{ErrSessionNotActive, CodeSessionNotActive},
	{ErrSessionActive, CodeSessionActive},
	{ErrWrongMode, CodeWrongMode},
	{ErrWithdrawalLimit, CodeWithdrawalLimit},
	{ErrItemLimit, CodeItemLimit},
	{ErrFeeMismatch, CodeFeeMismatch},
	{ErrInexactBundle, CodeInexactBundle},
	{ErrInsufficientCash, CodeInsufficientCash},
	{ErrBankNotAccepted, CodeBankNotAccepted},
	{ErrBankSlotsFull, CodeBankNotAccepted},
	{ErrTooManyAttempts, CodeTooManyAttempts},
	{bank.ErrAuthFailed, CodeAuthFailed},
	{bank.ErrSameAccount, CodeSameAccount},
	{bank.ErrInsufficient, CodeInsufficientFunds},
	{bank.ErrBadAmount, CodeInvalidAmount},
	{bank.ErrBankNotFound, CodeBankNotFound},
	{bank.ErrAccountNotFound, CodeAccountNotFound},
}

// CodeOf 將錯誤轉為結果代碼；nil 為 CodeOK，無法辨識者為 CodeUnknown。
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	for _, e := range codeTable {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeUnknown
}
