// internal/atm/errors.go
//
// ATM 交易引擎自身的領域錯誤。帳本相關錯誤（餘額不足、帳戶不存在、同帳戶轉帳、
// 清算回滾）沿用 bank 套件的定義，兩者皆可由 CodeOf 轉成結果代碼。

package atm

import "errors"

var (
	ErrSessionNotActive    = errors.New("no active session")
	ErrSessionActive       = errors.New("a session is already running")
	ErrWrongMode           = errors.New("action not allowed in this session")
	ErrSessionLogFull      = errors.New("session log is full, session ended")
	ErrWithdrawalLimit     = errors.New("withdrawal limit reached for this session")
	ErrItemLimit           = errors.New("too many inserted items")
	ErrFeeMismatch         = errors.New("fee cash must match the exact fee")
	ErrInexactBundle       = errors.New("requested amount cannot be formed from available bills")
	ErrInsufficientCash    = errors.New("atm is out of cash for that request")
	ErrBankNotAccepted     = errors.New("bank not accepted by this atm")
	ErrBankSlotsFull       = errors.New("accepted bank list is full")
	ErrLanguageUnsupported = errors.New("language not supported by this atm")
	ErrTooManyAttempts     = errors.New("too many wrong password attempts")
)
