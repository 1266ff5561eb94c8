// internal/bank/errors.go
//
// 本檔集中定義帳本層的「領域錯誤（domain errors）」。
// 上層（ATM 交易引擎、HTTP handler）以 errors.Is 判斷類別並轉成結果代碼，
// 本層不關心代碼或 HTTP 狀態。

package bank

import "errors"

var (
	// ErrAccountNotFound 代表帳戶（或卡號）不存在。
	ErrAccountNotFound = errors.New("account not found")

	// ErrBankNotFound 代表銀行 ID 不在註冊表中。
	ErrBankNotFound = errors.New("bank not found")

	// ErrBadAmount 代表金額非法（<=0、手續費為負、初始餘額為負）。
	ErrBadAmount = errors.New("amount must be > 0")

	// ErrInsufficient 代表餘額不足，扣款不會部分成功。
	ErrInsufficient = errors.New("insufficient balance")

	// ErrSameAccount 代表轉帳來源與目標帳戶相同。
	ErrSameAccount = errors.New("from and to are same")

	// ErrDuplicate 代表帳號、卡號或銀行 ID 重複註冊。
	ErrDuplicate = errors.New("already registered")

	// ErrAuthFailed 代表卡號與密碼不符。
	ErrAuthFailed = errors.New("credential verification failed")

	// ErrSettlementRollback 代表跨行清算中途失敗，已完整補償回原狀。
	ErrSettlementRollback = errors.New("settlement failed and was rolled back")
)
