// internal/txlog/transaction.go

// Package txlog 為全網共用、只增不改的交易紀錄 (audit log)。
// 各銀行與 ATM 只透過 Append 寫入；讀取一律回傳值拷貝。
package txlog

import (
	"fmt"
	"time"
)

// Kind 為交易種類（tagged variant 的標籤）。
type Kind string

const (
	KindDeposit         Kind = "deposit"
	KindWithdrawal      Kind = "withdrawal"
	KindAccountTransfer Kind = "account_transfer"
	KindCashTransfer    Kind = "cash_transfer"
)

// Counterparty 為轉帳類交易的目標帳戶。
type Counterparty struct {
	BankID        string `json:"bank_id"`
	AccountNumber string `json:"account_number"`
}

// Transaction 為一筆已完成的交易紀錄；建立後不可變。
//
// 共用欄位描述發起端（存款、提款、帳戶轉帳的來源；現金轉帳則為入帳帳戶），
// Target 僅在 KindAccountTransfer 時設定。
type Transaction struct {
	ID            int64         `json:"id"`
	Kind          Kind          `json:"kind"`
	Time          time.Time     `json:"time"`
	ATMSerial     string        `json:"atm_serial"`
	CardNumber    string        `json:"card_number"`
	BankID        string        `json:"bank_id"`
	AccountNumber string        `json:"account_number"`
	Amount        int64         `json:"amount"`
	Fee           int64         `json:"fee"`
	Note          string        `json:"note,omitempty"`
	Target        *Counterparty `json:"target,omitempty"`
}

// Involves 回報此交易是否涉及指定帳戶（來源或目標）。
func (t Transaction) Involves(bankID, number string) bool {
	if t.BankID == bankID && t.AccountNumber == number {
		return true
	}
	return t.Target != nil && t.Target.BankID == bankID && t.Target.AccountNumber == number
}

// Summary 回傳單行摘要，供稽核匯出使用。
func (t Transaction) Summary() string {
	base := fmt.Sprintf("ID=%d ATM=%s Card=%s Bank=%s Account=%s", t.ID, t.ATMSerial, t.CardNumber, t.BankID, t.AccountNumber)
	switch t.Kind {
	case KindDeposit:
		return fmt.Sprintf("%s Type=Deposit Amount=%d Fee=%d", base, t.Amount, t.Fee)
	case KindWithdrawal:
		return fmt.Sprintf("%s Type=Withdrawal Amount=%d Fee=%d", base, t.Amount, t.Fee)
	case KindAccountTransfer:
		to := "?"
		if t.Target != nil {
			to = t.Target.BankID + "/" + t.Target.AccountNumber
		}
		return fmt.Sprintf("%s Type=AccountTransfer To=%s Amount=%d Fee=%d", base, to, t.Amount, t.Fee)
	case KindCashTransfer:
		return fmt.Sprintf("%s Type=CashTransfer Amount=%d Fee=%d", base, t.Amount, t.Fee)
	default:
		return fmt.Sprintf("%s Type=%s Amount=%d Fee=%d", base, t.Kind, t.Amount, t.Fee)
	}
}
