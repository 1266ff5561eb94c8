// internal/bank/account.go

package bank

import (
	"fmt"
	"math"
)

// Role 為卡片角色。
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Card 為存取 ATM 的憑證。卡號全網唯一；管理卡不連結任何帳戶。
type Card struct {
	Number string `json:"number"`
	BankID string `json:"bank_id"`
	Role   Role   `json:"role"`
}

// IsAdmin reports whether the card opens an admin session.
func (c Card) IsAdmin() bool { return c.Role == RoleAdmin }

// AccountRef 以 ID 指向某銀行的某帳戶，取代跨物件指標。
type AccountRef struct {
	BankID string `json:"bank_id"`
	Number string `json:"number"`
}

// Account represents a bank account.
// 餘額只能透過 credit/debit 變動，且任何已提交的操作後皆非負。
type Account struct {
	Number     string `json:"number"`
	Owner      string `json:"owner"`
	BankID     string `json:"bank_id"`
	Balance    int64  `json:"balance"`
	CardNumber string `json:"card_number,omitempty"`

	passwordHash []byte
}

// Ref 回傳此帳戶的 AccountRef。
func (a *Account) Ref() AccountRef {
	return AccountRef{BankID: a.BankID, Number: a.Number}
}

// Card 回傳連結的使用者卡；未連結時 ok 為 false。
func (a *Account) Card() (Card, bool) {
	if a.CardNumber == "" {
		return Card{}, false
	}
	return Card{Number: a.CardNumber, BankID: a.BankID, Role: RoleUser}, true
}

// credit 入帳；加總超出 int64 時整筆拒絕，餘額不變。
func (a *Account) credit(amount int64) error {
	if amount <= 0 {
		return ErrBadAmount
	}
	if amount > math.MaxInt64-a.Balance {
		return fmt.Errorf("balance overflow: %w", ErrBadAmount)
	}
	a.Balance += amount
	return nil
}

// debit 不做部分扣款：金額超過餘額時整筆失敗。
func (a *Account) debit(amount int64) error {
	if amount <= 0 {
		return ErrBadAmount
	}
	if amount > a.Balance {
		return ErrInsufficient
	}
	a.Balance -= amount
	return nil
}
