// internal/atm/fees.go

package atm

import "fmt"

// Fees 為 ATM 的手續費表。主行卡/非主行卡、主行↔主行/主行↔他行/他行↔他行各有一級。
type Fees struct {
	DepositPrimary                 int64 `json:"deposit_primary"`
	DepositNonPrimary              int64 `json:"deposit_non_primary"`
	WithdrawalPrimary              int64 `json:"withdrawal_primary"`
	WithdrawalNonPrimary           int64 `json:"withdrawal_non_primary"`
	TransferPrimaryToPrimary       int64 `json:"transfer_primary_to_primary"`
	TransferPrimaryToOther         int64 `json:"transfer_primary_to_other"`
	TransferNonPrimaryToNonPrimary int64 `json:"transfer_non_primary_to_non_primary"`
	CashTransferAny                int64 `json:"cash_transfer_any"`
}

// DefaultFees 回傳預設費率。
func DefaultFees() Fees {
	return Fees{
		DepositPrimary:                 0,
		DepositNonPrimary:              1000,
		WithdrawalPrimary:              1000,
		WithdrawalNonPrimary:           2000,
		TransferPrimaryToPrimary:       1000,
		TransferPrimaryToOther:         2000,
		TransferNonPrimaryToNonPrimary: 4000,
		CashTransferAny:                2000,
	}
}

// Validate 檢查所有費率皆非負。
func (f Fees) Validate() error {
	for name, v := range map[string]int64{
		"deposit_primary":                     f.DepositPrimary,
		"deposit_non_primary":                 f.DepositNonPrimary,
		"withdrawal_primary":                  f.WithdrawalPrimary,
		"withdrawal_non_primary":              f.WithdrawalNonPrimary,
		"transfer_primary_to_primary":         f.TransferPrimaryToPrimary,
		"transfer_primary_to_other":           f.TransferPrimaryToOther,
		"transfer_non_primary_to_non_primary": f.TransferNonPrimaryToNonPrimary,
		"cash_transfer_any":                   f.CashTransferAny,
	} {
		if v < 0 {
			return fmt.Errorf("fee %s must not be negative", name)
		}
	}
	return nil
}

// Deposit 依是否為主行卡回傳存款手續費。
func (f Fees) Deposit(primaryCard bool) int64 {
	if primaryCard {
		return f.DepositPrimary
	}
	return f.DepositNonPrimary
}

// Withdrawal 依是否為主行卡回傳提款手續費。
func (f Fees) Withdrawal(primaryCard bool) int64 {
	if primaryCard {
		return f.WithdrawalPrimary
	}
	return f.WithdrawalNonPrimary
}

// Transfer 比對來源與目的帳戶所屬銀行是否為 ATM 主行，決定轉帳手續費級距。
func (f Fees) Transfer(primaryBank, sourceBank, destBank string) int64 {
	srcPrimary := primaryBank != "" && sourceBank == primaryBank
	dstPrimary := primaryBank != "" && destBank == primaryBank
	switch {
	case srcPrimary && dstPrimary:
		return f.TransferPrimaryToPrimary
	case srcPrimary || dstPrimary:
		return f.TransferPrimaryToOther
	default:
		return f.TransferNonPrimaryToNonPrimary
	}
}
