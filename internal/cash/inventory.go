// internal/cash/inventory.go

package cash

// Inventory 為單一 ATM 擁有的鈔箱庫存。
// 不自帶鎖：由擁有它的 ATM 在其臨界區內操作。
type Inventory struct {
	counts Bundle
}

// NewInventory 以初始鈔票建立庫存。
func NewInventory(initial Bundle) *Inventory {
	inv := &Inventory{}
	inv.Add(initial)
	return inv
}

// Add 將整組鈔票加入庫存（存款、手續費、現金轉帳皆由 ATM 全數收下）。
func (inv *Inventory) Add(b Bundle) {
	for i, n := range b {
		inv.counts[i] += n
	}
}

// HasEnough 回報每個面額的庫存是否都足以支付 b。
func (inv *Inventory) HasEnough(b Bundle) bool {
	for i, n := range b {
		if n > inv.counts[i] {
			return false
		}
	}
	return true
}

// Remove 自庫存扣除 b。前置條件為 HasEnough(b)；不足時為 no-op，呼叫端必須先檢查。
func (inv *Inventory) Remove(b Bundle) {
	if !inv.HasEnough(b) {
		return
	}
	for i, n := range b {
		inv.counts[i] -= n
	}
}

// Snapshot 回傳目前庫存的值拷貝。
func (inv *Inventory) Snapshot() Bundle {
	return inv.counts
}

// TotalValue 回傳庫存總金額。
func (inv *Inventory) TotalValue() int64 {
	return inv.counts.TotalValue()
}

// BuildWithdrawalBundle 以「大面額優先」的貪婪法把 amount 轉為庫存內可出的鈔票組合。
// exact 為 false 時呼叫端必須拒絕整筆交易，不做部分出鈔。
//
// 貪婪法不保證找得到解：例如庫存只有一張 50000 時無法湊出 20000，
// 不會拆大鈔重試。
func BuildWithdrawalBundle(amount int64, inv Bundle) (bundle Bundle, exact bool) {
	remaining := amount
	for i := Count - 1; i >= 0; i-- {
		value := Denominations[i]
		needed := remaining / value
		if needed <= 0 {
			continue
		}
		usable := min(needed, int64(inv[i]))
		if usable < 0 {
			usable = 0
		}
		bundle[i] = int(usable)
		remaining -= usable * value
	}
	return bundle, remaining == 0
}
