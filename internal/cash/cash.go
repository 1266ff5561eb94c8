// internal/cash/cash.go

// Package cash 定義 ATM 的實體鈔票模型：面額表、鈔票組合 (Bundle) 與鈔箱庫存 (Inventory)。
// 金額一律以 int64 的最小貨幣單位表示，與帳本層一致。
package cash

import "fmt"

// Count 為面額種類數量。
const Count = 4

// Denominations 為固定且嚴格遞增的面額表；索引即 Bundle 的欄位位置。
var Denominations = [Count]int64{1000, 5000, 10000, 50000}

// MinNote 為最小面額，提款金額必須為其正整數倍。
const MinNote int64 = 1000

// Bundle 代表一組具體鈔票：每個面額索引對應的張數。
type Bundle [Count]int

// Of 依面額值建立 Bundle，例如 Of(map[int64]int{50000: 1, 1000: 3})。
// 不存在的面額會回傳錯誤。
func Of(counts map[int64]int) (Bundle, error) {
	var b Bundle
	for value, n := range counts {
		i := Index(value)
		if i < 0 {
			return Bundle{}, fmt.Errorf("unknown denomination %d", value)
		}
		b[i] += n
	}
	return b, nil
}

// Index 回傳面額在 Denominations 中的位置；找不到時回傳 -1。
func Index(value int64) int {
	for i, v := range Denominations {
		if v == value {
			return i
		}
	}
	return -1
}

// TotalValue = Σ count[i]·value[i]
func (b Bundle) TotalValue() int64 {
	var total int64
	for i, n := range b {
		total += int64(n) * Denominations[i]
	}
	return total
}

// ItemCount = Σ count[i]
func (b Bundle) ItemCount() int {
	total := 0
	for _, n := range b {
		total += n
	}
	return total
}

// Valid 回報所有張數是否皆非負；外部傳入的 Bundle 使用前須先檢查。
func (b Bundle) Valid() bool {
	for _, n := range b {
		if n < 0 {
			return false
		}
	}
	return true
}

// MaxCount 回傳單一面額的最大張數。
// 外部傳入的張數須先以此限制上界，再做 ItemCount/TotalValue 加總，避免溢位。
func (b Bundle) MaxCount() int {
	largest := 0
	for _, n := range b {
		if n > largest {
			largest = n
		}
	}
	return largest
}

// Plus 回傳兩組鈔票相加後的新 Bundle，不修改原值。
func (b Bundle) Plus(other Bundle) Bundle {
	for i := range b {
		b[i] += other[i]
	}
	return b
}

// IsZero 回報是否為空組合。
func (b Bundle) IsZero() bool {
	return b.ItemCount() == 0
}
