// internal/bank/password.go

package bank

import "golang.org/x/crypto/bcrypt"

// PasswordHasher 為不透明的密碼驗證能力；帳本層只存雜湊值，不解讀其格式。
type PasswordHasher interface {
	Hash(password string) ([]byte, error)
	Compare(hash []byte, password string) bool
}

// BcryptHasher 以 bcrypt 實作 PasswordHasher。Cost 為 0 時使用 bcrypt.DefaultCost。
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) ([]byte, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return bcrypt.GenerateFromPassword([]byte(password), cost)
}

func (h BcryptHasher) Compare(hash []byte, password string) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
