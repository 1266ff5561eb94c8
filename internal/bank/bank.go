// internal/bank/bank.go

// Package bank 定義帳本核心：帳戶、卡片、銀行與全網銀行註冊表，以及同行/跨行轉帳清算。
// 每家銀行以單一互斥鎖 (sync.Mutex) 保護其帳戶與清算帳戶；跨行操作依銀行 ID 順序取鎖。
// 金額以 int64 的最小貨幣單位儲存，避免浮點誤差。
package bank

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ClearingAccountNumber 為每家銀行清算（power）帳戶的帳號。
const ClearingAccountNumber = "CLEARING"

// Bank 為聚合根 (Aggregate Root)：管理單一銀行的帳戶、卡號索引、管理卡與清算帳戶。
// - mu：序列化所有讀寫；跨行轉帳時由 Registry 同時持有兩家銀行的鎖。
// - accts：帳號 → 帳戶；byCard：卡號 → 帳號。
// - clearing：無實際持有人、初始餘額為 0 的跨行中繼帳戶。
type Bank struct {
	mu        sync.Mutex
	id        string
	name      string
	accts     map[string]*Account
	byCard    map[string]string
	adminCard string
	adminHash []byte
	clearing  *Account

	hasher   PasswordHasher
	logger   *zap.Logger
	registry *Registry
}

// Option 設定 Bank。
type Option func(*Bank)

// WithHasher 指定密碼雜湊實作。
func WithHasher(h PasswordHasher) Option {
	return func(b *Bank) {
		if h != nil {
			b.hasher = h
		}
	}
}

// WithLogger 指定 logger。
func WithLogger(l *zap.Logger) Option {
	return func(b *Bank) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBank 建立空白銀行（僅就緒的 in-memory 狀態，無外部依賴）。
func NewBank(id, name string, opts ...Option) *Bank {
	b := &Bank{
		id:     id,
		name:   name,
		accts:  make(map[string]*Account),
		byCard: make(map[string]string),
		hasher: BcryptHasher{},
		logger: zap.NewNop(),
	}
	b.clearing = &Account{Number: ClearingAccountNumber, Owner: name, BankID: id}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(zap.String("bank", id))
	return b
}

func (b *Bank) ID() string   { return b.id }
func (b *Bank) Name() string { return b.name }

// AccountParams 為開戶參數。Password 與 PasswordHash 擇一；兩者皆有時以 PasswordHash 為準。
type AccountParams struct {
	Number       string
	Owner        string
	Balance      int64
	CardNumber   string
	Password     string
	PasswordHash []byte
}

// OpenAccount 建立帳戶；初始餘額不得為負，帳號與卡號不得重複（卡號全網唯一）。
// 回傳淺拷貝（非內部指標）避免呼叫端越權修改內部狀態。
func (b *Bank) OpenAccount(params AccountParams) (*Account, error) {
	number := strings.TrimSpace(params.Number)
	if number == "" || number == ClearingAccountNumber {
		return nil, fmt.Errorf("open account %q: invalid account number", params.Number)
	}
	if params.Balance < 0 {
		return nil, fmt.Errorf("open account %s: %w", number, ErrBadAmount)
	}

	hash := params.PasswordHash
	if len(hash) == 0 && params.Password != "" {
		h, err := b.hasher.Hash(params.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", number, err)
		}
		hash = h
	}

	if params.CardNumber != "" && b.registry != nil {
		unlock, err := b.registry.claimCard(b.id, params.CardNumber)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.accts[number]; ok {
		return nil, fmt.Errorf("account %s: %w", number, ErrDuplicate)
	}
	if params.CardNumber != "" && b.cardInUseLocked(params.CardNumber) {
		return nil, fmt.Errorf("card %s: %w", params.CardNumber, ErrDuplicate)
	}
	a := &Account{
		Number:       number,
		Owner:        params.Owner,
		BankID:       b.id,
		Balance:      params.Balance,
		CardNumber:   params.CardNumber,
		passwordHash: hash,
	}
	b.accts[number] = a
	if params.CardNumber != "" {
		b.byCard[params.CardNumber] = number
	}
	cp := *a
	return &cp, nil
}

func (b *Bank) cardInUseLocked(card string) bool {
	if _, ok := b.byCard[card]; ok {
		return true
	}
	return b.adminCard != "" && b.adminCard == card
}

// SetAdminCard 設定（或替換）此銀行唯一的管理卡與密碼。
func (b *Bank) SetAdminCard(card, password string) error {
	if card == "" {
		return fmt.Errorf("admin card number is required")
	}
	hash, err := b.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	return b.SetAdminCardHash(card, hash)
}

// SetAdminCardHash 以既有雜湊設定管理卡（快照還原用）。
func (b *Bank) SetAdminCardHash(card string, hash []byte) error {
	if b.registry != nil {
		unlock, err := b.registry.claimCard(b.id, card)
		if err != nil {
			return err
		}
		defer unlock()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byCard[card]; ok {
		return fmt.Errorf("card %s: %w", card, ErrDuplicate)
	}
	b.adminCard = card
	b.adminHash = hash
	return nil
}

// AdminCard 回傳管理卡；未設定時 ok 為 false。
func (b *Bank) AdminCard() (Card, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.adminCard == "" {
		return Card{}, false
	}
	return Card{Number: b.adminCard, BankID: b.id, Role: RoleAdmin}, true
}

// HasCard 回報卡號（使用者卡或管理卡）是否屬於此銀行。
func (b *Bank) HasCard(card string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cardInUseLocked(card)
}

// VerifyUser 以卡號與密碼驗證使用者，成功時回傳帳戶拷貝。
func (b *Bank) VerifyUser(card, password string) (*Account, error) {
	b.mu.Lock()
	number, ok := b.byCard[card]
	var a Account
	if ok {
		a = *b.accts[number]
	}
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("card %s: %w", card, ErrAccountNotFound)
	}
	if !b.hasher.Compare(a.passwordHash, password) {
		return nil, ErrAuthFailed
	}
	return &a, nil
}

// VerifyAdmin 驗證管理卡與密碼。
func (b *Bank) VerifyAdmin(card, password string) bool {
	b.mu.Lock()
	adminCard, hash := b.adminCard, b.adminHash
	b.mu.Unlock()
	if adminCard == "" || adminCard != card {
		return false
	}
	return b.hasher.Compare(hash, password)
}

// Get 依帳號取得帳戶的目前快照；若不存在回傳 ErrAccountNotFound。
func (b *Bank) Get(number string) (*Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.accts[number]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", b.id, number, ErrAccountNotFound)
	}
	cp := *a
	return &cp, nil
}

// List 回傳所有帳戶的淺拷貝快照，依帳號排序。
func (b *Bank) List() []*Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Account, 0, len(b.accts))
	for _, a := range b.accts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Clearing 回傳清算帳戶拷貝。
func (b *Bank) Clearing() Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.clearing
}

// RestoreClearing 於快照還原時設定清算帳戶餘額。
func (b *Bank) RestoreClearing(balance int64) error {
	if balance < 0 {
		return ErrBadAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearing.Balance = balance
	return nil
}

// Deposit 存款：金額需 > 0；若帳戶不存在回傳 ErrAccountNotFound。
func (b *Bank) Deposit(number string, amt int64) (*Account, error) {
	if amt <= 0 {
		return nil, ErrBadAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.accts[number]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", b.id, number, ErrAccountNotFound)
	}
	if err := a.credit(amt); err != nil {
		return nil, err
	}
	cp := *a
	return &cp, nil
}

// Withdraw 提款：金額需 > 0 且不得超過餘額（維持非負）；不存在則 ErrAccountNotFound。
func (b *Bank) Withdraw(number string, amt int64) (*Account, error) {
	if amt <= 0 {
		return nil, ErrBadAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.accts[number]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", b.id, number, ErrAccountNotFound)
	}
	if err := a.debit(amt); err != nil {
		return nil, err
	}
	cp := *a
	return &cp, nil
}

// AccountState 為帳戶的可持久化狀態（含密碼雜湊）。
type AccountState struct {
	Number       string
	Owner        string
	Balance      int64
	CardNumber   string
	PasswordHash []byte
}

// State 為銀行的可持久化狀態。
type State struct {
	ID        string
	Name      string
	AdminCard string
	AdminHash []byte
	Clearing  int64
	Accounts  []AccountState
}

// Export 匯出銀行狀態，帳戶依帳號排序。
func (b *Bank) Export() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exportLocked()
}

func (b *Bank) exportLocked() State {
	s := State{
		ID:        b.id,
		Name:      b.name,
		AdminCard: b.adminCard,
		AdminHash: append([]byte(nil), b.adminHash...),
		Clearing:  b.clearing.Balance,
	}
	for _, a := range b.accts {
		s.Accounts = append(s.Accounts, AccountState{
			Number:       a.Number,
			Owner:        a.Owner,
			Balance:      a.Balance,
			CardNumber:   a.CardNumber,
			PasswordHash: append([]byte(nil), a.passwordHash...),
		})
	}
	sort.Slice(s.Accounts, func(i, j int) bool { return s.Accounts[i].Number < s.Accounts[j].Number })
	return s
}
