// internal/bank/registry.go

package bank

import (
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Registry 為全網銀行註冊表：銀行 ID → *Bank。
// 銀行之間只以 ID 互相引用；跨行查詢（卡號歸屬、帳戶查找、清算）都經過這裡。
type Registry struct {
	mu     sync.RWMutex
	banks  map[string]*Bank
	logger *zap.Logger
	tracer trace.Tracer

	// cards 序列化卡號的檢查與配發；取鎖順序為 cards → mu → Bank.mu。
	cards sync.Mutex

	// fault 僅供測試注入清算步驟失敗；正式環境為 nil。
	fault func(step settlementStep) error
}

// NewRegistry 建立空白註冊表。logger 可為 nil。
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		banks:  make(map[string]*Bank),
		logger: logger,
		tracer: otel.Tracer("atmnet/bank"),
	}
}

// Add 註冊一家銀行。銀行 ID 重複或卡號與他行衝突時回傳 ErrDuplicate。
func (r *Registry) Add(b *Bank) error {
	if b == nil || b.id == "" {
		return fmt.Errorf("bank id is required")
	}
	cards := b.cardNumbers()

	r.cards.Lock()
	defer r.cards.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.banks[b.id]; ok {
		return fmt.Errorf("bank %s: %w", b.id, ErrDuplicate)
	}
	for _, other := range r.banks {
		for _, c := range cards {
			if other.HasCard(c) {
				return fmt.Errorf("card %s: %w", c, ErrDuplicate)
			}
		}
	}
	b.registry = r
	r.banks[b.id] = b
	return nil
}

func (b *Bank) cardNumbers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.byCard)+1)
	for c := range b.byCard {
		out = append(out, c)
	}
	if b.adminCard != "" {
		out = append(out, b.adminCard)
	}
	return out
}

// Bank 依 ID 取得銀行。
func (r *Registry) Bank(id string) (*Bank, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.banks[id]
	if !ok {
		return nil, fmt.Errorf("bank %q: %w", id, ErrBankNotFound)
	}
	return b, nil
}

// Banks 回傳所有銀行，依 ID 排序。
func (r *Registry) Banks() []*Bank {
	r.mu.RLock()
	out := make([]*Bank, 0, len(r.banks))
	for _, b := range r.banks {
		out = append(out, b)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// claimCard 在卡號未被他行使用時取得 cards 鎖並回傳 unlock；
// 呼叫端須在寫入卡號後才釋放，使檢查與寫入對其他銀行不可分割。
func (r *Registry) claimCard(bankID, card string) (unlock func(), err error) {
	r.cards.Lock()
	if owner, ok := r.cardOwner(card); ok && owner != bankID {
		r.cards.Unlock()
		return nil, fmt.Errorf("card %s: %w", card, ErrDuplicate)
	}
	return r.cards.Unlock, nil
}

func (r *Registry) cardOwner(card string) (string, bool) {
	for _, b := range r.Banks() {
		if b.HasCard(card) {
			return b.id, true
		}
	}
	return "", false
}

// BankByCard 回傳發卡銀行。卡號全網唯一。
func (r *Registry) BankByCard(card string) (*Bank, error) {
	id, ok := r.cardOwner(card)
	if !ok {
		return nil, fmt.Errorf("card %s: %w", card, ErrAccountNotFound)
	}
	return r.Bank(id)
}

// FindAccount 依 AccountRef 取得帳戶拷貝。
func (r *Registry) FindAccount(ref AccountRef) (*Account, error) {
	b, err := r.Bank(ref.BankID)
	if err != nil {
		return nil, err
	}
	return b.Get(ref.Number)
}

// Export 依銀行 ID 順序同時持有所有銀行的鎖後匯出，
// 進行中的跨行轉帳不會只出現一半。
func (r *Registry) Export() []State {
	banks := r.Banks()
	for _, b := range banks {
		b.mu.Lock()
	}
	defer func() {
		for i := len(banks) - 1; i >= 0; i-- {
			banks[i].mu.Unlock()
		}
	}()
	out := make([]State, 0, len(banks))
	for _, b := range banks {
		out = append(out, b.exportLocked())
	}
	return out
}
