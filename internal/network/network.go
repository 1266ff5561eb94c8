// internal/network/network.go

// Package network 組裝整個共享 ATM 網路：銀行註冊表、全網交易紀錄與所有 ATM，
// 並負責與 storage.Snapshot 之間的匯出與還原。
package network

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"atmnet/internal/atm"
	"atmnet/internal/bank"
	"atmnet/internal/txlog"
)

var (
	ErrATMNotFound  = errors.New("atm not found")
	ErrDuplicateATM = errors.New("atm serial already registered")
)

// Network 為全網聚合：Registry 與 Log 由所有 ATM 共用。
type Network struct {
	Registry *bank.Registry
	Log      *txlog.Log

	mu     sync.RWMutex
	atms   map[string]*atm.ATM
	logger *zap.Logger
	hasher bank.PasswordHasher
	sinks  []txlog.Sink
}

// Option 設定 Network。
type Option func(*Network)

// WithLogger 指定 logger，並傳遞給銀行、交易紀錄與 ATM。
func WithLogger(l *zap.Logger) Option {
	return func(n *Network) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithHasher 指定新建銀行使用的密碼雜湊實作。
func WithHasher(h bank.PasswordHasher) Option {
	return func(n *Network) {
		if h != nil {
			n.hasher = h
		}
	}
}

// WithSink 為交易紀錄加掛外部寫入端（例如 SQLite 稽核副本）。
func WithSink(s txlog.Sink) Option {
	return func(n *Network) {
		if s != nil {
			n.sinks = append(n.sinks, s)
		}
	}
}

// New 建立空白網路。
func New(opts ...Option) *Network {
	n := &Network{
		atms:   make(map[string]*atm.ATM),
		logger: zap.NewNop(),
		hasher: bank.BcryptHasher{},
	}
	for _, o := range opts {
		o(n)
	}
	n.Registry = bank.NewRegistry(n.logger.Named("bank"))
	n.Log = txlog.New(txlog.WithLogger(n.logger.Named("txlog")))
	for _, s := range n.sinks {
		n.Log.AddSink(s)
	}
	return n
}

// AddBank 建立並註冊一家銀行。
func (n *Network) AddBank(id, name string) (*bank.Bank, error) {
	b := bank.NewBank(id, name,
		bank.WithHasher(n.hasher),
		bank.WithLogger(n.logger.Named("bank").With(zap.String("bank", id))),
	)
	if err := n.Registry.Add(b); err != nil {
		return nil, err
	}
	return b, nil
}

// AddATM 依設定建立並註冊一台 ATM。
func (n *Network) AddATM(cfg atm.Config) (*atm.ATM, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.atms[cfg.Serial]; ok {
		return nil, fmt.Errorf("atm %s: %w", cfg.Serial, ErrDuplicateATM)
	}
	m, err := atm.New(cfg, n.Registry, n.Log, atm.WithLogger(n.logger.Named("atm")))
	if err != nil {
		return nil, err
	}
	n.atms[cfg.Serial] = m
	return m, nil
}

// ATM 依序號取得 ATM。
func (n *Network) ATM(serial string) (*atm.ATM, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	m, ok := n.atms[serial]
	if !ok {
		return nil, fmt.Errorf("atm %q: %w", serial, ErrATMNotFound)
	}
	return m, nil
}

// ATMs 回傳所有 ATM，依序號排序。
func (n *Network) ATMs() []*atm.ATM {
	n.mu.RLock()
	out := make([]*atm.ATM, 0, len(n.atms))
	for _, m := range n.atms {
		out = append(out, m)
	}
	n.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Serial() < out[j].Serial() })
	return out
}
