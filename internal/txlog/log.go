// internal/txlog/log.go

package txlog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink 接收每筆新追加的交易（例如 SQLite 稽核庫）。
// Sink 失敗只記錄日誌，不會回滾已提交的帳務。
type Sink interface {
	Record(ctx context.Context, tx Transaction) error
}

// Log 為只增不改的交易紀錄。ID 由 1 開始單調遞增。
type Log struct {
	mu     sync.Mutex
	nextID int64
	txs    []Transaction
	sinks  []Sink
	logger *zap.Logger
	now    func() time.Time
}

// Option 設定 Log。
type Option func(*Log)

// WithLogger 指定 sink 失敗時使用的 logger。
func WithLogger(l *zap.Logger) Option {
	return func(lg *Log) {
		if l != nil {
			lg.logger = l
		}
	}
}

// WithSink 追加一個 Sink。
func WithSink(s Sink) Option {
	return func(lg *Log) {
		if s != nil {
			lg.sinks = append(lg.sinks, s)
		}
	}
}

// New 建立空白交易紀錄。
func New(opts ...Option) *Log {
	l := &Log{nextID: 1, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddSink 於執行期追加 Sink（例如啟動後才開啟的稽核庫）。
func (l *Log) AddSink(s Sink) {
	if s == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Append 指派 ID 與時間後寫入，回傳最終紀錄。
// Sink 在鎖外通知，避免慢速 I/O 阻塞其他 ATM。
func (l *Log) Append(ctx context.Context, tx Transaction) Transaction {
	l.mu.Lock()
	tx.ID = l.nextID
	l.nextID++
	if tx.Time.IsZero() {
		tx.Time = l.now().UTC()
	}
	if tx.Target != nil {
		cp := *tx.Target
		tx.Target = &cp
	}
	l.txs = append(l.txs, tx)
	sinks := append([]Sink(nil), l.sinks...)
	l.mu.Unlock()

	for _, s := range sinks {
		if err := s.Record(ctx, tx); err != nil {
			l.logger.Error("transaction sink failed", zap.Int64("tx_id", tx.ID), zap.Error(err))
		}
	}
	return tx
}

// All 回傳全部交易的拷貝，依 ID 排序。
func (l *Log) All() []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transaction, len(l.txs))
	for i, tx := range l.txs {
		out[i] = clone(tx)
	}
	return out
}

// ForAccount 回傳涉及指定帳戶（來源或目標）的交易。
func (l *Log) ForAccount(bankID, number string) []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Transaction
	for _, tx := range l.txs {
		if tx.Involves(bankID, number) {
			out = append(out, clone(tx))
		}
	}
	return out
}

// Len 回傳紀錄筆數。
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.txs)
}

// NextID 回傳下一筆將使用的 ID（快照用）。
func (l *Log) NextID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextID
}

// Restore 由快照還原紀錄。nextID 不會小於既有最大 ID + 1。
func (l *Log) Restore(nextID int64, txs []Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txs = make([]Transaction, 0, len(txs))
	maxID := int64(0)
	for _, tx := range txs {
		l.txs = append(l.txs, clone(tx))
		maxID = max(maxID, tx.ID)
	}
	l.nextID = max(nextID, maxID+1, 1)
}

func clone(tx Transaction) Transaction {
	if tx.Target != nil {
		cp := *tx.Target
		tx.Target = &cp
	}
	return tx
}
