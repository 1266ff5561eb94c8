// internal/server/server.go

// Package server 提供共享 ATM 網路的 HTTP 介面。
// handler 只負責解碼與驗證請求、呼叫 ATM 引擎、輸出 JSON；
// 任何成功的狀態變更之後呼叫 persist 寫入快照。
package server

import (
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"atmnet/internal/network"
)

// Server 為 HTTP 層核心結構。
type Server struct {
	Net *network.Network

	persist  func() error
	logger   *zap.Logger
	validate *validator.Validate
	origins  []string
}

// Option 設定 Server。
type Option func(*Server)

// WithLogger 指定 logger。
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCORSOrigins 指定允許的跨來源網域；預設為 "*"。
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// NewServer 建立 HTTP 伺服器。persist 可為 nil。
func NewServer(n *network.Network, persist func() error, opts ...Option) *Server {
	s := &Server{
		Net:      n,
		persist:  persist,
		logger:   zap.NewNop(),
		validate: validator.New(),
		origins:  []string{"*"},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) persisted() {
	if s.persist == nil {
		return
	}
	if err := s.persist(); err != nil {
		s.logger.Error("persist snapshot failed", zap.Error(err))
	}
}
