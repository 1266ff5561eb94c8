// cmd/server/main.go

// 共享 ATM 網路的 HTTP 服務。
// 啟動時讀取設定與快照（種子檔），每次成功變更後與收到結束訊號時寫回快照；
// 若設定 ATM_AUDIT_DB，交易紀錄另外同步寫入 SQLite。

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"atmnet/internal/bank"
	"atmnet/internal/config"
	"atmnet/internal/logging"
	"atmnet/internal/network"
	"atmnet/internal/server"
	"atmnet/internal/storage"
	"atmnet/internal/storage/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, _, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	snap, err := storage.LoadSnapshot(cfg.DataFile)
	if err != nil {
		return err
	}

	opts := []network.Option{
		network.WithLogger(logger),
		network.WithHasher(bank.BcryptHasher{Cost: cfg.BcryptCost}),
	}
	if cfg.AuditDB != "" {
		audit, err := sqlite.Open(cfg.AuditDB)
		if err != nil {
			return err
		}
		defer audit.Close()
		opts = append(opts, network.WithSink(audit))
		logger.Info("audit store enabled", zap.String("path", cfg.AuditDB))
	}

	n, err := network.Restore(snap, opts...)
	if err != nil {
		return err
	}
	logger.Info("network restored",
		zap.Int("banks", len(n.Registry.Banks())),
		zap.Int("atms", len(n.ATMs())),
		zap.Int("transactions", n.Log.Len()),
	)

	// 所有寫入共用同一個 .tmp 檔，須序列化
	var persistMu sync.Mutex
	persist := func() error {
		persistMu.Lock()
		defer persistMu.Unlock()
		return storage.SaveSnapshot(cfg.DataFile, n.Snapshot())
	}

	s := server.NewServer(n, persist,
		server.WithLogger(logger.Named("http")),
		server.WithCORSOrigins(cfg.CORSOrigins...),
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("atm network server running", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := persist(); err != nil {
		return err
	}
	logger.Info("snapshot saved", zap.String("path", cfg.DataFile))
	return nil
}
