// internal/server/router.go
//
// 路由註冊。所有端點同時掛在 /api/v1 與根路徑下。
package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Router 建立完整的 HTTP 處理鏈（路由 → 存取日誌 → CORS）。
func (s *Server) Router() http.Handler {
	root := mux.NewRouter()
	s.routes(root.PathPrefix("/api/v1").Subrouter())
	s.routes(root)
	root.Use(s.accessLog)

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(root)
}

func (s *Server) routes(r *mux.Router) {
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	r.HandleFunc("/banks", s.listBanks).Methods(http.MethodGet)
	r.HandleFunc("/banks/{bank}/accounts/{number}", s.getAccount).Methods(http.MethodGet)
	r.HandleFunc("/banks/{bank}/accounts/{number}/transactions", s.accountTransactions).Methods(http.MethodGet)

	r.HandleFunc("/atms", s.listATMs).Methods(http.MethodGet)
	r.HandleFunc("/atms/{serial}", s.getATM).Methods(http.MethodGet)
	r.HandleFunc("/atms/{serial}/language", s.setLanguage).Methods(http.MethodPut)
	r.HandleFunc("/atms/{serial}/session", s.startSession).Methods(http.MethodPost)
	r.HandleFunc("/atms/{serial}/session", s.endSession).Methods(http.MethodDelete)
	r.HandleFunc("/atms/{serial}/receipt", s.receipt).Methods(http.MethodGet)
	r.HandleFunc("/atms/{serial}/deposit", s.deposit).Methods(http.MethodPost)
	r.HandleFunc("/atms/{serial}/withdraw", s.withdraw).Methods(http.MethodPost)
	r.HandleFunc("/atms/{serial}/transfer", s.transfer).Methods(http.MethodPost)
	r.HandleFunc("/atms/{serial}/cash-transfer", s.cashTransfer).Methods(http.MethodPost)
	r.HandleFunc("/atms/{serial}/transactions", s.transactions).Methods(http.MethodGet)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
