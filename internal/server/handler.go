// internal/server/handler.go

package server

import (
	"errors"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"golang.org/x/text/language"

	"atmnet/internal/atm"
	"atmnet/internal/bank"
	"atmnet/internal/cash"
	"atmnet/internal/txlog"
)

// decode 解析 JSON 並依 validate tag 驗證；失敗時已寫出 400。
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, fmt.Errorf("decode request: %w", err))
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeBadRequest(w, err)
		return false
	}
	return true
}

// machine 取得路徑中的 ATM；找不到時已寫出 404。
func (s *Server) machine(w http.ResponseWriter, r *http.Request) (*atm.ATM, bool) {
	m, err := s.Net.ATM(mux.Vars(r)["serial"])
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return m, true
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type bankView struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Clearing int64           `json:"clearing_balance"`
	Accounts []*bank.Account `json:"accounts"`
}

// GET /banks
func (s *Server) listBanks(w http.ResponseWriter, r *http.Request) {
	banks := s.Net.Registry.Banks()
	out := make([]bankView, 0, len(banks))
	for _, b := range banks {
		out = append(out, bankView{
			ID:       b.ID(),
			Name:     b.Name(),
			Clearing: b.Clearing().Balance,
			Accounts: b.List(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func accountRef(r *http.Request) bank.AccountRef {
	vars := mux.Vars(r)
	return bank.AccountRef{BankID: vars["bank"], Number: vars["number"]}
}

// GET /banks/{bank}/accounts/{number}
func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.Net.Registry.FindAccount(accountRef(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GET /banks/{bank}/accounts/{number}/transactions
func (s *Server) accountTransactions(w http.ResponseWriter, r *http.Request) {
	ref := accountRef(r)
	if _, err := s.Net.Registry.FindAccount(ref); err != nil {
		writeErr(w, err)
		return
	}
	txs := s.Net.Log.ForAccount(ref.BankID, ref.Number)
	if txs == nil {
		txs = []txlog.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

type atmView struct {
	Serial      string      `json:"serial"`
	PrimaryBank string      `json:"primary_bank"`
	Access      atm.Access  `json:"access"`
	Bilingual   bool        `json:"bilingual"`
	Language    string      `json:"language"`
	Accepted    []string    `json:"accepted_banks"`
	Cash        cash.Bundle `json:"cash"`
	CashTotal   int64       `json:"cash_total"`
	Mode        atm.Mode    `json:"mode"`
	Fees        atm.Fees    `json:"fees"`
	Stats       atm.Stats   `json:"stats"`
}

func viewOf(m *atm.ATM) atmView {
	st := m.Export()
	return atmView{
		Serial:      st.Serial,
		PrimaryBank: st.PrimaryBank,
		Access:      st.Access,
		Bilingual:   st.Bilingual,
		Language:    st.Language,
		Accepted:    st.Accepted,
		Cash:        st.Cash,
		CashTotal:   st.Cash.TotalValue(),
		Mode:        m.Mode(),
		Fees:        st.Fees,
		Stats:       st.Stats,
	}
}

// GET /atms
func (s *Server) listATMs(w http.ResponseWriter, r *http.Request) {
	atms := s.Net.ATMs()
	out := make([]atmView, 0, len(atms))
	for _, m := range atms {
		out = append(out, viewOf(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /atms/{serial}
func (s *Server) getATM(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(m))
}

// PUT /atms/{serial}/language
// 非雙語機要求韓文時仍回 200，但 fallback 為 true。
func (s *Server) setLanguage(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	var req struct {
		Language string `json:"language" validate:"required"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	tag, err := language.Parse(req.Language)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	err = m.SetLanguage(tag)
	if err != nil && !errors.Is(err, atm.ErrLanguageUnsupported) {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"language": m.Language().String(),
		"fallback": err != nil,
	})
	s.persisted()
}

// POST /atms/{serial}/session
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	var req struct {
		Card     string `json:"card" validate:"required"`
		Password string `json:"password"`
		Admin    bool   `json:"admin"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	var err error
	if req.Admin {
		err = m.InsertAdminCard(r.Context(), req.Card, req.Password)
	} else {
		err = m.InsertCard(r.Context(), req.Card, req.Password)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	sess, _ := m.Session()
	writeJSON(w, http.StatusCreated, sess)
	s.persisted()
}

// DELETE /atms/{serial}/session
// 無 session 時同樣回 200，收據為空。
func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	events := m.EndSession()
	if events == nil {
		events = []atm.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipt": events})
}

// GET /atms/{serial}/receipt
func (s *Server) receipt(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	events, err := m.Receipt()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// respondEvent 輸出交易結果；成功時寫入快照。
func (s *Server) respondEvent(w http.ResponseWriter, ev atm.Event, err error) {
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
	s.persisted()
}

// POST /atms/{serial}/deposit
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	var req struct {
		Cash        cash.Bundle `json:"cash"`
		CheckAmount int64       `json:"check_amount" validate:"gte=0"`
		FeeCash     cash.Bundle `json:"fee_cash"`
		CheckCount  int         `json:"check_count" validate:"gte=0"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	ev, err := m.RequestDeposit(r.Context(), atm.DepositRequest{
		Cash:        req.Cash,
		CheckAmount: req.CheckAmount,
		FeeCash:     req.FeeCash,
		CheckCount:  req.CheckCount,
	})
	s.respondEvent(w, ev, err)
}

// POST /atms/{serial}/withdraw
func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	ev, err := m.RequestWithdrawal(r.Context(), req.Amount)
	s.respondEvent(w, ev, err)
}

// POST /atms/{serial}/transfer
func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	var req struct {
		Bank    string `json:"bank" validate:"required"`
		Account string `json:"account" validate:"required"`
		Amount  int64  `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	ev, err := m.RequestAccountTransfer(r.Context(), bank.AccountRef{BankID: req.Bank, Number: req.Account}, req.Amount)
	s.respondEvent(w, ev, err)
}

// POST /atms/{serial}/cash-transfer
func (s *Server) cashTransfer(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	var req struct {
		Bank    string      `json:"bank" validate:"required"`
		Account string      `json:"account" validate:"required"`
		Cash    cash.Bundle `json:"cash"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	ev, err := m.RequestCashTransfer(r.Context(), bank.AccountRef{BankID: req.Bank, Number: req.Account}, req.Cash)
	s.respondEvent(w, ev, err)
}

// GET /atms/{serial}/transactions（限管理員 session）
func (s *Server) transactions(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	txs, err := m.Transactions()
	if err != nil {
		writeErr(w, err)
		return
	}
	if txs == nil {
		txs = []txlog.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}
