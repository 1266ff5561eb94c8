// internal/server/server_test.go
//
// server 層的整合測試：以 httptest.Server 走完整 HTTP 流程，
// 驗證 ATM 引擎整合、錯誤代碼與狀態碼對應，以及成功變更後觸發 persist。
package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"atmnet/internal/atm"
	"atmnet/internal/bank"
	"atmnet/internal/network"
	"atmnet/internal/storage"
	"atmnet/internal/txlog"
)

func newTestNetwork(t *testing.T) *network.Network {
	t.Helper()
	n, err := network.Restore(storage.Snapshot{
		Banks: []storage.PersistBank{
			{
				ID: "KB", Name: "Kookmin", AdminCard: "ADM", AdminPassword: "root",
				Accounts: []storage.PersistAccount{
					{Number: "111", Owner: "Kim", Balance: 100000, CardNumber: "C111", Password: "1111"},
					{Number: "112", Owner: "Park", Balance: 5000, CardNumber: "C112", Password: "1112"},
				},
			},
			{
				ID: "SH", Name: "Shinhan",
				Accounts: []storage.PersistAccount{
					{Number: "221", Owner: "Lee", Balance: 50000, CardNumber: "C221", Password: "2221"},
				},
			},
		},
		ATMs: []storage.PersistATM{
			{Serial: "ATM-1", PrimaryBank: "KB", Access: "multi", Bilingual: true, Cash: [4]int{10, 10, 10, 10}, Accepted: []string{"SH"}},
			{Serial: "ATM-2", PrimaryBank: "SH"},
		},
	}, network.WithHasher(bank.BcryptHasher{Cost: bcrypt.MinCost}))
	require.NoError(t, err)
	return n
}

type apiError struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// doJSON 送出 JSON 請求並檢查狀態碼；out 非 nil 時解析回應。
func doJSON(t *testing.T, c *http.Client, method, url string, body any, wantCode int, out any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantCode, resp.StatusCode, "%s %s", method, url)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

func startServer(t *testing.T) (*httptest.Server, *network.Network, *int32) {
	t.Helper()
	var persistCalls int32
	n := newTestNetwork(t)
	s := NewServer(n, func() error {
		atomic.AddInt32(&persistCalls, 1)
		return nil
	})
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts, n, &persistCalls
}

func TestHealthAndListings(t *testing.T) {
	ts, _, _ := startServer(t)
	cli := ts.Client()

	var health map[string]string
	doJSON(t, cli, "GET", ts.URL+"/health", nil, 200, &health)
	assert.Equal(t, "ok", health["status"])
	doJSON(t, cli, "GET", ts.URL+"/api/v1/health", nil, 200, nil)

	var banks []bankView
	doJSON(t, cli, "GET", ts.URL+"/banks", nil, 200, &banks)
	require.Len(t, banks, 2)
	assert.Equal(t, "KB", banks[0].ID)
	require.Len(t, banks[0].Accounts, 2)

	var acct bank.Account
	doJSON(t, cli, "GET", ts.URL+"/api/v1/banks/SH/accounts/221", nil, 200, &acct)
	assert.Equal(t, int64(50000), acct.Balance)

	var e apiError
	doJSON(t, cli, "GET", ts.URL+"/banks/SH/accounts/999", nil, 404, &e)
	assert.Equal(t, "ACCOUNT_NOT_FOUND", e.Code)
	doJSON(t, cli, "GET", ts.URL+"/banks/XX/accounts/1", nil, 404, &e)
	assert.Equal(t, "BANK_NOT_FOUND", e.Code)

	var atms []atmView
	doJSON(t, cli, "GET", ts.URL+"/atms", nil, 200, &atms)
	require.Len(t, atms, 2)
	assert.Equal(t, "ATM-1", atms[0].Serial)
	assert.Equal(t, int64(660000), atms[0].CashTotal)
	assert.Equal(t, atm.ModeIdle, atms[0].Mode)

	doJSON(t, cli, "GET", ts.URL+"/atms/NOPE", nil, 404, &e)
	assert.Equal(t, "ATM_NOT_FOUND", e.Code)
	doJSON(t, cli, "POST", ts.URL+"/atms", nil, http.StatusMethodNotAllowed, nil)
}

// 完整客戶流程：登入、存款、提款、轉帳、現金轉帳、收據、結束。
func TestCustomerFlowAndPersistHook(t *testing.T) {
	ts, n, persistCalls := startServer(t)
	cli := ts.Client()
	base := ts.URL + "/api/v1/atms/ATM-1"

	var sess atm.Session
	doJSON(t, cli, "POST", base+"/session", map[string]any{"card": "C111", "password": "1111"}, 201, &sess)
	assert.Equal(t, atm.ModeCustomer, sess.Mode)
	assert.True(t, sess.PrimaryCard)

	var e apiError
	doJSON(t, cli, "POST", base+"/session", map[string]any{"card": "C221", "password": "2221"}, 409, &e)
	assert.Equal(t, "SESSION_ACTIVE", e.Code)

	var ev atm.Event
	doJSON(t, cli, "POST", base+"/deposit", map[string]any{"cash": []int{0, 2, 0, 0}, "check_amount": 20000, "check_count": 1}, 200, &ev)
	assert.Equal(t, int64(30000), ev.Amount)

	doJSON(t, cli, "POST", base+"/withdraw", map[string]any{"amount": 83000}, 200, &ev)
	assert.Equal(t, [4]int{3, 0, 3, 1}, [4]int(ev.Cash))
	assert.Equal(t, int64(1000), ev.Fee)

	doJSON(t, cli, "POST", base+"/transfer", map[string]any{"bank": "SH", "account": "221", "amount": 10000}, 200, &ev)
	assert.Equal(t, int64(2000), ev.Fee)

	doJSON(t, cli, "POST", base+"/cash-transfer", map[string]any{"bank": "KB", "account": "112", "cash": []int{0, 1, 0, 0}}, 200, &ev)
	assert.Equal(t, int64(3000), ev.Amount)

	var receipt []atm.Event
	doJSON(t, cli, "GET", base+"/receipt", nil, 200, &receipt)
	require.Len(t, receipt, 4)

	var ended struct {
		Receipt []atm.Event `json:"receipt"`
	}
	doJSON(t, cli, "DELETE", base+"/session", nil, 200, &ended)
	assert.Len(t, ended.Receipt, 4)
	doJSON(t, cli, "DELETE", base+"/session", nil, 200, &ended)
	assert.Empty(t, ended.Receipt)

	// 100000 + 30000 - 84000 - 12000
	acct, err := n.Registry.FindAccount(bank.AccountRef{BankID: "KB", Number: "111"})
	require.NoError(t, err)
	assert.Equal(t, int64(34000), acct.Balance)

	var txs []txlog.Transaction
	doJSON(t, cli, "GET", ts.URL+"/banks/SH/accounts/221/transactions", nil, 200, &txs)
	require.Len(t, txs, 1)
	assert.Equal(t, txlog.KindAccountTransfer, txs[0].Kind)

	// session 開始 + 4 筆交易
	assert.Equal(t, int32(5), atomic.LoadInt32(persistCalls))
}

func TestErrorMapping(t *testing.T) {
	ts, _, persistCalls := startServer(t)
	cli := ts.Client()
	base := ts.URL + "/atms/ATM-1"
	var e apiError

	doJSON(t, cli, "POST", base+"/withdraw", map[string]any{"amount": 1000}, 409, &e)
	assert.Equal(t, "SESSION_NOT_ACTIVE", e.Code)

	doJSON(t, cli, "POST", base+"/session", map[string]any{"card": "C112", "password": "nope"}, 401, &e)
	assert.Equal(t, "AUTH_FAILED", e.Code)
	doJSON(t, cli, "POST", base+"/session", map[string]any{"password": "x"}, 400, &e)
	assert.Equal(t, "BAD_REQUEST", e.Code)

	req, _ := http.NewRequest("POST", base+"/session", bytes.NewBufferString("{bad json"))
	resp, err := cli.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 400, resp.StatusCode)

	doJSON(t, cli, "POST", base+"/session", map[string]any{"card": "C112", "password": "1112"}, 201, nil)

	doJSON(t, cli, "POST", base+"/withdraw", map[string]any{"amount": 5000}, 422, &e)
	assert.Equal(t, "INSUFFICIENT_FUNDS", e.Code)
	doJSON(t, cli, "POST", base+"/withdraw", map[string]any{"amount": 1500}, 400, &e)
	assert.Equal(t, "INVALID_AMOUNT", e.Code)
	doJSON(t, cli, "POST", base+"/transfer", map[string]any{"bank": "SH", "account": "221", "amount": 4000}, 422, &e)
	assert.Equal(t, "INSUFFICIENT_FUNDS", e.Code)
	doJSON(t, cli, "POST", base+"/transfer", map[string]any{"bank": "KB", "account": "112", "amount": 100}, 400, &e)
	assert.Equal(t, "SAME_ACCOUNT_TRANSFER", e.Code)
	doJSON(t, cli, "POST", base+"/deposit", map[string]any{"cash": []int{1, 0, 0, 0}, "fee_cash": []int{1, 0, 0, 0}}, 400, &e)
	assert.Equal(t, "FEE_MISMATCH", e.Code)
	doJSON(t, cli, "POST", base+"/deposit", map[string]any{"cash": []int{51, 0, 0, 0}}, 400, &e)
	assert.Equal(t, "ITEM_LIMIT_EXCEEDED", e.Code)
	doJSON(t, cli, "GET", base+"/transactions", nil, 409, &e)
	assert.Equal(t, "WRONG_MODE", e.Code)

	doJSON(t, cli, "POST", ts.URL+"/atms/ATM-2/session", map[string]any{"card": "C111", "password": "1111"}, 403, &e)
	assert.Equal(t, "BANK_NOT_ACCEPTED", e.Code)

	// 只有登入成功那一次寫入快照
	assert.Equal(t, int32(1), atomic.LoadInt32(persistCalls))
}

func TestAdminTransactions(t *testing.T) {
	ts, _, _ := startServer(t)
	cli := ts.Client()
	base := ts.URL + "/atms/ATM-1"

	doJSON(t, cli, "POST", base+"/session", map[string]any{"card": "C111", "password": "1111"}, 201, nil)
	doJSON(t, cli, "POST", base+"/withdraw", map[string]any{"amount": 10000}, 200, nil)
	doJSON(t, cli, "DELETE", base+"/session", nil, 200, nil)

	var e apiError
	doJSON(t, cli, "POST", base+"/session", map[string]any{"card": "ADM", "password": "bad", "admin": true}, 401, &e)
	doJSON(t, cli, "POST", base+"/session", map[string]any{"card": "ADM", "password": "root", "admin": true}, 201, nil)

	var txs []txlog.Transaction
	doJSON(t, cli, "GET", base+"/transactions", nil, 200, &txs)
	require.Len(t, txs, 1)
	assert.Equal(t, txlog.KindWithdrawal, txs[0].Kind)

	doJSON(t, cli, "POST", base+"/withdraw", map[string]any{"amount": 10000}, 409, &e)
	assert.Equal(t, "WRONG_MODE", e.Code)
}

func TestSetLanguage(t *testing.T) {
	ts, _, _ := startServer(t)
	cli := ts.Client()

	var out struct {
		Language string `json:"language"`
		Fallback bool   `json:"fallback"`
	}
	doJSON(t, cli, "PUT", ts.URL+"/atms/ATM-1/language", map[string]any{"language": "ko"}, 200, &out)
	assert.Equal(t, "ko", out.Language)
	assert.False(t, out.Fallback)

	doJSON(t, cli, "PUT", ts.URL+"/atms/ATM-2/language", map[string]any{"language": "ko"}, 200, &out)
	assert.Equal(t, "en", out.Language)
	assert.True(t, out.Fallback)

	doJSON(t, cli, "PUT", ts.URL+"/atms/ATM-2/language", map[string]any{"language": "!!"}, 400, nil)
}

func TestCORSPreflight(t *testing.T) {
	ts, _, _ := startServer(t)
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/atms/ATM-1/withdraw", nil)
	req.Header.Set("Origin", "http://kiosk.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
