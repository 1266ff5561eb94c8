// internal/atm/atm_test.go
//
// ATM 的建立、接受銀行清單、語言、session 狀態機與認證流程測試。
// 交易流程（存提款、轉帳）的測試在 engine_test.go。

package atm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"

	"atmnet/internal/bank"
	"atmnet/internal/cash"
	"atmnet/internal/txlog"
)

var fastHasher = bank.BcryptHasher{Cost: bcrypt.MinCost}

type fixture struct {
	reg *bank.Registry
	log *txlog.Log
	b1  *bank.Bank
	b2  *bank.Bank
}

// newFixture 建立 B1（主行，含管理卡 A1）與 B2 兩家銀行。
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{reg: bank.NewRegistry(nil), log: txlog.New()}
	f.b1 = bank.NewBank("B1", "First Bank", bank.WithHasher(fastHasher))
	f.b2 = bank.NewBank("B2", "Second Bank", bank.WithHasher(fastHasher))
	require.NoError(t, f.reg.Add(f.b1))
	require.NoError(t, f.reg.Add(f.b2))
	f.open(t, f.b1, "111", 1000000, "C111")
	f.open(t, f.b1, "112", 5000, "C112")
	f.open(t, f.b2, "221", 200000, "C221")
	f.open(t, f.b2, "222", 0, "C222")
	require.NoError(t, f.b1.SetAdminCard("A1", "admin"))
	return f
}

func (f *fixture) open(t *testing.T, b *bank.Bank, number string, balance int64, card string) {
	t.Helper()
	_, err := b.OpenAccount(bank.AccountParams{
		Number:     number,
		Owner:      "owner-" + number,
		Balance:    balance,
		CardNumber: card,
		Password:   "pw-" + number,
	})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, bankID, number string) int64 {
	t.Helper()
	a, err := f.reg.FindAccount(bank.AccountRef{BankID: bankID, Number: number})
	require.NoError(t, err)
	return a.Balance
}

var fullCash = cash.Bundle{10, 10, 10, 10}

func (f *fixture) newATM(t *testing.T, access Access, initial cash.Bundle) *ATM {
	t.Helper()
	clock := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m, err := New(Config{
		Serial:      "ATM1",
		PrimaryBank: "B1",
		Access:      access,
		Bilingual:   true,
		Cash:        initial,
	}, f.reg, f.log, WithClock(func() time.Time { return clock }))
	require.NoError(t, err)
	if access == AccessMultiBank {
		require.NoError(t, m.AddAcceptedBank("B2"))
	}
	return m
}

func TestNewValidation(t *testing.T) {
	f := newFixture(t)

	_, err := New(Config{PrimaryBank: "B1"}, f.reg, f.log)
	require.Error(t, err)

	_, err = New(Config{Serial: "X", PrimaryBank: "NOPE"}, f.reg, f.log)
	require.ErrorIs(t, err, bank.ErrBankNotFound)

	_, err = New(Config{Serial: "X", PrimaryBank: "B1", Access: "shared"}, f.reg, f.log)
	require.Error(t, err)

	_, err = New(Config{Serial: "X", PrimaryBank: "B1", Cash: cash.Bundle{-1, 0, 0, 0}}, f.reg, f.log)
	require.ErrorIs(t, err, bank.ErrBadAmount)

	bad := DefaultFees()
	bad.CashTransferAny = -1
	_, err = New(Config{Serial: "X", PrimaryBank: "B1", Fees: &bad}, f.reg, f.log)
	require.Error(t, err)

	m, err := New(Config{Serial: "X", PrimaryBank: "B1"}, f.reg, f.log)
	require.NoError(t, err)
	assert.Equal(t, AccessSingleBank, m.Access())
	assert.Equal(t, DefaultFees(), m.Fees())
	assert.Equal(t, []string{"B1"}, m.AcceptedBanks())
	assert.Equal(t, ModeIdle, m.Mode())
}

func TestAcceptedBanks(t *testing.T) {
	f := newFixture(t)

	single := f.newATM(t, AccessSingleBank, cash.Bundle{})
	assert.True(t, single.Supports("B1"))
	require.ErrorIs(t, single.AddAcceptedBank("B2"), ErrBankNotAccepted)
	require.NoError(t, single.AddAcceptedBank("B1"))
	assert.False(t, single.Supports("B2"))

	multi := f.newATM(t, AccessMultiBank, cash.Bundle{})
	assert.True(t, multi.Supports("B2"))
	require.NoError(t, multi.AddAcceptedBank("B2"))
	assert.Equal(t, []string{"B1", "B2"}, multi.AcceptedBanks())
	require.ErrorIs(t, multi.AddAcceptedBank("B9"), bank.ErrBankNotFound)

	for i := 3; i <= MaxBankSlots+1; i++ {
		require.NoError(t, f.reg.Add(bank.NewBank(fmt.Sprintf("B%d", i), "extra", bank.WithHasher(fastHasher))))
	}
	for i := 3; i <= MaxBankSlots; i++ {
		require.NoError(t, multi.AddAcceptedBank(fmt.Sprintf("B%d", i)))
	}
	err := multi.AddAcceptedBank(fmt.Sprintf("B%d", MaxBankSlots+1))
	require.ErrorIs(t, err, ErrBankSlotsFull)
	assert.Equal(t, CodeBankNotAccepted, CodeOf(err))
	assert.Len(t, multi.AcceptedBanks(), MaxBankSlots)
}

func TestSetLanguage(t *testing.T) {
	f := newFixture(t)
	m := f.newATM(t, AccessSingleBank, cash.Bundle{})
	assert.Equal(t, language.English, m.Language())

	require.NoError(t, m.SetLanguage(language.Korean))
	assert.Equal(t, language.Korean, m.Language())

	require.ErrorIs(t, m.SetLanguage(language.French), ErrLanguageUnsupported)
	assert.Equal(t, language.English, m.Language())

	mono, err := New(Config{Serial: "ATM2", PrimaryBank: "B1"}, f.reg, f.log)
	require.NoError(t, err)
	require.ErrorIs(t, mono.SetLanguage(language.Korean), ErrLanguageUnsupported)
	assert.Equal(t, language.English, mono.Language())
	require.NoError(t, mono.SetLanguage(language.English))
}

func TestSessionStateMachine(t *testing.T) {
	f := newFixture(t)
	m := f.newATM(t, AccessMultiBank, cash.Bundle{})
	card := bank.Card{Number: "C111", BankID: "B1", Role: bank.RoleUser}
	ref := bank.AccountRef{BankID: "B1", Number: "111"}

	err := m.StartCustomerSession(card, nil, true)
	require.ErrorIs(t, err, bank.ErrAccountNotFound)
	assert.Equal(t, ModeIdle, m.Mode())

	require.NoError(t, m.StartCustomerSession(card, &ref, true))
	assert.Equal(t, ModeCustomer, m.Mode())
	s, ok := m.Session()
	require.True(t, ok)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, ref, *s.Account)
	assert.True(t, s.PrimaryCard)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), s.StartedAt)

	// 進行中再次開始為 no-op
	require.ErrorIs(t, m.StartCustomerSession(card, &ref, true), ErrSessionActive)
	require.ErrorIs(t, m.StartAdminSession(bank.Card{Number: "A1", BankID: "B1", Role: bank.RoleAdmin}), ErrSessionActive)
	again, _ := m.Session()
	assert.Equal(t, s.ID, again.ID)

	// 回傳的是拷貝
	s.Account.Number = "999"
	again, _ = m.Session()
	assert.Equal(t, "111", again.Account.Number)

	m.EndSession()
	assert.Equal(t, ModeIdle, m.Mode())
	assert.Nil(t, m.EndSession())
	_, ok = m.Session()
	assert.False(t, ok)

	require.ErrorIs(t, m.StartAdminSession(card), bank.ErrAuthFailed)
	require.NoError(t, m.StartAdminSession(bank.Card{Number: "A1", BankID: "B1", Role: bank.RoleAdmin}))
	assert.Equal(t, ModeAdmin, m.Mode())
	m.EndSession()

	assert.Equal(t, Stats{Total: 2, Customer: 1, Admin: 1}, m.Stats())
}

func TestInsertCard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.newATM(t, AccessMultiBank, fullCash)

	err := m.InsertCard(ctx, "NOPE", "x")
	assert.Equal(t, CodeAccountNotFound, CodeOf(err))

	require.NoError(t, m.InsertCard(ctx, "C221", "pw-221"))
	s, _ := m.Session()
	assert.False(t, s.PrimaryCard)
	assert.Equal(t, "C221", s.Card.Number)
	assert.Equal(t, "B2", s.Card.BankID)
	require.ErrorIs(t, m.InsertCard(ctx, "C111", "pw-111"), ErrSessionActive)
	m.EndSession()

	require.NoError(t, m.InsertCard(ctx, "C111", "pw-111"))
	s, _ = m.Session()
	assert.True(t, s.PrimaryCard)
	m.EndSession()

	// 管理卡不能當作客戶卡
	assert.Equal(t, CodeAccountNotFound, CodeOf(m.InsertCard(ctx, "A1", "admin")))

	single := f.newATM(t, AccessSingleBank, fullCash)
	assert.Equal(t, CodeBankNotAccepted, CodeOf(single.InsertCard(ctx, "C221", "pw-221")))
	assert.Equal(t, ModeIdle, single.Mode())
}

func TestInsertCardAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.newATM(t, AccessMultiBank, fullCash)

	for i := 1; i < MaxPasswordAttempts; i++ {
		assert.Equal(t, CodeAuthFailed, CodeOf(m.InsertCard(ctx, "C111", "wrong")))
	}
	assert.Equal(t, CodeTooManyAttempts, CodeOf(m.InsertCard(ctx, "C111", "wrong")))
	assert.Equal(t, ModeIdle, m.Mode())

	// 計數已歸零，下一輪重新計算；成功登入也會歸零
	assert.Equal(t, CodeAuthFailed, CodeOf(m.InsertCard(ctx, "C111", "wrong")))
	require.NoError(t, m.InsertCard(ctx, "C111", "pw-111"))
	m.EndSession()
	assert.Equal(t, CodeAuthFailed, CodeOf(m.InsertCard(ctx, "C111", "wrong")))
	assert.Equal(t, CodeAuthFailed, CodeOf(m.InsertCard(ctx, "C111", "wrong")))
}

func TestAdminSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.newATM(t, AccessMultiBank, fullCash)

	_, err := m.Transactions()
	require.ErrorIs(t, err, ErrSessionNotActive)

	assert.Equal(t, CodeAuthFailed, CodeOf(m.InsertAdminCard(ctx, "C111", "pw-111")))
	assert.Equal(t, CodeAuthFailed, CodeOf(m.InsertAdminCard(ctx, "A1", "wrong")))

	require.NoError(t, m.InsertCard(ctx, "C111", "pw-111"))
	_, err = m.RequestWithdrawal(ctx, 10000)
	require.NoError(t, err)
	_, err = m.Transactions()
	require.ErrorIs(t, err, ErrWrongMode)
	m.EndSession()

	require.NoError(t, m.InsertAdminCard(ctx, "A1", "admin"))
	txs, err := m.Transactions()
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, txlog.KindWithdrawal, txs[0].Kind)
	assert.Equal(t, "ATM1", txs[0].ATMSerial)
	assert.Equal(t, "C111", txs[0].CardNumber)

	// 管理員 session 不可做客戶交易
	_, err = m.RequestWithdrawal(ctx, 10000)
	require.ErrorIs(t, err, ErrWrongMode)
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	m := f.newATM(t, AccessMultiBank, fullCash)
	require.NoError(t, m.SetLanguage(language.Korean))

	st := m.Export()
	assert.Equal(t, "ATM1", st.Serial)
	assert.Equal(t, "B1", st.PrimaryBank)
	assert.Equal(t, AccessMultiBank, st.Access)
	assert.Equal(t, "ko", st.Language)
	assert.Equal(t, fullCash, st.Cash)
	assert.Equal(t, []string{"B1", "B2"}, st.Accepted)

	fees := st.Fees
	rebuilt, err := New(Config{
		Serial:      st.Serial,
		PrimaryBank: st.PrimaryBank,
		Access:      st.Access,
		Bilingual:   st.Bilingual,
		Language:    language.Make(st.Language),
		Fees:        &fees,
		Cash:        st.Cash,
		Accepted:    st.Accepted,
		Stats:       st.Stats,
	}, f.reg, f.log)
	require.NoError(t, err)
	assert.Equal(t, st, rebuilt.Export())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeOK, CodeOf(nil))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeInsufficientFunds, CodeOf(fmt.Errorf("x: %w", bank.ErrInsufficient)))
	rollback := fmt.Errorf("step: %w", errors.Join(bank.ErrSettlementRollback, bank.ErrInsufficient))
	assert.Equal(t, CodeSettlement, CodeOf(rollback))
	assert.Equal(t, CodeSessionLogFull, CodeOf(ErrSessionLogFull))
	assert.Equal(t, "WITHDRAWAL_LIMIT", CodeOf(ErrWithdrawalLimit).String())
}

func TestFeeTiers(t *testing.T) {
	f := DefaultFees()
	assert.Equal(t, int64(0), f.Deposit(true))
	assert.Equal(t, int64(1000), f.Deposit(false))
	assert.Equal(t, int64(1000), f.Withdrawal(true))
	assert.Equal(t, int64(2000), f.Withdrawal(false))
	assert.Equal(t, int64(1000), f.Transfer("B1", "B1", "B1"))
	assert.Equal(t, int64(2000), f.Transfer("B1", "B1", "B2"))
	assert.Equal(t, int64(2000), f.Transfer("B1", "B2", "B1"))
	assert.Equal(t, int64(4000), f.Transfer("B1", "B2", "B3"))
	assert.Equal(t, int64(4000), f.Transfer("B1", "B2", "B2"))
	require.NoError(t, f.Validate())
}
