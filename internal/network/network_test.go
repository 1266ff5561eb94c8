// internal/network/network_test.go

package network

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"atmnet/internal/atm"
	"atmnet/internal/bank"
	"atmnet/internal/cash"
	"atmnet/internal/storage"
	"atmnet/internal/txlog"
)

var fastHasher = bank.BcryptHasher{Cost: bcrypt.MinCost}

// seed 為手寫種子檔的樣子：明文密碼、空白交易紀錄。
func seed() storage.Snapshot {
	return storage.Snapshot{
		Banks: []storage.PersistBank{
			{
				ID: "KB", Name: "Kookmin", AdminCard: "ADM-KB", AdminPassword: "root",
				Accounts: []storage.PersistAccount{
					{Number: "111", Owner: "Kim", Balance: 100000, CardNumber: "C111", Password: "1111"},
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
			{Serial: "ATM-1", PrimaryBank: "KB", Access: "multi", Bilingual: true, Language: "ko", Cash: [4]int{10, 10, 10, 10}, Accepted: []string{"SH"}},
			{Serial: "ATM-2", PrimaryBank: "SH", Cash: [4]int{5, 0, 0, 0}},
		},
	}
}

func restore(t *testing.T, snap storage.Snapshot, opts ...Option) *Network {
	t.Helper()
	n, err := Restore(snap, append([]Option{WithHasher(fastHasher)}, opts...)...)
	require.NoError(t, err)
	return n
}

func TestRestoreSeed(t *testing.T) {
	n := restore(t, seed())

	banks := n.Registry.Banks()
	require.Len(t, banks, 2)
	assert.Equal(t, "KB", banks[0].ID())

	atms := n.ATMs()
	require.Len(t, atms, 2)
	assert.Equal(t, "ATM-1", atms[0].Serial())
	assert.Equal(t, []string{"KB", "SH"}, atms[0].AcceptedBanks())
	assert.Equal(t, "ko", atms[0].Language().String())
	assert.Equal(t, atm.AccessSingleBank, atms[1].Access())

	m, err := n.ATM("ATM-1")
	require.NoError(t, err)
	require.NoError(t, m.InsertCard(context.Background(), "C221", "2221"))
	m.EndSession()
	require.NoError(t, m.InsertAdminCard(context.Background(), "ADM-KB", "root"))

	_, err = n.ATM("nope")
	require.ErrorIs(t, err, ErrATMNotFound)
}

func TestRestoreRejectsBadSeeds(t *testing.T) {
	s := seed()
	s.ATMs[1].PrimaryBank = "XX"
	_, err := Restore(s, WithHasher(fastHasher))
	require.ErrorIs(t, err, bank.ErrBankNotFound)

	s = seed()
	s.Banks[1].Accounts[0].CardNumber = "C111"
	_, err = Restore(s, WithHasher(fastHasher))
	require.ErrorIs(t, err, bank.ErrDuplicate)

	s = seed()
	s.ATMs = append(s.ATMs, s.ATMs[0])
	_, err = Restore(s, WithHasher(fastHasher))
	require.ErrorIs(t, err, ErrDuplicateATM)

	s = seed()
	s.ATMs[0].Language = "not a tag!"
	_, err = Restore(s, WithHasher(fastHasher))
	require.Error(t, err)

	s = seed()
	s.Banks = nil
	_, err = Restore(s, WithHasher(fastHasher))
	require.Error(t, err)
}

// 交易後快照寫檔再還原，帳本、庫存、交易紀錄與密碼雜湊都要一致。
func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	n := restore(t, seed())
	m, err := n.ATM("ATM-1")
	require.NoError(t, err)

	require.NoError(t, m.InsertCard(ctx, "C111", "1111"))
	_, err = m.RequestWithdrawal(ctx, 20000)
	require.NoError(t, err)
	_, err = m.RequestAccountTransfer(ctx, bank.AccountRef{BankID: "SH", Number: "221"}, 5000)
	require.NoError(t, err)
	m.EndSession()

	path := filepath.Join(t.TempDir(), "data.json")
	snap := n.Snapshot()
	assert.Equal(t, int64(3), snap.NextTxID)
	require.NoError(t, storage.SaveSnapshot(path, snap))
	loaded, err := storage.LoadSnapshot(path)
	require.NoError(t, err)

	back := restore(t, loaded)
	assert.Equal(t, snap.Banks, back.Snapshot().Banks)
	assert.Equal(t, snap.ATMs, back.Snapshot().ATMs)

	acct, err := back.Registry.FindAccount(bank.AccountRef{BankID: "KB", Number: "111"})
	require.NoError(t, err)
	assert.Equal(t, int64(100000-21000-7000), acct.Balance)

	m2, err := back.ATM("ATM-1")
	require.NoError(t, err)
	assert.Equal(t, cash.Bundle{10, 10, 8, 10}, m2.Cash())
	assert.Equal(t, atm.Stats{Total: 1, Customer: 1}, m2.Stats())

	txs := back.Log.All()
	require.Len(t, txs, 2)
	assert.Equal(t, txlog.KindAccountTransfer, txs[1].Kind)
	next := back.Log.Append(ctx, txlog.Transaction{Kind: txlog.KindDeposit})
	assert.Equal(t, int64(3), next.ID)

	// 密碼雜湊原樣保存，舊密碼仍可登入
	require.NoError(t, m2.InsertCard(ctx, "C111", "1111"))
}

type recordingSink struct{ txs []txlog.Transaction }

func (s *recordingSink) Record(_ context.Context, tx txlog.Transaction) error {
	s.txs = append(s.txs, tx)
	return nil
}

func TestSinkReceivesTransactions(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	n := restore(t, seed(), WithSink(sink))
	m, err := n.ATM("ATM-2")
	require.NoError(t, err)

	require.NoError(t, m.InsertCard(ctx, "C221", "2221"))
	_, err = m.RequestWithdrawal(ctx, 3000)
	require.NoError(t, err)

	require.Len(t, sink.txs, 1)
	assert.Equal(t, "ATM-2", sink.txs[0].ATMSerial)
}

func TestAddATMAndBank(t *testing.T) {
	n := New(WithHasher(fastHasher))
	_, err := n.AddBank("B1", "One")
	require.NoError(t, err)
	_, err = n.AddBank("B1", "Again")
	require.ErrorIs(t, err, bank.ErrDuplicate)

	_, err = n.AddATM(atm.Config{Serial: "A", PrimaryBank: "B1"})
	require.NoError(t, err)
	_, err = n.AddATM(atm.Config{Serial: "A", PrimaryBank: "B1"})
	require.ErrorIs(t, err, ErrDuplicateATM)
	_, err = n.AddATM(atm.Config{Serial: "B", PrimaryBank: "B2"})
	require.ErrorIs(t, err, bank.ErrBankNotFound)
	assert.Len(t, n.ATMs(), 1)
}
