// internal/network/snapshot.go

package network

import (
	"fmt"

	"golang.org/x/text/language"

	"atmnet/internal/atm"
	"atmnet/internal/bank"
	"atmnet/internal/cash"
	"atmnet/internal/storage"
)

// Snapshot 匯出全網狀態。銀行帳本一次鎖定全部銀行後匯出；進行中的 session 不保存。
func (n *Network) Snapshot() storage.Snapshot {
	snap := storage.Snapshot{
		Meta: storage.Meta{Version: storage.SchemaVersion},
	}
	for _, st := range n.Registry.Export() {
		pb := storage.PersistBank{
			ID:        st.ID,
			Name:      st.Name,
			AdminCard: st.AdminCard,
			AdminHash: string(st.AdminHash),
			Clearing:  st.Clearing,
			Accounts:  make([]storage.PersistAccount, 0, len(st.Accounts)),
		}
		for _, a := range st.Accounts {
			pb.Accounts = append(pb.Accounts, storage.PersistAccount{
				Number:       a.Number,
				Owner:        a.Owner,
				Balance:      a.Balance,
				CardNumber:   a.CardNumber,
				PasswordHash: string(a.PasswordHash),
			})
		}
		snap.Banks = append(snap.Banks, pb)
	}
	for _, m := range n.ATMs() {
		st := m.Export()
		fees := st.Fees
		snap.ATMs = append(snap.ATMs, storage.PersistATM{
			Serial:      st.Serial,
			PrimaryBank: st.PrimaryBank,
			Access:      string(st.Access),
			Bilingual:   st.Bilingual,
			Language:    st.Language,
			Fees:        &fees,
			Cash:        st.Cash,
			Accepted:    st.Accepted,
			Stats:       st.Stats,
		})
	}
	snap.Transactions = n.Log.All()
	snap.NextTxID = n.Log.NextID()
	return snap
}

// Restore 由快照重建網路。種子檔中的明文密碼會在此時雜湊。
func Restore(snap storage.Snapshot, opts ...Option) (*Network, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	n := New(opts...)

	for _, pb := range snap.Banks {
		b, err := n.AddBank(pb.ID, pb.Name)
		if err != nil {
			return nil, fmt.Errorf("restore bank %s: %w", pb.ID, err)
		}
		switch {
		case pb.AdminHash != "":
			err = b.SetAdminCardHash(pb.AdminCard, []byte(pb.AdminHash))
		case pb.AdminCard != "":
			err = b.SetAdminCard(pb.AdminCard, pb.AdminPassword)
		}
		if err != nil {
			return nil, fmt.Errorf("restore bank %s admin card: %w", pb.ID, err)
		}
		if err := b.RestoreClearing(pb.Clearing); err != nil {
			return nil, fmt.Errorf("restore bank %s clearing: %w", pb.ID, err)
		}
		for _, pa := range pb.Accounts {
			params := bank.AccountParams{
				Number:     pa.Number,
				Owner:      pa.Owner,
				Balance:    pa.Balance,
				CardNumber: pa.CardNumber,
				Password:   pa.Password,
			}
			if pa.PasswordHash != "" {
				params.PasswordHash = []byte(pa.PasswordHash)
			}
			if _, err := b.OpenAccount(params); err != nil {
				return nil, fmt.Errorf("restore bank %s: %w", pb.ID, err)
			}
		}
	}

	for _, pa := range snap.ATMs {
		cfg := atm.Config{
			Serial:      pa.Serial,
			PrimaryBank: pa.PrimaryBank,
			Access:      atm.Access(pa.Access),
			Bilingual:   pa.Bilingual,
			Fees:        pa.Fees,
			Cash:        cash.Bundle(pa.Cash),
			Accepted:    pa.Accepted,
			Stats:       pa.Stats,
		}
		if pa.Language != "" {
			tag, err := language.Parse(pa.Language)
			if err != nil {
				return nil, fmt.Errorf("restore atm %s language: %w", pa.Serial, err)
			}
			cfg.Language = tag
		}
		if _, err := n.AddATM(cfg); err != nil {
			return nil, fmt.Errorf("restore atm %s: %w", pa.Serial, err)
		}
	}

	n.Log.Restore(snap.NextTxID, snap.Transactions)
	return n, nil
}
