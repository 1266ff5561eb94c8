// internal/atm/session.go

package atm

import (
	"time"

	"atmnet/internal/bank"
	"atmnet/internal/cash"
	"atmnet/internal/txlog"
)

// Mode 為 ATM 的工作模式。
type Mode string

const (
	ModeIdle     Mode = "idle"
	ModeCustomer Mode = "customer"
	ModeAdmin    Mode = "admin"
)

// Event 為單一 session 內的一筆操作紀錄，供收據使用。只增不改。
type Event struct {
	Kind   txlog.Kind  `json:"kind"`
	Amount int64       `json:"amount"`
	Fee    int64       `json:"fee"`
	Source string      `json:"source,omitempty"`
	Target string      `json:"target,omitempty"`
	Cash   cash.Bundle `json:"cash"`
	Note   string      `json:"note,omitempty"`
	TxID   int64       `json:"tx_id"`
}

// Session 為一次認證到結束之間的互動視窗；每台 ATM 同時至多一個。
type Session struct {
	ID          string           `json:"id"`
	Mode        Mode             `json:"mode"`
	Card        bank.Card        `json:"card"`
	Account     *bank.AccountRef `json:"account,omitempty"`
	PrimaryCard bool             `json:"primary_card"`
	Events      []Event          `json:"events"`
	Withdrawals int              `json:"withdrawals"`
	StartedAt   time.Time        `json:"started_at"`
}

func (s *Session) clone() Session {
	cp := *s
	cp.Events = append([]Event(nil), s.Events...)
	if s.Account != nil {
		ref := *s.Account
		cp.Account = &ref
	}
	return cp
}

// Stats 為 ATM 啟動以來的 session 統計。
type Stats struct {
	Total    int `json:"total"`
	Customer int `json:"customer"`
	Admin    int `json:"admin"`
}
