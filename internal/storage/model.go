// internal/storage/model.go
//
// 定義「資料持久化層 (storage layer)」的快照結構：
// 銀行、帳戶、清算帳戶餘額、ATM 設定與庫存，以及全網交易紀錄。
// 此層只描述資料格式，不含商業邏輯；組裝與還原由 network 套件負責。
package storage

import (
	"time"

	"atmnet/internal/atm"
	"atmnet/internal/txlog"
)

// SchemaVersion 為目前的快照結構版本。
const SchemaVersion = 2

// Meta 為快照的中繼資料。
type Meta struct {
	Storage   string    `json:"storage"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// PersistAccount 為帳戶的序列化格式。
// PasswordHash 為 bcrypt 雜湊；手寫的種子檔可改填明文 Password，還原時才雜湊。
type PersistAccount struct {
	Number       string `json:"number" validate:"required"`
	Owner        string `json:"owner"`
	Balance      int64  `json:"balance" validate:"gte=0"`
	CardNumber   string `json:"card_number,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
	Password     string `json:"password,omitempty"`
}

// PersistBank 為銀行的序列化格式。
type PersistBank struct {
	ID            string           `json:"id" validate:"required"`
	Name          string           `json:"name"`
	AdminCard     string           `json:"admin_card,omitempty"`
	AdminHash     string           `json:"admin_hash,omitempty"`
	AdminPassword string           `json:"admin_password,omitempty"`
	Clearing      int64            `json:"clearing" validate:"gte=0"`
	Accounts      []PersistAccount `json:"accounts" validate:"dive"`
}

// PersistATM 為 ATM 的序列化格式；進行中的 session 不保存。
type PersistATM struct {
	Serial      string    `json:"serial" validate:"required"`
	PrimaryBank string    `json:"primary_bank" validate:"required"`
	Access      string    `json:"access" validate:"omitempty,oneof=single multi"`
	Bilingual   bool      `json:"bilingual"`
	Language    string    `json:"language,omitempty"`
	Fees        *atm.Fees `json:"fees,omitempty"`
	Cash        [4]int    `json:"cash"`
	Accepted    []string  `json:"accepted,omitempty" validate:"max=10"`
	Stats       atm.Stats `json:"stats"`
}

// Snapshot 為全網狀態的完整快照。
type Snapshot struct {
	Meta         Meta                `json:"_meta"`
	NextTxID     int64               `json:"next_tx_id" validate:"gte=0"`
	Banks        []PersistBank       `json:"banks" validate:"required,min=1,dive"`
	ATMs         []PersistATM        `json:"atms" validate:"dive"`
	Transactions []txlog.Transaction `json:"transactions"`
}
