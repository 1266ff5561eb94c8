// internal/server/response.go
//
// 統一 HTTP 回應格式：成功一律 JSON；錯誤為 {"code": ..., "error": ...}，
// code 為引擎的結果代碼，HTTP 狀態由代碼決定。
package server

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"atmnet/internal/atm"
	"atmnet/internal/network"
)

// 表現層自有的代碼：請求格式錯誤與 ATM 不存在不屬於交易結果。
const (
	codeBadRequest  = "BAD_REQUEST"
	codeATMNotFound = "ATM_NOT_FOUND"
)

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr 依錯誤的結果代碼決定狀態碼後輸出。
func writeErr(w http.ResponseWriter, err error) {
	if errors.Is(err, network.ErrATMNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Code: codeATMNotFound, Error: err.Error()})
		return
	}
	code := atm.CodeOf(err)
	writeJSON(w, statusOf(code), errorBody{Code: code.String(), Error: err.Error()})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Code: codeBadRequest, Error: err.Error()})
}

func statusOf(code atm.Code) int {
	switch code {
	case atm.CodeOK:
		return http.StatusOK
	case atm.CodeAccountNotFound, atm.CodeBankNotFound:
		return http.StatusNotFound
	case atm.CodeSessionNotActive, atm.CodeSessionActive, atm.CodeWrongMode,
		atm.CodeSessionLogFull, atm.CodeWithdrawalLimit:
		return http.StatusConflict
	case atm.CodeAuthFailed:
		return http.StatusUnauthorized
	case atm.CodeTooManyAttempts, atm.CodeBankNotAccepted:
		return http.StatusForbidden
	case atm.CodeInsufficientFunds, atm.CodeInsufficientCash, atm.CodeInexactBundle:
		return http.StatusUnprocessableEntity
	case atm.CodeInvalidAmount, atm.CodeItemLimit, atm.CodeFeeMismatch, atm.CodeSameAccount:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
