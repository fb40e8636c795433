package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"botmarket_miner/internal/db"
	"botmarket_miner/internal/game"
	"botmarket_miner/internal/telegram"
)

// Stable machine-readable error codes for the client.
const (
	codeBadRequest   = "bad_request"
	codeUnauthorized = "unauthorized"
	codeNotEnergy    = "insufficient_energy"
	codeNotBalance   = "insufficient_balance"
	codeMaxLevel     = "max_level"
	codeNotOwned     = "bot_not_owned"
	codeUnknownBot   = "unknown_bot"
	codeTierLocked   = "tier_locked"
	codeDailyClaimed = "daily_already_claimed"
	codeNoLedger     = "ledger_not_found"
	codeConflict     = "conflict"
	codeRateLimited  = "rate_limited"
	codeInternal     = "internal"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, game.ErrInsufficientEnergy):
		return http.StatusConflict, codeNotEnergy
	case errors.Is(err, game.ErrInsufficientBalance):
		return http.StatusPaymentRequired, codeNotBalance
	case errors.Is(err, game.ErrMaxLevelReached):
		return http.StatusConflict, codeMaxLevel
	case errors.Is(err, game.ErrBotNotOwned):
		return http.StatusConflict, codeNotOwned
	case errors.Is(err, game.ErrUnknownBot):
		return http.StatusNotFound, codeUnknownBot
	case errors.Is(err, game.ErrTierLocked):
		return http.StatusForbidden, codeTierLocked
	case errors.Is(err, game.ErrDailyClaimed):
		return http.StatusConflict, codeDailyClaimed
	case errors.Is(err, game.ErrLedgerNotFound):
		return http.StatusNotFound, codeNoLedger
	case errors.Is(err, game.ErrInvalidAmount):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, game.ErrConcurrencyConflict):
		return http.StatusConflict, codeConflict
	case errors.Is(err, telegram.ErrBadInitData), errors.Is(err, telegram.ErrBadToken):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, db.ErrNoOpenRound):
		return http.StatusConflict, codeConflict
	}
	return http.StatusInternalServerError, codeInternal
}

func writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("api: internal error: %v", err)
		err = errors.New("internal error")
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	return dec.Decode(v)
}
