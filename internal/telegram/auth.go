// Package telegram verifies WebApp init data and mints session tokens.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strings"
)

var ErrBadInitData = errors.New("invalid telegram init data")

type AuthUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// dataCheckString is the Telegram login payload: key=value pairs minus the
// hash itself, sorted by key, joined with newlines.
func dataCheckString(vals url.Values) string {
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(vals.Get(k))
	}
	return b.String()
}

// VerifyInitData checks the WebApp initData signature against the bot token
// and extracts the embedded user.
func VerifyInitData(initData, botToken string) (AuthUser, error) {
	initData = strings.TrimSpace(initData)
	if initData == "" {
		return AuthUser{}, ErrBadInitData
	}
	vals, err := url.ParseQuery(initData)
	if err != nil {
		return AuthUser{}, ErrBadInitData
	}
	providedHash := vals.Get("hash")
	if providedHash == "" {
		return AuthUser{}, ErrBadInitData
	}
	vals.Del("hash")

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(dataCheckString(vals)))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(providedHash)) {
		return AuthUser{}, ErrBadInitData
	}

	userRaw := vals.Get("user")
	if userRaw == "" {
		return AuthUser{}, ErrBadInitData
	}
	var user AuthUser
	if err := json.Unmarshal([]byte(userRaw), &user); err != nil || user.ID == 0 {
		return AuthUser{}, ErrBadInitData
	}
	if strings.TrimSpace(user.FirstName) == "" {
		user.FirstName = "Miner"
	}
	return user, nil
}
