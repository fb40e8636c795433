package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"
)

const testBotToken = "12345:TESTTOKEN"

func signInitData(t *testing.T, vals url.Values) string {
	t.Helper()
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+vals.Get(k))
	}
	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(testBotToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(parts, "\n")))
	vals.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return vals.Encode()
}

func TestVerifyInitData(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		vals := url.Values{}
		vals.Set("user", `{"id":777,"username":"miner","first_name":"Max"}`)
		vals.Set("auth_date", "1717246800")
		initData := signInitData(t, vals)

		user, err := VerifyInitData(initData, testBotToken)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if user.ID != 777 || user.Username != "miner" {
			t.Fatalf("user = %+v", user)
		}
	})

	t.Run("tampered payload rejected", func(t *testing.T) {
		vals := url.Values{}
		vals.Set("user", `{"id":777,"first_name":"Max"}`)
		initData := signInitData(t, vals)
		initData = strings.Replace(initData, "777", "888", 1)
		if _, err := VerifyInitData(initData, testBotToken); err == nil {
			t.Fatalf("tampered initData accepted")
		}
	})

	t.Run("missing hash rejected", func(t *testing.T) {
		if _, err := VerifyInitData("user=%7B%22id%22%3A1%7D", testBotToken); err == nil {
			t.Fatalf("unsigned initData accepted")
		}
	})

	t.Run("empty rejected", func(t *testing.T) {
		if _, err := VerifyInitData("   ", testBotToken); err == nil {
			t.Fatalf("blank initData accepted")
		}
	})
}

func TestSessions(t *testing.T) {
	s := NewSessions("secret")

	t.Run("round trip", func(t *testing.T) {
		token, err := s.Mint(AuthUser{ID: 42, Username: "miner"})
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		uid, err := s.Verify(token)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if uid != 42 {
			t.Fatalf("uid = %d, want 42", uid)
		}
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		token, _ := s.Mint(AuthUser{ID: 42})
		other := NewSessions("other")
		if _, err := other.Verify(token); err == nil {
			t.Fatalf("token verified with wrong secret")
		}
	})

	t.Run("expired token rejected", func(t *testing.T) {
		past := NewSessions("secret")
		past.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
		token, _ := past.Mint(AuthUser{ID: 42})
		if _, err := s.Verify(token); err == nil {
			t.Fatalf("expired token verified")
		}
	})

	t.Run("garbage rejected", func(t *testing.T) {
		if _, err := s.Verify("not.a.jwt"); err == nil {
			t.Fatalf("garbage verified")
		}
	})
}
