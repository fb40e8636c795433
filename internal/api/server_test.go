package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"botmarket_miner/internal/achievements"
	"botmarket_miner/internal/config"
	"botmarket_miner/internal/game"
	"botmarket_miner/internal/leaderboard"
	"botmarket_miner/internal/lottery"
	"botmarket_miner/internal/monitoring"
	"botmarket_miner/internal/telegram"
	"botmarket_miner/internal/wheel"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:     "test-secret",
		AdminID:       101,
		CORSOrigins:   []string{"*"},
		Port:          "0",
		TapRatePerSec: 1000,
		TapRateBurst:  1000,
		Game:          config.DefaultGame(),
	}
	var engine *game.Engine
	store := game.NewMemStore(func(userID int64) game.Ledger { return engine.NewLedger(userID) })
	engine = game.NewEngine(store, &cfg.Game, achievements.Evaluate)

	srv := NewServer(cfg, engine, telegram.NewSessions(cfg.JWTSecret),
		wheel.NewService(engine, &cfg.Game),
		lottery.NewService(engine, lottery.NewMemBackend(), &cfg.Game),
		leaderboard.New(nil), monitoring.New(), nil)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "101")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp
}

func TestStateEndpoint(t *testing.T) {
	ts := newTestServer(t)
	var state struct {
		UserID    int64 `json:"user_id"`
		Balance   int64 `json:"balance"`
		Energy    int64 `json:"energy"`
		MaxEnergy int64 `json:"max_energy"`
		Bots      []struct {
			ID      string `json:"id"`
			BuyCost int64  `json:"buy_cost"`
		} `json:"bots"`
	}
	resp := doJSON(t, ts, http.MethodGet, "/api/state", nil, &state)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if state.UserID != 101 || state.Balance != 1000 || state.Energy != state.MaxEnergy {
		t.Fatalf("fresh state = %+v", state)
	}
	if len(state.Bots) != 6 || state.Bots[0].BuyCost != 150 {
		t.Fatalf("bot catalog = %+v", state.Bots)
	}
}

func TestTapEndpoint(t *testing.T) {
	ts := newTestServer(t)
	var res struct {
		Taps  int64 `json:"taps"`
		Coins int64 `json:"coins"`
	}
	resp := doJSON(t, ts, http.MethodPost, "/api/tap", map[string]any{"taps": 5}, &res)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if res.Taps != 5 || res.Coins < 5 {
		t.Fatalf("tap result = %+v", res)
	}
}

func TestBuyFlow(t *testing.T) {
	ts := newTestServer(t)

	var buy struct {
		Spent int64 `json:"spent"`
	}
	resp := doJSON(t, ts, http.MethodPost, "/api/bots/buy", map[string]any{"bot_id": "basic_miner"}, &buy)
	if resp.StatusCode != http.StatusOK || buy.Spent != 150 {
		t.Fatalf("buy status=%d spent=%d", resp.StatusCode, buy.Spent)
	}

	var errResp struct {
		Code string `json:"code"`
	}
	resp = doJSON(t, ts, http.MethodPost, "/api/bots/buy", map[string]any{"bot_id": "nope"}, &errResp)
	if resp.StatusCode != http.StatusNotFound || errResp.Code != "unknown_bot" {
		t.Fatalf("unknown bot status=%d code=%s", resp.StatusCode, errResp.Code)
	}

	resp = doJSON(t, ts, http.MethodPost, "/api/bots/buy", map[string]any{"bot_id": "cosmic_miner"}, &errResp)
	if resp.StatusCode != http.StatusPaymentRequired || errResp.Code != "insufficient_balance" {
		t.Fatalf("broke buy status=%d code=%s", resp.StatusCode, errResp.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/state", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without credentials", resp.StatusCode)
	}
}

func TestWheelEndpoint(t *testing.T) {
	ts := newTestServer(t)
	var res struct {
		Prize   int64 `json:"prize"`
		Cost    int64 `json:"cost"`
		Balance int64 `json:"balance"`
	}
	resp := doJSON(t, ts, http.MethodPost, "/api/wheel/spin", nil, &res)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if res.Prize < 1 || res.Prize > 20 || res.Cost != 10 {
		t.Fatalf("spin = %+v", res)
	}
	if res.Balance != 1000-res.Cost+res.Prize {
		t.Fatalf("balance = %d", res.Balance)
	}
}

func TestCreditEndpoint(t *testing.T) {
	ts := newTestServer(t)

	body := map[string]any{"user_id": 202, "event_id": "ref:202:1", "kind": "referral_bonus", "amount": 500}
	var res struct {
		Balance     int64 `json:"balance"`
		TotalEarned int64 `json:"total_earned"`
	}
	resp := doJSON(t, ts, http.MethodPost, "/api/credit", body, &res)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if res.Balance != 1500 || res.TotalEarned != 500 {
		t.Fatalf("credit result = %+v", res)
	}

	// replaying the same event id changes nothing
	resp = doJSON(t, ts, http.MethodPost, "/api/credit", body, &res)
	if resp.StatusCode != http.StatusOK || res.Balance != 1500 {
		t.Fatalf("replay status=%d balance=%d", resp.StatusCode, res.Balance)
	}

	// non-admin callers are rejected
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(body)
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/credit", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "102")
	resp2, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want 403", resp2.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
