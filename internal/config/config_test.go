package config

import "testing"

func TestNormalizeDatabaseURL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "postgres://u:p@h:5432/db", "postgres://u:p@h:5432/db"},
		{"psql wrapper", `psql 'postgresql://u:p@h/db'`, "postgresql://u:p@h/db"},
		{"strips channel_binding", "postgres://u:p@h/db?channel_binding=require&sslmode=require", "postgres://u:p@h/db?sslmode=require"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeDatabaseURL(tc.in); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeRedisURL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "redis://default:pass@h:6379", "redis://default:pass@h:6379"},
		{"cli wrapper", "redis-cli -u redis://default:pass@h:6379", "redis://default:pass@h:6379"},
		{"tls", "rediss://default:pass@h:6380", "rediss://default:pass@h:6380"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeRedisURL(tc.in); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV(" https://a.example , ,https://b.example")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("got %v", got)
	}
	if parseCSV("") != nil {
		t.Fatalf("empty input should yield nil")
	}
}

func TestBotOverride(t *testing.T) {
	t.Setenv("MINER_BOTS_JSON", `[{"id":"solo","name":"Solo","base_cost":10,"base_earnings_per_hour":1}]`)
	g := DefaultGame()
	if len(g.Bots) != 1 || g.Bots[0].ID != "solo" {
		t.Fatalf("override ignored: %+v", g.Bots)
	}
	if g.Bots[0].MaxLevel != 10 {
		t.Fatalf("max level default not applied: %d", g.Bots[0].MaxLevel)
	}
}

func TestBotOverrideInvalid(t *testing.T) {
	t.Setenv("MINER_BOTS_JSON", `not json`)
	g := DefaultGame()
	if len(g.Bots) != 6 {
		t.Fatalf("invalid override should keep defaults, got %d bots", len(g.Bots))
	}
}
