package tgbot

import (
	"encoding/json"
	"testing"
)

func TestStartKeyboardJSON(t *testing.T) {
	raw := startKeyboardJSON("https://miner.example/app")
	if raw == "" {
		t.Fatal("empty keyboard markup")
	}
	var markup struct {
		InlineKeyboard [][]struct {
			Text   string `json:"text"`
			WebApp *struct {
				URL string `json:"url"`
			} `json:"web_app"`
		} `json:"inline_keyboard"`
	}
	if err := json.Unmarshal([]byte(raw), &markup); err != nil {
		t.Fatalf("unmarshal markup: %v", err)
	}
	if len(markup.InlineKeyboard) != 1 || len(markup.InlineKeyboard[0]) != 1 {
		t.Fatalf("keyboard shape = %+v", markup.InlineKeyboard)
	}
	btn := markup.InlineKeyboard[0][0]
	if btn.Text == "" || btn.WebApp == nil || btn.WebApp.URL != "https://miner.example/app" {
		t.Fatalf("button = %+v", btn)
	}
}
