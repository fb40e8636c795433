// Package tgbot runs the Telegram bot that opens the miner WebApp and
// answers basic balance queries in chat.
package tgbot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"botmarket_miner/internal/config"
	"botmarket_miner/internal/game"
)

type Bot struct {
	cfg    *config.Config
	engine *game.Engine
	api    *tgbotapi.BotAPI
}

func New(cfg *config.Config, engine *game.Engine) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	api.Debug = false
	return &Bot{cfg: cfg, engine: engine, api: api}, nil
}

// Run polls for updates until the context ends.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)
	log.Printf("tgbot: polling as @%s", b.api.Self.UserName)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			log.Printf("tgbot: stopped")
			return
		case upd := <-updates:
			b.handleUpdate(ctx, upd)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil || upd.Message.From == nil || !upd.Message.IsCommand() {
		return
	}
	msg := upd.Message
	switch msg.Command() {
	case "start":
		b.sendStart(msg.Chat.ID, msg.From.FirstName)
	case "balance":
		b.sendBalance(ctx, msg.Chat.ID, msg.From.ID)
	case "help":
		b.send(msg.Chat.ID, "Commands:\n/start open the miner\n/balance your coins\n/help this message")
	}
}

// The bundled API types predate web_app buttons, so the start keyboard is
// marshalled by hand and sent as a raw sendMessage parameter.
type webAppInfo struct {
	URL string `json:"url"`
}

type inlineButton struct {
	Text   string      `json:"text"`
	WebApp *webAppInfo `json:"web_app,omitempty"`
}

type inlineMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

func startKeyboardJSON(webappURL string) string {
	rows := [][]inlineButton{
		{{Text: "Open Miner", WebApp: &webAppInfo{URL: webappURL}}},
	}
	bts, err := json.Marshal(inlineMarkup{InlineKeyboard: rows})
	if err != nil {
		return ""
	}
	return string(bts)
}

func (b *Bot) sendStart(chatID int64, firstName string) {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "Miner"
	}
	text := fmt.Sprintf("Welcome, %s! Buy miner bots, upgrade them and collect coins while you are away.", name)
	markup := ""
	if b.cfg.WebappURL != "" {
		markup = startKeyboardJSON(b.cfg.WebappURL)
	}
	if markup == "" {
		b.send(chatID, text)
		return
	}
	params := tgbotapi.Params{
		"chat_id":      strconv.FormatInt(chatID, 10),
		"text":         text,
		"reply_markup": markup,
	}
	if _, err := b.api.MakeRequest("sendMessage", params); err != nil {
		log.Printf("tgbot: send start: %v", err)
	}
}

func (b *Bot) sendBalance(ctx context.Context, chatID, userID int64) {
	ledger, acc, err := b.engine.State(ctx, userID)
	if err != nil {
		log.Printf("tgbot: state user=%d: %v", userID, err)
		b.send(chatID, "Could not load your balance, try again later.")
		return
	}
	text := fmt.Sprintf("Balance: %d coins\nIncome: %d/h\nPending: %d", ledger.Balance, acc.HourlyRate, acc.Pending)
	if acc.StorageFull {
		text += "\nStorage is full, collect now!"
	}
	b.send(chatID, text)
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("tgbot: send: %v", err)
	}
}
