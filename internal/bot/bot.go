// Package bot is the Telegram collaborator: trade notifications pushed by the
// workers plus a small command surface over the shared ledger.
package bot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/portal-sniper/internal/config"
	"github.com/web3guy0/portal-sniper/internal/ledger"
	"github.com/web3guy0/portal-sniper/internal/pricing"
)

const notifyQueueSize = 2000

// WorkersSnapshot reports the current status line of every account worker.
type WorkersSnapshot func() map[string]string

// Bot wraps the Telegram API. A nil *Bot is a valid no-op collaborator, so
// callers never branch on whether Telegram is configured.
type Bot struct {
	api      *tgbotapi.BotAPI
	settings config.TelegramSettings
	ledger   *ledger.Ledger
	workers  WorkersSnapshot
	queue    chan string
	stopCh   chan struct{}
}

// New connects the bot, or returns (nil, nil) when Telegram is disabled.
// A configured but unreachable bot is an error the caller may ignore.
func New(settings config.TelegramSettings, lg *ledger.Ledger, workers WorkersSnapshot) (*Bot, error) {
	if !settings.Enabled || settings.Token == "" {
		return nil, nil
	}

	api, err := tgbotapi.NewBotAPI(settings.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect failed: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("Telegram bot connected")

	return &Bot{
		api:      api,
		settings: settings,
		ledger:   lg,
		workers:  workers,
		queue:    make(chan string, notifyQueueSize),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start launches the command listener and the notification sender.
func (b *Bot) Start() {
	if b == nil {
		return
	}
	go b.listenForCommands()
	go b.senderLoop()
}

// Stop terminates both goroutines. Queued notifications are dropped.
func (b *Bot) Stop() {
	if b == nil {
		return
	}
	close(b.stopCh)
	b.api.StopReceivingUpdates()
	log.Info().Msg("Telegram bot stopped")
}

// Notify enqueues a message for every configured chat. Never blocks; when the
// queue is full the message is dropped and logged.
func (b *Bot) Notify(text string) {
	if b == nil {
		return
	}
	select {
	case b.queue <- text:
	default:
		log.Warn().Msg("telegram queue full, dropping notification")
	}
}

func (b *Bot) senderLoop() {
	for {
		select {
		case text := <-b.queue:
			for _, chatID := range b.settings.ChatIDs {
				if err := b.sendText(chatID, text); err != nil {
					log.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram send failed")
				}
			}
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bot) listenForCommands() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(update.Message)
			}
		case <-b.stopCh:
			return
		}
	}
}

// allowed is the chat allow-list gate; an empty list admits everyone.
func (b *Bot) allowed(chatID int64) bool {
	if len(b.settings.ChatIDs) == 0 {
		return true
	}
	for _, id := range b.settings.ChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if !b.allowed(chatID) || !msg.IsCommand() {
		return
	}

	log.Debug().Int64("chat_id", chatID).Str("command", msg.Command()).Msg("telegram command")

	switch msg.Command() {
	case "start":
		b.cmdStart(chatID)
	case "stats":
		b.cmdStats(chatID)
	case "today":
		b.cmdToday(chatID)
	case "positions":
		b.cmdPositions(chatID)
	case "last":
		b.cmdLast(chatID)
	case "workers":
		b.cmdWorkers(chatID)
	}
}

func (b *Bot) cmdStart(chatID int64) {
	b.reply(chatID, "Portal bot online.\nCommands: /stats /today /positions /last /workers")
}

func (b *Bot) cmdStats(chatID int64) {
	stats, err := b.ledger.GetProfitStats("", 0)
	if err != nil {
		b.reply(chatID, "stats unavailable: "+err.Error())
		return
	}
	b.reply(chatID, strings.Join([]string{
		"All-time stats:",
		fmt.Sprintf("Buys: %d (%s)", stats.BuyCount, pricing.FormatPrice(stats.TotalBuy)),
		fmt.Sprintf("Sells: %d (%s)", stats.SellCount, pricing.FormatPrice(stats.TotalSell)),
		fmt.Sprintf("Fees: %s", pricing.FormatPrice(stats.TotalFee)),
		fmt.Sprintf("Net: %s", pricing.FormatPrice(stats.NetProfit)),
		fmt.Sprintf("Realized: %s", pricing.FormatPrice(stats.RealizedProfit)),
	}, "\n"))
}

func (b *Bot) cmdToday(chatID int64) {
	stats, err := b.ledger.GetProfitStats("", utcDayStartTs())
	if err != nil {
		b.reply(chatID, "stats unavailable: "+err.Error())
		return
	}
	b.reply(chatID, strings.Join([]string{
		"Today UTC:",
		fmt.Sprintf("Buys: %d (%s)", stats.BuyCount, pricing.FormatPrice(stats.TotalBuy)),
		fmt.Sprintf("Sells: %d (%s)", stats.SellCount, pricing.FormatPrice(stats.TotalSell)),
		fmt.Sprintf("Fees: %s", pricing.FormatPrice(stats.TotalFee)),
		fmt.Sprintf("Net: %s", pricing.FormatPrice(stats.NetProfit)),
	}, "\n"))
}

func (b *Bot) cmdPositions(chatID int64) {
	rows, err := b.ledger.GetOpenPositions(10, "")
	if err != nil {
		b.reply(chatID, "positions unavailable: "+err.Error())
		return
	}
	if len(rows) == 0 {
		b.reply(chatID, "Open positions: none")
		return
	}
	lines := []string{"Open positions (last 10):"}
	for _, row := range rows {
		lines = append(lines, fmt.Sprintf("%s | %s | %s/%s | buy %s",
			row.Account, row.GiftName, row.Model, row.Background,
			pricing.FormatPrice(row.BuyPrice)))
	}
	b.reply(chatID, strings.Join(lines, "\n"))
}

func (b *Bot) cmdLast(chatID int64) {
	rows, err := b.ledger.GetRecentEvents(10, "")
	if err != nil {
		b.reply(chatID, "trades unavailable: "+err.Error())
		return
	}
	if len(rows) == 0 {
		b.reply(chatID, "No trades yet")
		return
	}
	lines := []string{"Last trades (10):"}
	for _, row := range rows {
		lines = append(lines, fmt.Sprintf("%s | %s | %s %s/%s | %s",
			row.Account, row.Kind, row.GiftName, row.Model, row.Background,
			pricing.FormatPrice(row.Price)))
	}
	b.reply(chatID, strings.Join(lines, "\n"))
}

func (b *Bot) cmdWorkers(chatID int64) {
	snapshot := map[string]string{}
	if b.workers != nil {
		snapshot = b.workers()
	}
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := []string{"Workers:"}
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%s: %s", name, snapshot[name]))
	}
	b.reply(chatID, strings.Join(lines, "\n"))
}

func (b *Bot) reply(chatID int64, text string) {
	if err := b.sendText(chatID, text); err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram reply failed")
	}
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}

func utcDayStartTs() int64 {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start.Unix()
}
