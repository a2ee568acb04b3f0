// Package ledger is the durable trade journal shared by all account workers.
//
// One database per engine process: SQLite file by default, PostgreSQL when
// the path is a postgres:// DSN. Events are idempotent on (account,
// event_id); positions are maintained transactionally alongside them. The
// handle serializes writers itself, so a single *Ledger is safe to share.
package ledger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/portal-sniper/internal/pricing"
)

// Event is one recorded buy or sell. (Account, EventID) is the primary key;
// a second insert with the same key is rejected and reported as a duplicate.
type Event struct {
	Account    string          `gorm:"primaryKey"`
	EventID    string          `gorm:"primaryKey"`
	Kind       string          `gorm:"index"`
	NftID      string          `gorm:"index"`
	GiftName   string
	Model      string
	Background string
	Price      decimal.Decimal `gorm:"type:decimal(20,2)"`
	Fee        decimal.Decimal `gorm:"type:decimal(20,2)"`
	Ts         int64           `gorm:"index"`
	Payload    string
}

// Position tracks the lifecycle of one gift per account. A buy opens it, a
// sell closes it; a sell with no prior buy creates a closed position with a
// zero buy price.
type Position struct {
	Account    string          `gorm:"primaryKey"`
	NftID      string          `gorm:"primaryKey"`
	GiftName   string
	Model      string
	Background string
	BuyPrice   decimal.Decimal `gorm:"type:decimal(20,2)"`
	BuyTs      int64
	SellPrice  decimal.Decimal `gorm:"type:decimal(20,2)"`
	SellTs     int64
	Status     string          `gorm:"index"` // "open" or "closed"
}

// ProfitStats aggregate the journal over a time window.
type ProfitStats struct {
	BuyCount       int
	SellCount      int
	TotalBuy       decimal.Decimal
	TotalSell      decimal.Decimal
	TotalFee       decimal.Decimal
	NetProfit      decimal.Decimal // total_sell - total_buy - total_fee
	RealizedProfit decimal.Decimal // sum of sell-buy over closed positions
}

// Ledger is the shared journal handle.
type Ledger struct {
	db *gorm.DB
	mu sync.Mutex // single writer at a time
}

// Open connects to the database and creates the schema when missing.
func Open(dbPath string) (*Ledger, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Ledger connected (PostgreSQL)")
	} else {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Ledger initialized (SQLite)")
	}

	if err := db.AutoMigrate(&Event{}, &Position{}); err != nil {
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// RecordTrade inserts the event and applies its position transition in one
// transaction. Returns false without side effects when the (account,
// event_id) pair was already recorded.
func (l *Ledger) RecordTrade(event pricing.TradeEvent) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	recorded := false
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var existing Event
		err := tx.Where("account = ? AND event_id = ?", event.Account, event.EventID).
			First(&existing).Error
		if err == nil {
			return nil // duplicate, no-op
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		payload, _ := json.Marshal(event.Raw)
		row := Event{
			Account:    event.Account,
			EventID:    event.EventID,
			Kind:       string(event.Kind),
			NftID:      event.NFTID,
			GiftName:   event.GiftName,
			Model:      event.Model,
			Background: event.Background,
			Price:      event.Price,
			Fee:        event.Fee,
			Ts:         event.Ts,
			Payload:    string(payload),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		if err := l.applyPosition(tx, event); err != nil {
			return err
		}
		recorded = true
		return nil
	})
	return recorded, err
}

func (l *Ledger) applyPosition(tx *gorm.DB, event pricing.TradeEvent) error {
	var pos Position
	err := tx.Where("account = ? AND nft_id = ?", event.Account, event.NFTID).
		First(&pos).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	switch event.Kind {
	case pricing.TradeBuy:
		pos.Account = event.Account
		pos.NftID = event.NFTID
		pos.GiftName = event.GiftName
		pos.Model = event.Model
		pos.Background = event.Background
		pos.BuyPrice = event.Price
		pos.BuyTs = event.Ts
		pos.Status = "open"
		if found {
			return tx.Save(&pos).Error
		}
		return tx.Create(&pos).Error

	case pricing.TradeSell:
		if !found {
			return tx.Create(&Position{
				Account:    event.Account,
				NftID:      event.NFTID,
				GiftName:   event.GiftName,
				Model:      event.Model,
				Background: event.Background,
				BuyPrice:   decimal.Zero,
				SellPrice:  event.Price,
				SellTs:     event.Ts,
				Status:     "closed",
			}).Error
		}
		pos.GiftName = event.GiftName
		pos.Model = event.Model
		pos.Background = event.Background
		pos.SellPrice = event.Price
		pos.SellTs = event.Ts
		pos.Status = "closed"
		return tx.Save(&pos).Error
	}
	return nil
}

// GetBuyPrice returns the tracked buy price for an account's gift, nil when
// no position exists.
func (l *Ledger) GetBuyPrice(account, nftID string) (*decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var pos Position
	err := l.db.Where("account = ? AND nft_id = ?", account, nftID).First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	price := pos.BuyPrice
	return &price, nil
}

// GetProfitStats aggregates events since sinceTs, optionally for a single
// account. Realized profit sums sell-buy over closed positions whose sell
// falls inside the window.
func (l *Ledger) GetProfitStats(account string, sinceTs int64) (ProfitStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := ProfitStats{
		TotalBuy:       decimal.Zero,
		TotalSell:      decimal.Zero,
		TotalFee:       decimal.Zero,
		NetProfit:      decimal.Zero,
		RealizedProfit: decimal.Zero,
	}

	q := l.db.Model(&Event{}).Where("ts >= ?", sinceTs)
	if account != "" {
		q = q.Where("account = ?", account)
	}
	var events []Event
	if err := q.Find(&events).Error; err != nil {
		return stats, err
	}
	for _, e := range events {
		stats.TotalFee = stats.TotalFee.Add(e.Fee)
		switch e.Kind {
		case string(pricing.TradeBuy):
			stats.BuyCount++
			stats.TotalBuy = stats.TotalBuy.Add(e.Price)
		case string(pricing.TradeSell):
			stats.SellCount++
			stats.TotalSell = stats.TotalSell.Add(e.Price)
		}
	}
	stats.NetProfit = stats.TotalSell.Sub(stats.TotalBuy).Sub(stats.TotalFee)

	pq := l.db.Model(&Position{}).Where("status = ?", "closed")
	if account != "" {
		pq = pq.Where("account = ?", account)
	}
	if sinceTs > 0 {
		pq = pq.Where("sell_ts >= ?", sinceTs)
	}
	var closed []Position
	if err := pq.Find(&closed).Error; err != nil {
		return stats, err
	}
	for _, p := range closed {
		stats.RealizedProfit = stats.RealizedProfit.Add(p.SellPrice.Sub(p.BuyPrice))
	}
	return stats, nil
}

// GetRecentEvents returns the newest events, optionally for one account.
func (l *Ledger) GetRecentEvents(limit int, account string) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit < 1 {
		limit = 1
	}
	q := l.db.Order("ts DESC").Limit(limit)
	if account != "" {
		q = q.Where("account = ?", account)
	}
	var events []Event
	err := q.Find(&events).Error
	return events, err
}

// GetOpenPositions returns open positions, most recently bought first.
func (l *Ledger) GetOpenPositions(limit int, account string) ([]Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit < 1 {
		limit = 1
	}
	q := l.db.Where("status = ?", "open").Order("buy_ts DESC").Limit(limit)
	if account != "" {
		q = q.Where("account = ?", account)
	}
	var positions []Position
	err := q.Find(&positions).Error
	return positions, err
}
