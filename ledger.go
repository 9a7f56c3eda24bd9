package infergate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ineyio/infergate/clock"
)

// EventType classifies a ledger entry.
type EventType string

const (
	EventGeneration     EventType = "generation"
	EventPurchase       EventType = "purchase"
	EventUpload         EventType = "upload"
	EventQuotaExceeded  EventType = "quota_exceeded"
	EventAdImpression   EventType = "ad_impression"
	EventAdRevenue      EventType = "ad_revenue"
	EventAffiliateClick EventType = "affiliate_click"
	EventWebhookCharge  EventType = "webhook_charge"
	EventDatasetPublish EventType = "dataset_publish"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventGeneration, EventPurchase, EventUpload, EventQuotaExceeded,
		EventAdImpression, EventAdRevenue, EventAffiliateClick,
		EventWebhookCharge, EventDatasetPublish:
		return true
	}
	return false
}

// LedgerEntry is one immutable monetizable event.
type LedgerEntry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	EventType EventType      `json:"eventType"`
	AmountUSD float64        `json:"amountUsd"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// LedgerStore persists ledger entries in append order.
type LedgerStore interface {
	// Append stores a fully populated entry. Entries are never updated.
	Append(ctx context.Context, entry LedgerEntry) error

	// Recent returns up to limit most recent entries, oldest first.
	Recent(ctx context.Context, limit int) ([]LedgerEntry, error)
}

// LedgerSummary is aggregated from raw entries on every read.
type LedgerSummary struct {
	RevenueUSD      float64           `json:"revenueUsd"`
	Count           int               `json:"count"`
	ByType          map[EventType]int `json:"byType"`
	QuotaViolations int               `json:"quotaViolations"`
}

// Ledger is the append-only event log.
type Ledger struct {
	store LedgerStore
	clock clock.Clock
}

// NewLedger creates a Ledger over store.
func NewLedger(store LedgerStore, clk clock.Clock) *Ledger {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Ledger{store: store, clock: clk}
}

// Append assigns an id and timestamp to entry and persists it.
func (l *Ledger) Append(ctx context.Context, entry LedgerEntry) (LedgerEntry, error) {
	if !entry.EventType.Valid() {
		return LedgerEntry{}, fmt.Errorf("%w: unknown event type %q", ErrInvalidRequest, entry.EventType)
	}

	entry.ID = uuid.New().String()
	entry.CreatedAt = l.clock.Now()

	if err := l.store.Append(ctx, entry); err != nil {
		return LedgerEntry{}, storageErr("ledger append", err)
	}
	return entry, nil
}

// Read returns the limit most recent entries in insertion order.
func (l *Ledger) Read(ctx context.Context, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	entries, err := l.store.Recent(ctx, limit)
	if err != nil {
		return nil, storageErr("ledger read", err)
	}
	return entries, nil
}

// Summarize aggregates entries.
func Summarize(entries []LedgerEntry) LedgerSummary {
	s := LedgerSummary{ByType: make(map[EventType]int)}
	for _, e := range entries {
		s.Count++
		s.RevenueUSD += e.AmountUSD
		s.ByType[e.EventType]++
		if e.EventType == EventQuotaExceeded {
			s.QuotaViolations++
		}
	}
	return s
}
