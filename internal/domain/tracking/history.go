package tracking

import (
	"context"
	"encoding/json"
	"sync"
)

// BrowseHistoryLimit bounds the most-recent product list
const BrowseHistoryLimit = 20

// BrowsedProduct is one entry in the recent browse history
type BrowsedProduct struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	Category  string `json:"category,omitempty"`
	ViewedAt  int64  `json:"viewedAt"`
}

// BrowseHistory keeps a bounded most-recent-first list of viewed products,
// de-duplicated by product ID with move-to-front semantics. Mirrored to
// durable storage on every push
type BrowseHistory struct {
	mu      sync.Mutex
	kv      KV
	limit   int
	entries []BrowsedProduct
}

// NewBrowseHistory creates a browse history seeded from durable storage
func NewBrowseHistory(ctx context.Context, kv KV) *BrowseHistory {
	h := &BrowseHistory{kv: kv, limit: BrowseHistoryLimit}
	if raw, err := kv.Get(ctx, KeyBrowseHistory); err == nil {
		var stored []BrowsedProduct
		if jsonErr := json.Unmarshal([]byte(raw), &stored); jsonErr == nil {
			if len(stored) > h.limit {
				stored = stored[:h.limit]
			}
			h.entries = stored
		}
	}
	return h
}

// Push records a product view at the front of the history. Re-viewing an
// existing product moves it to the front without duplicating; the oldest entry
// is evicted once the bound is reached
func (h *BrowseHistory) Push(ctx context.Context, product BrowsedProduct) {
	h.mu.Lock()
	defer h.mu.Unlock()

	filtered := make([]BrowsedProduct, 0, len(h.entries)+1)
	filtered = append(filtered, product)
	for _, existing := range h.entries {
		if existing.ProductID != product.ProductID {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) > h.limit {
		filtered = filtered[:h.limit]
	}
	h.entries = filtered

	if raw, err := json.Marshal(h.entries); err == nil {
		_ = h.kv.Set(ctx, KeyBrowseHistory, string(raw))
	}
}

// Recent returns a copy of the history, most recent first
func (h *BrowseHistory) Recent() []BrowsedProduct {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]BrowsedProduct, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of stored entries
func (h *BrowseHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
