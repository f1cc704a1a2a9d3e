package scan

import "time"

// HistoryEntry is one successfully resolved product in the session's recent
// history.
type HistoryEntry struct {
	ProductID int64     `json:"productId"`
	Barcode   string    `json:"barcode"`
	Name      string    `json:"name"`
	At        time.Time `json:"timestamp"`
}

// history keeps the last N resolved products, most-recent-first. Re-scanning
// a product moves its entry to the front instead of duplicating it.
type history struct {
	max     int
	entries []HistoryEntry
}

func newHistory(max int) *history {
	if max <= 0 {
		max = 10
	}
	return &history{max: max}
}

func (h *history) add(e HistoryEntry) {
	for i, existing := range h.entries {
		if existing.ProductID == e.ProductID {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			break
		}
	}
	h.entries = append([]HistoryEntry{e}, h.entries...)
	if len(h.entries) > h.max {
		h.entries = h.entries[:h.max]
	}
}

func (h *history) list() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}
