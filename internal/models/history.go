package models

import "sort"

// HistoryItem is one row of the task history index.
type HistoryItem struct {
	ID   string `json:"id"`
	Ts   int64  `json:"ts"`
	Task string `json:"task"`

	// SessionID is the provider's conversation identifier, used to resume
	// the conversation where the provider supports it.
	SessionID string `json:"sessionId,omitempty"`
}

// Displayable reports whether the item carries both a timestamp and a summary.
func (h HistoryItem) Displayable() bool {
	return h.Ts != 0 && h.Task != ""
}

// SortHistory returns the displayable entries of items, newest first.
// The input slice is not modified.
func SortHistory(items []HistoryItem) []HistoryItem {
	out := make([]HistoryItem, 0, len(items))
	for _, item := range items {
		if item.Displayable() {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Ts > out[j].Ts
	})
	return out
}

// UpsertHistory replaces the entry with the same ID or appends item.
func UpsertHistory(items []HistoryItem, item HistoryItem) []HistoryItem {
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

// RemoveHistory drops every entry whose ID is id.
func RemoveHistory(items []HistoryItem, id string) []HistoryItem {
	out := items[:0]
	for _, item := range items {
		if item.ID != id {
			out = append(out, item)
		}
	}
	return out
}

// FindHistory returns the entry with the given ID.
func FindHistory(items []HistoryItem, id string) (HistoryItem, bool) {
	for _, item := range items {
		if item.ID == id {
			return item, true
		}
	}
	return HistoryItem{}, false
}
