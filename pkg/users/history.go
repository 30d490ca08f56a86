package users

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// historyActorCap bounds how many actors keep a live conversation
	// context; the least recently active are evicted first.
	historyActorCap = 1024
	// historyEntryCap bounds the entries retained per actor.
	historyEntryCap = 20
)

// ConversationHistory keeps a bounded per-actor conversation context.
// Contents are in-memory only and lost on restart.
type ConversationHistory struct {
	cache *lru.Cache[int64, []string]
}

// NewConversationHistory creates the history cache.
func NewConversationHistory() (*ConversationHistory, error) {
	cache, err := lru.New[int64, []string](historyActorCap)
	if err != nil {
		return nil, err
	}
	return &ConversationHistory{cache: cache}, nil
}

// Append records one user/reply exchange, trimming the oldest entries
// past the per-actor cap.
func (h *ConversationHistory) Append(actor int64, userMessage, reply string) {
	entries, _ := h.cache.Get(actor)
	entries = append(entries, userMessage, reply)
	if len(entries) > historyEntryCap {
		entries = entries[len(entries)-historyEntryCap:]
	}
	h.cache.Add(actor, entries)
}

// Context returns the actor's retained exchanges, oldest first.
func (h *ConversationHistory) Context(actor int64) []string {
	entries, _ := h.cache.Get(actor)
	return entries
}

// Clear drops the actor's context.
func (h *ConversationHistory) Clear(actor int64) {
	h.cache.Remove(actor)
}
