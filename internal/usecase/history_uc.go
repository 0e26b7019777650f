package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"analysis-tracker/internal/domain"
	"analysis-tracker/internal/domain/model"
	"analysis-tracker/internal/domain/ports/repository"
	"analysis-tracker/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// HistoryUseCase owns the bounded, deduplicated list of terminal job results.
// Entries are newest-first and unique by job ID; the list is persisted after
// every mutation and converges across client instances through the store's
// change notifications. Storage failures never surface to callers: quota
// errors are recovered by shedding the oldest half and retrying once, and
// anything else is logged, leaving the in-memory list as best-effort truth.
type HistoryUseCase interface {
	Items() []model.HistoryEntry
	Add(ctx context.Context, entry model.HistoryEntry)
	Upsert(ctx context.Context, entry model.HistoryEntry)
	RemoveByID(ctx context.Context, id string)
	Clear(ctx context.Context)
	SetNamespace(ctx context.Context, ns string)
	Start(ctx context.Context) error
}

var _ HistoryUseCase = (*historyUC)(nil)

type historyUC struct {
	kv       repository.KeyValueStore
	baseKey  string
	capacity int
	log      *zerolog.Logger

	mu        sync.Mutex
	ns        string
	items     []model.HistoryEntry
	runCtx    context.Context
	stopWatch context.CancelFunc
}

func NewHistoryUseCase(kv repository.KeyValueStore, baseKey string, capacity int, log *zerolog.Logger) HistoryUseCase {
	if capacity <= 0 {
		capacity = 20
	}
	return &historyUC{kv: kv, baseKey: baseKey, capacity: capacity, log: log}
}

// Start loads the persisted collection and begins watching for writes made
// by other instances. Malformed or missing data yields an empty collection.
func (h *historyUC) Start(ctx context.Context) error {
	h.mu.Lock()
	h.runCtx = ctx
	h.items = h.load(ctx, h.keyLocked())
	h.mu.Unlock()
	return h.rewatch()
}

func (h *historyUC) keyLocked() string {
	if h.ns == "" {
		return h.baseKey
	}
	return h.baseKey + ":" + h.ns
}

func (h *historyUC) Items() []model.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.HistoryEntry, len(h.items))
	copy(out, h.items)
	return out
}

// Add prepends entry, removing any prior entry with the same ID first, and
// truncates to capacity (oldest evicted).
func (h *historyUC) Add(ctx context.Context, entry model.HistoryEntry) {
	h.mu.Lock()
	h.items = truncate(prepend(dropID(h.items, entry.ID), entry), h.capacity)
	h.persistLocked(ctx)
	h.mu.Unlock()
	metrics.IncHistoryEvent("add")
}

// Upsert merges entry's fields onto an existing entry with the same ID and
// promotes it to the front; without a match it behaves like Add.
func (h *historyUC) Upsert(ctx context.Context, entry model.HistoryEntry) {
	h.mu.Lock()
	merged := entry
	for _, it := range h.items {
		if it.ID == entry.ID {
			merged = it.Merge(entry)
			break
		}
	}
	h.items = truncate(prepend(dropID(h.items, entry.ID), merged), h.capacity)
	h.persistLocked(ctx)
	h.mu.Unlock()
	metrics.IncHistoryEvent("upsert")
}

func (h *historyUC) RemoveByID(ctx context.Context, id string) {
	h.mu.Lock()
	h.items = dropID(h.items, id)
	h.persistLocked(ctx)
	h.mu.Unlock()
	metrics.IncHistoryEvent("remove")
}

// Clear empties the collection and deletes the persisted record entirely, so
// another instance's load observes emptiness instead of a stale empty list
// racing against newer data.
func (h *historyUC) Clear(ctx context.Context) {
	h.mu.Lock()
	h.items = nil
	key := h.keyLocked()
	if err := h.kv.Del(ctx, key); err != nil {
		h.log.Warn().Err(err).Str("key", key).Msg("history clear failed")
	}
	metrics.SetHistorySize(0)
	h.mu.Unlock()
	metrics.IncHistoryEvent("clear")
}

// SetNamespace switches the effective storage key and reloads from it
// immediately. The in-memory list tied to the old key is discarded without
// being written back.
func (h *historyUC) SetNamespace(ctx context.Context, ns string) {
	h.mu.Lock()
	if ns == h.ns {
		h.mu.Unlock()
		return
	}
	h.ns = ns
	h.items = h.load(ctx, h.keyLocked())
	metrics.SetHistorySize(len(h.items))
	h.mu.Unlock()
	if err := h.rewatch(); err != nil {
		h.log.Warn().Err(err).Str("namespace", ns).Msg("history watch restart failed")
	}
}

func (h *historyUC) load(ctx context.Context, key string) []model.HistoryEntry {
	raw, err := h.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			h.log.Warn().Err(err).Str("key", key).Msg("history load failed, starting empty")
		}
		return nil
	}
	return decodeEntries(raw, h.capacity)
}

// persistLocked writes the collection back synchronously. On a quota error
// the oldest half is dropped and the write retried once; a second failure is
// logged and swallowed. Callers hold h.mu.
func (h *historyUC) persistLocked(ctx context.Context) {
	key := h.keyLocked()
	metrics.SetHistorySize(len(h.items))
	err := h.writeLocked(ctx, key)
	if errors.Is(err, domain.ErrStorageQuota) {
		h.items = h.items[:len(h.items)/2]
		metrics.IncStorageRecovery()
		metrics.SetHistorySize(len(h.items))
		h.log.Warn().Str("key", key).Int("kept", len(h.items)).
			Msg("storage quota exceeded, shed oldest half and retrying")
		err = h.writeLocked(ctx, key)
	}
	if err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("history persist failed, keeping in-memory state")
	}
}

func (h *historyUC) writeLocked(ctx context.Context, key string) error {
	b, err := json.Marshal(h.items)
	if err != nil {
		return err
	}
	return h.kv.Set(ctx, key, string(b))
}

// rewatch tears down the previous watch and follows the current key.
// Incoming snapshots from other instances replace the in-memory list.
func (h *historyUC) rewatch() error {
	h.mu.Lock()
	if h.stopWatch != nil {
		h.stopWatch()
		h.stopWatch = nil
	}
	if h.runCtx == nil {
		h.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(h.runCtx)
	h.stopWatch = cancel
	key := h.keyLocked()
	h.mu.Unlock()

	ch, err := h.kv.Watch(ctx, key)
	if err != nil {
		cancel()
		return err
	}
	go func() {
		for raw := range ch {
			items := decodeEntries(raw, h.capacity)
			h.mu.Lock()
			if h.keyLocked() != key {
				// Namespace changed while this notification was in flight.
				h.mu.Unlock()
				continue
			}
			h.items = items
			metrics.SetHistorySize(len(items))
			h.mu.Unlock()
			metrics.IncHistoryEvent("sync")
		}
	}()
	return nil
}

func decodeEntries(raw string, capacity int) []model.HistoryEntry {
	if raw == "" {
		return nil
	}
	var items []model.HistoryEntry
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	return truncate(items, capacity)
}

func prepend(items []model.HistoryEntry, entry model.HistoryEntry) []model.HistoryEntry {
	out := make([]model.HistoryEntry, 0, len(items)+1)
	out = append(out, entry)
	return append(out, items...)
}

func dropID(items []model.HistoryEntry, id string) []model.HistoryEntry {
	out := items[:0:len(items)]
	for _, it := range items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}

func truncate(items []model.HistoryEntry, capacity int) []model.HistoryEntry {
	if len(items) > capacity {
		return items[:capacity]
	}
	return items
}
