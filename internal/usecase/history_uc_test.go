package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"analysis-tracker/internal/domain"
	"analysis-tracker/internal/domain/model"
)

func newTestHistory(t *testing.T, kv *memKV, capacity int) HistoryUseCase {
	t.Helper()
	h := NewHistoryUseCase(kv, "history", capacity, newTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	return h
}

func entry(id string) model.HistoryEntry {
	return model.HistoryEntry{ID: id, Input: "https://example.com/" + id}
}

func ids(items []model.HistoryEntry) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestHistory_AddDeduplicates(t *testing.T) {
	h := newTestHistory(t, newMemKV(), 20)
	ctx := context.Background()

	h.Add(ctx, entry("a"))
	h.Add(ctx, entry("b"))
	second := entry("a")
	second.Input = "https://example.com/a-updated"
	h.Add(ctx, second)

	items := h.Items()
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	if items[0].ID != "a" || items[0].Input != "https://example.com/a-updated" {
		t.Fatalf("front = %+v, want the second a entry promoted", items[0])
	}
	if items[1].ID != "b" {
		t.Fatalf("order = %v", ids(items))
	}
}

func TestHistory_CapacityEvictsOldest(t *testing.T) {
	h := newTestHistory(t, newMemKV(), 3)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		h.Add(ctx, entry(id))
	}
	items := h.Items()
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	got := ids(items)
	want := []string{"d", "c", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v (oldest evicted)", got, want)
		}
	}
}

func TestHistory_UpsertMergesAndPromotes(t *testing.T) {
	h := newTestHistory(t, newMemKV(), 20)
	ctx := context.Background()

	first := entry("a")
	first.Instruction = "summarize"
	h.Add(ctx, first)
	h.Add(ctx, entry("b"))

	patch := model.HistoryEntry{ID: "a", Result: json.RawMessage(`{"text":"ok"}`)}
	h.Upsert(ctx, patch)

	items := h.Items()
	if items[0].ID != "a" {
		t.Fatalf("upsert did not promote: %v", ids(items))
	}
	// Merged: new result wins, untouched fields survive.
	if string(items[0].Result) != `{"text":"ok"}` || items[0].Instruction != "summarize" {
		t.Fatalf("merge lost fields: %+v", items[0])
	}

	h.Upsert(ctx, entry("c"))
	if got := h.Items()[0].ID; got != "c" {
		t.Fatalf("upsert of a new id should behave like add, front = %q", got)
	}
}

func TestHistory_RoundTrip(t *testing.T) {
	kv := newMemKV()
	h := newTestHistory(t, kv, 20)
	ctx := context.Background()

	h.Add(ctx, entry("a"))
	h.Add(ctx, entry("b"))
	want := ids(h.Items())

	// A fresh store over the same key sees the same collection.
	h2 := newTestHistory(t, kv, 20)
	got := ids(h2.Items())
	if len(got) != len(want) {
		t.Fatalf("reload len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reload order = %v, want %v", got, want)
		}
	}
}

func TestHistory_MalformedDataLoadsEmpty(t *testing.T) {
	kv := newMemKV()
	_ = kv.Set(context.Background(), "history", "{not json")
	h := newTestHistory(t, kv, 20)
	if len(h.Items()) != 0 {
		t.Fatalf("malformed data should load empty, got %v", ids(h.Items()))
	}
}

func TestHistory_QuotaRecovery(t *testing.T) {
	kv := newMemKV()
	h := newTestHistory(t, kv, 20)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		h.Add(ctx, entry(id))
	}

	// Next write fails with quota; the retry after halving must succeed
	// without surfacing an error to the caller.
	kv.mu.Lock()
	kv.setErrs = []error{domain.ErrStorageQuota}
	kv.mu.Unlock()

	h.Add(ctx, entry("g"))

	// Seven entries were in memory when the write was rejected; at most
	// half may survive, and with an odd count that is three, not four.
	items := h.Items()
	if len(items) > 3 {
		t.Fatalf("collection did not shrink to at most half: %d entries", len(items))
	}
	if items[0].ID != "g" {
		t.Fatalf("newest entry lost during recovery: %v", ids(items))
	}
	// Persisted state matches the shrunken collection.
	raw, err := kv.Get(ctx, "history")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var persisted []model.HistoryEntry
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(persisted) != len(items) {
		t.Fatalf("persisted %d entries, in-memory %d", len(persisted), len(items))
	}
}

func TestHistory_ClearDeletesKey(t *testing.T) {
	kv := newMemKV()
	h := newTestHistory(t, kv, 20)
	ctx := context.Background()

	h.Add(ctx, entry("a"))
	h.Clear(ctx)

	if len(h.Items()) != 0 {
		t.Fatalf("clear left entries")
	}
	if _, err := kv.Get(ctx, "history"); err != domain.ErrNotFound {
		t.Fatalf("clear must delete the persisted record, got err=%v", err)
	}
}

func TestHistory_RemoveByID(t *testing.T) {
	h := newTestHistory(t, newMemKV(), 20)
	ctx := context.Background()
	h.Add(ctx, entry("a"))
	h.Add(ctx, entry("b"))
	h.RemoveByID(ctx, "a")
	got := ids(h.Items())
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("remove: %v", got)
	}
}

func TestHistory_NamespaceSwitchReloads(t *testing.T) {
	kv := newMemKV()
	h := newTestHistory(t, kv, 20)
	ctx := context.Background()

	h.Add(ctx, entry("anon"))
	h.SetNamespace(ctx, "user-1")

	if len(h.Items()) != 0 {
		t.Fatalf("namespace switch should start from the new key's data, got %v", ids(h.Items()))
	}
	h.Add(ctx, entry("mine"))
	if _, err := kv.Get(ctx, "history:user-1"); err != nil {
		t.Fatalf("namespaced key not written: %v", err)
	}
	// Old key untouched: switching must not write the old in-memory list back.
	raw, err := kv.Get(ctx, "history")
	if err != nil {
		t.Fatalf("old key gone: %v", err)
	}
	var old []model.HistoryEntry
	_ = json.Unmarshal([]byte(raw), &old)
	if len(old) != 1 || old[0].ID != "anon" {
		t.Fatalf("old key mutated: %v", ids(old))
	}
}

func TestHistory_CrossInstanceSync(t *testing.T) {
	kv := newMemKV()
	h := newTestHistory(t, kv, 20)

	incoming, _ := json.Marshal([]model.HistoryEntry{entry("remote-1"), entry("remote-2")})
	kv.push("history", string(incoming))

	waitFor(t, func() bool { return len(h.Items()) == 2 }, "incoming snapshot applied")
	if got := ids(h.Items()); got[0] != "remote-1" {
		t.Fatalf("sync order = %v", got)
	}

	// A delete from another instance empties the collection.
	kv.push("history", "")
	waitFor(t, func() bool { return len(h.Items()) == 0 }, "incoming delete applied")
}
