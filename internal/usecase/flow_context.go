package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"analysis-tracker/internal/domain"
	"analysis-tracker/internal/domain/ports/repository"
)

// FlowContext replaces the ambient session-scoped flags the submission flow
// needs (where to return after sign-in, whether the user already signed up).
// It is persisted behind the same key-value interface as history, never via
// scattered storage reads.
type FlowContext struct {
	ReturnPath string `json:"return_path,omitempty"`
	SignedUp   bool   `json:"signed_up,omitempty"`
}

type FlowContextStore struct {
	kv  repository.KeyValueStore
	key string
}

func NewFlowContextStore(kv repository.KeyValueStore, key string) *FlowContextStore {
	if key == "" {
		key = "submission_flow"
	}
	return &FlowContextStore{kv: kv, key: key}
}

// Load returns the persisted context; missing or malformed data yields the
// zero value.
func (s *FlowContextStore) Load(ctx context.Context) FlowContext {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return FlowContext{}
	}
	var fc FlowContext
	if err := json.Unmarshal([]byte(raw), &fc); err != nil {
		return FlowContext{}
	}
	return fc
}

func (s *FlowContextStore) Save(ctx context.Context, fc FlowContext) error {
	b, err := json.Marshal(fc)
	if err != nil {
		return err
	}
	err = s.kv.Set(ctx, s.key, string(b))
	if errors.Is(err, domain.ErrStorageQuota) {
		// The context is tiny; quota pressure here means the store is full
		// of history data, which recovers on its own path.
		return nil
	}
	return err
}
