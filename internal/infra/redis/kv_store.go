package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"analysis-tracker/internal/domain"
	"analysis-tracker/internal/domain/ports/repository"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

var _ repository.KeyValueStore = (*KVStore)(nil)

// changeEvent is the payload published after every write so that other
// instances watching the same key converge. Origin carries the writer's
// instance ID; a watcher drops events bearing its own origin, which keeps
// the "a store never observes its own writes" contract.
type changeEvent struct {
	Origin string `json:"origin"`
	Key    string `json:"key"`
	Value  string `json:"value"` // empty on delete
}

// KVStore implements the key-value port on Redis. Values are stored without
// expiry; change notifications ride on pub/sub channels derived from the key.
type KVStore struct {
	client     *Client
	instanceID string
	maxBytes   int // per-key value ceiling, 0 = unlimited
	log        *zerolog.Logger
}

func NewKVStore(client *Client, instanceID string, maxBytes int, log *zerolog.Logger) *KVStore {
	return &KVStore{client: client, instanceID: instanceID, maxBytes: maxBytes, log: log}
}

func channelFor(key string) string { return "kv_changed:" + key }

func (s *KVStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key)
	if errors.Is(err, goredis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	if s.maxBytes > 0 && len(value) > s.maxBytes {
		return domain.ErrStorageQuota
	}
	if err := s.client.Set(ctx, key, value, 0); err != nil {
		if isOOM(err) {
			return domain.ErrStorageQuota
		}
		return err
	}
	s.notify(ctx, key, value)
	return nil
}

func (s *KVStore) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key); err != nil {
		return err
	}
	s.notify(ctx, key, "")
	return nil
}

// Watch subscribes to change events for one exact key. Events originating
// from this instance are filtered out before delivery.
func (s *KVStore) Watch(ctx context.Context, key string) (<-chan string, error) {
	sub := s.client.subscribe(ctx, channelFor(key))
	// Force the subscription to be established before returning.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan string, 8)
	go func() {
		defer close(out)
		defer sub.Close()
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				var ev changeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.log.Warn().Err(err).Str("key", key).Msg("malformed change event dropped")
					continue
				}
				if ev.Origin == s.instanceID {
					continue
				}
				select {
				case out <- ev.Value:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *KVStore) notify(ctx context.Context, key, value string) {
	b, _ := json.Marshal(changeEvent{Origin: s.instanceID, Key: key, Value: value})
	if err := s.client.Publish(ctx, channelFor(key), b); err != nil {
		// Local state is already settled; other instances will converge on
		// their next reload.
		s.log.Warn().Err(err).Str("key", key).Msg("change notification failed")
	}
}

// isOOM recognizes Redis maxmemory rejections, which go-redis surfaces as
// plain errors prefixed with "OOM".
func isOOM(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "OOM")
}
