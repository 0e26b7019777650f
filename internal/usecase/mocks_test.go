package usecase

import (
	"context"
	"sync"

	"analysis-tracker/internal/domain"
	"analysis-tracker/internal/domain/ports/adapter"
	"analysis-tracker/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// newTestLogger creates a silent logger for tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(nil)
	return &logger
}

// fakeJobAPI is a scripted in-memory implementation used by unit tests.
// GetJob serves queued responses in order, repeating the last one once the
// script runs out.
type fakeJobAPI struct {
	mu           sync.Mutex
	createResp   *adapter.CreateJobResponse
	createErr    error
	statuses     []adapter.JobStatusResponse
	getErr       error
	getErrAfter  int // serve this many statuses before failing; 0 = fail immediately when getErr set
	createCalls  int
	getCalls     int
	blockCreate chan struct{} // when set, CreateJob blocks until closed or ctx done
	blockGet    chan struct{} // when set, GetJob blocks until closed or ctx done
}

func (f *fakeJobAPI) CreateJob(ctx context.Context, input, instruction string) (*adapter.CreateJobResponse, error) {
	f.mu.Lock()
	f.createCalls++
	block := f.blockCreate
	resp, err := f.createResp, f.createErr
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	cp := *resp
	return &cp, nil
}

func (f *fakeJobAPI) GetJob(ctx context.Context, jobID string) (*adapter.JobStatusResponse, error) {
	f.mu.Lock()
	call := f.getCalls
	f.getCalls++
	block := f.blockGet
	var resp adapter.JobStatusResponse
	var err error
	if f.getErr != nil && call >= f.getErrAfter {
		err = f.getErr
	} else if len(f.statuses) > 0 {
		idx := call
		if idx >= len(f.statuses) {
			idx = len(f.statuses) - 1
		}
		resp = f.statuses[idx]
	}
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &resp, nil
}

func (f *fakeJobAPI) GetCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

// memKV is a small in-memory key-value store used by unit tests. setErrs
// holds errors to return from upcoming Set calls, consumed front to back.
type memKV struct {
	mu       sync.Mutex
	store    map[string]string
	setErrs  []error
	setCalls int
	watchers map[string][]chan string
}

func newMemKV() *memKV {
	return &memKV{store: map[string]string{}, watchers: map[string][]chan string{}}
}

var _ repository.KeyValueStore = (*memKV)(nil)

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.store[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *memKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if len(m.setErrs) > 0 {
		err := m.setErrs[0]
		m.setErrs = m.setErrs[1:]
		if err != nil {
			return err
		}
	}
	m.store[key] = value
	return nil
}

func (m *memKV) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, key)
	return nil
}

func (m *memKV) Watch(ctx context.Context, key string) (<-chan string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan string, 8)
	m.watchers[key] = append(m.watchers[key], ch)
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		ws := m.watchers[key]
		for i, w := range ws {
			if w == ch {
				m.watchers[key] = append(ws[:i], ws[i+1:]...)
				close(ch)
				return
			}
		}
	}()
	return ch, nil
}

// push simulates a write arriving from another instance.
func (m *memKV) push(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.watchers[key] {
		w <- value
	}
}

// fakeIdentity satisfies the identity port with canned answers.
type fakeIdentity struct {
	mu        sync.Mutex
	session   *adapter.Session
	signInURL string
	signInErr error
	redirects int
}

var _ adapter.IdentityAdapter = (*fakeIdentity)(nil)

func (f *fakeIdentity) CurrentSession(ctx context.Context) (*adapter.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, nil
	}
	cp := *f.session
	return &cp, nil
}

func (f *fakeIdentity) BeginSignIn(ctx context.Context, returnPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redirects++
	if f.signInErr != nil {
		return "", f.signInErr
	}
	return f.signInURL, nil
}
