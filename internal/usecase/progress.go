package usecase

import (
	"math/rand"
	"sync"
)

// progressMeter produces the synthetic progress percentage shown while a job
// is queued or processing. It is purely perceived-latency feedback with no
// correctness meaning, kept in its own type so it can be removed without
// touching the state machine. Values only ever move forward until forced.
type progressMeter struct {
	mu    sync.Mutex
	value int
	rnd   *rand.Rand
}

func newProgressMeter(seed int64) *progressMeter {
	return &progressMeter{rnd: rand.New(rand.NewSource(seed))}
}

// Bump advances by a small random increment, capped below 100 so the bar
// never claims completion before the job reaches it.
func (m *progressMeter) Bump() {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.value + 1 + m.rnd.Intn(8)
	if next > 95 {
		next = 95
	}
	if next > m.value {
		m.value = next
	}
}

// Force overrides the meter: 0 on idle or failure, 100 on completion.
func (m *progressMeter) Force(v int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = v
}

func (m *progressMeter) Value() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}
