package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"analysis-tracker/internal/domain"
	"analysis-tracker/internal/domain/model"
	"analysis-tracker/internal/domain/ports/adapter"
	"analysis-tracker/internal/infra/logging"
	"analysis-tracker/internal/infra/metrics"

	"github.com/rs/zerolog"
)

const genericFailureMessage = "the analysis failed, please try again"

// JobPollerUseCase drives exactly one remote job from creation to terminal
// status. Starting a new job fully retires any previous one: the old loop's
// context is cancelled under the lock before the new creation request is
// dispatched, and every continuation re-checks its generation before writing
// state, so two loops can never interleave terminal writes.
type JobPollerUseCase interface {
	Submit(ctx context.Context, input, instruction string) (*adapter.CreateJobResponse, error)
	Cancel()
	Reset()
	Snapshot() model.JobSnapshot
	SetOnChange(fn func(model.JobSnapshot))
}

var _ JobPollerUseCase = (*jobPollerUC)(nil)

type PollerOptions struct {
	Interval    time.Duration // delay between one fetch resolving and the next dispatching
	MaxAttempts int           // tick ceiling; reaching it is a terminal timeout
}

type jobPollerUC struct {
	api  adapter.JobAPIAdapter
	opts PollerOptions
	log  *zerolog.Logger

	mu        sync.Mutex
	gen       uint64 // bumped on every submit/cancel/reset; stale ticks mutate nothing
	cancelRun context.CancelFunc
	snap      model.JobSnapshot
	startedAt time.Time
	onChange  func(model.JobSnapshot)
}

func NewJobPollerUseCase(api adapter.JobAPIAdapter, opts PollerOptions, log *zerolog.Logger) JobPollerUseCase {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 150
	}
	return &jobPollerUC{
		api:  api,
		opts: opts,
		log:  log,
		snap: model.JobSnapshot{Status: model.JobStatusIdle},
	}
}

func (p *jobPollerUC) Snapshot() model.JobSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

func (p *jobPollerUC) SetOnChange(fn func(model.JobSnapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// Submit retires any in-flight job, resets the visible state, creates the
// remote job and, unless the creation response short-circuits as already
// satisfied, enters the poll loop.
func (p *jobPollerUC) Submit(ctx context.Context, input, instruction string) (*adapter.CreateJobResponse, error) {
	defer logging.TraceDuration(p.log, "JobPollerUC.Submit")()

	p.mu.Lock()
	p.retireLocked()
	myGen := p.gen
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancelRun = cancel
	p.snap = model.JobSnapshot{Status: model.JobStatusIdle}
	p.startedAt = time.Now()
	p.mu.Unlock()
	p.emit()

	resp, err := p.api.CreateJob(runCtx, input, instruction)
	if err != nil {
		if isCancellation(err) {
			// The attempt was retired while the create call was in flight;
			// a newer submission owns the state now.
			return nil, err
		}
		p.setTerminal(myGen, model.JobStatusFailed, nil, err.Error(), "failed")
		return nil, err
	}
	if resp.JobID == "" {
		p.setTerminal(myGen, model.JobStatusFailed, nil, domain.ErrMissingJobID.Error(), "failed")
		return nil, domain.ErrMissingJobID
	}

	// Cached short-circuit: the work is already satisfied, fetch the result
	// exactly once and skip the poll loop entirely.
	if model.NormalizeStatus(resp.Status, false) == model.JobStatusCompleted {
		p.update(myGen, func(s *model.JobSnapshot) {
			s.JobID = resp.JobID
			s.Status = model.JobStatusQueued
		})
		st, err := p.api.GetJob(runCtx, resp.JobID)
		if err != nil {
			if !isCancellation(err) {
				p.setTerminal(myGen, model.JobStatusFailed, nil, err.Error(), "failed")
			}
			return resp, nil
		}
		metrics.IncPollTick()
		p.setTerminal(myGen, model.JobStatusCompleted, st.Result, "", "cached")
		return resp, nil
	}

	p.update(myGen, func(s *model.JobSnapshot) {
		s.JobID = resp.JobID
		s.Status = model.JobStatusQueued
	})
	go p.pollLoop(runCtx, myGen, resp.JobID)
	return resp, nil
}

// Cancel aborts any in-flight network call and retires the scheduled next
// tick. Idempotent; no visible state changes.
func (p *jobPollerUC) Cancel() {
	p.mu.Lock()
	p.retireLocked()
	p.mu.Unlock()
}

// Reset cancels, then clears all visible state back to the initial idle
// snapshot, including the job identifier.
func (p *jobPollerUC) Reset() {
	p.mu.Lock()
	p.retireLocked()
	p.snap = model.JobSnapshot{Status: model.JobStatusIdle}
	p.mu.Unlock()
	p.emit()
}

// retireLocked bumps the generation and cancels the running loop. Callers
// hold p.mu.
func (p *jobPollerUC) retireLocked() {
	p.gen++
	if p.cancelRun != nil {
		p.cancelRun()
		p.cancelRun = nil
	}
}

// pollLoop issues one status fetch per tick, exactly one tick in flight at a
// time, the next scheduled only after the previous fetch resolves.
func (p *jobPollerUC) pollLoop(ctx context.Context, myGen uint64, jobID string) {
	ctx = logging.WithJobID(ctx, jobID)
	logging.With(ctx, p.log).Debug().Msg("poll loop started")

	attempts := 0
	timer := time.NewTimer(p.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		st, err := p.api.GetJob(ctx, jobID)
		if err != nil {
			if isCancellation(err) {
				return
			}
			// A non-cancellation fetch failure is terminal for the whole
			// job; the loop does not retry on error.
			p.setTerminal(myGen, model.JobStatusFailed, nil, err.Error(), "failed")
			return
		}
		metrics.IncPollTick()

		switch status := model.NormalizeStatus(st.Status, st.HasResult()); status {
		case model.JobStatusFailed:
			msg := st.ErrorMessage
			if msg == "" {
				msg = genericFailureMessage
			}
			p.setTerminal(myGen, model.JobStatusFailed, nil, msg, "failed")
			return
		case model.JobStatusCompleted:
			p.setTerminal(myGen, model.JobStatusCompleted, st.Result, "", "completed")
			return
		default:
			attempts++
			if attempts >= p.opts.MaxAttempts {
				p.setTerminal(myGen, model.JobStatusFailed, nil, domain.ErrPollTimeout.Error(), "timeout")
				return
			}
			p.update(myGen, func(s *model.JobSnapshot) {
				s.Status = status
				s.Attempts = attempts
			})
		}

		timer.Reset(p.opts.Interval)
	}
}

// update applies fn to the snapshot if and only if the generation is still
// current. A stale tick must not win a late-arriving race against the newer
// job.
func (p *jobPollerUC) update(myGen uint64, fn func(*model.JobSnapshot)) {
	p.mu.Lock()
	if p.gen != myGen {
		p.mu.Unlock()
		return
	}
	fn(&p.snap)
	p.mu.Unlock()
	p.emit()
}

func (p *jobPollerUC) setTerminal(myGen uint64, status model.JobStatus, result []byte, errMsg, outcome string) {
	p.mu.Lock()
	if p.gen != myGen {
		p.mu.Unlock()
		return
	}
	p.snap.Status = status
	p.snap.Result = result
	p.snap.Error = errMsg
	elapsed := time.Since(p.startedAt)
	if p.cancelRun != nil {
		p.cancelRun()
		p.cancelRun = nil
	}
	jobID := p.snap.JobID
	p.mu.Unlock()

	metrics.IncJobFinished(outcome)
	metrics.ObserveJobDuration(elapsed.Seconds())
	p.log.Info().Str("job_id", jobID).Str("status", string(status)).Str("outcome", outcome).
		Dur("duration", elapsed).Msg("job finished")
	p.emit()
}

func (p *jobPollerUC) emit() {
	p.mu.Lock()
	fn := p.onChange
	snap := p.snap
	p.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// isCancellation recognizes a fetch failure caused by our own retirement of
// the attempt. These are swallowed, never logged or surfaced as failures.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
