package usecase

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"analysis-tracker/internal/domain"
	"analysis-tracker/internal/domain/model"
	"analysis-tracker/internal/domain/ports/adapter"
	"analysis-tracker/internal/infra/logging"
	"analysis-tracker/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const noticeTTL = 2 * time.Second

// SubmissionView is the read-only projection handed to the presentation
// layer.
type SubmissionView struct {
	Status        model.JobStatus `json:"status"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	Progress      int             `json:"progress"`
	JobID         string          `json:"job_id,omitempty"`
	Redirecting   bool            `json:"redirecting"`
	RedirectURL   string          `json:"redirect_url,omitempty"`
	RedirectError string          `json:"redirect_error,omitempty"`
	Notice        string          `json:"notice,omitempty"`
}

// SubmissionUseCase is the user-facing contract layered over the poller and
// the history store: validation, cooldown, re-entrancy, identity gating,
// synthetic progress and at-most-once terminal notifications.
type SubmissionUseCase interface {
	Start(ctx context.Context)
	Submit(ctx context.Context, input, instruction string) error
	Cancel()
	View() SubmissionView
	History() HistoryUseCase
	SetCallbacks(onSuccess, onError, onResultReady func(string))
}

var _ SubmissionUseCase = (*submissionUC)(nil)

type submissionUC struct {
	poller   JobPollerUseCase
	history  HistoryUseCase
	identity adapter.IdentityAdapter
	flow     *FlowContextStore
	cooldown time.Duration
	log      *zerolog.Logger
	meter    *progressMeter

	mu            sync.Mutex
	attempt       *model.SubmissionAttempt
	lastAccepted  time.Time
	inFlight      bool
	notice        string
	noticeTimer   *time.Timer
	redirecting   bool
	redirectURL   string
	redirectError string

	// Append-only for the lifetime of the orchestrator: a terminal outcome
	// never notifies twice, however many times the state re-renders.
	notifiedJobs   map[string]struct{}
	notifiedErrors map[string]struct{}

	onSuccess     func(jobID string)
	onError       func(message string)
	onResultReady func(jobID string)
}

func NewSubmissionUseCase(
	poller JobPollerUseCase,
	history HistoryUseCase,
	identity adapter.IdentityAdapter,
	flow *FlowContextStore,
	cooldown time.Duration,
	log *zerolog.Logger,
) SubmissionUseCase {
	if cooldown <= 0 {
		cooldown = 2 * time.Second
	}
	uc := &submissionUC{
		poller:         poller,
		history:        history,
		identity:       identity,
		flow:           flow,
		cooldown:       cooldown,
		log:            log,
		meter:          newProgressMeter(time.Now().UnixNano()),
		notifiedJobs:   map[string]struct{}{},
		notifiedErrors: map[string]struct{}{},
	}
	poller.SetOnChange(uc.onPollerChange)
	return uc
}

// Start launches the progress ticker; it runs until ctx is done.
func (o *submissionUC) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(400 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				switch o.poller.Snapshot().Status {
				case model.JobStatusQueued, model.JobStatusProcessing:
					o.meter.Bump()
				}
			}
		}
	}()
}

func (o *submissionUC) SetCallbacks(onSuccess, onError, onResultReady func(string)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onSuccess = onSuccess
	o.onError = onError
	o.onResultReady = onResultReady
}

func (o *submissionUC) History() HistoryUseCase { return o.history }

// Submit runs the full gate chain and, when the attempt is accepted, hands
// it to the poller. The returned error describes why an attempt was not
// accepted; poller-level outcomes are exposed as state, not returned here.
func (o *submissionUC) Submit(ctx context.Context, input, instruction string) error {
	defer logging.TraceDuration(o.log, "SubmissionUC.Submit")()

	if err := validateInput(input); err != nil {
		metrics.IncSubmissionRejected("invalid_input")
		o.setNotice(err.Error())
		return err
	}

	o.mu.Lock()
	// Defensive guard independent of the cooldown: a second attempt arriving
	// while a prior acceptance is still being flipped into flight is dropped.
	if o.inFlight {
		o.mu.Unlock()
		metrics.IncSubmissionRejected("in_flight")
		return domain.ErrSubmissionInFlight
	}
	if !o.lastAccepted.IsZero() && time.Since(o.lastAccepted) < o.cooldown {
		o.mu.Unlock()
		metrics.IncSubmissionRejected("cooldown")
		// Rejections never advance the cooldown clock.
		o.setNotice(domain.ErrCooldownActive.Error())
		return domain.ErrCooldownActive
	}
	o.mu.Unlock()

	if deferred, err := o.gateIdentity(ctx); err != nil || deferred {
		if err != nil {
			return err
		}
		return domain.ErrNotSignedIn
	}

	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		metrics.IncSubmissionRejected("in_flight")
		return domain.ErrSubmissionInFlight
	}
	o.inFlight = true
	o.lastAccepted = time.Now()
	o.attempt = &model.SubmissionAttempt{
		ID:          ulid.Make().String(),
		Input:       input,
		Instruction: instruction,
		AcceptedAt:  o.lastAccepted,
	}
	attemptID := o.attempt.ID
	o.mu.Unlock()

	o.meter.Force(0)
	o.log.Debug().Str("attempt_id", attemptID).Msg("submission accepted")

	_, err := o.poller.Submit(ctx, input, instruction)

	o.mu.Lock()
	o.inFlight = false
	o.mu.Unlock()

	if err != nil && !isCancellation(err) {
		o.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("submission did not start polling")
	}
	// Poller-level failures are already visible as state; don't double-report.
	return nil
}

// gateIdentity verifies an active session before any job is created. Signed
// out: the intended return destination is persisted and the sign-in redirect
// started; the submission itself is deferred. A redirect that cannot start
// aborts the attempt with a visible message and never touches the poller.
func (o *submissionUC) gateIdentity(ctx context.Context) (deferred bool, err error) {
	sess, err := o.identity.CurrentSession(ctx)
	if err != nil {
		o.log.Warn().Err(err).Msg("session check failed, treating as signed out")
	}
	if sess != nil {
		o.mu.Lock()
		o.redirecting = false
		o.redirectURL = ""
		o.redirectError = ""
		o.mu.Unlock()
		ctx = logging.WithUserID(ctx, sess.UserID)
		if fc := o.flow.Load(ctx); !fc.SignedUp {
			fc.SignedUp = true
			fc.ReturnPath = ""
			if err := o.flow.Save(ctx, fc); err != nil {
				logging.With(ctx, o.log).Warn().Err(err).Msg("could not persist sign-up flag")
			}
		}
		return false, nil
	}

	metrics.IncSubmissionRejected("identity")
	fc := o.flow.Load(ctx)
	fc.ReturnPath = "/analyze"
	if err := o.flow.Save(ctx, fc); err != nil {
		o.log.Warn().Err(err).Msg("could not persist return destination")
	}

	target, err := o.identity.BeginSignIn(ctx, fc.ReturnPath)
	if err != nil {
		o.mu.Lock()
		o.redirecting = false
		o.redirectError = domain.ErrRedirectFailed.Error()
		o.mu.Unlock()
		return false, domain.ErrRedirectFailed
	}

	o.mu.Lock()
	o.redirecting = true
	o.redirectURL = target
	o.redirectError = ""
	o.mu.Unlock()
	return true, nil
}

// Cancel retires the current job and clears the visible state back to idle.
func (o *submissionUC) Cancel() {
	o.poller.Reset()
	o.meter.Force(0)
}

func (o *submissionUC) View() SubmissionView {
	snap := o.poller.Snapshot()
	o.mu.Lock()
	defer o.mu.Unlock()
	return SubmissionView{
		Status:        snap.Status,
		Result:        snap.Result,
		Error:         snap.Error,
		Progress:      o.meter.Value(),
		JobID:         snap.JobID,
		Redirecting:   o.redirecting,
		RedirectURL:   o.redirectURL,
		RedirectError: o.redirectError,
		Notice:        o.notice,
	}
}

// onPollerChange projects poller state into progress, notifications and the
// history handoff. All callbacks fire outside the lock, at most once per
// job (success) or per distinct message (failure).
func (o *submissionUC) onPollerChange(snap model.JobSnapshot) {
	switch snap.Status {
	case model.JobStatusIdle:
		o.meter.Force(0)
	case model.JobStatusCompleted:
		o.meter.Force(100)
		if snap.JobID == "" || len(snap.Result) == 0 {
			return
		}
		o.mu.Lock()
		if _, seen := o.notifiedJobs[snap.JobID]; seen {
			o.mu.Unlock()
			return
		}
		o.notifiedJobs[snap.JobID] = struct{}{}
		attempt := o.attempt
		onSuccess, onReady := o.onSuccess, o.onResultReady
		o.mu.Unlock()

		entry := model.HistoryEntry{
			ID:        snap.JobID,
			Result:    snap.Result,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if attempt != nil {
			entry.Input = attempt.Input
			entry.Instruction = attempt.Instruction
			entry.CreatedAt = attempt.AcceptedAt
		}
		o.history.Upsert(context.Background(), entry)
		if onSuccess != nil {
			onSuccess(snap.JobID)
		}
		if onReady != nil {
			onReady(snap.JobID)
		}
	case model.JobStatusFailed:
		o.meter.Force(0)
		if snap.Error == "" {
			return
		}
		o.mu.Lock()
		if _, seen := o.notifiedErrors[snap.Error]; seen {
			o.mu.Unlock()
			return
		}
		o.notifiedErrors[snap.Error] = struct{}{}
		onError := o.onError
		o.mu.Unlock()
		if onError != nil {
			onError(snap.Error)
		}
	}
}

// setNotice installs a transient user-visible message that self-clears.
func (o *submissionUC) setNotice(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notice = msg
	if o.noticeTimer != nil {
		o.noticeTimer.Stop()
	}
	o.noticeTimer = time.AfterFunc(noticeTTL, func() {
		o.mu.Lock()
		o.notice = ""
		o.mu.Unlock()
	})
}

func validateInput(input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return domain.ErrInvalidInput
	}
	u, err := url.Parse(input)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return domain.ErrInvalidInput
	}
	return nil
}
