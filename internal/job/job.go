package job

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/tunevault/tunevault-go/internal/errors"
)

// Kind represents the type of media job
type Kind string

const (
	KindAudioSingle     Kind = "audio_single"
	KindAudioCollection Kind = "audio_collection"
	KindVideoSingle     Kind = "video_single"
	KindVideoCollection Kind = "video_collection"
)

// Valid reports whether the kind is one of the known job kinds
func (k Kind) Valid() bool {
	switch k {
	case KindAudioSingle, KindAudioCollection, KindVideoSingle, KindVideoCollection:
		return true
	}
	return false
}

// IsAudio reports whether the job fetches audio. Only audio artifacts are
// ingested into the catalog.
func (k Kind) IsAudio() bool {
	return k == KindAudioSingle || k == KindAudioCollection
}

// IsCollection reports whether the job fetches multiple items
func (k Kind) IsCollection() bool {
	return k == KindAudioCollection || k == KindVideoCollection
}

// State represents the lifecycle state of a job
type State string

const (
	StatePending  State = "pending"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateFinished State = "finished"
	StateFailed   State = "failed"
	StateStopped  State = "stopped"
)

// Terminal reports whether the state is final
func (s State) Terminal() bool {
	return s == StateFinished || s == StateFailed || s == StateStopped
}

// pollInterval is how often a paused job re-checks its control flags
const pollInterval = 100 * time.Millisecond

// Job is one unit of fetch work. Control flags are set by the public
// Pause/Resume/Stop methods and observed by the runner at progress
// checkpoints, so a signal takes effect at the next checkpoint rather than
// mid-write.
type Job struct {
	ID      int64
	Kind    Kind
	URL     string
	DestDir string

	CreatedAt time.Time

	paused  atomic.Bool
	stopped atomic.Bool
	cancel  context.CancelFunc

	mu         sync.RWMutex
	state      State
	progress   int
	err        error
	startedAt  time.Time
	finishedAt time.Time
}

// New creates a pending job
func New(id int64, kind Kind, url, destDir string) *Job {
	return &Job{
		ID:        id,
		Kind:      kind,
		URL:       url,
		DestDir:   destDir,
		CreatedAt: time.Now(),
		state:     StatePending,
	}
}

// State returns the current lifecycle state
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Progress returns the last reported overall percent
func (j *Job) Progress() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress
}

// Err returns the terminal error, if any
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Duration returns how long the job has been or was running
func (j *Job) Duration() time.Duration {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.startedAt.IsZero() {
		return 0
	}
	if j.finishedAt.IsZero() {
		return time.Since(j.startedAt)
	}
	return j.finishedAt.Sub(j.startedAt)
}

// Pause requests a pause. Only a running job can be paused; the transition
// to Paused happens at the next checkpoint.
func (j *Job) Pause() error {
	j.mu.RLock()
	state := j.state
	j.mu.RUnlock()

	if state != StateRunning {
		return apperrors.NewValidationError("job is not running")
	}
	j.paused.Store(true)
	return nil
}

// Resume clears a pause request
func (j *Job) Resume() error {
	j.mu.RLock()
	state := j.state
	j.mu.RUnlock()

	if state != StatePaused && !j.paused.Load() {
		return apperrors.NewValidationError("job is not paused")
	}
	j.paused.Store(false)
	return nil
}

// Stop requests termination. Safe in any non-terminal state; also wakes a
// paused job so it can observe the stop. The cancel token is read under the
// lock because the runner binds it concurrently; a job stopped before the
// token exists is caught by the stopped flag at the first checkpoint.
func (j *Job) Stop() error {
	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		return apperrors.NewValidationError("job already finished")
	}
	cancel := j.cancel
	j.mu.Unlock()

	j.stopped.Store(true)
	j.paused.Store(false)
	if cancel != nil {
		cancel()
	}
	return nil
}

// Stopped reports whether a stop was requested
func (j *Job) Stopped() bool {
	return j.stopped.Load()
}

func (j *Job) bindCancel(cancel context.CancelFunc) {
	j.mu.Lock()
	j.cancel = cancel
	j.mu.Unlock()
}

func (j *Job) setState(state State) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state.Terminal() {
		return
	}
	j.state = state
	switch state {
	case StateRunning:
		if j.startedAt.IsZero() {
			j.startedAt = time.Now()
		}
	case StateFinished, StateFailed, StateStopped:
		j.finishedAt = time.Now()
	}
}

func (j *Job) setError(err error) {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
}

// updateProgress records a new overall percent. Progress never moves
// backwards; reports below the high-water mark are dropped. Returns true when
// the value advanced.
func (j *Job) updateProgress(percent int) bool {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if percent <= j.progress {
		return false
	}
	j.progress = percent
	return true
}

// checkpoint is the cooperative control point. It surfaces a pending stop,
// and while a pause is requested it parks the goroutine, polling the flags
// until resumed or stopped.
func (j *Job) checkpoint(ctx context.Context) error {
	if j.stopped.Load() {
		return apperrors.NewCancelledError("job stopped")
	}
	if ctx.Err() != nil {
		return apperrors.NewCancelledError("job cancelled")
	}

	if !j.paused.Load() {
		return nil
	}

	j.setState(StatePaused)
	for j.paused.Load() {
		if j.stopped.Load() {
			return apperrors.NewCancelledError("job stopped")
		}
		select {
		case <-ctx.Done():
			return apperrors.NewCancelledError("job cancelled")
		case <-time.After(pollInterval):
		}
	}
	j.setState(StateRunning)
	return nil
}
