package sensor

import (
	"sync"
	"time"

	"github.com/nerrad567/safewalk-core/internal/clock"
)

// DefaultRestartDelay is the pause before restarting an ended session.
const DefaultRestartDelay = time.Second

// RestartPolicy controls how a Supervisor restarts its task.
type RestartPolicy struct {
	// Delay is the time to wait before restarting after an end.
	Delay time.Duration

	// MaxAttempts limits consecutive restarts. 0 means unlimited.
	MaxAttempts int

	// OnRestart is called before each restart attempt. It runs while the
	// supervisor is locked and must not call back into it.
	OnRestart func(attempt int)

	// OnGiveUp is called once MaxAttempts is exhausted.
	OnGiveUp func(attempts int)
}

// SupervisorState is the lifecycle of a supervised task.
type SupervisorState string

const (
	SupervisorStopped    SupervisorState = "stopped"
	SupervisorRunning    SupervisorState = "running"
	SupervisorRestarting SupervisorState = "restarting"
	SupervisorGaveUp     SupervisorState = "gave_up"
)

// Supervisor restarts a task that ends on its own while it is wanted.
//
// Stop cancels a pending restart before returning. A restart that is
// already running start when Stop is called completes first, so any
// cleanup the caller performs after Stop is ordered after it.
type Supervisor struct {
	clock  clock.Clock
	policy RestartPolicy
	start  func() error
	logger Logger
	name   string

	mu       sync.Mutex
	state    SupervisorState
	attempts int
	timer    clock.Timer
	epoch    uint64
}

// NewSupervisor creates a stopped supervisor for start.
func NewSupervisor(name string, clk clock.Clock, policy RestartPolicy, start func() error) *Supervisor {
	if policy.Delay <= 0 {
		policy.Delay = DefaultRestartDelay
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Supervisor{
		clock:  clk,
		policy: policy,
		start:  start,
		logger: noopLogger{},
		name:   name,
		state:  SupervisorStopped,
	}
}

// SetLogger sets the logger.
func (s *Supervisor) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// Begin marks the task as wanted and resets the attempt counter. The caller
// has already started the first session.
func (s *Supervisor) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.epoch++
	s.state = SupervisorRunning
	s.attempts = 0
}

// Ended reports a spontaneous end of the session. While the task is wanted
// a restart is scheduled after the policy delay.
func (s *Supervisor) Ended() {
	s.mu.Lock()
	if s.state != SupervisorRunning {
		s.mu.Unlock()
		return
	}
	gaveUp := s.scheduleLocked()
	attempts := s.attempts
	s.mu.Unlock()

	s.notifyGiveUp(gaveUp, attempts)
}

// Healthy reports the session produced output, resetting the attempt count.
func (s *Supervisor) Healthy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SupervisorRunning {
		s.attempts = 0
	}
}

// Stop marks the task unwanted and cancels any pending restart.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.epoch++
	s.state = SupervisorStopped
}

// State returns the current state.
func (s *Supervisor) State() SupervisorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns consecutive restarts since the last healthy output.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// scheduleLocked arms the restart timer, or gives up and reports true.
func (s *Supervisor) scheduleLocked() bool {
	if s.policy.MaxAttempts > 0 && s.attempts >= s.policy.MaxAttempts {
		s.state = SupervisorGaveUp
		s.logger.Warn("max restart attempts reached", "task", s.name, "attempts", s.attempts)
		return true
	}

	s.state = SupervisorRestarting
	epoch := s.epoch
	s.timer = s.clock.AfterFunc(s.policy.Delay, func() {
		s.restart(epoch)
	})
	return false
}

// restart runs start under mu so Stop cannot interleave with it.
func (s *Supervisor) restart(epoch uint64) {
	s.mu.Lock()
	if s.epoch != epoch || s.state != SupervisorRestarting {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.attempts++
	attempt := s.attempts

	s.logger.Info("restarting", "task", s.name, "attempt", attempt, "delay", s.policy.Delay)
	if s.policy.OnRestart != nil {
		s.policy.OnRestart(attempt)
	}

	gaveUp := false
	if err := s.start(); err != nil {
		s.logger.Warn("restart failed", "task", s.name, "attempt", attempt, "error", err)
		gaveUp = s.scheduleLocked()
	} else {
		s.state = SupervisorRunning
	}
	s.mu.Unlock()

	s.notifyGiveUp(gaveUp, attempt)
}

func (s *Supervisor) notifyGiveUp(gaveUp bool, attempts int) {
	if gaveUp && s.policy.OnGiveUp != nil {
		s.policy.OnGiveUp(attempts)
	}
}

func (s *Supervisor) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
