// Package build coordinates the shared site build: at most one build runs at
// a time, its stages run in order, and every change of state is published to
// subscribers so the Host can broadcast it to all peers.
package build

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/collab/pkg/config"
	"github.com/DeBrosOfficial/collab/pkg/errors"
	"github.com/DeBrosOfficial/collab/pkg/logging"
	"github.com/DeBrosOfficial/collab/pkg/protocol"
)

// ErrCancelled is the LastError of a build stopped by Cancel.
const ErrCancelled = "build cancelled"

// Status is the coordinator state visible to peers.
type Status struct {
	IsBuildInProgress bool
	LastBuildTime     time.Time
	Stage             string
	LastError         string
}

// Message converts the status to its broadcast form.
func (s Status) Message() protocol.BuildStatus {
	m := protocol.BuildStatus{
		IsBuildInProgress: s.IsBuildInProgress,
		Stage:             s.Stage,
	}
	if !s.LastBuildTime.IsZero() {
		m.LastBuildTime = s.LastBuildTime.UnixMilli()
	}
	return m
}

type EventKind int

const (
	EventStatus EventKind = iota
	EventError
)

// Event is published on every state change (EventStatus) and when a build
// ends with an error or is cancelled (EventError, followed by EventStatus).
type Event struct {
	Kind    EventKind
	Status  Status
	Message string
}

// Runner executes a single stage.
type Runner interface {
	Run(ctx context.Context, stage config.BuildStage) error
}

type Coordinator struct {
	runner Runner
	stages []config.BuildStage
	logger *logging.ColoredLogger
	now    func() time.Time

	mu          sync.Mutex
	status      Status
	cancel      bool
	done        chan struct{}
	subscribers []subscriber
	nextSubID   int
}

type subscriber struct {
	id int
	fn func(Event)
}

func NewCoordinator(runner Runner, stages []config.BuildStage, logger *logging.ColoredLogger) *Coordinator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	done := make(chan struct{})
	close(done)
	return &Coordinator{
		runner: runner,
		stages: stages,
		logger: logger,
		now:    time.Now,
		done:   done,
	}
}

// Subscribe registers fn for every published event and returns a func that
// removes it. fn runs on the coordinator's goroutine and must not block.
func (c *Coordinator) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.subscribers = append(c.subscribers, subscriber{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subscribers {
			if s.id == id {
				c.subscribers = append(c.subscribers[:i:i], c.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Subscribers reports how many subscribers are registered.
func (c *Coordinator) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers)
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start begins a build in the background. A second Start while one is
// running fails with a ConflictError.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.status.IsBuildInProgress {
		c.mu.Unlock()
		return errors.NewConflictError("build", "").WithMessage("a build is already in progress")
	}
	if len(c.stages) == 0 {
		c.mu.Unlock()
		return errors.NewValidationError("build.stages", "no build stages configured", nil)
	}
	c.status.IsBuildInProgress = true
	c.status.Stage = c.stages[0].Name
	c.status.LastError = ""
	c.cancel = false
	c.done = make(chan struct{})
	done := c.done
	st := c.status
	c.mu.Unlock()

	c.logger.ComponentInfo(logging.ComponentBuild, "Build started", zap.Int("stages", len(c.stages)))
	c.publish(Event{Kind: EventStatus, Status: st})
	go c.run(ctx, done)
	return nil
}

// Cancel asks the running build to stop before its next stage. It reports
// whether a build was running. A stage already executing runs to completion.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.status.IsBuildInProgress {
		return false
	}
	c.cancel = true
	c.logger.ComponentInfo(logging.ComponentBuild, "Build cancellation requested",
		zap.String("stage", c.status.Stage))
	return true
}

// Wait blocks until the current build (if any) has finished.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context, done chan struct{}) {
	for i, stage := range c.stages {
		c.mu.Lock()
		cancelled := c.cancel
		if !cancelled && i > 0 {
			c.status.Stage = stage.Name
		}
		st := c.status
		c.mu.Unlock()

		if cancelled {
			c.finish(done, ErrCancelled)
			return
		}
		if i > 0 {
			c.publish(Event{Kind: EventStatus, Status: st})
		}

		c.logger.ComponentInfo(logging.ComponentBuild, "Running build stage", zap.String("stage", stage.Name))
		if err := c.runner.Run(ctx, stage); err != nil {
			c.logger.ComponentError(logging.ComponentBuild, "Build stage failed",
				zap.String("stage", stage.Name), zap.Error(err))
			c.finish(done, fmt.Sprintf("%s failed: %v", stage.Name, err))
			return
		}
	}
	c.finish(done, "")
}

func (c *Coordinator) finish(done chan struct{}, failure string) {
	c.mu.Lock()
	c.status.IsBuildInProgress = false
	c.status.Stage = ""
	c.status.LastError = failure
	if failure == "" {
		c.status.LastBuildTime = c.now()
	}
	c.cancel = false
	st := c.status
	c.mu.Unlock()

	if failure != "" {
		c.publish(Event{Kind: EventError, Status: st, Message: failure})
	} else {
		c.logger.ComponentInfo(logging.ComponentBuild, "Build finished")
	}
	c.publish(Event{Kind: EventStatus, Status: st})
	close(done)
}

func (c *Coordinator) publish(ev Event) {
	c.mu.Lock()
	subs := append([]subscriber(nil), c.subscribers...)
	c.mu.Unlock()
	for _, s := range subs {
		s.fn(ev)
	}
}
