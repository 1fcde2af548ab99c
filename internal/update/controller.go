// Package update implements the confirmation-gated self-update flow. The
// triggers are plain natural-language phrases on the normal chat surface;
// the refresh itself is a best-effort external operation, and a successful
// update raises a restart event for the process supervisor instead of
// exiting from here.
package update

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"
)

// Result is the outcome of the most recent refresh attempt, retained until
// overwritten.
type Result struct {
	Timestamp time.Time `json:"timestamp"`
	OK        bool      `json:"ok"`
	Updated   bool      `json:"updated"`
	Summary   string    `json:"summary"`
	RawOutput string    `json:"raw_output,omitempty"`
}

// Refresher performs the actual source refresh. It must not raise on
// missing source-control metadata; "cannot update" is a Result, not an
// error.
type Refresher interface {
	Refresh(ctx context.Context) Result
}

var (
	updatePattern  = regexp.MustCompile(`(?i)\b(update yourself|self-?update|self update|pull latest|update greenie|update now)\b`)
	confirmPattern = regexp.MustCompile(`(?i)\b(confirm update|confirm|yes update|yes, update|yes please update|go ahead update)\b`)
)

type state int

const (
	stateIdle state = iota
	statePending
	stateUpdating
)

// Controller is the update state machine: Idle, PendingConfirmation(since),
// Updating, back to Idle. All transitions are mutex-guarded; a confirm that
// observes a live window inside its critical section wins any race with a
// concurrent new request.
type Controller struct {
	mu        sync.Mutex
	st        state
	pendingAt time.Time
	last      *Result

	window    time.Duration
	refresher Refresher
	now       func() time.Time
	restart   chan struct{}
}

func NewController(window time.Duration, refresher Refresher) *Controller {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &Controller{
		st:        stateIdle,
		window:    window,
		refresher: refresher,
		now:       time.Now,
		restart:   make(chan struct{}, 1),
	}
}

// SetClock overrides the time source. Used by tests.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// RestartRequests delivers one event per update that pulled new code. The
// supervisor owning the process listens on this channel.
func (c *Controller) RestartRequests() <-chan struct{} {
	return c.restart
}

// LastResult returns the most recent refresh outcome, if any.
func (c *Controller) LastResult() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Result{}, false
	}
	return *c.last, true
}

// HandleMessage intercepts update-flow triggers in an inbound chat message.
// It returns a user-facing reply and handled=true when the message belongs
// to the update flow; handled=false hands the message back to the normal
// chat path. Confirmation is checked before a new request so "yes, update"
// never re-arms the window it is trying to confirm.
func (c *Controller) HandleMessage(ctx context.Context, message string) (string, bool) {
	if confirmPattern.MatchString(message) {
		return c.confirm(ctx), true
	}
	if updatePattern.MatchString(message) {
		return c.request(), true
	}
	return "", false
}

func (c *Controller) request() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == stateUpdating {
		return "An update is already in progress."
	}
	// A repeat request while pending resets the window rather than erroring.
	c.st = statePending
	c.pendingAt = c.now()
	return fmt.Sprintf("Are you sure? Reply 'confirm update' within %d seconds to proceed.", int(c.window.Seconds()))
}

func (c *Controller) confirm(ctx context.Context) string {
	c.mu.Lock()
	if c.st == stateUpdating {
		c.mu.Unlock()
		return "An update is already in progress."
	}
	if c.st != statePending || c.now().Sub(c.pendingAt) > c.window {
		// Expired and absent windows are indistinguishable on purpose.
		c.st = stateIdle
		c.mu.Unlock()
		return "No recent update request found. Ask me to update yourself first by saying 'update yourself'."
	}
	c.st = stateUpdating
	c.mu.Unlock()

	// The refresh runs outside the lock; it can take a while.
	res := c.refresher.Refresh(ctx)
	res.Timestamp = c.now()

	c.mu.Lock()
	c.last = &res
	c.st = stateIdle
	c.mu.Unlock()

	if res.Updated {
		select {
		case c.restart <- struct{}{}:
		default:
		}
	}

	summary := res.Summary
	if summary == "" {
		summary = "no output"
	}
	return "Update performed. Result: " + summary
}
