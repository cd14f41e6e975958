// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package matcher

// actionKind identifies what the matcher does after applying a transition.
type actionKind uint8

const (
	// actSuspend ends the drive loop because the device owns the next event.
	actSuspend actionKind = iota

	// actContinue ends the drive loop because there is nothing left to do.
	actContinue

	// actExecuteNext commits the staged command.
	actExecuteNext

	// actKernelsReady provides the compiled kernels.
	actKernelsReady

	// actDeliverResult delivers a match result and then checks the queue.
	actDeliverResult

	// actShutdown stops the matcher.
	actShutdown
)

// String returns the action kind as a human-readable name.
func (k actionKind) String() string {
	switch k {
	case actSuspend:
		return "suspend"
	case actContinue:
		return "continue"
	case actExecuteNext:
		return "execute next"
	case actKernelsReady:
		return "kernels ready"
	case actDeliverResult:
		return "deliver result"
	case actShutdown:
		return "shutdown"
	}
	return "unknown"
}

// action is returned by every transition to tell the drive loop what to apply
// next.  Only the fields used by its kind are set.
type action struct {
	kind    actionKind
	kernels kernelSet
	matched bool
	done    ResultFunc
	err     error
}

var (
	suspendAction     = action{kind: actSuspend}
	continueAction    = action{kind: actContinue}
	executeNextAction = action{kind: actExecuteNext}
)

// shutdownAction returns an action that stops the matcher with err.
func shutdownAction(err error) action {
	return action{kind: actShutdown, err: err}
}

// drive applies a and every action that follows from it until the matcher is
// waiting on the device or has nothing left to do.  Each action is applied in
// its own lock scope and every callback is called without the lock held.
//
// Any error from a transition shuts the matcher down.  The error the matcher
// was shut down with by this call, if any, is returned.
func (c *core) drive(a action) error {
	var cause error
	for {
		if a.kind == actDeliverResult {
			a.done(a.matched, nil)
		}

		var next action
		var err error
		var flush []func()
		c.mtx.Lock()
		switch a.kind {
		case actSuspend, actContinue:
			c.mtx.Unlock()
			return cause

		case actExecuteNext:
			next, err = c.executeNext()

		case actKernelsReady:
			next, err = c.provideKernels(a.kernels)

		case actDeliverResult:
			next, err = c.checkQueue()

		case actShutdown:
			if cause == nil {
				cause = a.err
			}
			flush = c.stop(a.err)
			next = continueAction

		default:
			c.mtx.Unlock()
			panic("matcher: unknown action " + a.kind.String())
		}
		c.mtx.Unlock()

		for _, fn := range flush {
			fn()
		}
		if err != nil {
			next = shutdownAction(err)
		}
		a = next
	}
}
