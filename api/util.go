package api

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrTimeout is returned when callWithTimeout has a normal timeout.
var errTimeout = errors.New("timeout during call")

// errClientClosed is returned when the client went away before the call
// finished.
var errClientClosed = errors.New("client closed request")

// statusClientClosedRequest is recorded for abandoned requests. Nobody reads
// the response, the status only shows up in the request log and metrics.
const statusClientClosedRequest = 499

// isTimeoutError reports whether err is the call timeout or a deadline set
// further down, such as a coalesced query's own timeout.
func isTimeoutError(err error) bool {
	return errors.Is(err, errTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// isClientClosedError reports whether err comes from the request context
// being cancelled.
func isClientClosedError(err error) bool {
	return errors.Is(err, errClientClosed) || errors.Is(err, context.Canceled)
}

// contextError maps the state of a finished call context to the call error.
func contextError(ctx context.Context) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return errTimeout
	case context.Canceled:
		return errClientClosed
	}
	return nil
}

// errMisbehavingHandler is written to the log when a handler does not return.
var errMisbehavingHandler = "Misbehaving handler did not exit after 1 second."

// misbehavingHandlerDetector warn if ch does not exit after 1 second.
func misbehavingHandlerDetector(log *log.Logger, ch chan struct{}) {
	if log == nil {
		return
	}

	select {
	case <-ch:
		// Good. This means the handler returns shortly after the context finished.
		return
	case <-time.After(1 * time.Second):
		log.Warnf(errMisbehavingHandler)
	}
}

// callWithTimeout manages the channel / select loop required for timing
// out a function using a WithTimeout context. No timeout if timeout = 0.
// A new context is passed into handler, and cancelled at the end of this
// call.
func callWithTimeout(ctx context.Context, log *log.Logger, timeout time.Duration, handler func(ctx context.Context) error) error {
	if timeout == 0 {
		err := handler(ctx)
		if err != nil && ctx.Err() == context.Canceled {
			return errClientClosed
		}
		return err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Call function in go routine
	done := make(chan struct{})
	var err error
	go func(routineCtx context.Context) {
		err = handler(routineCtx)
		close(done)
	}(timeoutCtx)

	// wait for task to finish or context to timeout/cancel
	select {
	case <-done:
		// The handler may have returned because the deadline passed or the
		// client went away, report that rather than the handler's error.
		if err != nil {
			if cerr := contextError(timeoutCtx); cerr != nil {
				return cerr
			}
		}
		return err
	case <-timeoutCtx.Done():
		go misbehavingHandlerDetector(log, done)
		return contextError(timeoutCtx)
	}
}
