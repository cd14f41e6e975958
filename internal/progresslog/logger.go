// Copyright (c) 2015-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package progresslog

import (
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/slog"
)

// pickNoun returns the singular or plural form of a noun depending on the
// provided count.
func pickNoun(n uint64, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// Logger provides periodic logging of progress towards some action such as
// scanning block filters.
type Logger struct {
	sync.Mutex
	subsystemLogger slog.Logger
	progressAction  string

	// lastLogTime tracks the last time a log statement was shown.
	lastLogTime time.Time

	// These fields accumulate information about filters between log
	// statements.
	receivedFilters uint64
	receivedValues  uint64
	receivedMatches uint64
}

// New returns a new filter progress logger.
func New(progressAction string, logger slog.Logger) *Logger {
	return &Logger{
		lastLogTime:     time.Now(),
		progressAction:  progressAction,
		subsystemLogger: logger,
	}
}

// LogProgress accumulates details for the filter of the provided block and
// periodically (every 10 seconds) logs an information message to show
// progress to the user along with duration and totals included.
//
// The force flag may be used to force a log message to be shown regardless of
// the time the last one was shown.
//
// The progress message is templated as follows:
//
//	{progressAction} {numProcessed} {filters|filter} in the last {timePeriod}
//	({numValues} {values|value}, {numMatches} {matches|match},
//	last block {blockHash})
func (l *Logger) LogProgress(block *chainhash.Hash, numValues int, matched, forceLog bool) {
	l.Lock()
	defer l.Unlock()

	l.receivedFilters++
	l.receivedValues += uint64(numValues)
	if matched {
		l.receivedMatches++
	}
	now := time.Now()
	duration := now.Sub(l.lastLogTime)
	if !forceLog && duration < time.Second*10 {
		return
	}

	l.subsystemLogger.Infof("%s %d %s in the last %0.2fs (%d %s, %d %s, "+
		"last block %v)", l.progressAction,
		l.receivedFilters, pickNoun(l.receivedFilters, "filter", "filters"),
		duration.Seconds(),
		l.receivedValues, pickNoun(l.receivedValues, "value", "values"),
		l.receivedMatches, pickNoun(l.receivedMatches, "match", "matches"),
		block)

	l.receivedFilters = 0
	l.receivedValues = 0
	l.receivedMatches = 0
	l.lastLogTime = now
}

// SetLastLogTime updates the last time data was logged to the provided time.
func (l *Logger) SetLastLogTime(time time.Time) {
	l.Lock()
	l.lastLogTime = time
	l.Unlock()
}
