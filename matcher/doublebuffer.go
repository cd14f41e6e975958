// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package matcher

import (
	"sync"

	"github.com/decred/cfmatch/compute"
)

// completion receives the outcome of an encoded request.  cmd is the completed
// command when err is nil.  When the double buffer is stopped the completion is
// called with a nil command and the stop error instead.
type completion func(cmd compute.CommandUnit, err error)

// doubleBuffer pipelines up to two commands through a pair of filter slots.
// At most one command is staged, meaning encoded but not yet committed.
//
// All methods other than commandCompleted must be called with mtx held.
// commandCompleted is registered with the device and acquires mtx itself.
type doubleBuffer struct {
	mtx   *sync.Mutex
	slots [2]compute.Buffer

	// head is the slot of the oldest registered command and depth is the
	// number of registered commands.
	head  int
	depth int

	staged      compute.CommandUnit
	completions []completion
}

// newDoubleBuffer allocates two shared slots of slotSize bytes each.
func newDoubleBuffer(mtx *sync.Mutex, dev compute.Device, slotSize int) (*doubleBuffer, error) {
	db := &doubleBuffer{mtx: mtx}
	for i := range db.slots {
		slot, err := dev.NewBuffer(slotSize, compute.StorageShared)
		if err != nil {
			return nil, wrapError(ErrBackendFault, "unable to allocate "+
				"filter slot", err)
		}
		db.slots[i] = slot
	}
	return db, nil
}

// full returns whether a further command may not be enqueued.
func (db *doubleBuffer) full() bool {
	return db.depth == 2 || db.staged != nil
}

// idle returns whether no command is registered.
func (db *doubleBuffer) idle() bool {
	return db.depth == 0
}

// enqueue stages cmd in the next free slot.  write is called with the slot to
// fill it and finish encoding cmd.  Nothing is modified when write fails.
func (db *doubleBuffer) enqueue(cmd compute.CommandUnit, done completion, write func(slot compute.Buffer) error) error {
	if db.staged != nil {
		return makeError(ErrInternal, "a command is already staged")
	}
	if db.depth == 2 {
		return makeError(ErrInternal, "both filter slots are in use")
	}
	if err := write(db.slots[(db.head+db.depth)&1]); err != nil {
		return err
	}
	cmd.AddCompletionHandler(db.commandCompleted)
	db.completions = append(db.completions, done)
	db.depth++
	db.staged = cmd
	return nil
}

// commit submits the staged command to the device.
func (db *doubleBuffer) commit() error {
	if db.staged == nil {
		return makeError(ErrInternal, "no staged command to commit")
	}
	cmd := db.staged
	db.staged = nil
	cmd.Commit()
	return nil
}

// commandCompleted is the device completion handler for every command.  It
// releases the oldest slot and calls its completion outside of the lock.  It
// does nothing once the double buffer has been stopped.
func (db *doubleBuffer) commandCompleted(cmd compute.CommandUnit) {
	var done completion
	db.mtx.Lock()
	if len(db.completions) != 0 {
		done = db.completions[0]
		db.completions[0] = nil
		db.completions = db.completions[1:]
		db.depth--
		db.head ^= 1
	}
	db.mtx.Unlock()

	if done != nil {
		done(cmd, nil)
	}
}

// stop unregisters and returns every completion in registration order so the
// caller can fail them, and commits the staged command, if any, so the device
// can release it.
func (db *doubleBuffer) stop() []completion {
	completions := db.completions
	db.completions = nil
	db.depth = 0
	if db.staged != nil {
		cmd := db.staged
		db.staged = nil
		cmd.Commit()
	}
	return completions
}
