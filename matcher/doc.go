// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package matcher implements batch membership testing of compact filter sets
against a corpus of scripts on a compute device.

A match request consists of a set of 32-bit filter values, a 16-byte key and a
modulus.  The request matches when the SipHash of any corpus entry under the
key, reduced into the range [0, modulus) and truncated to 32 bits, is a member
of the filter set.  Both steps run on the device: one kernel hashes every
corpus entry and a second kernel compares every hash with every filter value.

# Lifecycle

A Matcher moves through four phases:

  - preinit: the matcher has been created but its kernels are not compiled
  - idle: the kernels and buffers are ready and nothing is executing
  - busy: at least one request is executing or waiting
  - stop: the matcher has been stopped and accepts no further work

Start compiles the kernels and moves from preinit to idle.  Any error raised
while applying a transition, including device faults, stops the matcher and
fails every outstanding request with that error.  There are no retries.

# Pipelining

Two filter slots allow one request to be encoded while the previous one
executes.  Only one command executes at a time since the commands share the
corpus hash buffer and the output word.  Requests that arrive while both slots
are in use wait in an unbounded FIFO.  Results are delivered in submission
order.

# Corpus Reloads

Reload stages a new corpus which is built on the device when the next request
is encoded.  Requests encoded before then keep using the previous corpus, so a
request never observes a partially built corpus.  Recently built corpora are
optionally kept in an LRU cache keyed by a BLAKE-256 fingerprint of their
contents.

# Errors

Errors returned by this package are of type matcher.Error and identify the
specific kind via the ErrorKind constants with full support for errors.Is and
errors.As.  Errors reported by the compute device remain reachable the same
way.
*/
package matcher
