/*
Package deltadoc implements editable binary documents as a chain of deltas
over immutable and growable backing stores.

Delta Documents

A document starts out as a single segment spanning a file, or as an empty
chain. Edits never touch the file: inserted and overwritten bytes live in
growable memory sources, and the document is the ordered chain of segments
referencing regions of either kind of source. Opening a multi-gigabyte file
and changing a handful of bytes is therefore cheap in both time and memory.

All segments and sources are owned by a segment.Repository, which may be
shared by several documents. Moving bytes between documents of the same
repository copies segment descriptors only, never file content.

A document is addressed by absolute byte positions. It keeps a focus on the
segment accessed last, so sequential access (scanning, typing, hex-editing a
region) costs a constant number of chain steps per operation.

Concurrency

A document has a single logical owner. Editing operations must not overlap
with any other operation on documents sharing a repository; clients with
several writers have to synchronize them. Read-only operations (ByteAt,
ReadRange, Bytes and the io adapters) may run concurrently with each other.
Change events (see Document.Subscribe) are consumed on channels and may be
received from any goroutine.

_________________________________________________________________________

BSD 3-Clause License

Copyright (c) 2020–26, Norbert Pillmayer

All rights reserved.

Redistribution and use in source and binary forms, with or without
modification, are permitted provided that the following conditions are met:

1. Redistributions of source code must retain the above copyright notice, this
list of conditions and the following disclaimer.

2. Redistributions in binary form must reproduce the above copyright notice,
this list of conditions and the following disclaimer in the documentation
and/or other materials provided with the distribution.

3. Neither the name of the copyright holder nor the names of its
contributors may be used to endorse or promote products derived from
this software without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE
FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER
CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY,
OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

*/
package deltadoc

import (
	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"
)

// T traces to a global core-tracer.
func T() tracing.Trace {
	return gtrace.CoreTracer
}

// tracer writes to trace with key 'deltadoc'
func tracer() tracing.Trace {
	return tracing.Select("deltadoc")
}

// DocError is an error type for the deltadoc module
type DocError string

func (e DocError) Error() string {
	return string(e)
}

// ErrIndexOutOfBounds is flagged whenever a document position or range
// reaches beyond the size of the document.
const ErrIndexOutOfBounds = DocError("index out of bounds")

// ErrIllegalArguments is flagged whenever function parameters are invalid.
const ErrIllegalArguments = DocError("illegal arguments")

// ErrDisposed is flagged for operations on a document which has been disposed.
const ErrDisposed = DocError("document has been disposed")

// ErrNotSupported is flagged for operations mixing documents of different
// segment repositories.
const ErrNotSupported = DocError("operation not supported")

func assert(condition bool, msg string) {
	if !condition {
		tracer().Errorf("deltadoc: invariant violated: %s", msg)
		panic(msg)
	}
}
