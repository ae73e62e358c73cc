/*
Package segment provides the backing storage of delta documents: read-only
file sources, growable memory sources, and segments referencing regions of
either of them.

Segments are small values. They never point to a source directly, but carry a
SourceID handle into the table of a Repository. The repository is the only
component allowed to mutate memory sources, and it keeps a reference count per
source. A segment value obtained from the repository (by creating, copying or
splitting) holds one reference, which has to be released by DropSegment or
consumed by MergeSegments.

_________________________________________________________________________

# BSD 3-Clause License

# Copyright (c) Norbert Pillmayer

All rights reserved.

Please refer to the LICENSE file for details.
*/
package segment

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer writes to trace with key 'deltadoc'
func tracer() tracing.Trace {
	return tracing.Select("deltadoc")
}

func assert(condition bool, msg string) {
	if !condition {
		tracer().Errorf("segment: invariant violated: %s", msg)
		panic(msg)
	}
}
