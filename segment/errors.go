package segment

import "errors"

var (
	// ErrIndexOutOfBounds signals an offset or length outside of a segment or source.
	ErrIndexOutOfBounds = errors.New("segment: index out of bounds")
	// ErrIllegalArguments signals invalid function parameters.
	ErrIllegalArguments = errors.New("segment: illegal arguments")
	// ErrNotMemorySegment signals a mutation attempt on a file segment.
	ErrNotMemorySegment = errors.New("segment: not a memory segment")
	// ErrNotGrowable signals that a memory segment cannot grow in place without
	// corrupting other segments sharing its memory source.
	ErrNotGrowable = errors.New("segment: memory segment cannot grow in place")
	// ErrNotRegularFile signals an attempt to open something other than a regular file.
	ErrNotRegularFile = errors.New("segment: not a regular file")
	// ErrDanglingSegment signals access through a segment whose source has been released.
	ErrDanglingSegment = errors.New("segment: source of segment has been released")
)
