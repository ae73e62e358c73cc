package segment

import "fmt"

// Kind discriminates file segments from memory segments.
type Kind uint8

const (
	// NoKind is the kind of the zero segment.
	NoKind Kind = iota
	// FileKind marks a read-only segment referencing a file source.
	FileKind
	// MemoryKind marks a read-write segment referencing a memory source.
	MemoryKind
)

func (k Kind) String() string {
	switch k {
	case FileKind:
		return "file"
	case MemoryKind:
		return "memory"
	}
	return "none"
}

// SourceID is a handle for a backing source within a Repository.
// The zero value never denotes a valid source.
type SourceID uint32

// Segment references a region [Start, Start+Len) of a backing source.
//
// Segments are values and carry no pointers. Adjusting a segment's window
// copies no bytes. Segments are created by a Repository and are valid only
// with respect to that repository.
type Segment struct {
	kind   Kind
	source SourceID
	start  uint64
	length uint64
}

// Kind returns the kind of backing source s refers to.
func (s Segment) Kind() Kind {
	return s.kind
}

// Source returns the handle of the backing source of s.
func (s Segment) Source() SourceID {
	return s.source
}

// Start returns the offset of s within its backing source.
func (s Segment) Start() uint64 {
	return s.start
}

// Len returns the number of bytes s represents.
func (s Segment) Len() uint64 {
	return s.length
}

// End returns the source offset right after the last byte of s.
func (s Segment) End() uint64 {
	return s.start + s.length
}

// IsZero reports whether s is the zero segment.
func (s Segment) IsZero() bool {
	return s.kind == NoKind
}

// IsFile reports whether s refers to a file source.
func (s Segment) IsFile() bool {
	return s.kind == FileKind
}

// IsMemory reports whether s refers to a memory source.
func (s Segment) IsMemory() bool {
	return s.kind == MemoryKind
}

// Contiguous reports whether s is directly followed by t within the same
// backing source.
func (s Segment) Contiguous(t Segment) bool {
	return s.kind != NoKind && s.kind == t.kind && s.source == t.source && s.End() == t.start
}

func (s Segment) String() string {
	return fmt.Sprintf("%s#%d[%d:%d]", s.kind, s.source, s.start, s.End())
}

// window returns a segment over the same source, restricted to
// [s.start+offset, s.start+offset+length).
func (s Segment) window(offset, length uint64) Segment {
	return Segment{
		kind:   s.kind,
		source: s.source,
		start:  s.start + offset,
		length: length,
	}
}
