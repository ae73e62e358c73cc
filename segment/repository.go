package segment

import (
	"fmt"
	"io"
)

// Repository is the factory and owner of backing sources and segments.
//
// It is the only component allowed to mutate the bytes of memory sources.
// Every segment value handed out by a repository holds a reference to its
// backing source; releasing the last reference of a memory source frees its
// buffer. File sources registered by the client stay owned by the client;
// files opened through Repository.OpenFile are closed together with the
// release of their last reference.
//
// A Repository is not safe for concurrent use. All documents sharing one
// repository have to be operated from a single logical owner.
type Repository struct {
	sources   []sourceEntry // index 0 is unused, as SourceID 0 is invalid
	free      []SourceID    // recycled slots in sources
	files     map[FileSource]SourceID
	documents int
}

type sourceEntry struct {
	kind Kind
	file FileSource
	mem  *MemorySource
	refs int
	own  bool // close file source on release
}

func (e *sourceEntry) live() bool {
	return e.kind != NoKind
}

// Stats reports on the sources currently held by a repository.
type Stats struct {
	FileSources   int    // number of registered file sources
	MemorySources int    // number of live memory sources
	MemoryBytes   uint64 // total bytes held in memory sources
	References    int    // total number of live segment references
	Documents     int    // number of documents attached to the repository
}

// NewRepository creates an empty segment repository.
func NewRepository() *Repository {
	return &Repository{
		sources: make([]sourceEntry, 1, 16),
		files:   make(map[FileSource]SourceID),
	}
}

func (r *Repository) alloc(e sourceEntry) SourceID {
	if n := len(r.free); n > 0 {
		id := r.free[n-1]
		r.free = r.free[:n-1]
		r.sources[id] = e
		return id
	}
	r.sources = append(r.sources, e)
	return SourceID(len(r.sources) - 1)
}

func (r *Repository) entry(id SourceID) *sourceEntry {
	if id == 0 || int(id) >= len(r.sources) || !r.sources[id].live() {
		tracer().Errorf("segment: access to released source #%d", id)
		panic(fmt.Errorf("%w: source #%d", ErrDanglingSegment, id))
	}
	return &r.sources[id]
}

func (r *Repository) retain(id SourceID) {
	r.entry(id).refs++
}

// --- Sources ---------------------------------------------------------------

// RegisterFile makes a file source known to the repository and returns its
// handle. Registering the same file source twice returns the same handle.
func (r *Repository) RegisterFile(f FileSource) (SourceID, error) {
	if f == nil {
		return 0, ErrIllegalArguments
	}
	if id, ok := r.files[f]; ok {
		return id, nil
	}
	id := r.alloc(sourceEntry{kind: FileKind, file: f})
	r.files[f] = id
	tracer().Debugf("segment: registered file source #%d with %d bytes", id, f.Size())
	return id, nil
}

// OpenFile opens a file read-only and registers it as a file source owned by
// the repository. The file is closed as soon as the last segment referencing
// it is dropped, or when an unreferenced file is unregistered.
func (r *Repository) OpenFile(name string, pageSize int) (SourceID, error) {
	f, err := OpenFile(name, pageSize)
	if err != nil {
		return 0, err
	}
	id := r.alloc(sourceEntry{kind: FileKind, file: f, own: true})
	r.files[f] = id
	tracer().Debugf("segment: opened file source #%d for %q", id, name)
	return id, nil
}

// UnregisterFile removes a file source which is not referenced by any
// segment. Files opened by the repository are closed.
func (r *Repository) UnregisterFile(id SourceID) error {
	if _, ok := r.FileSource(id); !ok {
		return fmt.Errorf("%w: #%d is not a file source", ErrIllegalArguments, id)
	}
	if r.sources[id].refs > 0 {
		return fmt.Errorf("%w: file source #%d is still referenced", ErrIllegalArguments, id)
	}
	return r.release(id)
}

// release frees the slot of source id.
func (r *Repository) release(id SourceID) error {
	e := &r.sources[id]
	var err error
	switch e.kind {
	case MemoryKind:
		e.mem.release()
	case FileKind:
		delete(r.files, e.file)
		if c, ok := e.file.(io.Closer); ok && e.own {
			err = c.Close()
		}
	}
	r.sources[id] = sourceEntry{}
	r.free = append(r.free, id)
	return err
}

// FileSource returns the file source for a handle, if it denotes a live file source.
func (r *Repository) FileSource(id SourceID) (FileSource, bool) {
	if id == 0 || int(id) >= len(r.sources) || r.sources[id].kind != FileKind {
		return nil, false
	}
	return r.sources[id].file, true
}

// MemorySource returns the memory source for a handle, if it denotes a live
// memory source. Clients must not hold on to it beyond the lifetime of the
// segments referencing it.
func (r *Repository) MemorySource(id SourceID) (*MemorySource, bool) {
	if id == 0 || int(id) >= len(r.sources) || r.sources[id].kind != MemoryKind {
		return nil, false
	}
	return r.sources[id].mem, true
}

func (r *Repository) newMemorySource(data []byte) SourceID {
	return r.alloc(sourceEntry{kind: MemoryKind, mem: &MemorySource{data: data}})
}

// --- Creating segments -----------------------------------------------------

// CreateFileSegment creates a segment over [start, start+length) of a
// registered file source. No bytes are copied.
func (r *Repository) CreateFileSegment(src SourceID, start, length uint64) (Segment, error) {
	f, ok := r.FileSource(src)
	if !ok {
		return Segment{}, fmt.Errorf("%w: #%d is not a file source", ErrIllegalArguments, src)
	}
	if start+length < start || start+length > f.Size() {
		return Segment{}, ErrIndexOutOfBounds
	}
	r.retain(src)
	return Segment{kind: FileKind, source: src, start: start, length: length}, nil
}

// CreateMemorySegment creates a segment over [start, start+length) of an
// existing memory source. No bytes are copied.
func (r *Repository) CreateMemorySegment(src SourceID, start, length uint64) (Segment, error) {
	ms, ok := r.MemorySource(src)
	if !ok {
		return Segment{}, fmt.Errorf("%w: #%d is not a memory source", ErrIllegalArguments, src)
	}
	if start+length < start || start+length > ms.Len() {
		return Segment{}, ErrIndexOutOfBounds
	}
	r.retain(src)
	return Segment{kind: MemoryKind, source: src, start: start, length: length}, nil
}

// NewMemorySegment allocates a new, empty memory source and returns a
// zero-length segment over it.
func (r *Repository) NewMemorySegment() Segment {
	id := r.newMemorySource(nil)
	r.retain(id)
	return Segment{kind: MemoryKind, source: id}
}

// --- Mutating memory segments ----------------------------------------------

// CanGrowInPlace reports whether bytes may be inserted into seg by shifting
// its memory source. This is the case if seg is the only segment referencing
// the source, or if seg extends to the end of the source.
func (r *Repository) CanGrowInPlace(seg Segment) bool {
	if !seg.IsMemory() {
		return false
	}
	e := r.entry(seg.source)
	return e.refs == 1 || seg.End() == e.mem.Len()
}

// InsertMemoryData inserts data into memory segment seg at offset (relative
// to the segment start), growing its memory source in place. It returns the
// enlarged segment, which replaces seg.
func (r *Repository) InsertMemoryData(seg Segment, offset uint64, data []byte) (Segment, error) {
	return r.insertMemory(seg, offset, uint64(len(data)), data)
}

// InsertUninitializedMemoryData inserts length zero bytes into memory segment
// seg at offset. It returns the enlarged segment, which replaces seg.
func (r *Repository) InsertUninitializedMemoryData(seg Segment, offset, length uint64) (Segment, error) {
	return r.insertMemory(seg, offset, length, nil)
}

func (r *Repository) insertMemory(seg Segment, offset, length uint64, data []byte) (Segment, error) {
	if !seg.IsMemory() {
		return seg, ErrNotMemorySegment
	}
	if offset > seg.length {
		return seg, ErrIndexOutOfBounds
	}
	if !r.CanGrowInPlace(seg) {
		return seg, ErrNotGrowable
	}
	if length == 0 {
		return seg, nil
	}
	e := r.entry(seg.source)
	if err := e.mem.insert(seg.start+offset, length, data); err != nil {
		return seg, err
	}
	seg.length += length
	return seg, nil
}

// SetMemoryByte overwrites the byte at offset (relative to the segment
// start) of memory segment seg.
func (r *Repository) SetMemoryByte(seg Segment, offset uint64, value byte) error {
	if !seg.IsMemory() {
		return ErrNotMemorySegment
	}
	if offset >= seg.length {
		return ErrIndexOutOfBounds
	}
	return r.entry(seg.source).mem.setByte(seg.start+offset, value)
}

// --- Reading ---------------------------------------------------------------

// ByteAt returns the byte at offset (relative to the segment start) of seg.
func (r *Repository) ByteAt(seg Segment, offset uint64) (byte, error) {
	if offset >= seg.length {
		return 0, ErrIndexOutOfBounds
	}
	e := r.entry(seg.source)
	switch seg.kind {
	case MemoryKind:
		return e.mem.ByteAt(seg.start + offset)
	case FileKind:
		var b [1]byte
		if n, err := e.file.ReadAt(b[:], int64(seg.start+offset)); n < 1 {
			return 0, fmt.Errorf("segment: cannot read file byte: %w", err)
		}
		return b[0], nil
	}
	return 0, ErrIllegalArguments
}

// ReadAt copies bytes of seg, starting at offset, into p. It copies
// min(len(p), seg.Len()-offset) bytes and returns their count.
func (r *Repository) ReadAt(seg Segment, offset uint64, p []byte) (int, error) {
	if offset > seg.length {
		return 0, ErrIndexOutOfBounds
	}
	n := min(uint64(len(p)), seg.length-offset)
	if n == 0 {
		return 0, nil
	}
	e := r.entry(seg.source)
	var src interface {
		ReadAt([]byte, int64) (int, error)
	}
	switch seg.kind {
	case MemoryKind:
		src = e.mem
	case FileKind:
		src = e.file
	default:
		return 0, ErrIllegalArguments
	}
	cnt, err := src.ReadAt(p[:n], int64(seg.start+offset))
	if uint64(cnt) < n {
		if err == nil {
			err = ErrIndexOutOfBounds
		}
		return cnt, fmt.Errorf("segment: short read from %s: %w", seg, err)
	}
	return cnt, nil
}

// --- Copying and dropping --------------------------------------------------

// CopySegment produces an independent segment covering the same bytes as seg.
func (r *Repository) CopySegment(seg Segment) (Segment, error) {
	return r.CopySegmentRange(seg, 0, seg.length)
}

// CopySegmentRange produces an independent segment covering
// [offset, offset+length) of seg.
//
// Copies of file segments share the read-only file source. Copies of memory
// segments get a fresh memory source holding a copy of the bytes, so that
// in-place mutations never alias another live segment. The copy stays valid
// after seg has been dropped.
func (r *Repository) CopySegmentRange(seg Segment, offset, length uint64) (Segment, error) {
	if offset+length < offset || offset+length > seg.length {
		return Segment{}, ErrIndexOutOfBounds
	}
	switch seg.kind {
	case FileKind:
		r.retain(seg.source)
		return seg.window(offset, length), nil
	case MemoryKind:
		e := r.entry(seg.source)
		from := seg.start + offset
		data := append([]byte(nil), e.mem.data[from:from+length]...)
		id := r.newMemorySource(data)
		r.retain(id)
		return Segment{kind: MemoryKind, source: id, length: length}, nil
	}
	return Segment{}, ErrIllegalArguments
}

// DropSegment releases the claim of seg on its backing source. The last
// release of a memory source frees it; the last release of a file source
// unregisters it.
func (r *Repository) DropSegment(seg Segment) {
	if seg.IsZero() {
		return
	}
	e := r.entry(seg.source)
	assert(e.refs > 0, "DropSegment: reference count underflow")
	e.refs--
	if e.refs > 0 {
		return
	}
	if err := r.release(seg.source); err != nil {
		tracer().Errorf("segment: closing file source #%d: %v", seg.source, err)
	}
}

// --- Splitting and merging -------------------------------------------------

// SplitSegment splits seg at offset at into [0, at) and [at, len). Both parts
// reference the same source; no bytes are copied.
func (r *Repository) SplitSegment(seg Segment, at uint64) (Segment, Segment, error) {
	if at == 0 || at >= seg.length {
		return seg, Segment{}, fmt.Errorf("%w: split at %d of %s", ErrIndexOutOfBounds, at, seg)
	}
	r.retain(seg.source)
	return seg.window(0, at), seg.window(at, seg.length-at), nil
}

// MergeSegments replaces two adjacent segments by one, if they are of the
// same kind, reference the same source and are contiguous within it.
// Segments backed by distinct memory sources are never merged.
// If merging is not possible, ok is false and a and b are left untouched.
func (r *Repository) MergeSegments(a, b Segment) (merged Segment, ok bool) {
	if !a.Contiguous(b) {
		return Segment{}, false
	}
	e := r.entry(a.source)
	assert(e.refs >= 2, "MergeSegments: segments do not hold two references")
	e.refs--
	merged = a
	merged.length += b.length
	return merged, true
}

// --- Documents -------------------------------------------------------------

// CopyDocument registers a new document being attached to the repository.
func (r *Repository) CopyDocument() {
	r.documents++
}

// DropDocument unregisters a document from the repository. The document has
// to drop all of its segments beforehand.
func (r *Repository) DropDocument() {
	assert(r.documents > 0, "DropDocument: no documents attached")
	r.documents--
}

// Documents returns the number of documents attached to r.
func (r *Repository) Documents() int {
	return r.documents
}

// Stats returns a snapshot of the sources held by r.
func (r *Repository) Stats() Stats {
	st := Stats{Documents: r.documents}
	for i := 1; i < len(r.sources); i++ {
		e := &r.sources[i]
		switch e.kind {
		case FileKind:
			st.FileSources++
		case MemoryKind:
			st.MemorySources++
			st.MemoryBytes += e.mem.Len()
		default:
			continue
		}
		st.References += e.refs
	}
	return st
}
