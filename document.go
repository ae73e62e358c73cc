package deltadoc

import (
	"fmt"
	"io"
	"iter"

	"github.com/guiguan/caster"
	"github.com/npillmayer/deltadoc/chain"
	"github.com/npillmayer/deltadoc/segment"
)

// Document is an editable sequence of bytes, represented as a chain of
// segments over file and memory sources.
//
// Documents are created by New, FromFile, OpenFile or FromBytes, and have to
// be disposed of by calling Dispose, which returns all segments to the
// repository. Operations on a disposed document return ErrDisposed; Size
// reports 0.
//
// A document has a single logical owner. Editing operations must not run
// concurrently with any other operation on the document, but read-only
// operations (ByteAt, ReadRange, Bytes, ReadAt, WriteTo, SaveToStream, Size)
// may run concurrently with each other.
type Document struct {
	repo *segment.Repository
	win  *window
	file segment.FileSource
	opts options
	cast *caster.Caster
	subs map[<-chan interface{}]subscription
}

func newDocument(repo *segment.Repository, o options) *Document {
	repo.CopyDocument()
	return &Document{
		repo: repo,
		win:  newWindow(repo, o.merge),
		opts: o,
	}
}

// New creates an empty document attached to repo. If repo is nil, the
// document gets a repository of its own.
func New(repo *segment.Repository, opts ...Option) *Document {
	if repo == nil {
		repo = segment.NewRepository()
	}
	return newDocument(repo, makeOptions(opts))
}

// FromFile creates a document consisting of a single segment spanning the
// whole of file source f. The file source stays owned by the client and has
// to outlive every document referencing it.
func FromFile(repo *segment.Repository, f segment.FileSource, opts ...Option) (*Document, error) {
	if repo == nil {
		repo = segment.NewRepository()
	}
	id, err := repo.RegisterFile(f)
	if err != nil {
		return nil, err
	}
	o := makeOptions(opts)
	d := newDocument(repo, o)
	d.file = f
	if f.Size() == 0 {
		if err := repo.UnregisterFile(id); err != nil {
			o.trace.Debugf("deltadoc: empty file source stays registered: %v", err)
		}
		return d, nil
	}
	if err := d.linkFile(id, f.Size()); err != nil {
		return nil, err
	}
	return d, nil
}

// OpenFile opens the file at path read-only and creates a document consisting
// of a single segment spanning the whole file. The file is closed as soon as
// no document of repo references it any more.
func OpenFile(repo *segment.Repository, path string, opts ...Option) (*Document, error) {
	if repo == nil {
		repo = segment.NewRepository()
	}
	o := makeOptions(opts)
	id, err := repo.OpenFile(path, o.pageSize)
	if err != nil {
		return nil, err
	}
	f, _ := repo.FileSource(id)
	d := newDocument(repo, o)
	d.file = f
	if f.Size() == 0 {
		if err := repo.UnregisterFile(id); err != nil {
			o.trace.Errorf("deltadoc: closing empty file %q: %v", path, err)
		}
		return d, nil
	}
	if err := d.linkFile(id, f.Size()); err != nil {
		return nil, err
	}
	o.trace.Debugf("deltadoc: opened %q with %d bytes", path, f.Size())
	return d, nil
}

func (d *Document) linkFile(id segment.SourceID, size uint64) error {
	if size == 0 {
		return nil
	}
	seg, err := d.repo.CreateFileSegment(id, 0, size)
	if err != nil {
		d.Dispose()
		return err
	}
	d.win.appendSegments([]segment.Segment{seg})
	return nil
}

// FromBytes creates a document holding a copy of b in a single memory segment.
func FromBytes(repo *segment.Repository, b []byte, opts ...Option) *Document {
	d := New(repo, opts...)
	if len(b) > 0 {
		err := d.win.insert(0, uint64(len(b)), b)
		assert(err == nil, "FromBytes: cannot insert into empty document")
	}
	return d
}

// --- Properties ------------------------------------------------------------

// Size returns the number of bytes in d.
func (d *Document) Size() uint64 {
	if d.win == nil {
		return 0
	}
	return d.win.size
}

// IsEmpty reports whether d holds no bytes.
func (d *Document) IsEmpty() bool {
	return d.Size() == 0
}

// Repository returns the segment repository d is attached to.
func (d *Document) Repository() *segment.Repository {
	return d.repo
}

// File returns the file source associated with d, if any.
func (d *Document) File() segment.FileSource {
	return d.file
}

// SetFile associates d with file source f. This is metadata for clients only
// and does not change the content of d.
func (d *Document) SetFile(f segment.FileSource) {
	d.file = f
}

// --- Reading ---------------------------------------------------------------

// ByteAt returns the byte at position pos.
func (d *Document) ByteAt(pos uint64) (byte, error) {
	if d.win == nil {
		return 0, ErrDisposed
	}
	return d.win.byteAt(pos)
}

// ReadRange copies len(buf) bytes starting at pos into buf. It fails without
// copying anything if the range reaches beyond the end of d.
func (d *Document) ReadRange(pos uint64, buf []byte) error {
	if d.win == nil {
		return ErrDisposed
	}
	return d.win.readRange(pos, buf)
}

// Bytes returns the whole content of d as a flat byte slice.
func (d *Document) Bytes() ([]byte, error) {
	if d.win == nil {
		return nil, ErrDisposed
	}
	buf := make([]byte, d.win.size)
	if err := d.win.readRange(0, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// --- Editing ---------------------------------------------------------------

// Insert inserts a copy of data at position pos. pos == Size() appends.
func (d *Document) Insert(pos uint64, data []byte) error {
	if d.win == nil {
		return ErrDisposed
	}
	if len(data) == 0 {
		if pos > d.win.size {
			return fmt.Errorf("%w: insert position %d, size %d", ErrIndexOutOfBounds, pos, d.win.size)
		}
		return nil
	}
	if err := d.win.insert(pos, uint64(len(data)), data); err != nil {
		return err
	}
	d.publish(Inserted, pos, uint64(len(data)))
	return nil
}

// InsertUninitialized inserts length zero bytes at position pos.
func (d *Document) InsertUninitialized(pos uint64, length uint64) error {
	if d.win == nil {
		return ErrDisposed
	}
	if err := d.win.insert(pos, length, nil); err != nil {
		return err
	}
	if length > 0 {
		d.publish(Inserted, pos, length)
	}
	return nil
}

// InsertDocument inserts the range [srcPos, srcPos+length) of document src at
// position pos of d. Only segment descriptors are copied: file bytes are never
// read, memory bytes are copied into a fresh memory source. src may be d
// itself. Both documents have to share the same repository.
func (d *Document) InsertDocument(pos uint64, src *Document, srcPos, length uint64) error {
	if d.win == nil {
		return ErrDisposed
	}
	if src == nil {
		return fmt.Errorf("%w: source document is nil", ErrIllegalArguments)
	}
	if src.win == nil {
		return fmt.Errorf("%w: source document", ErrDisposed)
	}
	if src.repo != d.repo {
		return fmt.Errorf("%w: documents of different repositories", ErrNotSupported)
	}
	if pos > d.win.size {
		return fmt.Errorf("%w: insert position %d, size %d", ErrIndexOutOfBounds, pos, d.win.size)
	}
	pieces, err := src.win.copySegments(srcPos, length)
	if err != nil {
		return err
	}
	d.win.insertSegments(pos, pieces)
	if length > 0 {
		d.publish(Inserted, pos, length)
	}
	return nil
}

// Append appends the whole content of document src to d.
func (d *Document) Append(src *Document) error {
	if src == nil {
		return fmt.Errorf("%w: source document is nil", ErrIllegalArguments)
	}
	return d.InsertDocument(d.Size(), src, 0, src.Size())
}

// Remove deletes length bytes starting at position pos.
func (d *Document) Remove(pos, length uint64) error {
	if d.win == nil {
		return ErrDisposed
	}
	if err := d.win.remove(pos, length); err != nil {
		return err
	}
	if length > 0 {
		d.publish(Removed, pos, length)
	}
	return nil
}

// SetByte overwrites the byte at position pos. Bytes of file segments are
// never written to; the byte is moved to a memory segment instead.
func (d *Document) SetByte(pos uint64, value byte) error {
	if d.win == nil {
		return ErrDisposed
	}
	if err := d.win.setByte(pos, value); err != nil {
		return err
	}
	d.publish(Modified, pos, 1)
	return nil
}

// Replace overwrites the bytes starting at pos with data. If data reaches
// beyond the end of d, d grows accordingly.
func (d *Document) Replace(pos uint64, data []byte) error {
	if d.win == nil {
		return ErrDisposed
	}
	if pos > d.win.size {
		return fmt.Errorf("%w: replace position %d, size %d", ErrIndexOutOfBounds, pos, d.win.size)
	}
	if len(data) == 0 {
		return nil
	}
	n := min(uint64(len(data)), d.win.size-pos)
	if err := d.win.remove(pos, n); err != nil {
		return err
	}
	if err := d.win.insert(pos, uint64(len(data)), data); err != nil {
		return err
	}
	d.publish(Modified, pos, uint64(len(data)))
	return nil
}

// SetDataSize truncates d to size n, or appends zero bytes to make it n
// bytes long.
func (d *Document) SetDataSize(n uint64) error {
	if d.win == nil {
		return ErrDisposed
	}
	size := d.win.size
	switch {
	case n < size:
		return d.Remove(n, size-n)
	case n > size:
		return d.InsertUninitialized(size, n-size)
	}
	return nil
}

// Clear removes all bytes from d.
func (d *Document) Clear() {
	if d.win == nil {
		return
	}
	d.win.clear()
	d.publish(Reset, 0, 0)
}

// Dispose returns all segments of d to the repository and detaches d from
// it. Subscriptions to change events are closed. Dispose may be called more
// than once.
func (d *Document) Dispose() {
	if d.win == nil {
		return
	}
	d.opts.trace.Debugf("deltadoc: dispose document with %d segments", d.win.chain.Len())
	d.win.clear()
	d.win = nil
	d.repo.DropDocument()
	d.closeSubscriptions()
}

// --- Copying ---------------------------------------------------------------

// Copy creates an independent document with the same content as d, attached
// to the same repository. Subsequent edits of either document do not affect
// the other.
func (d *Document) Copy() (*Document, error) {
	return d.CopyRange(0, d.Size())
}

// CopyRange creates an independent document holding the range
// [pos, pos+length) of d. d itself is not modified.
func (d *Document) CopyRange(pos, length uint64) (*Document, error) {
	if d.win == nil {
		return nil, ErrDisposed
	}
	pieces, err := d.win.copySegments(pos, length)
	if err != nil {
		return nil, err
	}
	cp := newDocument(d.repo, d.opts)
	cp.win.appendSegments(pieces)
	return cp, nil
}

// --- Introspection ---------------------------------------------------------

// SegmentCount returns the number of segments in the chain of d.
func (d *Document) SegmentCount() int {
	if d.win == nil {
		return 0
	}
	return d.win.chain.Len()
}

// RangeSegments returns an iterator over the segments of d, in document order.
// d must not be modified during iteration.
func (d *Document) RangeSegments() iter.Seq[segment.Segment] {
	return func(yield func(segment.Segment) bool) {
		if d.win == nil {
			return
		}
		for _, seg := range d.win.chain.All() {
			if !yield(seg) {
				return
			}
		}
	}
}

// Check validates the internal invariants of d: a well-formed chain without
// zero-length segments, whose lengths add up to Size().
//
// This checker is intended for tests and debugging.
func (d *Document) Check() error {
	if d.win == nil {
		return ErrDisposed
	}
	return d.win.check()
}

// ToDot outputs the segment chain of d in Graphviz DOT format
// (for debugging purposes).
func (d *Document) ToDot(w io.Writer) error {
	if d.win == nil {
		return ErrDisposed
	}
	return chain.ToDot(d.win.chain, w)
}
