package segment

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// DefaultPageSize is the size of the read cache of a File, in bytes.
const DefaultPageSize = 4096

// FileSource is a read-only view of an original file.
//
// File sources are owned by the client and never mutated by documents.
// Implementations have to be comparable (usually pointer types), as the
// repository identifies a file source by its interface value.
type FileSource interface {
	io.ReaderAt
	Size() uint64
}

// --- OS files --------------------------------------------------------------

// File is a FileSource backed by an OS file opened for reading.
//
// File keeps the most recently read page in memory, as editors tend to read
// bytes in close vicinity of each other. Reads go through ReadAt and may
// therefore block on I/O. ReadAt may be called concurrently.
type File struct {
	path     string
	info     os.FileInfo
	file     *os.File
	pageSize int64
	mu       sync.Mutex // guards page and pageAt
	page     []byte     // cached page
	pageAt   int64      // file offset of cached page, -1 if none
}

var _ FileSource = (*File)(nil)

// OpenFile opens an OS file for read access and collects some useful
// information on it, checking for error conditions. pageSize may be 0,
// selecting DefaultPageSize.
func OpenFile(name string, pageSize int) (*File, error) {
	fi, err := os.Stat(name)
	if err != nil {
		return nil, err
	} else if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegularFile, name)
	}
	file, err := os.Open(name) // just open for read access
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	tracer().Debugf("segment: opened file %q with %d bytes", name, fi.Size())
	return &File{
		path:     name,
		info:     fi,
		file:     file,
		pageSize: int64(pageSize),
		pageAt:   -1,
	}, nil
}

// Path returns the file name f has been opened with.
func (f *File) Path() string {
	return f.path
}

// Size returns the size of the file at the time it has been opened.
func (f *File) Size() uint64 {
	return uint64(f.info.Size())
}

// ReadAt is part of interface io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.file == nil {
		return 0, os.ErrClosed
	}
	if off < 0 {
		return 0, ErrIndexOutOfBounds
	}
	if len(p) == 1 { // single byte reads are served from the page cache
		f.mu.Lock()
		defer f.mu.Unlock()
		if err := f.loadPage(off); err != nil {
			return 0, err
		}
		inPage := off - f.pageAt
		if inPage >= int64(len(f.page)) {
			return 0, io.EOF
		}
		p[0] = f.page[inPage]
		return 1, nil
	}
	return f.file.ReadAt(p, off)
}

func (f *File) loadPage(off int64) error {
	start := off / f.pageSize * f.pageSize
	if f.pageAt == start && f.page != nil {
		return nil
	}
	if f.page == nil {
		f.page = make([]byte, f.pageSize)
	}
	f.page = f.page[:cap(f.page)]
	n, err := f.file.ReadAt(f.page, start)
	if err != nil && err != io.EOF {
		f.pageAt = -1
		return fmt.Errorf("segment: cannot read page at %d: %w", start, err)
	}
	f.page = f.page[:n]
	f.pageAt = start
	return nil
}

// Close releases the OS file handle.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	f.page = nil
	f.pageAt = -1
	return err
}

// --- Byte slices as files --------------------------------------------------

// BytesFile is a read-only FileSource over a byte slice.
// It is useful for tests and for documents seeded from literal data.
type BytesFile struct {
	data []byte
}

var _ FileSource = (*BytesFile)(nil)

// NewBytesFile creates a file source holding a copy of b.
func NewBytesFile(b []byte) *BytesFile {
	return &BytesFile{data: append([]byte(nil), b...)}
}

// Size returns the number of bytes of the file source.
func (bf *BytesFile) Size() uint64 {
	return uint64(len(bf.data))
}

// ReadAt is part of interface io.ReaderAt.
func (bf *BytesFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrIndexOutOfBounds
	}
	if off >= int64(len(bf.data)) {
		return 0, io.EOF
	}
	n := copy(p, bf.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// --- Memory sources --------------------------------------------------------

// MemorySource is a growable byte buffer. Memory sources are owned by a
// Repository; clients get read access only.
type MemorySource struct {
	data []byte
}

// Len returns the number of bytes in the memory source.
func (ms *MemorySource) Len() uint64 {
	return uint64(len(ms.data))
}

// ByteAt returns the byte at offset off.
func (ms *MemorySource) ByteAt(off uint64) (byte, error) {
	if off >= uint64(len(ms.data)) {
		return 0, ErrIndexOutOfBounds
	}
	return ms.data[off], nil
}

// ReadAt is part of interface io.ReaderAt.
func (ms *MemorySource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrIndexOutOfBounds
	}
	if off >= int64(len(ms.data)) {
		return 0, io.EOF
	}
	n := copy(p, ms.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (ms *MemorySource) setByte(off uint64, value byte) error {
	if off >= uint64(len(ms.data)) {
		return ErrIndexOutOfBounds
	}
	ms.data[off] = value
	return nil
}

// insert opens a gap of length n at off and copies data into it, if present.
// The gap is zero-filled when data is nil.
func (ms *MemorySource) insert(off uint64, n uint64, data []byte) error {
	if off > uint64(len(ms.data)) {
		return ErrIndexOutOfBounds
	}
	if n == 0 {
		return nil
	}
	l := uint64(len(ms.data))
	if l+n < l {
		return fmt.Errorf("%w: memory source would overflow", ErrIllegalArguments)
	}
	ms.data = append(ms.data, make([]byte, n)...)
	copy(ms.data[off+n:], ms.data[off:l])
	gap := ms.data[off : off+n]
	if data != nil {
		copy(gap, data)
	} else {
		clear(gap)
	}
	return nil
}

func (ms *MemorySource) release() {
	ms.data = nil
}
