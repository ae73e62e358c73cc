package deltadoc

import (
	"errors"
	"fmt"
	"io"

	"github.com/npillmayer/deltadoc/segment"
)

const streamChunkSize = 32 * 1024

// Reader returns a reader for the bytes of d, starting at position 0.
// The reader also implements io.Seeker. d must not be modified while the
// reader is in use.
func (d *Document) Reader() io.ReadSeeker {
	return &docReader{doc: d}
}

type docReader struct {
	doc    *Document
	cursor uint64
}

func (dr *docReader) Read(p []byte) (n int, err error) {
	size := dr.doc.Size()
	if dr.cursor >= size {
		return 0, io.EOF
	}
	l := min(uint64(len(p)), size-dr.cursor)
	if err = dr.doc.ReadRange(dr.cursor, p[:l]); err != nil {
		return 0, err
	}
	dr.cursor += l
	return int(l), nil
}

func (dr *docReader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(dr.cursor) + offset
	case io.SeekEnd:
		abs = int64(dr.doc.Size()) + offset
	default:
		return 0, fmt.Errorf("%w: invalid whence %d", ErrIllegalArguments, whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("%w: negative position %d", ErrIllegalArguments, abs)
	}
	dr.cursor = uint64(abs)
	return abs, nil
}

// ReadAt implements io.ReaderAt.
func (d *Document) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrIllegalArguments, off)
	}
	size := d.Size()
	if uint64(off) >= size {
		if d.win == nil {
			return 0, ErrDisposed
		}
		return 0, io.EOF
	}
	n := min(uint64(len(p)), size-uint64(off))
	if err := d.win.readRange(uint64(off), p[:n]); err != nil {
		return 0, err
	}
	if n < uint64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

// WriteTo implements io.WriterTo. It writes the content of d to w segment by
// segment.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	if d.win == nil {
		return 0, ErrDisposed
	}
	var total int64
	buf := make([]byte, min(streamChunkSize, d.win.size))
	for _, seg := range d.win.chain.All() {
		for off := uint64(0); off < seg.Len(); {
			n, err := d.repo.ReadAt(seg, off, buf)
			if err != nil {
				return total, err
			}
			m, err := w.Write(buf[:n])
			total += int64(m)
			if err != nil {
				return total, err
			}
			off += uint64(n)
		}
	}
	return total, nil
}

// SaveToStream writes the content of d to w.
func (d *Document) SaveToStream(w io.Writer) error {
	_, err := d.WriteTo(w)
	return err
}

// LoadFromStream replaces the content of d by all bytes read from r, which
// are held in a single memory segment. If reading fails, d is left
// unchanged.
func (d *Document) LoadFromStream(r io.Reader) error {
	if d.win == nil {
		return ErrDisposed
	}
	seg := d.repo.NewMemorySegment()
	buf := make([]byte, streamChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			var e error
			if seg, e = d.repo.InsertMemoryData(seg, seg.Len(), buf[:n]); e != nil {
				d.repo.DropSegment(seg)
				return e
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			d.repo.DropSegment(seg)
			return err
		}
	}
	d.win.clear()
	if seg.Len() > 0 {
		d.win.appendSegments([]segment.Segment{seg})
	} else {
		d.repo.DropSegment(seg)
	}
	d.opts.trace.Debugf("deltadoc: loaded %d bytes from stream", d.win.size)
	d.publish(Reset, 0, d.win.size)
	return nil
}
