package deltadoc

import (
	"fmt"
	"sync"

	"github.com/npillmayer/deltadoc/chain"
	"github.com/npillmayer/deltadoc/segment"
)

// window maps absolute byte positions onto a segment chain and performs the
// chain surgery for all editing operations.
//
// The focus pair (focusPos, focusID) is the last accessed node together with
// its absolute start position. It is a pure performance cache: every
// operation re-derives it through focus(), and any operation restructuring
// the chain leaves it pointing to a valid node. If focusID is chain.Nil,
// focusPos equals the document size.
//
// Readers may run concurrently with each other; they access the focus cache
// through cursor and park only, which hold mu. Mutations never run
// concurrently with anything else and use the cache directly.
type window struct {
	repo     *segment.Repository
	chain    *chain.Chain
	size     uint64
	mu       sync.Mutex // guards focusPos and focusID for readers
	focusPos uint64
	focusID  chain.ID
	merge    bool
}

func newWindow(repo *segment.Repository, merge bool) *window {
	return &window{
		repo:  repo,
		chain: chain.New(),
		merge: merge,
	}
}

func (w *window) seg(id chain.ID) segment.Segment {
	return w.chain.Segment(id)
}

// setFocus points the focus cache to node id starting at pos.
func (w *window) setFocus(pos uint64, id chain.ID) {
	if id == chain.Nil {
		pos = w.size
	}
	w.focusPos, w.focusID = pos, id
}

// focus moves the focus to the segment containing pos. For pos == size the
// focus becomes (size, Nil), the canonical insertion point for appends.
//
// The walk starts at whichever of chain start, current focus or chain end is
// closest to pos, so that the cost is proportional to the chain distance
// between consecutive accesses.
func (w *window) focus(pos uint64) {
	assert(pos <= w.size, "focus: position beyond end of document")
	if pos == w.size {
		w.focusPos, w.focusID = w.size, chain.Nil
		return
	}
	if pos == 0 {
		w.focusPos, w.focusID = 0, w.chain.First()
		assert(w.focusID != chain.Nil, "focus: empty chain for non-empty document")
		return
	}
	if w.focusID == chain.Nil || w.size-pos < distance(pos, w.focusPos) {
		last := w.chain.Last()
		assert(last != chain.Nil, "focus: empty chain for non-empty document")
		w.focusPos, w.focusID = w.size-w.seg(last).Len(), last
	}
	if pos < w.focusPos/2 {
		w.focusPos, w.focusID = 0, w.chain.First()
	}
	for pos < w.focusPos {
		w.focusID = w.chain.Prev(w.focusID)
		assert(w.focusID != chain.Nil, "focus: chain corrupted, ran off start while walking backwards")
		w.focusPos -= w.seg(w.focusID).Len()
	}
	for {
		l := w.seg(w.focusID).Len()
		if pos < w.focusPos+l {
			break
		}
		w.focusPos += l
		w.focusID = w.chain.Next(w.focusID)
		assert(w.focusID != chain.Nil, "focus: chain corrupted, ran off end while walking forward")
	}
}

// cursor returns the start position and node of the segment containing pos,
// moving the focus there.
func (w *window) cursor(pos uint64) (uint64, chain.ID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.focus(pos)
	return w.focusPos, w.focusID
}

// park leaves the focus at node id starting at pos, after a reader walked
// there on its own.
func (w *window) park(pos uint64, id chain.ID) {
	w.mu.Lock()
	w.setFocus(pos, id)
	w.mu.Unlock()
}

func distance(a, b uint64) uint64 {
	if a < b {
		return b - a
	}
	return a - b
}

// splitAt makes pos a segment boundary and returns the node starting at pos,
// which is Nil for pos == size. It is a no-op if pos already is a boundary.
func (w *window) splitAt(pos uint64) chain.ID {
	w.focus(pos)
	if w.focusID == chain.Nil || w.focusPos == pos {
		return w.focusID
	}
	id := w.focusID
	left, right, err := w.repo.SplitSegment(w.seg(id), pos-w.focusPos)
	assert(err == nil, "splitAt: cannot split focused segment")
	w.chain.Set(id, left)
	rid := w.chain.InsertAfter(id, right)
	w.setFocus(pos, rid)
	return rid
}

// tryMerge merges the segments adjacent at boundary pos, if they are
// contiguous regions of the same backing source. Merging is an optimization
// only; it never changes the content of the document.
func (w *window) tryMerge(pos uint64) bool {
	if !w.merge || pos == 0 || pos >= w.size {
		return false
	}
	w.focus(pos)
	right := w.focusID
	if w.focusPos != pos {
		return false // not a boundary
	}
	left := w.chain.Prev(right)
	if left == chain.Nil {
		return false
	}
	lseg := w.seg(left)
	merged, ok := w.repo.MergeSegments(lseg, w.seg(right))
	if !ok {
		return false
	}
	w.chain.Remove(right)
	w.chain.Set(left, merged)
	w.setFocus(pos-lseg.Len(), left)
	return true
}

// --- Reading ---------------------------------------------------------------

func (w *window) byteAt(pos uint64) (byte, error) {
	if pos >= w.size {
		return 0, fmt.Errorf("%w: byte position %d, size %d", ErrIndexOutOfBounds, pos, w.size)
	}
	start, id := w.cursor(pos)
	return w.repo.ByteAt(w.seg(id), pos-start)
}

// readRange copies len(buf) bytes starting at pos into buf.
func (w *window) readRange(pos uint64, buf []byte) error {
	l := uint64(len(buf))
	if pos > w.size || l > w.size-pos {
		return fmt.Errorf("%w: range [%d,%d), size %d", ErrIndexOutOfBounds, pos, pos+l, w.size)
	}
	if l == 0 {
		return nil
	}
	start, id := w.cursor(pos)
	for done := uint64(0); ; {
		assert(id != chain.Nil, "readRange: chain shorter than document size")
		seg := w.seg(id)
		n, err := w.repo.ReadAt(seg, pos+done-start, buf[done:])
		if err != nil {
			return err
		}
		assert(n > 0, "readRange: no progress reading segment")
		if done += uint64(n); done == l {
			w.park(start, id)
			return nil
		}
		start += seg.Len()
		id = w.chain.Next(id)
	}
}

// --- Mutating --------------------------------------------------------------

func (w *window) setByte(pos uint64, value byte) error {
	if pos >= w.size {
		return fmt.Errorf("%w: byte position %d, size %d", ErrIndexOutOfBounds, pos, w.size)
	}
	w.focus(pos)
	if seg := w.seg(w.focusID); seg.IsMemory() {
		return w.repo.SetMemoryByte(seg, pos-w.focusPos, value)
	}
	// isolate the single byte of the file segment
	id := w.splitAt(pos)
	if pos+1 < w.size {
		w.splitAt(pos + 1)
	}
	assert(w.seg(id).Len() == 1, "setByte: cannot isolate byte of file segment")
	if prev := w.chain.Prev(id); prev != chain.Nil && w.repo.CanGrowInPlace(w.seg(prev)) {
		pseg := w.seg(prev)
		grown, err := w.repo.InsertMemoryData(pseg, pseg.Len(), []byte{value})
		if err != nil {
			return err
		}
		w.chain.Set(prev, grown)
		w.repo.DropSegment(w.chain.Remove(id))
		w.setFocus(pos-pseg.Len(), prev)
	} else {
		mseg, err := w.repo.InsertMemoryData(w.repo.NewMemorySegment(), 0, []byte{value})
		if err != nil {
			w.repo.DropSegment(mseg)
			return err
		}
		old := w.seg(id)
		w.chain.Set(id, mseg)
		w.repo.DropSegment(old)
		w.setFocus(pos, id)
	}
	w.tryMerge(pos + 1)
	return nil
}

// insert inserts length bytes at pos. If data is nil, the bytes are zero.
func (w *window) insert(pos uint64, length uint64, data []byte) error {
	if pos > w.size {
		return fmt.Errorf("%w: insert position %d, size %d", ErrIndexOutOfBounds, pos, w.size)
	}
	if length == 0 {
		return nil
	}
	if w.size+length < w.size {
		return fmt.Errorf("%w: document size would overflow", ErrIllegalArguments)
	}
	grow := func(seg segment.Segment, offset uint64) (segment.Segment, error) {
		if data == nil {
			return w.repo.InsertUninitializedMemoryData(seg, offset, length)
		}
		return w.repo.InsertMemoryData(seg, offset, data)
	}
	w.focus(pos)
	// grow a focused memory segment from within
	if w.focusID != chain.Nil && w.focusPos < pos {
		if seg := w.seg(w.focusID); w.repo.CanGrowInPlace(seg) {
			grown, err := grow(seg, pos-w.focusPos)
			if err != nil {
				return err
			}
			w.chain.Set(w.focusID, grown)
			w.size += length
			return nil
		}
	}
	// extend a memory segment ending at pos
	prev := w.chain.Last()
	if w.focusID != chain.Nil {
		prev = chain.Nil
		if w.focusPos == pos {
			prev = w.chain.Prev(w.focusID)
		}
	}
	if prev != chain.Nil {
		if pseg := w.seg(prev); w.repo.CanGrowInPlace(pseg) {
			grown, err := grow(pseg, pseg.Len())
			if err != nil {
				return err
			}
			w.chain.Set(prev, grown)
			w.size += length
			w.setFocus(pos-pseg.Len(), prev)
			return nil
		}
	}
	// link a new memory segment
	mseg, err := grow(w.repo.NewMemorySegment(), 0)
	if err != nil {
		w.repo.DropSegment(mseg)
		return err
	}
	next := w.splitAt(pos)
	nid := w.chain.InsertBefore(next, mseg)
	w.size += length
	w.setFocus(pos, nid)
	return nil
}

// insertSegments splices pieces into the chain at pos. The window takes over
// the pieces' references.
func (w *window) insertSegments(pos uint64, pieces []segment.Segment) {
	assert(pos <= w.size, "insertSegments: position beyond end of document")
	if len(pieces) == 0 {
		return
	}
	next := w.splitAt(pos)
	var total uint64
	first := chain.Nil
	for _, p := range pieces {
		id := w.chain.InsertBefore(next, p)
		if first == chain.Nil {
			first = id
		}
		total += p.Len()
	}
	w.size += total
	w.setFocus(pos, first)
	w.tryMerge(pos + total)
	w.tryMerge(pos)
}

func (w *window) remove(pos, length uint64) error {
	if pos > w.size || length > w.size-pos {
		return fmt.Errorf("%w: range [%d,%d), size %d", ErrIndexOutOfBounds, pos, pos+length, w.size)
	}
	if length == 0 {
		return nil
	}
	first := w.splitAt(pos)
	end := w.splitAt(pos + length)
	for id := first; id != end; {
		assert(id != chain.Nil, "remove: chain ended inside removal range")
		next := w.chain.Next(id)
		w.repo.DropSegment(w.chain.Remove(id))
		id = next
	}
	w.size -= length
	prev := w.chain.Last()
	if end != chain.Nil {
		prev = w.chain.Prev(end)
	}
	if prev == chain.Nil {
		w.setFocus(0, w.chain.First())
	} else {
		w.setFocus(pos-w.seg(prev).Len(), prev)
	}
	w.tryMerge(pos)
	return nil
}

// copySegments returns independent copies of the segments covering
// [pos, pos+length). Consecutive memory pieces are coalesced into a single
// fresh memory source. The caller takes over the references of the copies.
func (w *window) copySegments(pos, length uint64) ([]segment.Segment, error) {
	if pos > w.size || length > w.size-pos {
		return nil, fmt.Errorf("%w: range [%d,%d), size %d", ErrIndexOutOfBounds, pos, pos+length, w.size)
	}
	if length == 0 {
		return nil, nil
	}
	start, id := w.cursor(pos)
	var pieces []segment.Segment
	for length > 0 {
		assert(id != chain.Nil, "copySegments: chain shorter than document size")
		seg := w.seg(id)
		offset := pos - start
		n := min(seg.Len()-offset, length)
		assert(n > 0, "copySegments: no progress copying segment")
		last := len(pieces) - 1
		if seg.IsMemory() && last >= 0 && pieces[last].IsMemory() {
			buf := make([]byte, n)
			if _, err := w.repo.ReadAt(seg, offset, buf); err != nil {
				dropAll(w.repo, pieces)
				return nil, err
			}
			grown, err := w.repo.InsertMemoryData(pieces[last], pieces[last].Len(), buf)
			if err != nil {
				dropAll(w.repo, pieces)
				return nil, err
			}
			pieces[last] = grown
		} else {
			cp, err := w.repo.CopySegmentRange(seg, offset, n)
			if err != nil {
				dropAll(w.repo, pieces)
				return nil, err
			}
			if w.merge && last >= 0 {
				if merged, ok := w.repo.MergeSegments(pieces[last], cp); ok {
					pieces[last] = merged
					cp = segment.Segment{}
				}
			}
			if !cp.IsZero() {
				pieces = append(pieces, cp)
			}
		}
		pos += n
		if length -= n; length == 0 {
			w.park(start, id)
			break
		}
		start += seg.Len()
		id = w.chain.Next(id)
	}
	return pieces, nil
}

func dropAll(repo *segment.Repository, segs []segment.Segment) {
	for _, s := range segs {
		repo.DropSegment(s)
	}
}

// appendSegments links pieces to the end of an empty window.
func (w *window) appendSegments(pieces []segment.Segment) {
	assert(w.chain.IsEmpty(), "appendSegments: window is not empty")
	for _, p := range pieces {
		w.chain.InsertBefore(chain.Nil, p)
		w.size += p.Len()
	}
	w.setFocus(0, w.chain.First())
}

// clear drops every segment and resets the window to an empty chain.
func (w *window) clear() {
	dropAll(w.repo, w.chain.Clear())
	w.size = 0
	w.setFocus(0, chain.Nil)
}

// check validates the window against its chain.
func (w *window) check() error {
	if err := w.chain.Check(); err != nil {
		return err
	}
	if w.chain.Sum() != w.size {
		return fmt.Errorf("deltadoc: size=%d, but chain sums up to %d", w.size, w.chain.Sum())
	}
	return nil
}
