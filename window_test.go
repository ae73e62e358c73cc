package deltadoc

import (
	"math/rand"
	"testing"

	"github.com/npillmayer/deltadoc/chain"
	"github.com/npillmayer/deltadoc/segment"
)

// focusValid checks that the focus cache denotes a node of the chain together
// with its true start position.
func focusValid(t *testing.T, w *window) {
	t.Helper()
	if w.focusID == chain.Nil {
		if w.focusPos != w.size {
			t.Fatalf("focus at end must have position %d, has %d", w.size, w.focusPos)
		}
		return
	}
	var pos uint64
	for id, seg := range w.chain.All() {
		if id == w.focusID {
			if pos != w.focusPos {
				t.Fatalf("focus node %d starts at %d, focus says %d", id, pos, w.focusPos)
			}
			return
		}
		pos += seg.Len()
	}
	t.Fatalf("focus node %d is not part of the chain", w.focusID)
}

func TestFocusFollowsEdits(t *testing.T) {
	repo := segment.NewRepository()
	src, err := repo.RegisterFile(segment.NewBytesFile(make([]byte, 64)))
	if err != nil {
		t.Fatal(err)
	}
	w := newWindow(repo, true)
	var segs []segment.Segment
	for i := 7; i >= 0; i-- { // blocks in reverse order never merge
		seg, err := repo.CreateFileSegment(src, uint64(i)*8, 8)
		if err != nil {
			t.Fatal(err)
		}
		segs = append(segs, seg)
	}
	w.appendSegments(segs)
	focusValid(t, w)
	rnd := rand.New(rand.NewSource(99))
	for step := 0; step < 300; step++ {
		pos := uint64(rnd.Intn(int(w.size) + 1))
		switch rnd.Intn(4) {
		case 0:
			w.focus(pos)
		case 1:
			if pos < w.size {
				_, _ = w.byteAt(pos)
			}
		case 2:
			_ = w.insert(pos, 2, []byte{1, 2})
		case 3:
			_ = w.remove(pos, min(3, w.size-pos))
		}
		focusValid(t, w)
		if err := w.check(); err != nil {
			t.Fatal(err)
		}
	}
	w.clear()
	focusValid(t, w)
	if st := repo.Stats(); st.References != 0 {
		t.Errorf("expected all references to be dropped, have %+v", st)
	}
}

func TestFocusOnSegmentBoundaries(t *testing.T) {
	repo := segment.NewRepository()
	src, _ := repo.RegisterFile(segment.NewBytesFile(make([]byte, 30)))
	w := newWindow(repo, false)
	var segs []segment.Segment
	for i := uint64(0); i < 3; i++ {
		seg, err := repo.CreateFileSegment(src, i*10, 10)
		if err != nil {
			t.Fatal(err)
		}
		segs = append(segs, seg)
	}
	w.appendSegments(segs)
	for _, tc := range []struct {
		pos, start uint64
	}{
		{25, 20}, {20, 20}, {19, 10}, {0, 0}, {10, 10}, {9, 0}, {29, 20},
	} {
		w.focus(tc.pos)
		if w.focusPos != tc.start || w.seg(w.focusID).Start() != tc.start {
			t.Errorf("focus(%d): expected segment starting at %d, have %d", tc.pos, tc.start, w.focusPos)
		}
	}
	w.focus(30)
	if w.focusID != chain.Nil {
		t.Errorf("focus at end of document should be Nil")
	}
	if id := w.splitAt(15); w.seg(id).Start() != 15 || w.chain.Len() != 4 {
		t.Errorf("expected split at 15, chain has %d segments", w.chain.Len())
	}
	if id := w.splitAt(15); w.chain.Len() != 4 || w.seg(id).Start() != 15 {
		t.Errorf("splitting at a boundary must not change the chain")
	}
	w.clear()
}
