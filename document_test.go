package deltadoc

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/npillmayer/deltadoc/segment"
	"github.com/npillmayer/schuko/tracing/gotestingadapter"
)

func digits() []byte {
	return []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
}

func fileDocument(t *testing.T, repo *segment.Repository, content []byte, opts ...Option) *Document {
	t.Helper()
	doc, err := FromFile(repo, segment.NewBytesFile(content), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func contentOf(t *testing.T, doc *Document) []byte {
	t.Helper()
	b, err := doc.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func checkContent(t *testing.T, doc *Document, expected []byte) {
	t.Helper()
	if err := doc.Check(); err != nil {
		t.Fatalf("inconsistent document: %v", err)
	}
	if doc.Size() != uint64(len(expected)) {
		t.Fatalf("expected size %d, have %d", len(expected), doc.Size())
	}
	if diff := cmp.Diff(expected, contentOf(t, doc)); diff != "" {
		t.Fatalf("document content mismatch (-want +have):\n%s", diff)
	}
}

func segmentsOf(doc *Document) []string {
	var segs []string
	for seg := range doc.RangeSegments() {
		segs = append(segs, seg.String())
	}
	return segs
}

// --- Scenarios -------------------------------------------------------------

func TestInsertIntoFileDocument(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "deltadoc")
	defer teardown()
	//
	repo := segment.NewRepository()
	doc := fileDocument(t, repo, digits())
	defer doc.Dispose()
	if err := doc.Insert(5, []byte{0xAA, 0xBB}); err != nil {
		t.Fatal(err)
	}
	checkContent(t, doc, []byte{0, 1, 2, 3, 4, 0xAA, 0xBB, 5, 6, 7, 8, 9})
	if doc.SegmentCount() != 3 {
		t.Errorf("expected file/memory/file segments, have %v", segmentsOf(doc))
	}
	if err := doc.Remove(5, 2); err != nil {
		t.Fatal(err)
	}
	checkContent(t, doc, digits())
	if doc.SegmentCount() != 1 {
		t.Errorf("expected file parts to merge after removal, have %v", segmentsOf(doc))
	}
	if st := repo.Stats(); st.MemorySources != 0 {
		t.Errorf("expected memory source of removed bytes to be released, have %+v", st)
	}
}

func TestSetByteOnFileDocument(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "deltadoc")
	defer teardown()
	//
	doc := fileDocument(t, nil, digits())
	defer doc.Dispose()
	if err := doc.SetByte(0, 0xFF); err != nil {
		t.Fatal(err)
	}
	if b, err := doc.ByteAt(0); err != nil || b != 0xFF {
		t.Errorf("expected 0xFF at position 0, have %#x (%v)", b, err)
	}
	if b, err := doc.ByteAt(1); err != nil || b != 1 {
		t.Errorf("expected byte 1 at position 1 unchanged, have %#x (%v)", b, err)
	}
	// overwriting consecutive file bytes extends the memory segment
	for i := uint64(1); i < 4; i++ {
		if err := doc.SetByte(i, byte(0xF0+i)); err != nil {
			t.Fatal(err)
		}
	}
	checkContent(t, doc, []byte{0xFF, 0xF1, 0xF2, 0xF3, 4, 5, 6, 7, 8, 9})
	if doc.SegmentCount() != 2 {
		t.Errorf("expected memory/file segments, have %v", segmentsOf(doc))
	}
	// overwriting in the middle of a file segment
	if err := doc.SetByte(7, 0x77); err != nil {
		t.Fatal(err)
	}
	checkContent(t, doc, []byte{0xFF, 0xF1, 0xF2, 0xF3, 4, 5, 6, 0x77, 8, 9})
	// overwriting memory bytes happens in place
	n := doc.SegmentCount()
	if err := doc.SetByte(7, 0x78); err != nil {
		t.Fatal(err)
	}
	if doc.SegmentCount() != n {
		t.Errorf("overwriting an edited byte should not change the chain, have %v", segmentsOf(doc))
	}
}

func TestCopyRangeIsIndependent(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "deltadoc")
	defer teardown()
	//
	doc := New(nil)
	defer doc.Dispose()
	if err := doc.Insert(0, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	cp, err := doc.CopyRange(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer cp.Dispose()
	checkContent(t, cp, []byte{2})
	if err = doc.SetByte(1, 9); err != nil {
		t.Fatal(err)
	}
	checkContent(t, cp, []byte{2})
	checkContent(t, doc, []byte{1, 9, 3})
	if doc.Repository().Documents() != 2 {
		t.Errorf("expected 2 documents attached to repository, have %d", doc.Repository().Documents())
	}
}

// --- Properties ------------------------------------------------------------

func TestEditsAgainstFlatModel(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "deltadoc")
	defer teardown()
	//
	for _, seed := range []int64{1, 7, 42, 4711} {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			runAgainstModel(t, seed)
		})
		t.Run(fmt.Sprintf("seed=%d/no-merge", seed), func(t *testing.T) {
			runAgainstModel(t, seed, WithMergeDisabled())
		})
	}
}

func runAgainstModel(t *testing.T, seed int64, opts ...Option) {
	rnd := rand.New(rand.NewSource(seed))
	randomBytes := func(n int) []byte {
		b := make([]byte, n)
		rnd.Read(b)
		return b
	}
	repo := segment.NewRepository()
	model := randomBytes(300)
	doc := fileDocument(t, repo, model, opts...)
	model = bytes.Clone(model)
	for step := 0; step < 600; step++ {
		var err error
		var op string
		size := len(model)
		switch rnd.Intn(7) {
		case 0:
			op = "insert"
			pos, data := rnd.Intn(size+1), randomBytes(1+rnd.Intn(8))
			err = doc.Insert(uint64(pos), data)
			model = slices.Insert(model, pos, data...)
		case 1:
			if size == 0 {
				continue
			}
			op = "remove"
			pos := rnd.Intn(size)
			n := rnd.Intn(min(24, size-pos) + 1)
			err = doc.Remove(uint64(pos), uint64(n))
			model = slices.Delete(model, pos, pos+n)
		case 2, 3:
			if size == 0 {
				continue
			}
			op = "setByte"
			pos, b := rnd.Intn(size), byte(rnd.Intn(256))
			err = doc.SetByte(uint64(pos), b)
			model[pos] = b
			if have, e := doc.ByteAt(uint64(pos)); e != nil || have != b {
				t.Fatalf("step %d: read back %#x at %d, expected %#x (%v)", step, have, pos, b, e)
			}
		case 4:
			op = "insertUninitialized"
			pos, n := rnd.Intn(size+1), 1+rnd.Intn(4)
			err = doc.InsertUninitialized(uint64(pos), uint64(n))
			model = slices.Insert(model, pos, make([]byte, n)...)
		case 5:
			op = "replace"
			pos, data := rnd.Intn(size+1), randomBytes(1+rnd.Intn(6))
			err = doc.Replace(uint64(pos), data)
			if pos+len(data) > size {
				model = append(model[:pos], data...)
			} else {
				copy(model[pos:], data)
			}
		case 6:
			op = "insertDocument"
			src := rnd.Intn(size + 1)
			n := rnd.Intn(min(40, size-src) + 1)
			pos := rnd.Intn(size + 1)
			err = doc.InsertDocument(uint64(pos), doc, uint64(src), uint64(n))
			model = slices.Insert(model, pos, bytes.Clone(model[src:src+n])...)
		}
		if err != nil {
			t.Fatalf("step %d: %s failed: %v", step, op, err)
		}
		if err = doc.Check(); err != nil {
			t.Fatalf("step %d: after %s: %v", step, op, err)
		}
		if doc.Size() != uint64(len(model)) {
			t.Fatalf("step %d: after %s: size %d, model has %d bytes", step, op, doc.Size(), len(model))
		}
		if len(model) > 0 {
			pos := rnd.Intn(len(model))
			if b, e := doc.ByteAt(uint64(pos)); e != nil || b != model[pos] {
				t.Fatalf("step %d: after %s: byte at %d is %#x, model has %#x", step, op, pos, b, model[pos])
			}
		}
		if step%50 == 0 {
			checkContent(t, doc, model)
		}
	}
	checkContent(t, doc, model)
	doc.Dispose()
	if st := repo.Stats(); st.References != 0 || st.MemorySources != 0 || st.FileSources != 0 {
		t.Errorf("expected all sources to be released after dispose, have %+v", st)
	}
}

func TestInsertRemoveInverse(t *testing.T) {
	repo := segment.NewRepository()
	doc := fileDocument(t, repo, digits())
	defer doc.Dispose()
	if err := doc.SetByte(3, 0x33); err != nil { // mix in a memory segment
		t.Fatal(err)
	}
	before := contentOf(t, doc)
	for p := uint64(0); p <= doc.Size(); p++ {
		if err := doc.Insert(p, []byte("xyz")); err != nil {
			t.Fatal(err)
		}
		if err := doc.Remove(p, 3); err != nil {
			t.Fatal(err)
		}
		checkContent(t, doc, before)
	}
}

func TestInsertDocumentAcrossSegmentKinds(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "deltadoc")
	defer teardown()
	//
	repo := segment.NewRepository()
	a := fileDocument(t, repo, []byte("abcdefghij"))
	defer a.Dispose()
	if err := a.Insert(4, []byte("1234")); err != nil {
		t.Fatal(err)
	}
	if err := a.SetByte(10, 'X'); err != nil {
		t.Fatal(err)
	}
	// a = "abcd1234efXhij", with segments file/memory/file/memory/file
	b := FromBytes(repo, []byte("<>"))
	defer b.Dispose()
	if err := b.InsertDocument(1, a, 2, 10); err != nil {
		t.Fatal(err)
	}
	checkContent(t, b, []byte("<cd1234efXh>"))
	// the inserted range is independent of its source
	if err := a.Remove(0, a.Size()); err != nil {
		t.Fatal(err)
	}
	checkContent(t, b, []byte("<cd1234efXh>"))
	if err := b.Append(b); err != nil {
		t.Fatal(err)
	}
	checkContent(t, b, []byte("<cd1234efXh><cd1234efXh>"))
	// ranges outside of the source are rejected
	if err := b.InsertDocument(0, a, 0, 1); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Errorf("expected out of bounds error for empty source, have %v", err)
	}
}

func TestInsertDocumentOfOtherRepository(t *testing.T) {
	a := FromBytes(nil, []byte("abc"))
	defer a.Dispose()
	b := FromBytes(nil, []byte("xyz"))
	defer b.Dispose()
	if err := b.InsertDocument(0, a, 0, 3); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, have %v", err)
	}
	checkContent(t, b, []byte("xyz"))
}

func TestMergeIsTransparent(t *testing.T) {
	edit := func(t *testing.T, opts ...Option) *Document {
		doc := fileDocument(t, nil, digits(), opts...)
		for i, b := range []byte("typed") { // contiguous single-byte inserts
			if err := doc.Insert(uint64(5+i), []byte{b}); err != nil {
				t.Fatal(err)
			}
		}
		if err := doc.Remove(5, 5); err != nil {
			t.Fatal(err)
		}
		if err := doc.InsertDocument(3, doc, 3, 4); err != nil {
			t.Fatal(err)
		}
		return doc
	}
	merged := edit(t)
	defer merged.Dispose()
	unmerged := edit(t, WithMergeDisabled())
	defer unmerged.Dispose()
	if diff := cmp.Diff(contentOf(t, unmerged), contentOf(t, merged)); diff != "" {
		t.Errorf("merging changed the document content (-unmerged +merged):\n%s", diff)
	}
	if merged.SegmentCount() >= unmerged.SegmentCount() {
		t.Errorf("expected merging to reduce segments, have %v vs. %v",
			segmentsOf(merged), segmentsOf(unmerged))
	}
	if merged.SegmentCount() != 2 {
		t.Errorf("expected 2 file segments after merging, have %v", segmentsOf(merged))
	}
}

func TestOutOfBoundsLeavesDocumentUntouched(t *testing.T) {
	doc := fileDocument(t, nil, digits())
	defer doc.Dispose()
	if err := doc.Insert(4, []byte("ab")); err != nil {
		t.Fatal(err)
	}
	segs, content := segmentsOf(doc), contentOf(t, doc)
	size := doc.Size()
	for name, op := range map[string]func() error{
		"ByteAt":      func() error { _, err := doc.ByteAt(size); return err },
		"SetByte":     func() error { return doc.SetByte(size, 1) },
		"Insert":      func() error { return doc.Insert(size+1, []byte{1}) },
		"InsertEmpty": func() error { return doc.Insert(size+1, nil) },
		"Remove":      func() error { return doc.Remove(size-2, 3) },
		"RemoveAt":    func() error { return doc.Remove(size+1, 0) },
		"Replace":     func() error { return doc.Replace(size+1, []byte{1}) },
		"ReadRange":   func() error { return doc.ReadRange(size-1, make([]byte, 2)) },
		"CopyRange":   func() error { _, err := doc.CopyRange(1, size); return err },
		"InsertDoc":   func() error { return doc.InsertDocument(size+1, doc, 0, 1) },
	} {
		if err := op(); !errors.Is(err, ErrIndexOutOfBounds) {
			t.Errorf("%s: expected ErrIndexOutOfBounds, have %v", name, err)
		}
		if diff := cmp.Diff(segs, segmentsOf(doc)); diff != "" {
			t.Errorf("%s: chain changed (-want +have):\n%s", name, diff)
		}
	}
	checkContent(t, doc, content)
}

func TestSetDataSizeAndClear(t *testing.T) {
	doc := fileDocument(t, nil, digits())
	defer doc.Dispose()
	if err := doc.SetDataSize(4); err != nil {
		t.Fatal(err)
	}
	checkContent(t, doc, []byte{0, 1, 2, 3})
	if err := doc.SetDataSize(6); err != nil {
		t.Fatal(err)
	}
	checkContent(t, doc, []byte{0, 1, 2, 3, 0, 0})
	if err := doc.SetDataSize(6); err != nil {
		t.Fatal(err)
	}
	doc.Clear()
	if !doc.IsEmpty() || doc.SegmentCount() != 0 {
		t.Errorf("expected empty document after Clear, have %v", segmentsOf(doc))
	}
	checkContent(t, doc, []byte{})
	if err := doc.Insert(0, []byte("new")); err != nil {
		t.Fatal(err)
	}
	checkContent(t, doc, []byte("new"))
}

func TestReplaceGrowsAtTail(t *testing.T) {
	doc := fileDocument(t, nil, []byte("abcdef"))
	defer doc.Dispose()
	if err := doc.Replace(1, []byte("XY")); err != nil {
		t.Fatal(err)
	}
	checkContent(t, doc, []byte("aXYdef"))
	if err := doc.Replace(4, []byte("1234")); err != nil {
		t.Fatal(err)
	}
	checkContent(t, doc, []byte("aXYd1234"))
	if err := doc.Replace(doc.Size(), []byte("!")); err != nil {
		t.Fatal(err)
	}
	checkContent(t, doc, []byte("aXYd1234!"))
}

func TestDisposeReleasesSegments(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "deltadoc")
	defer teardown()
	//
	repo := segment.NewRepository()
	doc := fileDocument(t, repo, digits())
	if err := doc.Insert(3, []byte("abc")); err != nil {
		t.Fatal(err)
	}
	cp, err := doc.Copy()
	if err != nil {
		t.Fatal(err)
	}
	doc.Dispose()
	doc.Dispose() // no-op
	if _, err = doc.ByteAt(0); !errors.Is(err, ErrDisposed) {
		t.Errorf("expected ErrDisposed, have %v", err)
	}
	if err = doc.Insert(0, []byte{1}); !errors.Is(err, ErrDisposed) {
		t.Errorf("expected ErrDisposed, have %v", err)
	}
	if err = cp.Append(doc); !errors.Is(err, ErrDisposed) {
		t.Errorf("expected ErrDisposed for disposed source, have %v", err)
	}
	if doc.Size() != 0 || doc.SegmentCount() != 0 {
		t.Errorf("disposed document should report size 0")
	}
	// the copy is still intact
	checkContent(t, cp, []byte{0, 1, 2, 'a', 'b', 'c', 3, 4, 5, 6, 7, 8, 9})
	st := repo.Stats()
	if st.Documents != 1 || st.FileSources != 1 || st.MemorySources != 1 {
		t.Errorf("unexpected repository state with one live copy: %+v", st)
	}
	cp.Dispose()
	if st = repo.Stats(); st != (segment.Stats{}) {
		t.Errorf("expected empty repository, have %+v", st)
	}
}

func TestFromEmptyFileSource(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "deltadoc")
	defer teardown()
	//
	repo := segment.NewRepository()
	f := segment.NewBytesFile(nil)
	doc, err := FromFile(repo, f)
	if err != nil {
		t.Fatal(err)
	}
	if !doc.IsEmpty() || doc.File() != f {
		t.Errorf("expected empty document associated with its file source")
	}
	if st := repo.Stats(); st.FileSources != 0 {
		t.Errorf("expected empty file source not to stay registered, have %+v", st)
	}
	if err = doc.Insert(0, []byte("x")); err != nil {
		t.Fatal(err)
	}
	doc.Dispose()
	if st := repo.Stats(); st != (segment.Stats{}) {
		t.Errorf("expected repository to be empty after dispose, have %+v", st)
	}
}

func TestConcurrentReads(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "deltadoc")
	defer teardown()
	//
	rnd := rand.New(rand.NewSource(99))
	content := make([]byte, 100*1024)
	rnd.Read(content)
	name := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(name, content, 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := OpenFile(nil, name, WithFilePageSize(512))
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Dispose()
	model := bytes.Clone(content)
	for i := 0; i < 200; i++ {
		pos := rnd.Intn(len(model))
		switch i % 3 {
		case 0:
			if err = doc.SetByte(uint64(pos), byte(i)); err != nil {
				t.Fatal(err)
			}
			model[pos] = byte(i)
		case 1:
			data := []byte(fmt.Sprintf("<%d>", i))
			if err = doc.Insert(uint64(pos), data); err != nil {
				t.Fatal(err)
			}
			model = slices.Insert(model, pos, data...)
		case 2:
			n := min(rnd.Intn(50), len(model)-pos)
			if err = doc.Remove(uint64(pos), uint64(n)); err != nil {
				t.Fatal(err)
			}
			model = slices.Delete(model, pos, pos+n)
		}
	}
	if doc.SegmentCount() < 50 {
		t.Fatalf("expected a fragmented document, have %d segments", doc.SegmentCount())
	}
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			buf := make([]byte, 64)
			for i := 0; i < 2000; i++ {
				pos := rnd.Intn(len(model) - len(buf))
				if i%10 == 0 {
					if err := doc.ReadRange(uint64(pos), buf); err != nil {
						t.Error(err)
						return
					}
					if !bytes.Equal(buf, model[pos:pos+len(buf)]) {
						t.Errorf("range at %d differs from model", pos)
						return
					}
					continue
				}
				b, err := doc.ByteAt(uint64(pos))
				if err != nil {
					t.Error(err)
					return
				}
				if b != model[pos] {
					t.Errorf("byte at %d: expected %d, have %d", pos, model[pos], b)
					return
				}
			}
		}(int64(g))
	}
	wg.Wait()
	checkContent(t, doc, model)
}
