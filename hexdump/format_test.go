package hexdump

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/npillmayer/deltadoc"
	"github.com/npillmayer/deltadoc/segment"
	"github.com/npillmayer/schuko/tracing/gotestingadapter"
)

func plain() *color.Color {
	c := color.New(color.FgRed)
	c.DisableColor()
	return c
}

func TestFormatLayout(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "deltadoc")
	defer teardown()
	//
	doc := deltadoc.FromBytes(nil, []byte("Hello, World!!!!AB"))
	defer doc.Dispose()
	var buf bytes.Buffer
	if err := Format(&buf, doc, &Options{Highlight: plain()}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(buf.String(), "\n")
	if len(lines) != 4 || lines[3] != "" {
		t.Fatalf("expected 3 lines of output, have:\n%s", buf.String())
	}
	first := "00000000  48 65 6c 6c 6f 2c 20 57  6f 72 6c 64 21 21 21 21  |Hello, World!!!!|"
	if lines[0] != first {
		t.Errorf("unexpected first line\nhave %q\nwant %q", lines[0], first)
	}
	if !strings.HasPrefix(lines[1], "00000010  41 42 ") || !strings.HasSuffix(lines[1], " |AB|") {
		t.Errorf("unexpected second line %q", lines[1])
	}
	if len(lines[1]) != len(lines[0])-14 {
		t.Errorf("hex columns of short line not padded: %q", lines[1])
	}
	if lines[2] != "00000012" {
		t.Errorf("expected trailing offset, have %q", lines[2])
	}
}

func TestFormatRange(t *testing.T) {
	doc := deltadoc.FromBytes(nil, []byte("0123456789abcdef"))
	defer doc.Dispose()
	var buf bytes.Buffer
	if err := Format(&buf, doc, &Options{Width: 8, From: 4, Length: 3, Highlight: plain()}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "00000004  34 35 36 ") || !strings.Contains(buf.String(), "|456|") {
		t.Errorf("unexpected range dump:\n%s", buf.String())
	}
	err := Format(&buf, doc, &Options{From: 17})
	if !errors.Is(err, deltadoc.ErrIndexOutOfBounds) {
		t.Errorf("expected out of bounds error, got %v", err)
	}
}

func TestFormatHighlightsEditedBytes(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "deltadoc")
	defer teardown()
	//
	repo := segment.NewRepository()
	doc, err := deltadoc.FromFile(repo, segment.NewBytesFile([]byte("abcdefgh")))
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Dispose()
	if err = doc.SetByte(1, 'X'); err != nil {
		t.Fatal(err)
	}
	red := color.New(color.FgRed)
	red.EnableColor()
	var buf bytes.Buffer
	if err = Format(&buf, doc, &Options{Highlight: red}); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "\x1b[31m"); n != 2 {
		t.Errorf("expected edited byte to be highlighted in hex and ASCII column, found %d highlights:\n%q",
			n, buf.String())
	}
	if !strings.Contains(buf.String(), "61 ") || !strings.Contains(buf.String(), "58") {
		t.Errorf("unexpected dump content:\n%q", buf.String())
	}
}

func TestWidthForColumns(t *testing.T) {
	for _, tc := range []struct {
		columns, width int
	}{
		{20, 8}, {80, 16}, {120, 24}, {160, 32},
	} {
		if w := WidthForColumns(tc.columns); w != tc.width {
			t.Errorf("%d columns: expected width %d, got %d", tc.columns, tc.width, w)
		}
	}
}
