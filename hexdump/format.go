/*
Package hexdump renders delta documents as classic hex dumps for consoles.

Every line shows an offset, the hex values of the bytes, and their printable
ASCII representation. Bytes held in memory segments, i.e. bytes which have
been edited since the document was loaded, are highlighted.

# BSD License

Copyright (c) Norbert Pillmayer <norbert@pillmayer.com>

Please refer to the License file for details.
*/
package hexdump

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/npillmayer/deltadoc"
	"github.com/npillmayer/schuko/tracing"
	"golang.org/x/term"
)

// tracer writes to trace with key 'deltadoc'
func tracer() tracing.Trace {
	return tracing.Select("deltadoc")
}

// DefaultWidth is the number of bytes per line for non-terminal output.
const DefaultWidth = 16

// Options control the layout of a hex dump.
type Options struct {
	Width     int          // bytes per line; values <= 0 select DefaultWidth
	From      uint64       // first byte position to dump
	Length    uint64       // number of bytes to dump; 0 dumps up to the end
	Highlight *color.Color // color for edited bytes; nil selects a default
}

func (opts *Options) width() int {
	if opts == nil || opts.Width <= 0 {
		return DefaultWidth
	}
	return opts.Width
}

func (opts *Options) highlight() *color.Color {
	if opts == nil || opts.Highlight == nil {
		return color.New(color.FgRed, color.Bold)
	}
	return opts.Highlight
}

// OptionsFromTerminal creates options with a line width fitted to the terminal
// attached to file descriptor fd. If fd is not a terminal, Width is set to
// DefaultWidth.
func OptionsFromTerminal(fd int) *Options {
	opts := &Options{Width: DefaultWidth}
	if term.IsTerminal(fd) {
		if w, _, err := term.GetSize(fd); err == nil {
			opts.Width = WidthForColumns(w)
		}
	}
	tracer().P("format", "hexdump").Debugf("setting line width to %d bytes", opts.Width)
	return opts
}

// WidthForColumns returns the largest multiple of 8 bytes per line which fits
// into a terminal of the given number of columns, but at least 8.
func WidthForColumns(columns int) int {
	// offset (8 digits), 2 spaces, then per byte 3 columns hex + 1 column ASCII,
	// plus one extra space per 8-byte group and 2 spaces before the ASCII part
	w := 8
	for next := w + 8; 10+next*4+next/8+2 <= columns; next += 8 {
		w = next
	}
	return w
}

// Print writes a hex dump of doc to stdout, fitting lines to the terminal.
func Print(doc *deltadoc.Document) error {
	return Format(os.Stdout, doc, OptionsFromTerminal(int(os.Stdout.Fd())))
}

// Format writes a hex dump of doc to w. opts may be nil.
func Format(w io.Writer, doc *deltadoc.Document, opts *Options) error {
	from, to, err := dumpRange(doc, opts)
	if err != nil {
		return err
	}
	width := uint64(opts.width())
	hl := opts.highlight()
	edited := editedSpans(doc, from, to)
	bw := bufio.NewWriter(w)
	line := make([]byte, width)
	marks := make([]bool, width)
	for pos := from; pos < to; pos += width {
		n := min(width, to-pos)
		if err = doc.ReadRange(pos, line[:n]); err != nil {
			return err
		}
		for i := uint64(0); i < n; i++ {
			marks[i] = edited.contains(pos + i)
		}
		fmt.Fprintf(bw, "%08x  ", pos)
		for i := uint64(0); i < width; i++ {
			if i > 0 && i%8 == 0 {
				bw.WriteByte(' ')
			}
			if i >= n {
				bw.WriteString("   ")
				continue
			}
			hex := fmt.Sprintf("%02x ", line[i])
			if marks[i] {
				hl.Fprint(bw, hex)
			} else {
				bw.WriteString(hex)
			}
		}
		bw.WriteString(" |")
		for i := uint64(0); i < n; i++ {
			ch := printable(line[i])
			if marks[i] {
				hl.Fprint(bw, string(ch))
			} else {
				bw.WriteByte(ch)
			}
		}
		bw.WriteString("|\n")
	}
	fmt.Fprintf(bw, "%08x\n", to)
	return bw.Flush()
}

func dumpRange(doc *deltadoc.Document, opts *Options) (uint64, uint64, error) {
	size := doc.Size()
	var from, length uint64
	if opts != nil {
		from, length = opts.From, opts.Length
	}
	if from > size {
		return 0, 0, fmt.Errorf("%w: dump starts at %d, size %d", deltadoc.ErrIndexOutOfBounds, from, size)
	}
	if length == 0 || length > size-from {
		length = size - from
	}
	return from, from + length, nil
}

func printable(b byte) byte {
	if b < 0x20 || b > 0x7e {
		return '.'
	}
	return b
}

// --- Edited spans ----------------------------------------------------------

type span struct {
	from, to uint64
}

// spans is an ordered list of disjoint byte ranges, consumed by ascending
// position queries.
type spans struct {
	list []span
	at   int
}

// editedSpans collects the ranges of doc within [from, to) which are held by
// memory segments.
func editedSpans(doc *deltadoc.Document, from, to uint64) *spans {
	s := &spans{}
	var pos uint64
	for seg := range doc.RangeSegments() {
		end := pos + seg.Len()
		if end > from && pos < to && seg.IsMemory() {
			if n := len(s.list); n > 0 && s.list[n-1].to == pos {
				s.list[n-1].to = end
			} else {
				s.list = append(s.list, span{from: pos, to: end})
			}
		}
		if end >= to {
			break
		}
		pos = end
	}
	return s
}

// contains reports whether pos is in one of the spans. Consecutive calls
// must use non-decreasing positions.
func (s *spans) contains(pos uint64) bool {
	for s.at < len(s.list) && s.list[s.at].to <= pos {
		s.at++
	}
	return s.at < len(s.list) && s.list[s.at].from <= pos
}
