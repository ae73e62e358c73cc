package chain

import (
	"fmt"
	"io"

	"github.com/npillmayer/deltadoc/segment"
)

// ToDot outputs the internal structure of a chain in Graphviz DOT format
// (for debugging purposes). Every node is labelled with its absolute start
// position and its segment.
func ToDot(c *Chain, w io.Writer) error {
	if _, err := io.WriteString(w, "strict digraph {\n\trankdir=LR;\n"); err != nil {
		return err
	}
	io.WriteString(w, "\tnode [fontname=Arial,fontsize=12];\n")
	nodelist, edgelist := "", ""
	var pos uint64
	for id, seg := range c.All() {
		label := fmt.Sprintf("@%d\\n%s", pos, seg)
		nodelist += fmt.Sprintf("\t\"%d\" [label=\"%s\" %s];\n", id, label, nodeDotStyles(seg))
		if next := c.Next(id); next != Nil {
			edgelist += fmt.Sprintf("\t\"%d\" -> \"%d\";\n", id, next)
		}
		pos += seg.Len()
	}
	io.WriteString(w, nodelist)
	io.WriteString(w, edgelist)
	_, err := io.WriteString(w, "}\n")
	return err
}

func nodeDotStyles(seg segment.Segment) string {
	s := ",style=filled,shape=box"
	if seg.IsMemory() {
		s += ",fillcolor=\"#FFCCAA\""
	} else {
		s += ",fillcolor=\"#a3d7e4\""
	}
	return s
}
