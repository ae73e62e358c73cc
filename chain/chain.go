/*
Package chain implements the segment chain of delta documents: an ordered,
doubly-linked sequence of segments whose lengths sum up to the size of a
document.

Nodes live in an arena and are addressed by ID handles; links are IDs as
well. This avoids reference cycles and makes dropping a whole chain trivial.
A chain is purely structural and has no byte semantics of its own.

# BSD License

Copyright (c) Norbert Pillmayer <norbert@pillmayer.com>

Please refer to the License file for details.
*/
package chain

import (
	"fmt"
	"iter"

	"github.com/npillmayer/deltadoc/segment"
	"github.com/npillmayer/schuko/tracing"
)

// tracer writes to trace with key 'deltadoc'
func tracer() tracing.Trace {
	return tracing.Select("deltadoc")
}

func assert(condition bool, msg string) {
	if !condition {
		tracer().Errorf("chain: invariant violated: %s", msg)
		panic(msg)
	}
}

// ID is a handle for a node of a chain. Nil denotes "no node".
type ID uint32

// Nil is the ID of no node, used at both ends of a chain.
const Nil ID = 0

type node struct {
	seg  segment.Segment
	prev ID
	next ID
	used bool
}

// Chain is an arena-backed doubly-linked list of segments.
//
// The zero value is not usable; clients create chains with New.
type Chain struct {
	nodes []node // index 0 is never used, as ID 0 is Nil
	free  []ID
	first ID
	last  ID
	count int
	sum   uint64
}

// New creates an empty chain.
func New() *Chain {
	return &Chain{nodes: make([]node, 1, 16)}
}

func (c *Chain) node(id ID) *node {
	assert(id != Nil && int(id) < len(c.nodes) && c.nodes[id].used, "access to invalid chain node")
	return &c.nodes[id]
}

func (c *Chain) alloc(seg segment.Segment) ID {
	assert(seg.Len() > 0, "zero-length segments may not be linked into a chain")
	var id ID
	if n := len(c.free); n > 0 {
		id = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		c.nodes = append(c.nodes, node{})
		id = ID(len(c.nodes) - 1)
	}
	c.nodes[id] = node{seg: seg, used: true}
	c.count++
	c.sum += seg.Len()
	return id
}

// Len returns the number of segments in the chain.
func (c *Chain) Len() int {
	return c.count
}

// Sum returns the total length of all segments in the chain.
func (c *Chain) Sum() uint64 {
	return c.sum
}

// IsEmpty reports whether the chain has no segments.
func (c *Chain) IsEmpty() bool {
	return c.first == Nil
}

// First returns the first node of the chain, or Nil.
func (c *Chain) First() ID {
	return c.first
}

// Last returns the last node of the chain, or Nil.
func (c *Chain) Last() ID {
	return c.last
}

// Next returns the successor of node id, or Nil.
func (c *Chain) Next(id ID) ID {
	return c.node(id).next
}

// Prev returns the predecessor of node id, or Nil.
func (c *Chain) Prev(id ID) ID {
	return c.node(id).prev
}

// Segment returns the segment stored at node id.
func (c *Chain) Segment(id ID) segment.Segment {
	return c.node(id).seg
}

// Set replaces the segment stored at node id.
func (c *Chain) Set(id ID, seg segment.Segment) {
	assert(seg.Len() > 0, "zero-length segments may not be linked into a chain")
	n := c.node(id)
	c.sum = c.sum - n.seg.Len() + seg.Len()
	n.seg = seg
}

// InsertBefore links seg into the chain right before node id and returns the
// new node. If id is Nil, seg is appended.
func (c *Chain) InsertBefore(id ID, seg segment.Segment) ID {
	if id == Nil {
		return c.InsertAfter(c.last, seg)
	}
	prev := c.node(id).prev
	nid := c.alloc(seg)
	c.link(prev, nid, id)
	return nid
}

// InsertAfter links seg into the chain right after node id and returns the
// new node. If id is Nil, seg is prepended.
func (c *Chain) InsertAfter(id ID, seg segment.Segment) ID {
	var next ID
	if id == Nil {
		next = c.first
	} else {
		next = c.node(id).next
	}
	nid := c.alloc(seg)
	c.link(id, nid, next)
	return nid
}

// link connects node nid between prev and next (either may be Nil).
func (c *Chain) link(prev, nid, next ID) {
	n := &c.nodes[nid]
	n.prev, n.next = prev, next
	if prev == Nil {
		c.first = nid
	} else {
		c.nodes[prev].next = nid
	}
	if next == Nil {
		c.last = nid
	} else {
		c.nodes[next].prev = nid
	}
}

// Remove unlinks node id from the chain and returns its segment. The caller
// takes over the segment's reference.
func (c *Chain) Remove(id ID) segment.Segment {
	n := c.node(id)
	seg, prev, next := n.seg, n.prev, n.next
	if prev == Nil {
		c.first = next
	} else {
		c.nodes[prev].next = next
	}
	if next == Nil {
		c.last = prev
	} else {
		c.nodes[next].prev = prev
	}
	c.nodes[id] = node{}
	c.free = append(c.free, id)
	c.count--
	c.sum -= seg.Len()
	return seg
}

// Clear removes all nodes and returns their segments in chain order.
func (c *Chain) Clear() []segment.Segment {
	segs := make([]segment.Segment, 0, c.count)
	for id := c.first; id != Nil; id = c.nodes[id].next {
		segs = append(segs, c.nodes[id].seg)
	}
	c.nodes = c.nodes[:1]
	c.free = c.free[:0]
	c.first, c.last = Nil, Nil
	c.count, c.sum = 0, 0
	return segs
}

// All returns an iterator over all nodes and their segments in chain order.
func (c *Chain) All() iter.Seq2[ID, segment.Segment] {
	return func(yield func(ID, segment.Segment) bool) {
		for id := c.first; id != Nil; id = c.nodes[id].next {
			if !yield(id, c.nodes[id].seg) {
				return
			}
		}
	}
}

// Check validates structural chain invariants: symmetric links, no
// zero-length segments, and consistent node count and length sum.
//
// This checker is intended for tests and debugging.
func (c *Chain) Check() error {
	var cnt int
	var sum uint64
	prev := Nil
	for id := c.first; id != Nil; id = c.nodes[id].next {
		if int(id) >= len(c.nodes) || !c.nodes[id].used {
			return fmt.Errorf("chain: link to unused node %d", id)
		}
		n := &c.nodes[id]
		if n.prev != prev {
			return fmt.Errorf("chain: node %d has prev=%d, expected %d", id, n.prev, prev)
		}
		if n.seg.Len() == 0 {
			return fmt.Errorf("chain: node %d holds a zero-length segment", id)
		}
		cnt++
		sum += n.seg.Len()
		if cnt > len(c.nodes) {
			return fmt.Errorf("chain: cycle detected at node %d", id)
		}
		prev = id
	}
	if prev != c.last {
		return fmt.Errorf("chain: last=%d, but walk ended at %d", c.last, prev)
	}
	if cnt != c.count {
		return fmt.Errorf("chain: count=%d, but walk found %d nodes", c.count, cnt)
	}
	if sum != c.sum {
		return fmt.Errorf("chain: sum=%d, but segments add up to %d", c.sum, sum)
	}
	return nil
}
