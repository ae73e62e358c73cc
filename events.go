package deltadoc

import (
	"context"
	"fmt"

	"github.com/guiguan/caster"
)

// ChangeKind classifies a change of a document.
type ChangeKind int8

// Kinds of document changes.
const (
	Inserted ChangeKind = iota // bytes have been inserted
	Removed                    // bytes have been removed
	Modified                   // bytes have been overwritten in place
	Reset                      // the whole content has been replaced
)

func (k ChangeKind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	case Reset:
		return "reset"
	}
	return "unknown"
}

// ChangeEvent is broadcast to subscribers after a document has changed.
// Position and Length describe the affected byte range in terms of the
// document before the change (Removed) or after the change (all others).
// For Reset, Length is the new document size.
type ChangeEvent struct {
	Kind     ChangeKind
	Position uint64
	Length   uint64
}

func (ev ChangeEvent) String() string {
	return fmt.Sprintf("%s[%d:%d]", ev.Kind, ev.Position, ev.Position+ev.Length)
}

// subscription is the sending side of a channel handed out by Subscribe.
type subscription struct {
	ch  chan interface{}
	ctx context.Context
}

// Subscribe returns a channel of ChangeEvent values for all subsequent changes
// of d. The subscription ends when ctx is done, when Unsubscribe is called, or
// when d is disposed; the channel is closed then. After ctx is done, the
// channel is closed with the next change of d at the latest.
//
// Events are published synchronously after each mutation has completed.
// Subscribers must drain their channel, otherwise editing operations on d
// will block once capacity is exhausted. Subscribe and Unsubscribe are
// editing operations as far as concurrency is concerned.
func (d *Document) Subscribe(ctx context.Context, capacity uint) (<-chan interface{}, error) {
	if d.win == nil {
		return nil, ErrDisposed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if d.cast == nil {
		d.cast = caster.New(context.Background())
		d.subs = make(map[<-chan interface{}]subscription)
	}
	for r, sub := range d.subs {
		if sub.ctx.Err() != nil {
			delete(d.subs, r)
		}
	}
	ch, _ := d.cast.Sub(ctx, capacity)
	d.subs[ch] = subscription{ch: ch, ctx: ctx}
	return ch, nil
}

// Unsubscribe ends a subscription obtained by Subscribe. It reports whether
// ch denoted a live subscription of d.
func (d *Document) Unsubscribe(ch <-chan interface{}) bool {
	sub, ok := d.subs[ch]
	if !ok {
		return false
	}
	delete(d.subs, ch)
	if sub.ctx.Err() != nil {
		// the caster closes channels of cancelled subscriptions by itself
		return false
	}
	return d.cast.Unsub(sub.ch)
}

func (d *Document) publish(kind ChangeKind, pos, length uint64) {
	if d.cast == nil {
		return
	}
	ev := ChangeEvent{Kind: kind, Position: pos, Length: length}
	d.opts.trace.Debugf("deltadoc: publish %s", ev)
	d.cast.Pub(ev)
}

func (d *Document) closeSubscriptions() {
	if d.cast != nil {
		d.cast.Close()
		d.cast = nil
		d.subs = nil
	}
}
