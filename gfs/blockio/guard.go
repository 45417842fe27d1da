package blockio

import "context"

// Guard collects the buffers an operation takes so a single deferred
// Release drops them all, whichever way the operation exits.
type Guard struct {
	a    *Arena
	refs []Ref
}

// Guard starts a new scoped holder.
func (a *Arena) Guard() *Guard {
	return &Guard{a: a}
}

// Read reads blk and tracks the reference.
func (g *Guard) Read(ctx context.Context, blk uint64) (Ref, error) {
	r, err := g.a.Read(ctx, blk)
	if err != nil {
		return NoRef, err
	}
	g.refs = append(g.refs, r)
	return r, nil
}

// New creates a zeroed buffer for blk and tracks the reference.
func (g *Guard) New(blk uint64) Ref {
	r := g.a.New(blk)
	g.refs = append(g.refs, r)
	return r
}

// Track adopts a reference obtained elsewhere.
func (g *Guard) Track(r Ref) {
	g.refs = append(g.refs, r)
}

// Release drops every tracked reference. It is safe to call more than once.
func (g *Guard) Release() {
	for _, r := range g.refs {
		g.a.Release(r)
	}
	g.refs = g.refs[:0]
}
