package mmal

import (
	"cmp"
	"slices"
)

// releaser is a resource a Component owns on behalf of its ports.
type releaser interface {
	release() error
	String() string
}

// slot addresses an entry in an arena. Slot 0 is reserved and always
// invalid.
type slot uint32

// arena is the index-addressable table of pools and connections created
// through a component's ports. Freed slots are reused.
type arena struct {
	entries  []releaser
	order    []uint64
	freeList []slot
	seq      uint64
}

func (a *arena) add(r releaser) slot {
	a.seq++
	if n := len(a.freeList); n > 0 {
		s := a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		a.entries[s-1] = r
		a.order[s-1] = a.seq
		return s
	}
	a.entries = append(a.entries, r)
	a.order = append(a.order, a.seq)
	return slot(len(a.entries))
}

func (a *arena) get(s slot) (releaser, bool) {
	if s == 0 || int(s) > len(a.entries) {
		return nil, false
	}
	r := a.entries[s-1]
	return r, r != nil
}

// remove forgets s without releasing it.
func (a *arena) remove(s slot) bool {
	if _, ok := a.get(s); !ok {
		return false
	}
	a.entries[s-1] = nil
	a.order[s-1] = 0
	a.freeList = append(a.freeList, s)
	return true
}

func (a *arena) len() int {
	n := 0
	for _, r := range a.entries {
		if r != nil {
			n++
		}
	}
	return n
}

// drain empties the arena and returns its entries newest first.
func (a *arena) drain() []releaser {
	type ordered struct {
		r   releaser
		seq uint64
	}
	live := make([]ordered, 0, len(a.entries))
	for i, r := range a.entries {
		if r != nil {
			live = append(live, ordered{r, a.order[i]})
		}
	}
	slices.SortFunc(live, func(x, y ordered) int {
		return cmp.Compare(y.seq, x.seq)
	})
	out := make([]releaser, len(live))
	for i, o := range live {
		out[i] = o.r
	}
	a.entries = nil
	a.order = nil
	a.freeList = nil
	return out
}
