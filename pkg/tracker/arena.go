package tracker

import (
	"sort"

	"github.com/bmharper/ringbuffer"
)

// Number of recent inferred frames that we keep, so that a FrameInference can
// be resolved from its PreviousIndex.
const arenaSize = 64

// frameArena holds the most recent inferred frames, oldest first.
// Frames that fall out of the arena are released.
// Not thread safe.
type frameArena struct {
	frames ringbuffer.RingP[*FrameInference]
}

func newFrameArena() *frameArena {
	return &frameArena{
		frames: ringbuffer.NewRingP[*FrameInference](arenaSize),
	}
}

func (a *frameArena) add(f *FrameInference) {
	a.frames.Add(f)
}

func (a *frameArena) latest() *FrameInference {
	if a.frames.Len() == 0 {
		return nil
	}
	return a.frames.Peek(a.frames.Len() - 1)
}

// get finds the frame with the given index.
// Frame indices in the arena are increasing, so we can binary search.
func (a *frameArena) get(index int64) *FrameInference {
	n := a.frames.Len()
	i := sort.Search(n, func(i int) bool {
		return a.frames.Peek(i).Index >= index
	})
	if i < n && a.frames.Peek(i).Index == index {
		return a.frames.Peek(i)
	}
	return nil
}

func (a *frameArena) len() int {
	return a.frames.Len()
}
