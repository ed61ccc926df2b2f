// Package pipeline runs live analysis sessions: it opens a camera, warms the
// model, and submits one frame at a time to the inference backend while the
// overlay follows the latest result.
package pipeline

// Guard is a single slot. A holder must Release exactly once; callers that
// find it taken skip their work instead of waiting.
type Guard struct {
	slot chan struct{}
}

func NewGuard() *Guard {
	return &Guard{slot: make(chan struct{}, 1)}
}

func (g *Guard) TryAcquire() bool {
	select {
	case g.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

func (g *Guard) Release() {
	select {
	case <-g.slot:
	default:
	}
}

func (g *Guard) Busy() bool {
	return len(g.slot) == 1
}
