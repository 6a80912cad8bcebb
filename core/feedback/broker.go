package feedback

import "sync"

// Broker answers feedback queries for a compilation. Implementations must be
// safe for concurrent readers; a compilation only reads.
type Broker interface {
	// Feedback returns the processed feedback for src, never nil.
	Feedback(src Source) Processed
}

// StaticBroker serves feedback recorded ahead of time, as produced by a
// profiling run or loaded from a program description.
type StaticBroker struct {
	mu    sync.RWMutex
	slots map[Source]Processed
}

// NewStaticBroker returns an empty broker.
func NewStaticBroker() *StaticBroker {
	return &StaticBroker{slots: make(map[Source]Processed)}
}

// Set records feedback for src and advances the vector epoch.
func (b *StaticBroker) Set(src Source, p Processed) {
	b.mu.Lock()
	b.slots[src] = p
	b.mu.Unlock()
	if src.Vector != nil {
		src.Vector.Touch()
	}
}

func (b *StaticBroker) Feedback(src Source) Processed {
	if !src.IsValid() {
		return none{}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if p, ok := b.slots[src]; ok {
		return p
	}
	return none{}
}

type none struct{}

func (none) Kind() Kind { return KindNone }
