package ir

const arenaChunk = 256

// arena hands out entries that never move, so pointers into it stay valid
// for the life of the compilation.
type arena[T any] struct {
	chunks [][]T
	n      int
}

func (a *arena[T]) alloc() (int, *T) {
	if a.n%arenaChunk == 0 {
		a.chunks = append(a.chunks, make([]T, arenaChunk))
	}
	i := a.n
	a.n++
	return i, &a.chunks[i/arenaChunk][i%arenaChunk]
}

func (a *arena[T]) at(i int) *T {
	if i < 0 || i >= a.n {
		return nil
	}
	return &a.chunks[i/arenaChunk][i%arenaChunk]
}

func (a *arena[T]) len() int { return a.n }
