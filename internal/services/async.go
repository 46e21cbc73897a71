package services

// Spawner runs fn without blocking the caller. The default starts a
// goroutine; tests pass one that runs fn inline.
type Spawner func(fn func())

func goSpawner(fn func()) { go fn() }

type outcome[T any] struct {
	value T
	err   error
}

// flight tracks a single asynchronous call whose result is collected by
// polling from the driver loop.
type flight[T any] struct {
	results chan outcome[T]
	active  bool
}

func newFlight[T any]() *flight[T] {
	return &flight[T]{results: make(chan outcome[T], 1)}
}

// launch starts fn. Only one call may be in flight at a time.
func (f *flight[T]) launch(spawn Spawner, fn func() (T, error)) {
	f.active = true
	spawn(func() {
		v, err := fn()
		f.results <- outcome[T]{value: v, err: err}
	})
}

// poll returns the result once the call has finished
func (f *flight[T]) poll() (outcome[T], bool) {
	if !f.active {
		return outcome[T]{}, false
	}
	select {
	case o := <-f.results:
		f.active = false
		return o, true
	default:
		return outcome[T]{}, false
	}
}
