package stream

import "context"

// CombineLatest emits fn(a, b) every time either input delivers a value,
// once both inputs have delivered at least one. Each emission uses the most
// recent value of both inputs. If an input changes again while the previous
// result is still waiting for the reader, the stale result is replaced by
// one computed from the newer pair.
//
// The output closes when ctx is done or either input closes.
func CombineLatest[A, B, R any](ctx context.Context, as <-chan A, bs <-chan B, fn func(A, B) R) <-chan R {
	out := make(chan R)

	go func() {
		defer close(out)

		var (
			a            A
			b            B
			haveA, haveB bool
		)

		for {
			var (
				send chan<- R
				r    R
			)
			if haveA && haveB {
				send = out
				r = fn(a, b)
			}

			select {
			case <-ctx.Done():
				return
			case send <- r:
				// Wait for the next input before emitting again.
				select {
				case <-ctx.Done():
					return
				case v, ok := <-as:
					if !ok {
						return
					}
					a = v
				case v, ok := <-bs:
					if !ok {
						return
					}
					b = v
				}
			case v, ok := <-as:
				if !ok {
					return
				}
				a, haveA = v, true
			case v, ok := <-bs:
				if !ok {
					return
				}
				b, haveB = v, true
			}
		}
	}()

	return out
}
