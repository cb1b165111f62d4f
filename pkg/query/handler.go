package query

// Observers is an ordered list of callbacks notified with the same value.
// An empty list is inactive and notifying it is a no-op. Merging two lists
// concatenates them, so two analyses built independently can share a single
// fetch of the underlying resource.
type Observers[T any] []func(T) error

// Observe builds an observer list, dropping nil callbacks.
func Observe[T any](fns ...func(T) error) Observers[T] {
	var obs Observers[T]

	for _, fn := range fns {
		if fn != nil {
			obs = append(obs, fn)
		}
	}

	return obs
}

// IsActive reports whether at least one callback is bound.
func (o Observers[T]) IsActive() bool {
	return len(o) > 0
}

// Merge returns a list that notifies o's callbacks then other's.
// If either side is inactive the other is returned unchanged.
func (o Observers[T]) Merge(other Observers[T]) Observers[T] {
	if !o.IsActive() {
		return other
	}

	if !other.IsActive() {
		return o
	}

	merged := make(Observers[T], 0, len(o)+len(other))
	merged = append(merged, o...)

	return append(merged, other...)
}

// Handle notifies every callback in order and stops at the first error.
func (o Observers[T]) Handle(v T) error {
	for _, fn := range o {
		err := fn(v)
		if err != nil {
			return err
		}
	}

	return nil
}

// Handler observes raw HTTP responses.
type Handler = Observers[*Response]

// NewHandler builds a response handler from callbacks.
func NewHandler(fns ...func(*Response) error) Handler {
	return Observe(fns...)
}

// JSON adapts typed observers into a response handler: the body is decoded
// once into T and every observer receives the decoded value.
// Inactive observers produce an inactive handler.
func JSON[T any](obs Observers[T]) Handler {
	if !obs.IsActive() {
		return nil
	}

	return Handler{func(resp *Response) error {
		var value T

		err := resp.JSON(&value)
		if err != nil {
			return err
		}

		return obs.Handle(value)
	}}
}

// Text adapts string observers into a response handler.
func Text(obs Observers[string]) Handler {
	if !obs.IsActive() {
		return nil
	}

	return Handler{func(resp *Response) error {
		return obs.Handle(resp.Text())
	}}
}
