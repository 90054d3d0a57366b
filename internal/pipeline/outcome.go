package pipeline

// Outcome is the result of one stage invocation. A stage that self-healed
// through its fallback returns Degraded=true with the reason that triggered
// the fallback; the value is still usable and the stage run is recorded
// completed. Fatal conditions are ordinary error returns and only the
// orchestrator handles them.
type Outcome[T any] struct {
	Value    T
	Degraded bool
	Reason   string
}

// Ok wraps a successful stage value.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Degraded wraps a fallback value with the reason the primary path failed.
func Degraded[T any](v T, reason string) Outcome[T] {
	return Outcome[T]{Value: v, Degraded: true, Reason: reason}
}
