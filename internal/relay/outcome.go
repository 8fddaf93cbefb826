package relay

// Outcome is the explicit result of a best-effort side effect (profile
// photo fetch, intro post, topic creation, forwarding). A failed Outcome is
// recoverable: the caller records it and continues routing, but the
// distinction stays visible for logging and tests instead of vanishing into
// a swallowed error.
type Outcome struct {
	Err error
}

// OK reports whether the step succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

func succeeded() Outcome       { return Outcome{} }
func failed(err error) Outcome { return Outcome{Err: err} }
