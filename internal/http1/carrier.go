package http1

// Carrier is the codec's view of the connection carrying it: enough to
// decide proxy framing, to report transport failures for connection-pool
// bookkeeping, to retire the connection from reuse, and to abort it from
// any goroutine. Implemented by package carrierimpl over a *socket.Conn.
type Carrier interface {
	// Route reports how this carrier reaches its destination.
	Route() Route

	// TrackFailure records a transport-level failure (nil on a clean
	// close) for the carrier's own failure-counting/eviction policy.
	TrackFailure(err error)

	// NoNewExchanges retires the carrier from any connection pool: no
	// further exchange may be started on it once the current one closes.
	NoNewExchanges()

	// Cancel aborts the underlying connection immediately. Safe to call
	// from any goroutine while another goroutine is blocked reading or
	// writing through the same carrier (spec.md §5).
	Cancel()
}
