package interfaces

// Transport is one persistent bidirectional connection. Writes are
// serialized by the implementation; ReadMessage is called from a single
// goroutine.
type Transport interface {
	// ReadMessage blocks for the next inbound text frame.
	ReadMessage() ([]byte, error)

	// WriteJSON enqueues an outbound frame. Delivery is fire-and-forget;
	// an error means the connection is unusable.
	WriteJSON(v interface{}) error

	// CloseWithCode sends a close frame with an application close code
	// before tearing the connection down.
	CloseWithCode(code int, reason string) error

	Close() error
}
