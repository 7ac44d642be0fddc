package interfaces

// Conn is one live socket as seen by the registry and the event services.
// Implementations must make WriteJSON safe for concurrent use (the websocket
// wrapper serializes writes through a single goroutine).
type Conn interface {
	// ID returns the server-assigned socket id, stable for the life of the
	// connection and recorded on roster entries.
	ID() string

	// WriteJSON sends one event frame to the client.
	WriteJSON(v interface{}) error

	// Close severs the connection and releases resources. Idempotent.
	Close() error
}
