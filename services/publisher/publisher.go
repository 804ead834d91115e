package publisher

// Publisher delivers ingestion events to downstream consumers
type Publisher interface {
	// Publish publishes a message with the given key
	Publish(key string, message []byte) error

	// Close closes the publisher
	Close() error
}
