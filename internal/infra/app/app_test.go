package app

import "testing"

func TestCloseProducerNilSafe(t *testing.T) {
	// Init failure paths call this before the producer exists when Kafka
	// is disabled or the stub publisher is in use.
	closeProducer(nil)
}
