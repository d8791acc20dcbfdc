package log

import (
	"testing"
)

func TestLogger(t *testing.T) {
	d := "Hello"
	logger := NewLogger("1234", JobId)
	logger.Info("Test Message: ", d)

	logger = NewLogger("1234", DestinationId)
	logger.Info("Test Message: ", d)
}
