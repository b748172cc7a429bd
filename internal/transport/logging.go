package transport

import (
	"binaural/internal/log"
	"encoding/json"
)

var logger = log.New("Transport")

// LoggingTransport implements the Transport interface by logging data at
// debug level. It stands in when no network controller is configured.
type LoggingTransport struct {
	logger *log.Logger
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	lt := &LoggingTransport{logger: log.New("Status")}
	logger.Infof("using LoggingTransport")
	return lt
}

// Send logs the received data as JSON, falling back to %+v.
func (lt *LoggingTransport) Send(data any) error {
	if log.GetLevel() > log.LevelDebug {
		return nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		lt.logger.Debugf("%+v", data)
		return nil
	}
	lt.logger.Debugf("%s", b)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
