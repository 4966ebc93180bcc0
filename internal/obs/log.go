package obs

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
			},
		})
	})
	return logger
}

// SetLevel parses level and applies it to the shared logger. Unknown levels
// leave the current level unchanged.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger().SetLevel(lvl)
	return nil
}

// LogRequest emits a structured log line with common HTTP fields.
func LogRequest(entry map[string]any) {
	msg, _ := entry["msg"].(string)
	if msg == "" {
		msg = "request_complete"
	}
	fields := make(logrus.Fields, len(entry))
	for k, v := range entry {
		if k == "msg" || k == "level" || k == "ts" {
			continue
		}
		fields[k] = v
	}
	Logger().WithFields(fields).Info(msg)
}
