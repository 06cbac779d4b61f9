package notify

import (
	"context"
	"log"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
)

// Log writes messages to a logger instead of sending them. Used when no mail
// server is configured.
type Log struct {
	logger *log.Logger
}

func NewLog(logger *log.Logger) *Log {
	if logger == nil {
		logger = log.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Send(_ context.Context, msg domain.Message) error {
	l.logger.Printf("notification id=%s to=%s subject=%q", msg.ID, msg.To, msg.Subject)
	return nil
}
