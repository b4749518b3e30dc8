package notify

import "go.uber.org/zap"

// LogSink writes alerts to the logger when no chat is configured.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Send(message string) error {
	if s.Logger != nil {
		s.Logger.Info("alert", zap.String("message", message))
	}
	return nil
}
