package collab

import (
	"context"
	"log/slog"

	"github.com/oxkey/ident/internal/ident/service"
)

// LogSender writes outbound mail to the log instead of delivering it. The
// token shows up in the log line so a developer can complete flows by hand.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(_ context.Context, to string, template service.TemplateKind, vars map[string]string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("outbound email",
		"to", to,
		"template", string(template),
		"vars", vars,
	)
	return nil
}
