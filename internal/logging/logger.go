package logging

import (
	"io"
	"log/slog"
	"os"
)

// Init installs the process-wide slog logger: JSON at info level in
// production, text at debug level everywhere else.
func Init(environment string) {
	slog.SetDefault(New(os.Stdout, environment))
}

// New builds a logger for environment writing to w
func New(w io.Writer, environment string) *slog.Logger {
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// WithDeployment returns a logger scoped to one deploy or lifecycle request.
func WithDeployment(agentID, owner string) *slog.Logger {
	return slog.Default().With("agent_id", agentID, "owner", owner)
}

// WithStep adds the pipeline step name to a deployment logger.
func WithStep(logger *slog.Logger, step string) *slog.Logger {
	return logger.With("step", step)
}

// ShortAddress abbreviates a wallet address for log lines.
func ShortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
