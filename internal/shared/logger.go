package shared

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/rs/zerolog"
)

func setGlobalLevel() {
	zerolog.TimeFieldFormat = time.RFC3339

	switch strings.ToUpper(LookupEnvWithDefault(EnvLogLevel, "INFO")) {
	case "TRACE":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "DEBUG":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "WARN":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "ERROR":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "FATAL":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "PANIC":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// NewLogWithContext creates a logger tagged with the lambda request id, if any,
// and returns a context carrying it. Downstream code reads it with zerolog.Ctx.
func NewLogWithContext(ctx context.Context) (context.Context, *zerolog.Logger) {
	setGlobalLevel()
	logCtx := zerolog.New(os.Stdout).With().Timestamp()
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logCtx = logCtx.Str("requestId", lc.AwsRequestID)
	}
	llog := logCtx.Logger()
	return llog.WithContext(ctx), &llog
}

// WorkerLog returns the context logger tagged with a worker id.
func WorkerLog(ctx context.Context, id string) zerolog.Logger {
	return zerolog.Ctx(ctx).With().Str("worker", id).Logger()
}
