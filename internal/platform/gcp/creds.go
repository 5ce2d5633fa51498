package gcp

import (
	"context"
	"os"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/evidence-backend/internal/platform/logger"
	"github.com/yungbote/evidence-backend/internal/platform/retry"
)

func ClientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

var longRunningPolicy = retry.Policy{
	MaxAttempts:    5,
	InitialDelay:   750 * time.Millisecond,
	MaxDelay:       10 * time.Second,
	Multiplier:     2,
	JitterFraction: 0.1,
}

// callTransient retries fn on gRPC codes that indicate a transient backend
// condition; every other failure is returned immediately.
func callTransient[T any](ctx context.Context, log *logger.Logger, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := retry.Do(ctx, name, longRunningPolicy, log, nil, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			switch status.Code(err) {
			case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
				return err
			default:
				return retry.Permanent(err)
			}
		}
		out = v
		return nil
	})
	return out, err
}
