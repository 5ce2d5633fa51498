package costguard

import (
	"fmt"
	"os"
	"strings"

	"github.com/yungbote/evidence-backend/internal/platform/envutil"
	"github.com/yungbote/evidence-backend/internal/platform/errkind"
)

const (
	MiB = int64(1 << 20)

	DefaultMaxBytes = 50 * MiB
	mediaMaxBytes   = 500 * MiB
	imageMaxBytes   = 20 * MiB
)

// Violation is the rejected outcome of a check. It is an expected result,
// not a failure.
type Violation struct {
	Reason     string `json:"reason"`
	Kind       string `json:"kind"`
	SizeBytes  int64  `json:"size_bytes"`
	LimitBytes int64  `json:"limit_bytes"`
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: kind=%s size=%d limit=%d", v.Reason, v.Kind, v.SizeBytes, v.LimitBytes)
}

func (v *Violation) ErrorKind() errkind.Kind { return errkind.Validation }

const (
	ReasonTooLarge = "file_too_large"
	ReasonEmpty    = "empty_file"
)

type Guard struct {
	defaultMax int64
	perKind    map[string]int64
}

func New(defaultMax int64, perKind map[string]int64) *Guard {
	if defaultMax <= 0 {
		defaultMax = DefaultMaxBytes
	}
	kinds := map[string]int64{}
	for k, v := range perKind {
		if v > 0 {
			kinds[strings.ToLower(k)] = v
		}
	}
	return &Guard{defaultMax: defaultMax, perKind: kinds}
}

func Defaults() map[string]int64 {
	return map[string]int64{"audio": mediaMaxBytes, "video": mediaMaxBytes, "image": imageMaxBytes}
}

// FromEnv reads INGEST_MAX_BYTES and INGEST_MAX_BYTES_<KIND> over the defaults.
func FromEnv() *Guard {
	return New(envutil.Int64("INGEST_MAX_BYTES", DefaultMaxBytes), KindLimitsFromEnv())
}

// KindLimitsFromEnv returns Defaults overlaid with INGEST_MAX_BYTES_<KIND>.
func KindLimitsFromEnv() map[string]int64 {
	perKind := Defaults()
	for _, kind := range []string{"audio", "video", "image", "pdf", "office", "chat"} {
		name := "INGEST_MAX_BYTES_" + strings.ToUpper(kind)
		if _, ok := os.LookupEnv(name); ok {
			perKind[kind] = envutil.Int64(name, perKind[kind])
		}
	}
	return perKind
}

func (g *Guard) Limit(kind string) int64 {
	if v, ok := g.perKind[strings.ToLower(kind)]; ok {
		return v
	}
	return g.defaultMax
}

// Check returns nil when the file may be processed.
func (g *Guard) Check(kind string, sizeBytes int64) *Violation {
	limit := g.Limit(kind)
	switch {
	case sizeBytes <= 0:
		return &Violation{Reason: ReasonEmpty, Kind: kind, SizeBytes: sizeBytes, LimitBytes: limit}
	case sizeBytes > limit:
		return &Violation{Reason: ReasonTooLarge, Kind: kind, SizeBytes: sizeBytes, LimitBytes: limit}
	}
	return nil
}
