package costguard

import (
	"testing"

	"github.com/yungbote/evidence-backend/internal/platform/errkind"
)

func TestCheck(t *testing.T) {
	g := New(0, Defaults())
	tests := []struct {
		kind   string
		size   int64
		reason string
		limit  int64
	}{
		{"chat", 1024, "", 0},
		{"chat", DefaultMaxBytes + 1, ReasonTooLarge, DefaultMaxBytes},
		{"image", 21 * MiB, ReasonTooLarge, imageMaxBytes},
		{"audio", 400 * MiB, "", 0},
		{"unknown", 0, ReasonEmpty, DefaultMaxBytes},
	}
	for _, tt := range tests {
		v := g.Check(tt.kind, tt.size)
		if tt.reason == "" {
			if v != nil {
				t.Fatalf("%s/%d: unexpected violation %v", tt.kind, tt.size, v)
			}
			continue
		}
		if v == nil || v.Reason != tt.reason || v.LimitBytes != tt.limit || v.SizeBytes != tt.size {
			t.Fatalf("%s/%d: want reason=%s limit=%d got=%+v", tt.kind, tt.size, tt.reason, tt.limit, v)
		}
		if errkind.Classify(v) != errkind.Validation {
			t.Fatalf("violation kind: got=%s", errkind.Classify(v))
		}
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("INGEST_MAX_BYTES", "100")
	t.Setenv("INGEST_MAX_BYTES_IMAGE", "10")
	g := FromEnv()
	if g.Limit("chat") != 100 {
		t.Fatalf("global limit: want=100 got=%d", g.Limit("chat"))
	}
	if g.Limit("image") != 10 {
		t.Fatalf("image limit: want=10 got=%d", g.Limit("image"))
	}
	if g.Limit("video") != mediaMaxBytes {
		t.Fatalf("video default: want=%d got=%d", mediaMaxBytes, g.Limit("video"))
	}
}
