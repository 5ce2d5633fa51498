package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a zap-backed logger. mode "prod" selects the JSON encoder; anything
// else gets the console development config. LOG_LEVEL overrides the level.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	if lvl := strings.TrimSpace(os.Getenv("LOG_LEVEL")); lvl != "" {
		var parsed zapcore.Level
		if err := parsed.UnmarshalText([]byte(lvl)); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(parsed)
		}
	}
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: z.Sugar()}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() { _ = l.SugaredLogger.Sync() }

func (l *Logger) Debug(msg string, kv ...interface{}) { l.SugaredLogger.Debugw(msg, scrub(kv)...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.SugaredLogger.Infow(msg, scrub(kv)...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.SugaredLogger.Warnw(msg, scrub(kv)...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.SugaredLogger.Errorw(msg, scrub(kv)...) }
func (l *Logger) Fatal(msg string, kv ...interface{}) { l.SugaredLogger.Fatalw(msg, scrub(kv)...) }

func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(scrub(kv)...)}
}

// Evidence text and the people in it are privileged. Log fields are passed
// through a scrubber keyed on the field name:
//   - credentials are replaced outright
//   - identities are salted-hashed, so lines about one sender still correlate
//   - free text (content, transcript, ...) is reduced to its length
//
// LOG_REDACTION_ENABLED=false turns this off for local debugging.
type action int

const (
	keep action = iota
	redact
	hash
	elide
)

var (
	redactFragments = []string{"token", "authorization", "password", "secret", "api_key", "apikey", "credentials"}
	hashFragments   = []string{"sender", "person", "participant", "phone", "email"}
	elideWords      = map[string]bool{"content": true, "text": true, "transcript": true, "body": true, "message": true}
)

type scrubber struct {
	enabled bool
	salt    string
}

var current = sync.OnceValue(func() scrubber {
	s := scrubber{enabled: true, salt: strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
	case "0", "false", "no", "off":
		s.enabled = false
	}
	return s
})

func scrub(kv []interface{}) []interface{} {
	s := current()
	if !s.enabled || len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		key := toString(kv[i])
		out = append(out, key, s.value(classify(key), kv[i+1]))
	}
	if len(kv)%2 == 1 {
		out = append(out, kv[len(kv)-1])
	}
	return out
}

func classify(key string) action {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return keep
	}
	for _, f := range redactFragments {
		if strings.Contains(k, f) {
			return redact
		}
	}
	for _, f := range hashFragments {
		if strings.Contains(k, f) {
			return hash
		}
	}
	for _, w := range strings.FieldsFunc(k, func(r rune) bool { return r == '_' || r == '.' || r == '-' }) {
		if elideWords[w] {
			return elide
		}
	}
	return keep
}

func (s scrubber) value(a action, v interface{}) interface{} {
	switch a {
	case redact:
		return "[REDACTED]"
	case hash:
		switch v.(type) {
		case int, int64, float64, bool:
			return v
		}
		return s.hash(v)
	case elide:
		return fmt.Sprintf("[%d chars]", len([]rune(toString(v))))
	}
	switch m := v.(type) {
	case map[string]interface{}:
		return s.scrubMap(m)
	case map[string]string:
		cp := make(map[string]interface{}, len(m))
		for k, x := range m {
			cp[k] = x
		}
		return s.scrubMap(cp)
	}
	return v
}

func (s scrubber) scrubMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = s.value(classify(k), v)
	}
	return out
}

func (s scrubber) hash(v interface{}) string {
	raw := toString(v)
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s.salt + raw))
	return "hash:" + hex.EncodeToString(sum[:6])
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
