package qdrant

import (
	"fmt"
	"net/url"
	"strings"
)

// Config selects the Qdrant endpoint. Each case gets its own collection,
// named CollectionPrefix + "_" + sanitized case id.
type Config struct {
	URL              string
	CollectionPrefix string
	VectorDim        int
	Distance         string
}

const (
	DefaultCollectionPrefix = "evidence"
	DefaultDistance         = "Cosine"
)

// Qdrant expects the capitalised names on collection create.
var distances = map[string]string{
	"cosine":    "Cosine",
	"dot":       "Dot",
	"euclid":    "Euclid",
	"manhattan": "Manhattan",
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL       ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL       ConfigErrorCode = "invalid_url"
	ConfigErrorMissingVectorDim ConfigErrorCode = "missing_vector_dim"
	ConfigErrorInvalidVectorDim ConfigErrorCode = "invalid_vector_dim"
	ConfigErrorInvalidDistance  ConfigErrorCode = "invalid_distance"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	switch e.Code {
	case ConfigErrorMissingURL:
		return "qdrant url is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("qdrant url %q is not absolute (want e.g. http://qdrant:6333)", e.Value)
	case ConfigErrorMissingVectorDim:
		return "qdrant vector dimension is required"
	case ConfigErrorInvalidVectorDim:
		return fmt.Sprintf("qdrant vector dimension %s must be positive", e.Value)
	case ConfigErrorInvalidDistance:
		return fmt.Sprintf("qdrant distance %q is not one of Cosine, Dot, Euclid, Manhattan", e.Value)
	}
	return "invalid qdrant config"
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// Normalized fills defaults and canonicalises the distance name. It does not
// validate.
func (c Config) Normalized() Config {
	c.URL = strings.TrimRight(strings.TrimSpace(c.URL), "/")
	if c.CollectionPrefix = strings.TrimSpace(c.CollectionPrefix); c.CollectionPrefix == "" {
		c.CollectionPrefix = DefaultCollectionPrefix
	}
	d := strings.ToLower(strings.TrimSpace(c.Distance))
	switch canon, ok := distances[d]; {
	case d == "":
		c.Distance = DefaultDistance
	case ok:
		c.Distance = canon
	}
	return c
}

// ValidateConfig checks a config after normalization. A zero VectorDim is
// reported as missing, a negative one as invalid.
func ValidateConfig(cfg Config) error {
	cfg = cfg.Normalized()
	if cfg.URL == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: cfg.URL, Cause: err}
	}
	switch {
	case cfg.VectorDim == 0:
		return &ConfigError{Code: ConfigErrorMissingVectorDim}
	case cfg.VectorDim < 0:
		return &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: fmt.Sprint(cfg.VectorDim)}
	}
	if _, ok := distances[strings.ToLower(cfg.Distance)]; !ok {
		return &ConfigError{Code: ConfigErrorInvalidDistance, Value: cfg.Distance}
	}
	return nil
}
