package app

import (
	"errors"
	"strings"

	"github.com/yungbote/evidence-backend/internal/platform/logger"
	"github.com/yungbote/evidence-backend/internal/platform/qdrant"
)

var newQdrantIndex = qdrant.NewIndex

const backendVectorIndex = "vector index"

// qdrant.ConfigError codes are reported as-is, prefixed so they stay unique
// across backends.
var vectorCodes = map[qdrant.ConfigErrorCode]string{
	qdrant.ConfigErrorMissingURL:       "missing_qdrant_url",
	qdrant.ConfigErrorInvalidURL:       "invalid_qdrant_url",
	qdrant.ConfigErrorMissingVectorDim: "missing_qdrant_vector_dim",
	qdrant.ConfigErrorInvalidVectorDim: "invalid_qdrant_vector_dim",
	qdrant.ConfigErrorInvalidDistance:  "invalid_qdrant_distance",
}

func qdrantConfig(cfg Config) qdrant.Config {
	v := cfg.Vector
	return qdrant.Config{
		URL:              strings.TrimSpace(v.URL),
		CollectionPrefix: strings.TrimSpace(v.CollectionPrefix),
		VectorDim:        v.VectorDim,
		Distance:         strings.TrimSpace(v.Distance),
	}
}

// resolveVectorIndex connects to Qdrant. There is no degraded mode without
// the index.
func resolveVectorIndex(log *logger.Logger, cfg Config) (*qdrant.Index, error) {
	qc := qdrantConfig(cfg).Normalized()
	log = log.With("qdrant_url", qc.URL, "collection_prefix", qc.CollectionPrefix, "vector_dim", qc.VectorDim)

	if err := qdrant.ValidateConfig(qc); err != nil {
		berr := vectorBackendError(qc.URL, err)
		log.Error("vector index config rejected", "error_code", berr.Code, "error", err)
		return nil, berr
	}
	idx, err := newQdrantIndex(log, qc)
	if err != nil {
		berr := vectorBackendError(qc.URL, err)
		log.Error("vector index unavailable", "error_code", berr.Code, "error", err)
		return nil, berr
	}
	log.Info("vector index ready", "distance", qc.Distance)
	return idx, nil
}

func vectorBackendError(url string, err error) *BackendError {
	be := &BackendError{Backend: backendVectorIndex, Code: codeConnectFailed, Target: url, Cause: err}
	var qerr *qdrant.ConfigError
	if errors.As(err, &qerr) {
		if code, ok := vectorCodes[qerr.Code]; ok {
			be.Code = code
		}
	}
	return be
}
