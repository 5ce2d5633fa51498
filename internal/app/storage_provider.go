package app

import (
	"context"
	"errors"

	"github.com/yungbote/evidence-backend/internal/platform/gcp"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

var newObjectStorage = gcp.NewObjectStorage

const backendObjectStorage = "object storage"

// Codes for object storage start-up failures.
const (
	codeStorageInvalidMode         = "invalid_mode"
	codeStorageMissingEmulatorHost = "missing_emulator_host"
	codeStorageInvalidEmulatorHost = "invalid_emulator_host"
)

// resolveObjectStorage builds the evidence download client. Every failure is
// fatal to start-up.
func resolveObjectStorage(ctx context.Context, log *logger.Logger, cfg Config) (*gcp.ObjectStorage, error) {
	sc, err := gcp.ResolveObjectStorageConfig(cfg.ObjectStorage.Mode, cfg.ObjectStorage.EmulatorHost)
	log = log.With("mode", sc.Mode, "emulator_host", sc.EmulatorHost)
	if err != nil {
		berr := storageBackendError(sc, err)
		log.Error("object storage config rejected", "error_code", berr.Code, "error", err)
		return nil, berr
	}
	store, err := newObjectStorage(ctx, log, sc)
	if err != nil {
		berr := storageBackendError(sc, err)
		log.Error("object storage unavailable", "error_code", berr.Code, "error", err)
		return nil, berr
	}
	log.Info("object storage ready")
	return store, nil
}

func storageBackendError(sc gcp.ObjectStorageConfig, err error) *BackendError {
	be := &BackendError{Backend: backendObjectStorage, Code: codeConnectFailed, Target: string(sc.Mode), Cause: err}
	if sc.EmulatorHost != "" {
		be.Target += "@" + sc.EmulatorHost
	}
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case gcp.ObjectStorageConfigErrorInvalidMode:
			be.Code = codeStorageInvalidMode
		case gcp.ObjectStorageConfigErrorMissingEmulatorHost:
			be.Code = codeStorageMissingEmulatorHost
		case gcp.ObjectStorageConfigErrorInvalidEmulatorHost:
			be.Code = codeStorageInvalidEmulatorHost
		}
	}
	return be
}
