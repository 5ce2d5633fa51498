package apierr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/evidence-backend/internal/platform/errkind"
)

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", errkind.New(errkind.Validation, "clear_case", errors.New("case id required")), http.StatusBadRequest, "validation"},
		{"duplicate", errkind.New(errkind.Duplicate, "ingest", errors.New("seen")), http.StatusConflict, "duplicate"},
		{"dependency", errkind.New(errkind.Dependency, "openai", errors.New("502")), http.StatusBadGateway, "dependency"},
		{"unclassified", errors.New("connection refused"), http.StatusServiceUnavailable, string(errkind.Classify(errors.New("x")))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FromError(tc.err)
			require.NotNil(t, got)
			assert.Equal(t, tc.status, got.Status)
			assert.Equal(t, tc.code, got.Code)
			assert.ErrorIs(t, got, tc.err)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, StatusFor(errkind.Consistency))
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(errkind.Infrastructure))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "not_found", New(http.StatusNotFound, "not_found", nil).Error())
	assert.Equal(t, "api error 500", New(http.StatusInternalServerError, "", nil).Error())
}
