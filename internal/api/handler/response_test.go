package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := map[domain.ErrorKind]int{
		domain.KindInvalidInput:    http.StatusBadRequest,
		domain.KindUnauthorized:    http.StatusUnauthorized,
		domain.KindNotFound:        http.StatusNotFound,
		domain.KindInvalidState:    http.StatusConflict,
		domain.KindConflict:        http.StatusConflict,
		domain.KindExternalService: http.StatusBadGateway,
		domain.KindInternal:        http.StatusInternalServerError,
	}
	for kind, want := range tests {
		require.Equal(t, want, StatusFor(kind), kind)
	}
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, zap.NewNop(), errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, domain.KindInternal, body.Error.Code)
	require.Equal(t, "Internal server error", body.Error.Message)
}

func TestWriteErrorUnwrapsDomainError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, zap.NewNop(), fmt.Errorf("update request: %w", domain.NotFound("request not found: r-1")))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, domain.KindNotFound, body.Error.Code)
	require.Equal(t, "request not found: r-1", body.Error.Message)
}
