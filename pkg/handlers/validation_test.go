package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-charts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

func bodyRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeBody_PortAcceptsNumberAndString(t *testing.T) {
	for _, port := range []string{`5432`, `"5432"`} {
		var patch models.ConnectionPatch
		err := decodeBody(bodyRequest(`{"port": `+port+`}`), updateConnectionValidator, &patch)
		require.NoError(t, err, port)
		require.NotNil(t, patch.Port)
		assert.Equal(t, models.Port(5432), *patch.Port)
	}
}

func TestDecodeBody_RejectsNonObject(t *testing.T) {
	var patch models.ConnectionPatch
	err := decodeBody(bodyRequest(`[1, 2]`), updateConnectionValidator, &patch)

	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "body", verr.Fields[0].Field)
}

func TestDecodeBody_TooLarge(t *testing.T) {
	big := `{"query": "` + strings.Repeat("a", maxBodyBytes) + `"}`
	var patch models.DatasetPatch
	err := decodeBody(bodyRequest(big), updateDatasetValidator, &patch)

	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestDecodeBody_ReportsEachFieldOnce(t *testing.T) {
	var req TestConnectionRequest
	err := decodeBody(bodyRequest(`{"type": "api", "port": "abc"}`), testConnectionValidator, &req)

	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "port", verr.Fields[0].Field)
}

func TestDecodeBody_IgnoresUnknownProperties(t *testing.T) {
	var req TestConnectionRequest
	err := decodeBody(bodyRequest(`{"type": "api", "apiUrl": "https://x", "extra": 1}`), testConnectionValidator, &req)

	require.NoError(t, err)
	assert.Equal(t, "api", req.Type)
	assert.Equal(t, "https://x", req.APIURL)
}
