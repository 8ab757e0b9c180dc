package crowdfunding

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonRequest(t *testing.T, method, body, userID string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != "" {
		c.Set("user_id", userID)
	}
	return c, rec
}

// The guard paths below reject before any database access, so these run in
// the plain unit suite. A failed guard writes the response itself and the
// handler returns nil without touching the loaded record.

func TestUpdateInvalidID(t *testing.T) {
	c, rec := jsonRequest(t, http.MethodPut, `{"title":"x"}`, uuid.New().String())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	require.NotPanics(t, func() {
		require.NoError(t, Update(c))
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteInvalidID(t *testing.T) {
	c, rec := jsonRequest(t, http.MethodDelete, "", uuid.New().String())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	require.NotPanics(t, func() {
		require.NoError(t, Delete(c))
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateUnauthorized(t *testing.T) {
	c, rec := jsonRequest(t, http.MethodPut, `{"title":"x"}`, "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	require.NoError(t, Update(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRatingInvalidID(t *testing.T) {
	c, rec := jsonRequest(t, http.MethodGet, "", "")
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	require.NoError(t, Rating(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
