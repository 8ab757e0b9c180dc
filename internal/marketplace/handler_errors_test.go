package marketplace

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests exercise the guard paths that reject a request before any
// database access, so they run without MYGRANT_TEST_DATABASE_URL. Each one
// must produce exactly one well-formed error body and a nil handler error;
// the helpers behind these handlers write the response themselves and report
// failure through their ok result.

func TestDeclineOfferInvalidServiceID(t *testing.T) {
	body := fmt.Sprintf(`{"partner_id":%q}`, uuid.New().String())
	c, rec := jsonRequest(t, http.MethodPost, "/", body, uuid.New().String())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	require.NotPanics(t, func() {
		require.NoError(t, DeclineOffer(c))
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, "validation", resp["kind"])
}

func TestAcceptOfferInvalidServiceID(t *testing.T) {
	body := fmt.Sprintf(`{"partner_id":%q,"date_scheduled":"2026-10-01"}`, uuid.New().String())
	c, rec := jsonRequest(t, http.MethodPost, "/", body, uuid.New().String())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	require.NotPanics(t, func() {
		require.NoError(t, AcceptOffer(c))
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, "validation", resp["kind"])
}

func TestOfferDecisionRequiresExactlyOneCandidate(t *testing.T) {
	body := fmt.Sprintf(`{"partner_id":%q,"crowdfunding_id":%q}`,
		uuid.New().String(), uuid.New().String())
	c, rec := jsonRequest(t, http.MethodPost, "/", body, uuid.New().String())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	require.NoError(t, DeclineOffer(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOfferDecisionUnauthorized(t *testing.T) {
	c, rec := jsonRequest(t, http.MethodPost, "/", `{}`, "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	require.NoError(t, AcceptOffer(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServiceImageHandlersInvalidServiceID(t *testing.T) {
	c, rec := jsonRequest(t, http.MethodPut, "/", "", uuid.New().String())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	require.NotPanics(t, func() {
		require.NoError(t, CreateServiceImage(c))
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = jsonRequest(t, http.MethodDelete, "/", "", uuid.New().String())
	c.SetParamNames("id", "image")
	c.SetParamValues("not-a-uuid", uuid.New().String())
	require.NotPanics(t, func() {
		require.NoError(t, DeleteServiceImage(c))
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
