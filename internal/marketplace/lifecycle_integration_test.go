package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mygrant-hub/mygrant-api/internal/db"
)

// setupTestDB connects to the database named by MYGRANT_TEST_DATABASE_URL and
// ensures the schema. Tests are skipped when the variable is unset, so the
// default `go test ./...` run stays hermetic.
func setupTestDB(t *testing.T) {
	t.Helper()
	dsn := os.Getenv("MYGRANT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("MYGRANT_TEST_DATABASE_URL not set; skipping integration test")
	}
	if db.Conn == nil {
		db.Connect(dsn)
		db.EnsureSchema()
	}
}

func createTestUser(t *testing.T, balance int64) string {
	t.Helper()
	ctx := context.Background()
	userID := uuid.New().String()
	email := fmt.Sprintf("%s@test.local", userID[:8])
	_, err := db.Conn.Exec(ctx,
		`INSERT INTO users (id, name, email, password) VALUES ($1, $2, $3, 'x')`,
		userID, "Test User", email)
	require.NoError(t, err)
	_, err = db.Conn.Exec(ctx,
		`INSERT INTO wallets (id, user_id, balance) VALUES ($1, $2, $3)`,
		uuid.New().String(), userID, balance)
	require.NoError(t, err)
	return userID
}

func jsonRequest(t *testing.T, method, path, body, userID string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != "" {
		c.Set("user_id", userID)
	}
	return c, rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func walletState(t *testing.T, userID string) (balance, escrow int64) {
	t.Helper()
	err := db.Conn.QueryRow(context.Background(),
		`SELECT balance, escrow FROM wallets WHERE user_id = $1`, userID,
	).Scan(&balance, &escrow)
	require.NoError(t, err)
	return
}

func createTestService(t *testing.T, creatorID, serviceType string, value int64) string {
	t.Helper()
	body := fmt.Sprintf(
		`{"title":"Test service","category":"HOME","mygrant_value":%d,"service_type":"%s"}`,
		value, serviceType)
	c, rec := jsonRequest(t, http.MethodPut, "/services", body, creatorID)
	require.NoError(t, CreateService(c))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody(t, rec)["service_id"].(string)
}

func TestServiceLifecycle(t *testing.T) {
	setupTestDB(t)
	creator := createTestUser(t, 10)

	serviceID := createTestService(t, creator, TypeProvide, 3)

	// Fetch
	c, rec := jsonRequest(t, http.MethodGet, "/", "", "")
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, GetService(c))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Test service", body["title"])
	assert.Equal(t, float64(3), body["mygrant_value"])

	// Sparse edit: only the title changes
	c, rec = jsonRequest(t, http.MethodPut, "/", `{"title":"Renamed"}`, creator)
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, EditService(c))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	svc, err := fetchService(context.Background(), serviceID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", svc.Title)
	assert.Equal(t, int64(3), svc.MygrantValue, "unset fields keep prior values")

	// A stranger cannot edit
	stranger := createTestUser(t, 0)
	c, rec = jsonRequest(t, http.MethodPut, "/", `{"title":"Hijacked"}`, stranger)
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, EditService(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Soft delete: still fetchable, but edits turn into 404
	c, rec = jsonRequest(t, http.MethodDelete, "/", "", creator)
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, DeleteService(c))
	require.Equal(t, http.StatusOK, rec.Code)

	c, rec = jsonRequest(t, http.MethodGet, "/", "", "")
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, GetService(c))
	assert.Equal(t, http.StatusOK, rec.Code, "deleted services stay fetchable by id")

	c, rec = jsonRequest(t, http.MethodPut, "/", `{"title":"Again"}`, creator)
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, EditService(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOfferFlow(t *testing.T) {
	setupTestDB(t)
	creator := createTestUser(t, 10)
	candidate := createTestUser(t, 10)

	serviceID := createTestService(t, creator, TypeProvide, 4)

	// Self-offers are rejected
	c, rec := jsonRequest(t, http.MethodPost, "/", `{}`, creator)
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, MakeOffer(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// First offer lands
	c, rec = jsonRequest(t, http.MethodPost, "/", `{}`, candidate)
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, MakeOffer(c))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Second active offer for the same pair conflicts
	c, rec = jsonRequest(t, http.MethodPost, "/", `{}`, candidate)
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, MakeOffer(c))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Accept: instance created, candidate pays into escrow on a PROVIDE service
	acceptBody := fmt.Sprintf(`{"partner_id":%q,"date_scheduled":"2026-09-15"}`, candidate)
	c, rec = jsonRequest(t, http.MethodPost, "/", acceptBody, creator)
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, AcceptOffer(c))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	instanceID := decodeBody(t, rec)["instance_id"].(string)
	assert.NotEmpty(t, instanceID)

	balance, escrow := walletState(t, candidate)
	assert.Equal(t, int64(6), balance)
	assert.Equal(t, int64(4), escrow)

	// Accepting again conflicts
	c, rec = jsonRequest(t, http.MethodPost, "/", acceptBody, creator)
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, AcceptOffer(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeclineKeepsOfferRow(t *testing.T) {
	setupTestDB(t)
	creator := createTestUser(t, 10)
	candidate := createTestUser(t, 10)
	serviceID := createTestService(t, creator, TypeProvide, 2)

	c, rec := jsonRequest(t, http.MethodPost, "/", `{}`, candidate)
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, MakeOffer(c))
	require.Equal(t, http.StatusOK, rec.Code)

	// Only the creator may decide an offer; a stranger is turned away with a
	// single forbidden response.
	declineBody := fmt.Sprintf(`{"partner_id":%q}`, candidate)
	stranger := createTestUser(t, 0)
	c, rec = jsonRequest(t, http.MethodPost, "/", declineBody, stranger)
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NotPanics(t, func() {
		require.NoError(t, DeclineOffer(c))
	})
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	c, rec = jsonRequest(t, http.MethodPost, "/", declineBody, creator)
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, DeclineOffer(c))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var status string
	err := db.Conn.QueryRow(context.Background(),
		`SELECT status FROM offers WHERE service_id = $1 AND candidate_user_id = $2`,
		serviceID, candidate).Scan(&status)
	require.NoError(t, err)
	assert.Equal(t, "declined", status, "declined offers stay as audit rows")

	// The candidate can offer again after a decline
	c, rec = jsonRequest(t, http.MethodPost, "/", `{}`, candidate)
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, MakeOffer(c))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRatingReleasesEscrowOnce(t *testing.T) {
	setupTestDB(t)
	creator := createTestUser(t, 10)
	candidate := createTestUser(t, 10)
	serviceID := createTestService(t, creator, TypeRequest, 5)

	c, rec := jsonRequest(t, http.MethodPost, "/", `{}`, candidate)
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, MakeOffer(c))
	require.Equal(t, http.StatusOK, rec.Code)

	// REQUEST service: the creator receives the effort, so the creator pays.
	acceptBody := fmt.Sprintf(`{"partner_id":%q,"date_scheduled":"2026-09-20"}`, candidate)
	c, rec = jsonRequest(t, http.MethodPost, "/", acceptBody, creator)
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, AcceptOffer(c))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	instanceID := decodeBody(t, rec)["instance_id"].(string)

	balance, escrow := walletState(t, creator)
	require.Equal(t, int64(5), balance)
	require.Equal(t, int64(5), escrow)

	// First rating (creator side) releases the hold to the candidate
	c, rec = jsonRequest(t, http.MethodPut, "/", `{"rating":5}`, creator)
	c.SetParamNames("id")
	c.SetParamValues(instanceID)
	require.NoError(t, RateInstance(c))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	balance, escrow = walletState(t, creator)
	assert.Equal(t, int64(5), balance)
	assert.Equal(t, int64(0), escrow)
	balance, _ = walletState(t, candidate)
	assert.Equal(t, int64(15), balance)

	// Same side cannot rate twice
	c, rec = jsonRequest(t, http.MethodPut, "/", `{"rating":4}`, creator)
	c.SetParamNames("id")
	c.SetParamValues(instanceID)
	require.NoError(t, RateInstance(c))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The other side still can, without a second release
	c, rec = jsonRequest(t, http.MethodPut, "/", `{"rating":3}`, candidate)
	c.SetParamNames("id")
	c.SetParamValues(instanceID)
	require.NoError(t, RateInstance(c))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	balance, _ = walletState(t, candidate)
	assert.Equal(t, int64(15), balance, "second rating must not double-release")
}

func TestRatingBounds(t *testing.T) {
	setupTestDB(t)
	user := createTestUser(t, 0)

	for _, rating := range []int{0, 6, -1} {
		c, rec := jsonRequest(t, http.MethodPut, "/",
			fmt.Sprintf(`{"rating":%d}`, rating), user)
		c.SetParamNames("id")
		c.SetParamValues(uuid.New().String())
		require.NoError(t, RateInstance(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "rating %d", rating)
	}
}

func TestNumPagesAndListing(t *testing.T) {
	setupTestDB(t)
	creator := createTestUser(t, 10)
	for i := 0; i < 3; i++ {
		createTestService(t, creator, TypeProvide, 1)
	}

	c, rec := jsonRequest(t, http.MethodGet, "/?items=2", "", "")
	require.NoError(t, NumPagesHandler(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var pages int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pages))
	assert.GreaterOrEqual(t, pages, 2, "page count is returned as a bare integer")

	c, rec = jsonRequest(t, http.MethodGet, "/?page=1&items=2", "", "")
	require.NoError(t, ListServices(c))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	services := body["services"].([]any)
	assert.LessOrEqual(t, len(services), 2)
}
