package comments

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

func createTestUser(t *testing.T) string {
	t.Helper()
	userID := uuid.New().String()
	_, err := db.Conn.Exec(context.Background(),
		`INSERT INTO users (id, name, email, password) VALUES ($1, 'Commenter', $2, 'x')`,
		userID, fmt.Sprintf("%s@test.local", userID[:8]))
	require.NoError(t, err)
	return userID
}

func createTestService(t *testing.T, creatorID string) string {
	t.Helper()
	serviceID := uuid.New().String()
	_, err := db.Conn.Exec(context.Background(),
		`INSERT INTO services (id, creator_id, title, description, category, mygrant_value, service_type)
         VALUES ($1, $2, 'Thread host', '', 'OTHER', 1, 'PROVIDE')`,
		serviceID, creatorID)
	require.NoError(t, err)
	return serviceID
}

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

func postComment(t *testing.T, serviceID, userID, body string) Comment {
	t.Helper()
	c, rec := jsonRequest(t, http.MethodPost, body, userID)
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, Create(c))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cm Comment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cm))
	return cm
}

func TestReplyAttachesToParentService(t *testing.T) {
	setupTestDB(t)
	creator := createTestUser(t)
	serviceA := createTestService(t, creator)
	serviceB := createTestService(t, creator)

	parent := postComment(t, serviceA, creator, `{"message":"original"}`)

	// Reply posted against service B's path, but the parent lives on A:
	// the parent's service wins.
	reply := postComment(t, serviceB, creator,
		fmt.Sprintf(`{"message":"reply","in_reply_to":%q}`, parent.ID))
	assert.Equal(t, serviceA, reply.ServiceID)
}

func TestReplyToMissingParentIsBadRequest(t *testing.T) {
	setupTestDB(t)
	creator := createTestUser(t)
	serviceID := createTestService(t, creator)

	// A well-formed uuid that names no comment: the client sent a reference
	// it could never have obtained, so this is a malformed request rather
	// than a missing resource.
	body := fmt.Sprintf(`{"message":"reply","in_reply_to":%q}`, uuid.New().String())
	c, rec := jsonRequest(t, http.MethodPost, body, creator)
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	require.NoError(t, Create(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestDeleteReparentsReplies(t *testing.T) {
	setupTestDB(t)
	creator := createTestUser(t)
	serviceID := createTestService(t, creator)

	root := postComment(t, serviceID, creator, `{"message":"root"}`)
	middle := postComment(t, serviceID, creator,
		fmt.Sprintf(`{"message":"middle","in_reply_to":%q}`, root.ID))
	leaf := postComment(t, serviceID, creator,
		fmt.Sprintf(`{"message":"leaf","in_reply_to":%q}`, middle.ID))

	c, rec := jsonRequest(t, http.MethodDelete, "", creator)
	c.SetParamNames("cid")
	c.SetParamValues(middle.ID)
	require.NoError(t, Delete(c))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var newParent *string
	err := db.Conn.QueryRow(context.Background(),
		`SELECT in_reply_to FROM comments WHERE id = $1`, leaf.ID).Scan(&newParent)
	require.NoError(t, err)
	require.NotNil(t, newParent)
	assert.Equal(t, root.ID, *newParent, "replies move up to the deleted comment's parent")
}

func TestEditMarksEdited(t *testing.T) {
	setupTestDB(t)
	creator := createTestUser(t)
	serviceID := createTestService(t, creator)
	cm := postComment(t, serviceID, creator, `{"message":"before"}`)

	c, rec := jsonRequest(t, http.MethodPut, `{"message":"after"}`, creator)
	c.SetParamNames("cid")
	c.SetParamValues(cm.ID)
	require.NoError(t, Edit(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var message string
	var edited bool
	err := db.Conn.QueryRow(context.Background(),
		`SELECT message, edited FROM comments WHERE id = $1`, cm.ID).Scan(&message, &edited)
	require.NoError(t, err)
	assert.Equal(t, "after", message)
	assert.True(t, edited)

	// Only the sender may edit
	other := createTestUser(t)
	c, rec = jsonRequest(t, http.MethodPut, `{"message":"hijack"}`, other)
	c.SetParamNames("cid")
	c.SetParamValues(cm.ID)
	require.NoError(t, Edit(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
