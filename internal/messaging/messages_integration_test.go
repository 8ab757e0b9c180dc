package messaging

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

func createTestUser(t *testing.T, name string) string {
	t.Helper()
	userID := uuid.New().String()
	_, err := db.Conn.Exec(context.Background(),
		`INSERT INTO users (id, name, email, password) VALUES ($1, $2, $3, 'x')`,
		userID, name, fmt.Sprintf("%s@test.local", userID[:8]))
	require.NoError(t, err)
	return userID
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

func TestSendMessageValidation(t *testing.T) {
	// Guard paths: no database access needed.
	uid := uuid.New().String()

	c, rec := jsonRequest(t, http.MethodPost, `{"content":"hi"}`, uid)
	c.SetParamNames("user")
	c.SetParamValues("not-a-uuid")
	require.NoError(t, SendMessage(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = jsonRequest(t, http.MethodPost, `{"content":"hi"}`, uid)
	c.SetParamNames("user")
	c.SetParamValues(uid)
	require.NoError(t, SendMessage(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "messaging yourself is rejected")

	c, rec = jsonRequest(t, http.MethodPost, `{"content":"hi"}`, "")
	c.SetParamNames("user")
	c.SetParamValues(uuid.New().String())
	require.NoError(t, SendMessage(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDirectMessageFlow(t *testing.T) {
	setupTestDB(t)
	alice := createTestUser(t, "Alice")
	bob := createTestUser(t, "Bob")

	// Alice writes to Bob
	c, rec := jsonRequest(t, http.MethodPost, `{"content":"got an hour spare?"}`, alice)
	c.SetParamNames("user")
	c.SetParamValues(bob)
	require.NoError(t, SendMessage(c))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sent Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sent))
	assert.Equal(t, alice, sent.SenderID)
	assert.Equal(t, bob, sent.RecipientID)

	// Bob's inbox shows one unread conversation with Alice
	c, rec = jsonRequest(t, http.MethodGet, "", bob)
	require.NoError(t, GetConversations(c))
	require.Equal(t, http.StatusOK, rec.Code)
	var inbox struct {
		Conversations []Conversation `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inbox))
	require.Len(t, inbox.Conversations, 1)
	assert.Equal(t, alice, inbox.Conversations[0].OtherUserID)
	assert.Equal(t, "Alice", inbox.Conversations[0].OtherUserName)
	assert.Equal(t, "got an hour spare?", inbox.Conversations[0].LastMessage)
	assert.Equal(t, 1, inbox.Conversations[0].Unread)

	// Reading the thread returns the message and clears the unread count
	c, rec = jsonRequest(t, http.MethodGet, "", bob)
	c.SetParamNames("user")
	c.SetParamValues(alice)
	require.NoError(t, GetMessages(c))
	require.Equal(t, http.StatusOK, rec.Code)
	var thread struct {
		Messages []Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &thread))
	require.Len(t, thread.Messages, 1)
	assert.Equal(t, "got an hour spare?", thread.Messages[0].Content)

	c, rec = jsonRequest(t, http.MethodGet, "", bob)
	require.NoError(t, GetConversations(c))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inbox))
	require.Len(t, inbox.Conversations, 1)
	assert.Equal(t, 0, inbox.Conversations[0].Unread)

	// Bob replies; Alice's inbox picks the reply as the latest message
	c, rec = jsonRequest(t, http.MethodPost, `{"content":"sure, tomorrow"}`, bob)
	c.SetParamNames("user")
	c.SetParamValues(alice)
	require.NoError(t, SendMessage(c))
	require.Equal(t, http.StatusOK, rec.Code)

	c, rec = jsonRequest(t, http.MethodGet, "", alice)
	require.NoError(t, GetConversations(c))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inbox))
	require.Len(t, inbox.Conversations, 1)
	assert.Equal(t, bob, inbox.Conversations[0].OtherUserID)
	assert.Equal(t, "sure, tomorrow", inbox.Conversations[0].LastMessage)
	assert.Equal(t, 1, inbox.Conversations[0].Unread)

	// Messaging a user that does not exist
	c, rec = jsonRequest(t, http.MethodPost, `{"content":"hello?"}`, alice)
	c.SetParamNames("user")
	c.SetParamValues(uuid.New().String())
	require.NoError(t, SendMessage(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
