package messaging

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/mygrant-hub/mygrant-api/internal/alerts"
	"github.com/mygrant-hub/mygrant-api/internal/db"
	"github.com/mygrant-hub/mygrant-api/internal/httperr"
)

// Message is one direct message between two users.
type Message struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"sender_id"`
	RecipientID string     `json:"recipient_id"`
	Content     string     `json:"content"`
	DateSent    time.Time  `json:"date_sent"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// Conversation is one entry in the caller's inbox: the other user, the most
// recent message exchanged with them and how many of theirs are still unread.
type Conversation struct {
	OtherUserID   string    `json:"other_user_id"`
	OtherUserName string    `json:"other_user_name"`
	LastMessage   string    `json:"last_message"`
	LastDateSent  time.Time `json:"last_date_sent"`
	Unread        int       `json:"unread"`
}

// SendMessage delivers a direct message to another user.
// POST /messages/:user
func SendMessage(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	otherID := c.Param("user")
	if _, err := uuid.Parse(otherID); err != nil {
		return httperr.BadRequest(c, "invalid user id")
	}
	if otherID == uid {
		return httperr.BadRequest(c, "cannot message yourself")
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&req); err != nil || req.Content == "" {
		return httperr.BadRequest(c, "content is required")
	}

	ctx := c.Request().Context()
	var recipientEmail string
	err := db.Conn.QueryRow(ctx,
		`SELECT email FROM users WHERE id = $1`, otherID,
	).Scan(&recipientEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httperr.NotFound(c, "user not found")
		}
		return httperr.Internal(c, "failed to fetch recipient")
	}

	msg := Message{
		ID:          uuid.New().String(),
		SenderID:    uid,
		RecipientID: otherID,
		Content:     req.Content,
		DateSent:    time.Now(),
	}
	if _, err := db.Conn.Exec(ctx,
		`INSERT INTO messages (id, sender_id, recipient_id, content, date_sent)
         VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.SenderID, msg.RecipientID, msg.Content, msg.DateSent,
	); err != nil {
		return httperr.Internal(c, "could not send message")
	}

	// Notify the recipient (best-effort)
	var senderName string
	_ = db.Conn.QueryRow(ctx, `SELECT name FROM users WHERE id = $1`, uid).Scan(&senderName)
	ref := msg.ID
	meta := "{}"
	_ = alerts.CreateNotification(otherID, "message:received", "New message", msg.Content, &ref, &meta)
	if recipientEmail != "" {
		_ = alerts.EnqueueMessageReceived(senderName, recipientEmail, msg.Content)
	}

	return c.JSON(http.StatusOK, msg)
}

// GetMessages returns the thread between the caller and another user, oldest
// first, and marks the other user's messages as read.
// GET /messages/:user
func GetMessages(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	otherID := c.Param("user")
	if _, err := uuid.Parse(otherID); err != nil {
		return httperr.BadRequest(c, "invalid user id")
	}

	ctx := c.Request().Context()
	rows, err := db.Conn.Query(ctx,
		`SELECT id, sender_id, recipient_id, content, date_sent, read_at
         FROM messages
         WHERE (sender_id = $1 AND recipient_id = $2)
            OR (sender_id = $2 AND recipient_id = $1)
         ORDER BY date_sent ASC`,
		uid, otherID,
	)
	if err != nil {
		return httperr.Internal(c, "could not fetch messages")
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.DateSent, &m.ReadAt); err != nil {
			return httperr.Internal(c, "failed to parse message record")
		}
		msgs = append(msgs, m)
	}

	// Fetching the thread counts as reading it.
	_, _ = db.Conn.Exec(ctx,
		`UPDATE messages SET read_at = NOW()
         WHERE sender_id = $1 AND recipient_id = $2 AND read_at IS NULL`,
		otherID, uid,
	)

	return c.JSON(http.StatusOK, echo.Map{"messages": msgs})
}

// GetConversations lists the caller's inbox, most recent thread first.
// GET /messages
func GetConversations(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	ctx := c.Request().Context()
	rows, err := db.Conn.Query(ctx,
		`SELECT conv.other_id, u.name, conv.content, conv.date_sent
         FROM (
             SELECT DISTINCT ON (m.other_id) m.other_id, m.content, m.date_sent
             FROM (
                 SELECT CASE WHEN sender_id = $1 THEN recipient_id ELSE sender_id END AS other_id,
                        content, date_sent
                 FROM messages
                 WHERE sender_id = $1 OR recipient_id = $1
             ) m
             ORDER BY m.other_id, m.date_sent DESC
         ) conv
         JOIN users u ON u.id = conv.other_id
         ORDER BY conv.date_sent DESC`,
		uid,
	)
	if err != nil {
		return httperr.Internal(c, "could not fetch conversations")
	}
	defer rows.Close()

	conversations := []Conversation{}
	for rows.Next() {
		var cv Conversation
		if err := rows.Scan(&cv.OtherUserID, &cv.OtherUserName, &cv.LastMessage, &cv.LastDateSent); err != nil {
			return httperr.Internal(c, "failed to parse conversation record")
		}
		conversations = append(conversations, cv)
	}

	unread, err := db.Conn.Query(ctx,
		`SELECT sender_id, COUNT(*) FROM messages
         WHERE recipient_id = $1 AND read_at IS NULL
         GROUP BY sender_id`,
		uid,
	)
	if err != nil {
		return httperr.Internal(c, "could not fetch unread counts")
	}
	defer unread.Close()

	counts := map[string]int{}
	for unread.Next() {
		var sender string
		var n int
		if err := unread.Scan(&sender, &n); err != nil {
			return httperr.Internal(c, "failed to parse unread count")
		}
		counts[sender] = n
	}
	for i := range conversations {
		conversations[i].Unread = counts[conversations[i].OtherUserID]
	}

	return c.JSON(http.StatusOK, echo.Map{"conversations": conversations})
}
