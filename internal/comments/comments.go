package comments

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

// Comment is one thread entry, with the sender's display name joined in.
type Comment struct {
	ID         string    `json:"id"`
	ServiceID  string    `json:"service_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Message    string    `json:"message"`
	InReplyTo  *string   `json:"in_reply_to,omitempty"`
	Edited     bool      `json:"edited"`
	DatePosted time.Time `json:"date_posted"`
}

// List returns a service's comment thread, oldest first.
// GET /services/:id/comments
func List(c echo.Context) error {
	serviceID := c.Param("id")
	if _, err := uuid.Parse(serviceID); err != nil {
		return httperr.BadRequest(c, "invalid service id")
	}

	rows, err := db.Conn.Query(c.Request().Context(),
		`SELECT cm.id, cm.service_id, cm.sender_id, u.name, cm.message,
                cm.in_reply_to, cm.edited, cm.date_posted
         FROM comments cm
         JOIN users u ON u.id = cm.sender_id
         WHERE cm.service_id = $1
         ORDER BY cm.date_posted ASC`,
		serviceID,
	)
	if err != nil {
		return httperr.Internal(c, "could not fetch comments")
	}
	defer rows.Close()

	list := []Comment{}
	for rows.Next() {
		var cm Comment
		if err := rows.Scan(&cm.ID, &cm.ServiceID, &cm.SenderID, &cm.SenderName,
			&cm.Message, &cm.InReplyTo, &cm.Edited, &cm.DatePosted); err != nil {
			return httperr.Internal(c, "failed to parse comment record")
		}
		list = append(list, cm)
	}

	return c.JSON(http.StatusOK, echo.Map{"comments": list})
}

// Create posts a comment on a service. When in_reply_to is set the comment
// attaches to the parent's service, which wins over the path id.
// POST /services/:id/comments
func Create(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	serviceID := c.Param("id")
	if _, err := uuid.Parse(serviceID); err != nil {
		return httperr.BadRequest(c, "invalid service id")
	}

	var req struct {
		Message   string  `json:"message"`
		InReplyTo *string `json:"in_reply_to"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest(c, "invalid request")
	}
	if req.Message == "" {
		return httperr.BadRequest(c, "message is required")
	}

	ctx := c.Request().Context()

	var parentSenderID string
	if req.InReplyTo != nil {
		if _, err := uuid.Parse(*req.InReplyTo); err != nil {
			return httperr.BadRequest(c, "invalid in_reply_to id")
		}
		err := db.Conn.QueryRow(ctx,
			`SELECT service_id, sender_id FROM comments WHERE id = $1`, *req.InReplyTo,
		).Scan(&serviceID, &parentSenderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return httperr.BadRequest(c, "in_reply_to does not name an existing comment")
			}
			return httperr.Internal(c, "failed to fetch parent comment")
		}
	} else {
		var exists bool
		err := db.Conn.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM services WHERE id = $1)`, serviceID,
		).Scan(&exists)
		if err != nil {
			return httperr.Internal(c, "failed to fetch service")
		}
		if !exists {
			return httperr.NotFound(c, "service not found")
		}
	}

	cm := Comment{
		ID:         uuid.New().String(),
		ServiceID:  serviceID,
		SenderID:   uid,
		Message:    req.Message,
		InReplyTo:  req.InReplyTo,
		DatePosted: time.Now(),
	}
	_ = db.Conn.QueryRow(ctx,
		`SELECT name FROM users WHERE id = $1`, uid).Scan(&cm.SenderName)
	if _, err := db.Conn.Exec(ctx,
		`INSERT INTO comments (id, service_id, sender_id, message, in_reply_to, date_posted)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		cm.ID, cm.ServiceID, cm.SenderID, cm.Message, cm.InReplyTo, cm.DatePosted,
	); err != nil {
		return httperr.Internal(c, "could not create comment")
	}

	broadcastNewComment(serviceID, cm)

	// Notify the parent's sender on replies (best-effort)
	if parentSenderID != "" && parentSenderID != uid {
		ref := cm.ID
		meta := "{}"
		_ = alerts.CreateNotification(parentSenderID, "comment:reply", "New reply to your comment", cm.Message, &ref, &meta)

		var title, email string
		if err := db.Conn.QueryRow(ctx,
			`SELECT s.title, u.email FROM services s, users u
             WHERE s.id = $1 AND u.id = $2`,
			serviceID, parentSenderID,
		).Scan(&title, &email); err == nil {
			_ = alerts.EnqueueCommentReply(serviceID, title, email, cm.Message)
		}
	}

	return c.JSON(http.StatusOK, cm)
}

// Edit rewrites a comment's message. Sender only; marks the comment edited.
// PUT /services/:id/comments/:cid
func Edit(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	commentID := c.Param("cid")
	if _, err := uuid.Parse(commentID); err != nil {
		return httperr.BadRequest(c, "invalid comment id")
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest(c, "invalid request")
	}
	if req.Message == "" {
		return httperr.BadRequest(c, "message is required")
	}

	ctx := c.Request().Context()
	var serviceID, senderID string
	err := db.Conn.QueryRow(ctx,
		`SELECT service_id, sender_id FROM comments WHERE id = $1`, commentID,
	).Scan(&serviceID, &senderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httperr.NotFound(c, "comment not found")
		}
		return httperr.Internal(c, "failed to fetch comment")
	}
	if senderID != uid {
		return httperr.Forbidden(c, "only the sender can edit a comment")
	}

	if _, err := db.Conn.Exec(ctx,
		`UPDATE comments SET message = $2, edited = TRUE WHERE id = $1`,
		commentID, req.Message,
	); err != nil {
		return httperr.Internal(c, "could not update comment")
	}

	broadcastCommentEdited(serviceID, echo.Map{"comment_id": commentID, "message": req.Message})

	return c.JSON(http.StatusOK, echo.Map{"comment_id": commentID})
}

// Delete removes a comment. Direct replies are reparented to the deleted
// comment's own parent so the thread stays connected.
// DELETE /services/:id/comments/:cid
func Delete(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	commentID := c.Param("cid")
	if _, err := uuid.Parse(commentID); err != nil {
		return httperr.BadRequest(c, "invalid comment id")
	}

	ctx := c.Request().Context()
	var serviceID, senderID string
	var parent *string
	err := db.Conn.QueryRow(ctx,
		`SELECT service_id, sender_id, in_reply_to FROM comments WHERE id = $1`, commentID,
	).Scan(&serviceID, &senderID, &parent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httperr.NotFound(c, "comment not found")
		}
		return httperr.Internal(c, "failed to fetch comment")
	}
	if senderID != uid {
		return httperr.Forbidden(c, "only the sender can delete a comment")
	}

	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		return httperr.Internal(c, "transaction start failed")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE comments SET in_reply_to = $2 WHERE in_reply_to = $1`,
		commentID, parent,
	); err != nil {
		return httperr.Internal(c, "could not reparent replies")
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM comments WHERE id = $1`, commentID,
	); err != nil {
		return httperr.Internal(c, "could not delete comment")
	}
	if err := tx.Commit(ctx); err != nil {
		return httperr.Internal(c, "commit failed")
	}

	broadcastCommentDeleted(serviceID, commentID)

	return c.JSON(http.StatusOK, echo.Map{"comment_id": commentID})
}
