package alerts

import "time"

// Task type constants
const (
	TaskWelcomeEmail  = "email:welcome"
	TaskOfferReceived = "email:offer_received"
	TaskOfferAccepted = "email:offer_accepted"
	TaskOfferDeclined = "email:offer_declined"
	TaskInstanceRated   = "email:instance_rated"
	TaskCommentReply    = "email:comment_reply"
	TaskMessageReceived = "email:message_received"
)

// Common envelope for email-like notifications
type EmailEnvelope struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Welcome email payload
type WelcomeEmailPayload struct {
	UserID   string        `json:"user_id"`
	Name     string        `json:"name"`
	Email    string        `json:"email"`
	Envelope EmailEnvelope `json:"envelope"`
	SentAt   time.Time     `json:"sent_at"`
}

// Offer received payload (sent to the service creator)
type OfferReceivedPayload struct {
	ServiceID     string        `json:"service_id"`
	ServiceTitle  string        `json:"service_title"`
	CandidateName string        `json:"candidate_name"`
	Email         string        `json:"email"`
	Envelope      EmailEnvelope `json:"envelope"`
	SentAt        time.Time     `json:"sent_at"`
}

// Offer accepted payload (sent to the candidate)
type OfferAcceptedPayload struct {
	ServiceID     string        `json:"service_id"`
	ServiceTitle  string        `json:"service_title"`
	Email         string        `json:"email"`
	DateScheduled time.Time     `json:"date_scheduled"`
	Envelope      EmailEnvelope `json:"envelope"`
	SentAt        time.Time     `json:"sent_at"`
}

// Offer declined payload (sent to the candidate)
type OfferDeclinedPayload struct {
	ServiceID    string        `json:"service_id"`
	ServiceTitle string        `json:"service_title"`
	Email        string        `json:"email"`
	Envelope     EmailEnvelope `json:"envelope"`
	SentAt       time.Time     `json:"sent_at"`
}

// Instance rated payload (sent to the other party)
type InstanceRatedPayload struct {
	InstanceID   string        `json:"instance_id"`
	ServiceTitle string        `json:"service_title"`
	Email        string        `json:"email"`
	Rating       int           `json:"rating"`
	Envelope     EmailEnvelope `json:"envelope"`
	SentAt       time.Time     `json:"sent_at"`
}

// Comment reply payload (sent to the parent comment's sender)
type CommentReplyPayload struct {
	ServiceID    string        `json:"service_id"`
	ServiceTitle string        `json:"service_title"`
	Email        string        `json:"email"`
	Message      string        `json:"message"`
	Envelope     EmailEnvelope `json:"envelope"`
	SentAt       time.Time     `json:"sent_at"`
}

// Direct message payload (sent to the recipient)
type MessageReceivedPayload struct {
	SenderName string        `json:"sender_name"`
	Email      string        `json:"email"`
	Content    string        `json:"content"`
	Envelope   EmailEnvelope `json:"envelope"`
	SentAt     time.Time     `json:"sent_at"`
}
