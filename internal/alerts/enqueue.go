package alerts

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// ensureClient returns a usable client instance
func ensureClient() *asynq.Client {
	if client == nil {
		Init()
	}
	return client
}

// EnqueueWelcomeEmail schedules a welcome email to the user
func EnqueueWelcomeEmail(userID, email, name string) error {
	base := os.Getenv("APP_URL")
	if base == "" {
		base = "http://localhost:3000"
	}
	base = strings.TrimRight(base, "/")

	subject := fmt.Sprintf("Welcome to mygrant, %s!", name)
	body := fmt.Sprintf("Hi %s, thanks for joining mygrant. Your signup bonus hours are already in your wallet.\n\nOpen mygrant: %s", name, base)

	env := EmailEnvelope{To: email, Subject: subject, Body: body}
	payload := WelcomeEmailPayload{UserID: userID, Name: name, Email: email, Envelope: env, SentAt: time.Now()}
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(TaskWelcomeEmail, b)
	_, err := ensureClient().Enqueue(task, asynq.Queue("emails"))
	return err
}

// EnqueueOfferReceived notifies a service creator of a new offer
func EnqueueOfferReceived(serviceID, serviceTitle, candidateName, creatorEmail string) error {
	env := EmailEnvelope{
		To:      creatorEmail,
		Subject: "New offer on your service",
		Body:    fmt.Sprintf("%s made an offer on \"%s\". Review it to accept or decline.", candidateName, serviceTitle),
	}
	payload := OfferReceivedPayload{ServiceID: serviceID, ServiceTitle: serviceTitle, CandidateName: candidateName, Email: creatorEmail, Envelope: env, SentAt: time.Now()}
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(TaskOfferReceived, b)
	_, err := ensureClient().Enqueue(task, asynq.Queue("emails"))
	return err
}

// EnqueueOfferAccepted notifies a candidate their offer was accepted
func EnqueueOfferAccepted(serviceID, serviceTitle, candidateEmail string, dateScheduled time.Time) error {
	env := EmailEnvelope{
		To:      candidateEmail,
		Subject: "Your offer was accepted",
		Body:    fmt.Sprintf("Your offer on \"%s\" was accepted. Scheduled for %s.", serviceTitle, dateScheduled.Format("2006-01-02")),
	}
	payload := OfferAcceptedPayload{ServiceID: serviceID, ServiceTitle: serviceTitle, Email: candidateEmail, DateScheduled: dateScheduled, Envelope: env, SentAt: time.Now()}
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(TaskOfferAccepted, b)
	_, err := ensureClient().Enqueue(task, asynq.Queue("emails"))
	return err
}

// EnqueueOfferDeclined notifies a candidate their offer was declined
func EnqueueOfferDeclined(serviceID, serviceTitle, candidateEmail string) error {
	env := EmailEnvelope{
		To:      candidateEmail,
		Subject: "Your offer was declined",
		Body:    fmt.Sprintf("Your offer on \"%s\" was declined. You can make a new offer at any time.", serviceTitle),
	}
	payload := OfferDeclinedPayload{ServiceID: serviceID, ServiceTitle: serviceTitle, Email: candidateEmail, Envelope: env, SentAt: time.Now()}
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(TaskOfferDeclined, b)
	_, err := ensureClient().Enqueue(task, asynq.Queue("emails"))
	return err
}

// EnqueueInstanceRated notifies the other party after a rating lands
func EnqueueInstanceRated(instanceID, serviceTitle, email string, rating int) error {
	env := EmailEnvelope{
		To:      email,
		Subject: "Your service exchange was rated",
		Body:    fmt.Sprintf("Your exchange on \"%s\" received a %d-star rating.", serviceTitle, rating),
	}
	payload := InstanceRatedPayload{InstanceID: instanceID, ServiceTitle: serviceTitle, Email: email, Rating: rating, Envelope: env, SentAt: time.Now()}
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(TaskInstanceRated, b)
	_, err := ensureClient().Enqueue(task, asynq.Queue("emails"))
	return err
}

// EnqueueCommentReply notifies a commenter of a reply
func EnqueueCommentReply(serviceID, serviceTitle, email, message string) error {
	env := EmailEnvelope{
		To:      email,
		Subject: "New reply to your comment",
		Body:    fmt.Sprintf("Someone replied to your comment on \"%s\":\n\n%s", serviceTitle, message),
	}
	payload := CommentReplyPayload{ServiceID: serviceID, ServiceTitle: serviceTitle, Email: email, Message: message, Envelope: env, SentAt: time.Now()}
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(TaskCommentReply, b)
	_, err := ensureClient().Enqueue(task, asynq.Queue("emails"))
	return err
}

// EnqueueMessageReceived notifies a user of a new direct message
func EnqueueMessageReceived(senderName, email, content string) error {
	env := EmailEnvelope{
		To:      email,
		Subject: fmt.Sprintf("New message from %s", senderName),
		Body:    fmt.Sprintf("%s sent you a message:\n\n%s", senderName, content),
	}
	payload := MessageReceivedPayload{SenderName: senderName, Email: email, Content: content, Envelope: env, SentAt: time.Now()}
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(TaskMessageReceived, b)
	_, err := ensureClient().Enqueue(task, asynq.Queue("emails"))
	return err
}
