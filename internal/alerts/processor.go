package alerts

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/hibiken/asynq"
)

var (
	client *asynq.Client
	server *asynq.Server
)

// Init starts the Asynq server and initializes a shared client.
func Init() {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		if host := os.Getenv("REDIS_HOST"); host != "" {
			port := os.Getenv("REDIS_PORT")
			if port == "" {
				port = "6379"
			}
			redisAddr = host + ":" + port
		} else {
			// Default to docker-compose service name if running in container; otherwise localhost
			redisAddr = "redis:6379"
			if os.Getenv("RUN_LOCAL") == "true" {
				redisAddr = "127.0.0.1:6379"
			}
		}
	}

	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client = asynq.NewClient(opts)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskWelcomeEmail, handleWelcomeEmail)
	mux.HandleFunc(TaskOfferReceived, handleOfferReceived)
	mux.HandleFunc(TaskOfferAccepted, handleOfferAccepted)
	mux.HandleFunc(TaskOfferDeclined, handleOfferDeclined)
	mux.HandleFunc(TaskInstanceRated, handleInstanceRated)
	mux.HandleFunc(TaskCommentReply, handleCommentReply)
	mux.HandleFunc(TaskMessageReceived, handleMessageReceived)

	server = asynq.NewServer(opts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			"emails": 10,
		},
	})
	go func() {
		if err := server.Run(mux); err != nil {
			log.Printf("Asynq server stopped: %v", err)
		}
	}()

	log.Printf("Asynq initialized (addr=%s)", redisAddr)
}

// Close releases client and stops server.
func Close() {
	if client != nil {
		_ = client.Close()
	}
	if server != nil {
		server.Shutdown()
	}
}

func handleWelcomeEmail(_ context.Context, t *asynq.Task) error {
	var p WelcomeEmailPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	if err := SendEmail(p.Email, p.Envelope.Subject, p.Envelope.Body); err != nil {
		log.Printf("[notify][ERROR] WelcomeEmail send failed: %v", err)
		return err
	}
	log.Printf("[notify] WelcomeEmail sent -> to=%s user=%s", p.Email, p.UserID)
	return nil
}

func handleOfferReceived(_ context.Context, t *asynq.Task) error {
	var p OfferReceivedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	if err := SendEmail(p.Email, p.Envelope.Subject, p.Envelope.Body); err != nil {
		log.Printf("[notify][ERROR] OfferReceived send failed: %v", err)
		return err
	}
	log.Printf("[notify] OfferReceived sent -> service=%s to=%s", p.ServiceID, p.Email)
	return nil
}

func handleOfferAccepted(_ context.Context, t *asynq.Task) error {
	var p OfferAcceptedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	if err := SendEmail(p.Email, p.Envelope.Subject, p.Envelope.Body); err != nil {
		log.Printf("[notify][ERROR] OfferAccepted send failed: %v", err)
		return err
	}
	log.Printf("[notify] OfferAccepted sent -> service=%s to=%s", p.ServiceID, p.Email)
	return nil
}

func handleOfferDeclined(_ context.Context, t *asynq.Task) error {
	var p OfferDeclinedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	if err := SendEmail(p.Email, p.Envelope.Subject, p.Envelope.Body); err != nil {
		log.Printf("[notify][ERROR] OfferDeclined send failed: %v", err)
		return err
	}
	log.Printf("[notify] OfferDeclined sent -> service=%s to=%s", p.ServiceID, p.Email)
	return nil
}

func handleInstanceRated(_ context.Context, t *asynq.Task) error {
	var p InstanceRatedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	if err := SendEmail(p.Email, p.Envelope.Subject, p.Envelope.Body); err != nil {
		log.Printf("[notify][ERROR] InstanceRated send failed: %v", err)
		return err
	}
	log.Printf("[notify] InstanceRated sent -> instance=%s to=%s", p.InstanceID, p.Email)
	return nil
}

func handleCommentReply(_ context.Context, t *asynq.Task) error {
	var p CommentReplyPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	if err := SendEmail(p.Email, p.Envelope.Subject, p.Envelope.Body); err != nil {
		log.Printf("[notify][ERROR] CommentReply send failed: %v", err)
		return err
	}
	log.Printf("[notify] CommentReply sent -> service=%s to=%s", p.ServiceID, p.Email)
	return nil
}

func handleMessageReceived(_ context.Context, t *asynq.Task) error {
	var p MessageReceivedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	if err := SendEmail(p.Email, p.Envelope.Subject, p.Envelope.Body); err != nil {
		log.Printf("[notify][ERROR] MessageReceived send failed: %v", err)
		return err
	}
	log.Printf("[notify] MessageReceived sent -> to=%s", p.Email)
	return nil
}
