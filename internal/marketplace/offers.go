package marketplace

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"

	"github.com/mygrant-hub/mygrant-api/internal/actor"
	"github.com/mygrant-hub/mygrant-api/internal/alerts"
	"github.com/mygrant-hub/mygrant-api/internal/db"
	"github.com/mygrant-hub/mygrant-api/internal/httperr"
	"github.com/mygrant-hub/mygrant-api/internal/wallet"
)

const uniqueViolation = "23505"

// actorContact resolves the user behind an actor (the user itself, or the
// crowdfunding's creator) plus email and display name, for notifications.
// Best-effort: failures yield zero values.
func actorContact(ctx context.Context, a actor.Actor) (userID, email, name string) {
	if a.IsUser() {
		_ = db.Conn.QueryRow(ctx,
			`SELECT id, email, name FROM users WHERE id = $1`, a.ID,
		).Scan(&userID, &email, &name)
		return
	}
	_ = db.Conn.QueryRow(ctx,
		`SELECT u.id, u.email, cf.title
         FROM crowdfundings cf JOIN users u ON u.id = cf.creator_id
         WHERE cf.id = $1`, a.ID,
	).Scan(&userID, &email, &name)
	return
}

// resolveActorOr maps actor resolution failures onto error responses. A false
// return means the response has already been written and the handler must
// stop; the httperr responders return the (nil) result of writing the body,
// so their return value cannot signal failure to a caller.
func resolveActorOr(c echo.Context, uid, crowdfundingID string) (actor.Actor, bool) {
	act, err := actor.Resolve(c.Request().Context(), uid, crowdfundingID)
	if err != nil {
		switch {
		case errors.Is(err, actor.ErrNotFound):
			httperr.NotFound(c, "crowdfunding not found")
		case errors.Is(err, actor.ErrForbidden):
			httperr.Forbidden(c, "not the crowdfunding's creator")
		default:
			httperr.Internal(c, "could not resolve actor")
		}
		return actor.Actor{}, false
	}
	return act, true
}

// MakeOffer records a pending offer from the acting candidate against a
// service. The partial unique indexes reject a second active offer for the
// same pair, so concurrent attempts settle in the database.
// POST /services/:id/offers
func MakeOffer(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	serviceID := c.Param("id")
	if _, err := uuid.Parse(serviceID); err != nil {
		return httperr.BadRequest(c, "invalid service id")
	}

	var req struct {
		CrowdfundingID string `json:"crowdfunding_id"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest(c, "invalid request")
	}

	candidate, ok := resolveActorOr(c, uid, req.CrowdfundingID)
	if !ok {
		return nil
	}

	ctx := c.Request().Context()
	svc, err := fetchService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httperr.NotFound(c, "service not found")
		}
		return httperr.Internal(c, "failed to fetch service")
	}
	if svc.Deleted {
		return httperr.BadRequest(c, "service no longer accepts offers")
	}
	if candidate.Matches(svc.CreatorID, svc.CrowdfundingID) {
		return httperr.Forbidden(c, "cannot offer on your own service")
	}

	candidateUserID, candidateCrowdfundingID := candidate.Columns()
	offerID := uuid.New().String()
	_, err = db.Conn.Exec(ctx,
		`INSERT INTO offers (id, service_id, candidate_user_id, candidate_crowdfunding_id, status, date_proposed)
         VALUES ($1, $2, $3, $4, 'pending', $5)`,
		offerID, serviceID, candidateUserID, candidateCrowdfundingID, time.Now(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return httperr.Conflict(c, "an active offer for this service already exists")
		}
		return httperr.Internal(c, "could not create offer")
	}

	// Notify the service creator (best-effort)
	_, _, candidateName := actorContact(ctx, candidate)
	ownerID, ownerEmail, _ := actorContact(ctx, ownerActor(svc))
	if ownerID != "" {
		ref := offerID
		meta := "{}"
		_ = alerts.CreateNotification(ownerID, "offer:received", "New offer on your service", candidateName, &ref, &meta)
	}
	if ownerEmail != "" {
		_ = alerts.EnqueueOfferReceived(serviceID, svc.Title, candidateName, ownerEmail)
	}

	return c.JSON(http.StatusOK, echo.Map{"offer_id": offerID})
}

// ListOffers returns the pending offers on a service, visible only to its
// creator.
// GET /services/:id/offers
func ListOffers(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	serviceID := c.Param("id")
	if _, err := uuid.Parse(serviceID); err != nil {
		return httperr.BadRequest(c, "invalid service id")
	}

	ctx := c.Request().Context()
	svc, err := fetchService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httperr.NotFound(c, "service not found")
		}
		return httperr.Internal(c, "failed to fetch service")
	}
	owner, err := ownerUserID(ctx, svc)
	if err != nil {
		return httperr.Internal(c, "failed to resolve service owner")
	}
	if owner != uid {
		return httperr.Forbidden(c, "only the service creator can view offers")
	}

	rows, err := db.Conn.Query(ctx,
		`SELECT o.service_id, o.candidate_user_id, u.name, o.candidate_crowdfunding_id, cf.title,
                o.status, o.date_proposed
         FROM offers o
         LEFT JOIN users u ON u.id = o.candidate_user_id
         LEFT JOIN crowdfundings cf ON cf.id = o.candidate_crowdfunding_id
         WHERE o.service_id = $1 AND o.status = 'pending'
         ORDER BY o.date_proposed ASC`,
		serviceID,
	)
	if err != nil {
		return httperr.Internal(c, "failed to fetch offers")
	}
	defer rows.Close()

	offers := []OfferSummary{}
	for rows.Next() {
		var (
			o                OfferSummary
			userID, userName *string
			cfID, cfTitle    *string
		)
		if err := rows.Scan(&o.ServiceID, &userID, &userName, &cfID, &cfTitle, &o.Status, &o.DateProposed); err != nil {
			return httperr.Internal(c, "failed to parse offer record")
		}
		if userID != nil {
			o.CandidateType = string(actor.KindUser)
			o.CandidateID = *userID
			if userName != nil {
				o.CandidateName = *userName
			}
		} else {
			o.CandidateType = string(actor.KindCrowdfunding)
			o.CandidateID = *cfID
			if cfTitle != nil {
				o.CandidateName = *cfTitle
			}
		}
		offers = append(offers, o)
	}

	return c.JSON(http.StatusOK, echo.Map{"offers": offers})
}

// GetOffer returns a single pending offer by candidate, visible only to the
// service creator.
// GET /services/:id/offers/:type/:candidate
func GetOffer(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	serviceID := c.Param("id")
	if _, err := uuid.Parse(serviceID); err != nil {
		return httperr.BadRequest(c, "invalid service id")
	}
	candidate, err := actor.FromKind(c.Param("type"), c.Param("candidate"))
	if err != nil {
		return httperr.BadRequest(c, "candidate type must be user or crowdfunding")
	}
	if _, err := uuid.Parse(candidate.ID); err != nil {
		return httperr.BadRequest(c, "invalid candidate id")
	}

	ctx := c.Request().Context()
	svc, err := fetchService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httperr.NotFound(c, "service not found")
		}
		return httperr.Internal(c, "failed to fetch service")
	}
	owner, err := ownerUserID(ctx, svc)
	if err != nil {
		return httperr.Internal(c, "failed to resolve service owner")
	}
	if owner != uid {
		return httperr.Forbidden(c, "only the service creator can view offers")
	}

	candidateUserID, candidateCrowdfundingID := candidate.Columns()
	var o OfferSummary
	o.ServiceID = serviceID
	o.CandidateType = string(candidate.Kind)
	o.CandidateID = candidate.ID
	_, _, o.CandidateName = actorContact(ctx, candidate)
	err = db.Conn.QueryRow(ctx,
		`SELECT status, date_proposed FROM offers
         WHERE service_id = $1
           AND candidate_user_id IS NOT DISTINCT FROM $2
           AND candidate_crowdfunding_id IS NOT DISTINCT FROM $3
           AND status = 'pending'`,
		serviceID, candidateUserID, candidateCrowdfundingID,
	).Scan(&o.Status, &o.DateProposed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httperr.NotFound(c, "no pending offer from this candidate")
		}
		return httperr.Internal(c, "failed to fetch offer")
	}

	return c.JSON(http.StatusOK, o)
}

type offerDecisionRequest struct {
	PartnerID      string `json:"partner_id"`
	CrowdfundingID string `json:"crowdfunding_id"`
	DateScheduled  string `json:"date_scheduled"`
}

// loadOfferForDecision authenticates the caller as the service creator and
// returns the service, the candidate actor and the parsed request body. A
// false return means the error response has already been written and the
// handler must return nil without touching the other results.
func loadOfferForDecision(c echo.Context) (*Service, actor.Actor, offerDecisionRequest, bool) {
	var req offerDecisionRequest

	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		httperr.Unauthorized(c, "unauthorized")
		return nil, actor.Actor{}, req, false
	}

	serviceID := c.Param("id")
	if _, err := uuid.Parse(serviceID); err != nil {
		httperr.BadRequest(c, "invalid service id")
		return nil, actor.Actor{}, req, false
	}

	if err := c.Bind(&req); err != nil {
		httperr.BadRequest(c, "invalid request")
		return nil, actor.Actor{}, req, false
	}
	candidate, err := actor.FromIDs(req.PartnerID, req.CrowdfundingID)
	if err != nil {
		httperr.BadRequest(c, "exactly one of partner_id and crowdfunding_id is required")
		return nil, actor.Actor{}, req, false
	}

	ctx := c.Request().Context()
	svc, err := fetchService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httperr.NotFound(c, "service not found")
		} else {
			httperr.Internal(c, "failed to fetch service")
		}
		return nil, actor.Actor{}, req, false
	}
	if svc.Deleted {
		httperr.NotFound(c, "service not found")
		return nil, actor.Actor{}, req, false
	}
	owner, err := ownerUserID(ctx, svc)
	if err != nil {
		httperr.Internal(c, "failed to resolve service owner")
		return nil, actor.Actor{}, req, false
	}
	if owner != uid {
		httperr.Forbidden(c, "only the service creator can decide offers")
		return nil, actor.Actor{}, req, false
	}

	return svc, candidate, req, true
}

// AcceptOffer flips a pending offer to accepted, creates the scheduled
// service instance and holds the payer's mygrants in escrow, all in one
// transaction. A concurrent second accept loses the status guard and gets a
// conflict.
// POST /services/:id/offers/accept
func AcceptOffer(c echo.Context) error {
	svc, candidate, req, ok := loadOfferForDecision(c)
	if !ok {
		return nil
	}

	if req.DateScheduled == "" {
		return httperr.BadRequest(c, "date_scheduled is required")
	}
	scheduled, err := parseSearchDate(req.DateScheduled)
	if err != nil {
		return httperr.BadRequest(c, "date_scheduled must be an RFC3339 or YYYY-MM-DD date")
	}

	ctx := c.Request().Context()
	candidateUserID, candidateCrowdfundingID := candidate.Columns()

	var offerID, status string
	err = db.Conn.QueryRow(ctx,
		`SELECT id, status FROM offers
         WHERE service_id = $1
           AND candidate_user_id IS NOT DISTINCT FROM $2
           AND candidate_crowdfunding_id IS NOT DISTINCT FROM $3
           AND status <> 'declined'`,
		svc.ID, candidateUserID, candidateCrowdfundingID,
	).Scan(&offerID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httperr.NotFound(c, "no offer from this candidate")
		}
		return httperr.Internal(c, "failed to fetch offer")
	}
	if status != "pending" {
		return httperr.Conflict(c, "offer already accepted")
	}

	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		return httperr.Internal(c, "transaction start failed")
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx,
		`UPDATE offers SET status = 'accepted', date_scheduled = $2
         WHERE id = $1 AND status = 'pending'`,
		offerID, *scheduled,
	)
	if err != nil {
		return httperr.Internal(c, "could not accept offer")
	}
	if ct.RowsAffected() == 0 {
		// Lost the race against a concurrent accept.
		return httperr.Conflict(c, "offer already accepted")
	}

	instanceID := uuid.New().String()
	_, err = tx.Exec(ctx,
		`INSERT INTO service_instances (id, service_id, offer_id, candidate_user_id, candidate_crowdfunding_id, date_scheduled)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		instanceID, svc.ID, offerID, candidateUserID, candidateCrowdfundingID, *scheduled,
	)
	if err != nil {
		return httperr.Internal(c, "could not create service instance")
	}

	payer, _ := escrowParties(svc, candidate)
	if err := wallet.HoldTx(ctx, tx, payer, svc.MygrantValue, instanceID); err != nil {
		if errors.Is(err, wallet.ErrInsufficientBalance) {
			return httperr.Conflict(c, "insufficient mygrant balance to cover this service")
		}
		return httperr.Internal(c, "could not hold mygrants in escrow")
	}

	if err := tx.Commit(ctx); err != nil {
		return httperr.Internal(c, "commit failed")
	}

	// Notify the candidate (best-effort)
	candID, candEmail, _ := actorContact(ctx, candidate)
	if candID != "" {
		ref := instanceID
		meta := "{}"
		_ = alerts.CreateNotification(candID, "offer:accepted", "Your offer was accepted", svc.Title, &ref, &meta)
	}
	if candEmail != "" {
		_ = alerts.EnqueueOfferAccepted(svc.ID, svc.Title, candEmail, *scheduled)
	}

	return c.JSON(http.StatusOK, echo.Map{"instance_id": instanceID})
}

// DeclineOffer marks a pending offer declined. The row stays for history;
// the candidate may offer again afterwards.
// POST /services/:id/offers/decline
func DeclineOffer(c echo.Context) error {
	svc, candidate, _, ok := loadOfferForDecision(c)
	if !ok {
		return nil
	}

	ctx := c.Request().Context()
	candidateUserID, candidateCrowdfundingID := candidate.Columns()

	ct, err := db.Conn.Exec(ctx,
		`UPDATE offers SET status = 'declined'
         WHERE service_id = $1
           AND candidate_user_id IS NOT DISTINCT FROM $2
           AND candidate_crowdfunding_id IS NOT DISTINCT FROM $3
           AND status = 'pending'`,
		svc.ID, candidateUserID, candidateCrowdfundingID,
	)
	if err != nil {
		return httperr.Internal(c, "could not decline offer")
	}
	if ct.RowsAffected() == 0 {
		return httperr.NotFound(c, "no pending offer from this candidate")
	}

	// Notify the candidate (best-effort)
	candID, candEmail, _ := actorContact(ctx, candidate)
	if candID != "" {
		meta := "{}"
		_ = alerts.CreateNotification(candID, "offer:declined", "Your offer was declined", svc.Title, nil, &meta)
	}
	if candEmail != "" {
		_ = alerts.EnqueueOfferDeclined(svc.ID, svc.Title, candEmail)
	}

	return c.JSON(http.StatusOK, echo.Map{"service_id": svc.ID})
}

// escrowParties returns who pays and who receives for a service: the effort
// receiver pays the effort giver.
func escrowParties(svc *Service, candidate actor.Actor) (payer, payee actor.Actor) {
	owner := ownerActor(svc)
	if CandidatePays(svc.ServiceType) {
		return candidate, owner
	}
	return owner, candidate
}
