package marketplace

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/mygrant-hub/mygrant-api/internal/actor"
	"github.com/mygrant-hub/mygrant-api/internal/alerts"
	"github.com/mygrant-hub/mygrant-api/internal/db"
	"github.com/mygrant-hub/mygrant-api/internal/httperr"
	"github.com/mygrant-hub/mygrant-api/internal/wallet"
)

type instanceRecord struct {
	ID                      string     `json:"id"`
	ServiceID               string     `json:"service_id"`
	OfferID                 string     `json:"offer_id"`
	CandidateUserID         *string    `json:"candidate_user_id,omitempty"`
	CandidateCrowdfundingID *string    `json:"candidate_crowdfunding_id,omitempty"`
	DateScheduled           time.Time  `json:"date_scheduled"`
	CreatorRating           *int       `json:"creator_rating,omitempty"`
	CandidateRating         *int       `json:"candidate_rating,omitempty"`
	MygrantsReleased        bool       `json:"mygrants_released"`
}

func fetchInstance(c echo.Context, id string) (*instanceRecord, error) {
	var i instanceRecord
	err := db.Conn.QueryRow(c.Request().Context(),
		`SELECT id, service_id, offer_id, candidate_user_id, candidate_crowdfunding_id,
                date_scheduled, creator_rating, candidate_rating, mygrants_released
         FROM service_instances WHERE id = $1`, id,
	).Scan(&i.ID, &i.ServiceID, &i.OfferID, &i.CandidateUserID, &i.CandidateCrowdfundingID,
		&i.DateScheduled, &i.CreatorRating, &i.CandidateRating, &i.MygrantsReleased)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// GetInstance returns one scheduled service instance. Visible to the service
// creator and the candidate only.
// GET /services/instance/:id
func GetInstance(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	instanceID := c.Param("id")
	if _, err := uuid.Parse(instanceID); err != nil {
		return httperr.BadRequest(c, "invalid instance id")
	}

	inst, err := fetchInstance(c, instanceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httperr.NotFound(c, "service instance not found")
		}
		return httperr.Internal(c, "failed to fetch service instance")
	}

	ctx := c.Request().Context()
	svc, err := fetchService(ctx, inst.ServiceID)
	if err != nil {
		return httperr.Internal(c, "failed to fetch service")
	}
	owner, err := ownerUserID(ctx, svc)
	if err != nil {
		return httperr.Internal(c, "failed to resolve service owner")
	}
	candidate, err := actor.FromIDs(deref(inst.CandidateUserID), deref(inst.CandidateCrowdfundingID))
	if err != nil {
		return httperr.Internal(c, "corrupt instance record")
	}
	candUserID, _, _ := actorContact(ctx, candidate)
	if uid != owner && uid != candUserID {
		return httperr.Forbidden(c, "not a party to this service instance")
	}

	return c.JSON(http.StatusOK, inst)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// RateInstance records the caller's side of the instance rating. The first
// rating on an instance releases the escrowed mygrants to the effort giver;
// the same side rating twice is a conflict. Both steps run guarded so
// concurrent raters cannot double-rate or double-release.
// PUT /services/instance/:id
func RateInstance(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	instanceID := c.Param("id")
	if _, err := uuid.Parse(instanceID); err != nil {
		return httperr.BadRequest(c, "invalid instance id")
	}

	var req struct {
		Rating         int    `json:"rating"`
		CrowdfundingID string `json:"crowdfunding_id"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest(c, "invalid request")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return httperr.BadRequest(c, "rating must be between 1 and 5")
	}

	inst, err := fetchInstance(c, instanceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httperr.NotFound(c, "service instance not found")
		}
		return httperr.Internal(c, "failed to fetch service instance")
	}

	ctx := c.Request().Context()
	svc, err := fetchService(ctx, inst.ServiceID)
	if err != nil {
		return httperr.Internal(c, "failed to fetch service")
	}

	act, resolved := resolveActorOr(c, uid, req.CrowdfundingID)
	if !resolved {
		return nil
	}

	var ratingColumn string
	switch {
	case act.Matches(inst.CandidateUserID, inst.CandidateCrowdfundingID):
		ratingColumn = "candidate_rating"
	case act.Matches(svc.CreatorID, svc.CrowdfundingID):
		ratingColumn = "creator_rating"
	default:
		return httperr.Forbidden(c, "not a party to this service instance")
	}

	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		return httperr.Internal(c, "transaction start failed")
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx,
		`UPDATE service_instances SET `+ratingColumn+` = $2
         WHERE id = $1 AND `+ratingColumn+` IS NULL`,
		instanceID, req.Rating,
	)
	if err != nil {
		return httperr.Internal(c, "could not record rating")
	}
	if ct.RowsAffected() == 0 {
		return httperr.Conflict(c, "this side has already rated the instance")
	}

	ct, err = tx.Exec(ctx,
		`UPDATE service_instances SET mygrants_released = TRUE
         WHERE id = $1 AND mygrants_released = FALSE`,
		instanceID,
	)
	if err != nil {
		return httperr.Internal(c, "could not mark release")
	}
	if ct.RowsAffected() == 1 {
		candidate, err := actor.FromIDs(deref(inst.CandidateUserID), deref(inst.CandidateCrowdfundingID))
		if err != nil {
			return httperr.Internal(c, "corrupt instance record")
		}
		payer, payee := escrowParties(svc, candidate)
		if err := wallet.ReleaseTx(ctx, tx, payer, payee, svc.MygrantValue, instanceID); err != nil {
			return httperr.Internal(c, "could not release escrowed mygrants")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return httperr.Internal(c, "commit failed")
	}

	// Notify the other side (best-effort)
	other := ownerActor(svc)
	if ratingColumn == "creator_rating" {
		if cand, err := actor.FromIDs(deref(inst.CandidateUserID), deref(inst.CandidateCrowdfundingID)); err == nil {
			other = cand
		}
	}
	otherID, otherEmail, _ := actorContact(ctx, other)
	if otherID != "" {
		ref := instanceID
		meta := "{}"
		_ = alerts.CreateNotification(otherID, "instance:rated", "Your service exchange was rated", svc.Title, &ref, &meta)
	}
	if otherEmail != "" {
		_ = alerts.EnqueueInstanceRated(instanceID, svc.Title, otherEmail, req.Rating)
	}

	return c.JSON(http.StatusOK, echo.Map{"instance_id": instanceID})
}

// ListInstances returns the caller's instances, as creator or candidate.
// GET /services/instances
func ListInstances(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	rows, err := db.Conn.Query(c.Request().Context(),
		`SELECT i.id, i.service_id, i.offer_id, i.candidate_user_id, i.candidate_crowdfunding_id,
                i.date_scheduled, i.creator_rating, i.candidate_rating, i.mygrants_released
         FROM service_instances i
         JOIN services s ON s.id = i.service_id
         LEFT JOIN crowdfundings scf ON scf.id = s.crowdfunding_id
         LEFT JOIN crowdfundings ccf ON ccf.id = i.candidate_crowdfunding_id
         WHERE s.creator_id = $1 OR scf.creator_id = $1
            OR i.candidate_user_id = $1 OR ccf.creator_id = $1
         ORDER BY i.date_scheduled DESC`,
		uid,
	)
	if err != nil {
		return httperr.Internal(c, "could not fetch service instances")
	}
	defer rows.Close()

	instances := []instanceRecord{}
	for rows.Next() {
		var i instanceRecord
		if err := rows.Scan(&i.ID, &i.ServiceID, &i.OfferID, &i.CandidateUserID, &i.CandidateCrowdfundingID,
			&i.DateScheduled, &i.CreatorRating, &i.CandidateRating, &i.MygrantsReleased); err != nil {
			return httperr.Internal(c, "failed to parse instance record")
		}
		instances = append(instances, i)
	}

	return c.JSON(http.StatusOK, echo.Map{"instances": instances})
}
