package actor

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/mygrant-hub/mygrant-api/internal/db"
)

// Kind tags which side of the user/crowdfunding split an Actor is on.
type Kind string

const (
	KindUser         Kind = "user"
	KindCrowdfunding Kind = "crowdfunding"
)

// Actor is a resolved acting identity: a plain user, or a crowdfunding
// project the authenticated user is allowed to act for. Every handler works
// with one Actor instead of a pair of nullable id fields.
type Actor struct {
	Kind Kind
	ID   string
}

var (
	ErrForbidden = errors.New("not authorized to act for this crowdfunding")
	ErrNotFound  = errors.New("crowdfunding not found")
	ErrBothIDs   = errors.New("exactly one of user id and crowdfunding id must be set")
)

// FromIDs builds an Actor from an XOR pair of ids, as carried by request
// payloads (partner_id / crowdfunding_id). Exactly one must be non-empty.
func FromIDs(userID, crowdfundingID string) (Actor, error) {
	if (userID == "") == (crowdfundingID == "") {
		return Actor{}, ErrBothIDs
	}
	if userID != "" {
		return Actor{Kind: KindUser, ID: userID}, nil
	}
	return Actor{Kind: KindCrowdfunding, ID: crowdfundingID}, nil
}

// FromKind builds an Actor from a path-style kind string ("user" or
// "crowdfunding") and an id.
func FromKind(kind, id string) (Actor, error) {
	switch Kind(kind) {
	case KindUser, KindCrowdfunding:
		return Actor{Kind: Kind(kind), ID: id}, nil
	}
	return Actor{}, ErrBothIDs
}

// Resolve determines who is acting. With no crowdfunding id the actor is the
// authenticated user; otherwise the user must be the project's creator.
func Resolve(ctx context.Context, authenticatedUserID, crowdfundingID string) (Actor, error) {
	if crowdfundingID == "" {
		return Actor{Kind: KindUser, ID: authenticatedUserID}, nil
	}

	var creatorID string
	err := db.Conn.QueryRow(ctx,
		`SELECT creator_id FROM crowdfundings WHERE id = $1`, crowdfundingID,
	).Scan(&creatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Actor{}, ErrNotFound
		}
		return Actor{}, err
	}
	if creatorID != authenticatedUserID {
		return Actor{}, ErrForbidden
	}
	return Actor{Kind: KindCrowdfunding, ID: crowdfundingID}, nil
}

// IsUser reports whether the actor is a plain user.
func (a Actor) IsUser() bool { return a.Kind == KindUser }

// Columns splits the actor back into the nullable (user_id, crowdfunding_id)
// column pair used by the schema's XOR checks.
func (a Actor) Columns() (userID, crowdfundingID *string) {
	if a.Kind == KindUser {
		return &a.ID, nil
	}
	return nil, &a.ID
}

// Matches reports whether a scanned XOR column pair denotes this actor.
func (a Actor) Matches(userID, crowdfundingID *string) bool {
	if a.Kind == KindUser {
		return userID != nil && *userID == a.ID
	}
	return crowdfundingID != nil && *crowdfundingID == a.ID
}
