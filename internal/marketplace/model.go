package marketplace

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Service categories, mirrored by the crowdfunding side.
var Categories = []string{
	"BUSINESS", "ARTS", "FUN", "SPORTS", "EDUCATION", "HOME", "TECH", "OTHER",
}

const (
	TypeProvide = "PROVIDE"
	TypeRequest = "REQUEST"
)

// ValidCategory reports whether c is one of the fixed service categories.
func ValidCategory(c string) bool {
	for _, cat := range Categories {
		if c == cat {
			return true
		}
	}
	return false
}

// ValidServiceType reports whether t is PROVIDE or REQUEST.
func ValidServiceType(t string) bool {
	return t == TypeProvide || t == TypeRequest
}

// Service is the full projection returned by get/list/search, with the
// creator's display name or the crowdfunding title joined in.
type Service struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Category          string    `json:"category"`
	Location          string    `json:"location,omitempty"`
	AcceptableRadius  *int      `json:"acceptable_radius,omitempty"`
	MygrantValue      int64     `json:"mygrant_value"`
	ServiceType       string    `json:"service_type"`
	Repeatable        bool      `json:"repeatable"`
	CreatorID         *string   `json:"creator_id,omitempty"`
	ProviderName      *string   `json:"provider_name,omitempty"`
	CrowdfundingID    *string   `json:"crowdfunding_id,omitempty"`
	CrowdfundingTitle *string   `json:"crowdfunding_title,omitempty"`
	Deleted           bool      `json:"deleted"`
	DateCreated       time.Time `json:"date_created"`
}

// OfferSummary is one pending offer as shown to the service creator.
type OfferSummary struct {
	ServiceID     string    `json:"service_id"`
	CandidateType string    `json:"candidate_type"`
	CandidateID   string    `json:"candidate_id"`
	CandidateName string    `json:"candidate_name"`
	Status        string    `json:"status"`
	DateProposed  time.Time `json:"date_proposed"`
}

// CreateServiceRequest is the payload for PUT /services.
type CreateServiceRequest struct {
	Title            string `json:"title" validate:"required,max=200"`
	Description      string `json:"description" validate:"max=2000"`
	Category         string `json:"category" validate:"required"`
	Location         string `json:"location"`
	AcceptableRadius *int   `json:"acceptable_radius" validate:"omitempty,gte=0"`
	MygrantValue     int64  `json:"mygrant_value" validate:"required,gt=0"`
	ServiceType      string `json:"service_type" validate:"required"`
	Repeatable       bool   `json:"repeatable"`
	CrowdfundingID   string `json:"crowdfunding_id"`
}

// EditServiceRequest carries sparse updates: nil fields keep prior values.
type EditServiceRequest struct {
	Title            *string `json:"title" validate:"omitempty,max=200"`
	Description      *string `json:"description" validate:"omitempty,max=2000"`
	Category         *string `json:"category"`
	Location         *string `json:"location"`
	AcceptableRadius *int    `json:"acceptable_radius" validate:"omitempty,gte=0"`
	MygrantValue     *int64  `json:"mygrant_value" validate:"omitempty,gt=0"`
	ServiceType      *string `json:"service_type"`
	Repeatable       *bool   `json:"repeatable"`
}

// MaxPageItems caps page size for listing; it is also the default.
const MaxPageItems = 50

// ClampItems normalizes an items-per-page value into [1, MaxPageItems].
func ClampItems(items int) int {
	if items <= 0 || items > MaxPageItems {
		return MaxPageItems
	}
	return items
}

// NumPages returns ceil(count/items) for the active-service page count.
func NumPages(count, items int) int {
	if count <= 0 {
		return 0
	}
	return int(math.Ceil(float64(count) / float64(items)))
}

// CandidatePays decides which side spends mygrants for a service: the effort
// receiver pays. For a PROVIDE service the creator does the work, so the
// candidate pays; for a REQUEST service the candidate does the work, so the
// creator pays.
func CandidatePays(serviceType string) bool {
	return serviceType == TypeProvide
}
