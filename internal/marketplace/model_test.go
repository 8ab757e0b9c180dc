package marketplace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidCategory(t *testing.T) {
	for _, cat := range Categories {
		assert.True(t, ValidCategory(cat), cat)
	}
	assert.False(t, ValidCategory("GARDENING"))
	assert.False(t, ValidCategory(""))
	assert.False(t, ValidCategory("tech"), "categories are case sensitive")
}

func TestValidServiceType(t *testing.T) {
	assert.True(t, ValidServiceType(TypeProvide))
	assert.True(t, ValidServiceType(TypeRequest))
	assert.False(t, ValidServiceType("provide"))
	assert.False(t, ValidServiceType(""))
}

func TestClampItems(t *testing.T) {
	assert.Equal(t, MaxPageItems, ClampItems(0))
	assert.Equal(t, MaxPageItems, ClampItems(-3))
	assert.Equal(t, MaxPageItems, ClampItems(MaxPageItems+1))
	assert.Equal(t, 1, ClampItems(1))
	assert.Equal(t, MaxPageItems, ClampItems(MaxPageItems))
	assert.Equal(t, 25, ClampItems(25))
}

func TestNumPages(t *testing.T) {
	assert.Equal(t, 0, NumPages(0, 10))
	assert.Equal(t, 1, NumPages(1, 10))
	assert.Equal(t, 1, NumPages(10, 10))
	assert.Equal(t, 2, NumPages(11, 10))
	assert.Equal(t, 3, NumPages(101, 50))
}

func TestCandidatePays(t *testing.T) {
	// Whoever receives the effort pays: the candidate on PROVIDE services,
	// the creator on REQUEST services.
	assert.True(t, CandidatePays(TypeProvide))
	assert.False(t, CandidatePays(TypeRequest))
}

func TestCreateServiceRequestValidation(t *testing.T) {
	valid := CreateServiceRequest{
		Title:        "Bike repair",
		Category:     "HOME",
		MygrantValue: 2,
		ServiceType:  TypeProvide,
	}
	assert.NoError(t, validate.Struct(&valid))

	missingTitle := valid
	missingTitle.Title = ""
	assert.Error(t, validate.Struct(&missingTitle))

	zeroValue := valid
	zeroValue.MygrantValue = 0
	assert.Error(t, validate.Struct(&zeroValue))

	negativeRadius := valid
	r := -1
	negativeRadius.AcceptableRadius = &r
	assert.Error(t, validate.Struct(&negativeRadius))
}

func TestEditServiceRequestValidation(t *testing.T) {
	empty := EditServiceRequest{}
	assert.NoError(t, validate.Struct(&empty), "all-nil sparse update is valid")

	bad := EditServiceRequest{}
	v := int64(0)
	bad.MygrantValue = &v
	assert.Error(t, validate.Struct(&bad))
}
