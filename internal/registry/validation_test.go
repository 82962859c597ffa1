package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorMessage(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "path: is required", (&ValidationError{Field: "path", Message: "is required"}).Error())
	assert.Equal(t, "bad input", (&ValidationError{Message: "bad input"}).Error())
}

func TestValidateStructReportsJSONNames(t *testing.T) {
	t.Parallel()
	err := validateStruct(FeatureInput{Name: "x"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, "code", verr.Field)
	assert.Equal(t, "is required", verr.Message)

	assert.NoError(t, validateStruct(FeatureInput{Code: "A", Name: "B"}))
}
