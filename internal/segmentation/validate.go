package segmentation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ignite/audience-core/internal/domain"
)

// ErrInvalidFilter is returned when a filter payload is malformed.
var ErrInvalidFilter = errors.New("invalid filter")

var validate = validator.New()

// ValidateFilters checks the shape of filter payloads. It does not reject
// unknown condition types; those compile to match-all.
func ValidateFilters(filters []domain.FilterSpec) error {
	for i, f := range filters {
		if err := validate.Struct(f); err != nil {
			return fmt.Errorf("%w: filters[%d]: %s", ErrInvalidFilter, i, describe(err))
		}
	}
	return nil
}

// ValidateCriteria checks selection criteria payloads.
func ValidateCriteria(criteria []domain.SelectionCriterion) error {
	for i, c := range criteria {
		if err := validate.Struct(c); err != nil {
			return fmt.Errorf("%w: criteria[%d]: %s", ErrInvalidFilter, i, describe(err))
		}
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, ve := range verrs {
		parts = append(parts, ve.Field()+" "+ve.Tag())
	}
	return strings.Join(parts, ", ")
}
