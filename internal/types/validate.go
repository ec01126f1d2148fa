package types

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks a record's struct tags at a pipeline boundary.
func Validate(v any) error {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid %T: %w", v, err)
	}
	return nil
}
