package payment

import (
	"fmt"

	nanoid "github.com/jaevor/go-nanoid"
)

// ReferenceGenerator returns merchant order references.
type ReferenceGenerator func() string

// NewReferenceGenerator returns a generator of numeric references of the given length.
func NewReferenceGenerator(length int) (ReferenceGenerator, error) {
	gen, err := nanoid.CustomASCII("0123456789", length)
	if err != nil {
		return nil, fmt.Errorf("reference generator: %w", err)
	}
	return ReferenceGenerator(gen), nil
}
