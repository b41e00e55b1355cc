package auth

import (
	"context"
	"errors"
)

// Chain tries each validator in order. A definitive rejection moves on to
// the next validator; the first identity wins. If no validator accepts, an
// ErrUnavailable from any of them is preferred over ErrInvalidToken so
// callers can tell an outage from bad credentials.
type Chain []Validator

// NewChain combines validators, dropping nil entries.
func NewChain(validators ...Validator) Chain {
	var c Chain
	for _, v := range validators {
		if v != nil {
			c = append(c, v)
		}
	}
	return c
}

func (c Chain) Validate(ctx context.Context, creds Credentials) (*Identity, error) {
	var unavailable error
	for _, v := range c {
		id, err := v.Validate(ctx, creds)
		switch {
		case err == nil && id != nil:
			return id, nil
		case errors.Is(err, ErrUnavailable):
			unavailable = err
		}
	}
	if unavailable != nil {
		return nil, unavailable
	}
	return nil, ErrInvalidToken
}
