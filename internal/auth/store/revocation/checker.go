package revocation

import "context"

type lookup interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Checker exposes any revocation list to the auth middleware.
type Checker struct {
	list lookup
}

func NewChecker(list lookup) *Checker {
	return &Checker{list: list}
}

func (c *Checker) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return c.list.IsRevoked(ctx, jti)
}
