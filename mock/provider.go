// Package mock provides test doubles for refine interfaces using function fields.
package mock

import (
	"context"

	"github.com/refinekit/refine"
)

// Interface compliance check.
var _ refine.Provider = (*Provider)(nil)

// Provider is a test double for refine.Provider.
// Set EnhanceFn before calling Enhance.
type Provider struct {
	EnhanceFn func(ctx context.Context, req refine.Request) (refine.Stream, error)
}

// Enhance delegates to EnhanceFn.
func (p *Provider) Enhance(ctx context.Context, req refine.Request) (refine.Stream, error) {
	return p.EnhanceFn(ctx, req)
}
