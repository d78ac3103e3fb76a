// Package geocode resolves a latitude/longitude to a human-readable place
// name. Resolution is best effort: callers treat an empty name or an error
// as "no location data" and never fail a request over it.
package geocode

import "context"

// Resolver turns coordinates into a place name. An empty name with a nil
// error means the position has no usable name (open ocean).
type Resolver interface {
	Resolve(ctx context.Context, lat, lon float64) (string, error)
}

// Noop always reports no location. Used when reverse geocoding is disabled.
type Noop struct{}

// Resolve implements Resolver.
func (Noop) Resolve(ctx context.Context, lat, lon float64) (string, error) {
	return "", nil
}
