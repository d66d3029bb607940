package config

import "context"

// Loader reads configuration from a format-specific source.
type Loader interface {
	Load(ctx context.Context, paths ...string) (*Model, error)
}
