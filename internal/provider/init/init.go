// Package init handles provider initialization to avoid import cycles
package init

import (
	"fmt"

	"github.com/Digital-Shane/episode-matcher/internal/provider"
	"github.com/Digital-Shane/episode-matcher/internal/provider/tmdb"
	"github.com/Digital-Shane/episode-matcher/internal/provider/tvdb"
)

// LoadBuiltinProviders registers the built-in metadata services.
func LoadBuiltinProviders(r *provider.Registry) error {
	if err := r.Register(tvdb.Name, tvdb.Factory); err != nil {
		return fmt.Errorf("failed to register TVDB provider: %w", err)
	}
	if err := r.Register(tmdb.Name, tmdb.Factory); err != nil {
		return fmt.Errorf("failed to register TMDB provider: %w", err)
	}
	return nil
}
