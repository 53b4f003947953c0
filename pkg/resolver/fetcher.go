package resolver

//go:generate mockgen -source=fetcher.go -destination=mocks/mock_fetcher.go -package=mocks

import (
	"context"

	"github.com/matzehuels/pget/pkg/registry"
)

// Fetcher returns every published version of a package.
//
// *registry.Client is the production implementation. ResolveVersions must be
// safe for concurrent use and should return ctx.Err() once ctx is done.
type Fetcher interface {
	ResolveVersions(ctx context.Context, name string) (registry.VersionMap, error)
}
