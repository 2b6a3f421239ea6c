package graph

import (
	"context"
	"fmt"

	"github.com/roach88/d1lod/internal/ir"
	"github.com/roach88/d1lod/internal/namespace"
	"github.com/roach88/d1lod/internal/sesame"
)

// Open provisions the repository behind every graph, reconciles each
// repository's namespace table with desired, and returns a coordinator over
// them. Graphs naming the same repository share one client and one
// namespace table. Any provisioning or namespace read failure is fatal.
func Open(ctx context.Context, srv *sesame.Server, repos map[ir.Graph]string, desired map[string]string, opts ...Option) (*Coordinator, error) {
	byName := make(map[string]*sesame.Repository)
	clients := make(map[ir.Graph]Client, len(ir.Graphs))
	conflicts := 0
	for _, g := range ir.Graphs {
		name := repos[g]
		if name == "" {
			return nil, fmt.Errorf("graph %s: no repository configured", g)
		}
		repo, ok := byName[name]
		if !ok {
			repo = srv.Repository(name, namespace.New())
			if err := repo.Create(ctx); err != nil {
				return nil, fmt.Errorf("provision %s repository %q: %w", g, name, err)
			}
			cs, err := repo.SyncNamespaces(ctx, desired)
			if err != nil {
				return nil, fmt.Errorf("provision %s repository %q: %w", g, name, err)
			}
			conflicts += len(cs)
			byName[name] = repo
		}
		clients[g] = repo
	}

	c, err := New(clients, opts...)
	if err != nil {
		return nil, err
	}
	c.addConflicts(conflicts)
	c.logger.Info("graphs opened",
		"host", srv.Host(),
		"organizations", repos[ir.GraphOrganizations],
		"people", repos[ir.GraphPeople],
		"datasets", repos[ir.GraphDatasets],
		"namespace_conflicts", conflicts)
	return c, nil
}
