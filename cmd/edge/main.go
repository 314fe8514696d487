// Package main is the entrypoint for the edge session gateway.
// The edge terminates session cookies for server-rendered apps: it
// decodes and refreshes sessions, enforces the route policy, and
// proxies allowed requests upstream with the caller's identity.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aelexs/edge-session-gateway/internal/config"
	"github.com/aelexs/edge-session-gateway/internal/server"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return server.Run(ctx, server.Params{
		Name:           "edge",
		PortFromConfig: func(cfg *config.Config) int { return cfg.Edge.Port },
		Setup:          setup,
	}, nil)
}
