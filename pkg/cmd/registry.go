// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"log/slog"

	"github.com/xde-mcp/sim-sub005/pkg/registry"
)

// NewRegistry builds the block registry with the built-in block
// configurations loaded.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)
	registry.RegisterDefaultBlocks(reg)

	return reg
}
