package identity

import (
	"strconv"
	"strings"

	"github.com/xde-mcp/sim-sub005/pkg/models"
	"github.com/xde-mcp/sim-sub005/pkg/registry"
)

// splitSuffix removes a trailing " N" counter from a name, returning the
// prefix and the counter. A name without a counter returns (name, 0, false).
func splitSuffix(name string) (string, int, bool) {
	idx := strings.LastIndexByte(name, ' ')
	if idx <= 0 {
		return name, 0, false
	}

	n, err := strconv.Atoi(name[idx+1:])
	if err != nil || n < 0 {
		return name, 0, false
	}

	return name[:idx], n, true
}

// UniqueName computes a collision-free name for a block of the given
// type inserted among existing names. The base name is stripped of any
// trailing counter; among existing names sharing the same normalized
// prefix the maximum counter is taken (a bare name counts as present but
// contributes no number) and the result is "prefix N+1". Block types
// with a pinned name ("Start", "Response") always resolve to exactly
// that name, regardless of collisions.
func (s *Service) UniqueName(blockType, base string, existing []string) string {
	if def, err := s.registry.Get(blockType); err == nil {
		if fixed, ok := def.(registry.FixedNamer); ok {
			return fixed.FixedName()
		}
	}

	prefix, _, _ := splitSuffix(base)
	normalized := models.NormalizeName(prefix)

	max := 0

	for _, name := range existing {
		otherPrefix, n, hasNumber := splitSuffix(name)
		if models.NormalizeName(otherPrefix) != normalized {
			continue
		}

		if hasNumber && n > max {
			max = n
		}
	}

	return prefix + " " + strconv.Itoa(max+1)
}
