package aggregates

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/yungbote/roadmap-backend/internal/domain/roadmap"
)

// RequireOwnedNode reports a node that is missing or owned by someone else as
// not found, so callers cannot probe for other users' ids.
func RequireOwnedNode(n *roadmap.Node, ownerID uuid.UUID, what string) error {
	if n == nil || n.OwnerID != ownerID {
		if strings.TrimSpace(what) == "" {
			what = "node"
		}
		return NotFoundError(what + " not found")
	}
	return nil
}

// RequireExpectedVersion checks a caller-supplied version against the stored
// node. A nil expectation always passes.
func RequireExpectedVersion(n *roadmap.Node, expected *int) error {
	if expected == nil {
		return nil
	}
	if *expected < 0 {
		return ValidationError("expected version must be >= 0")
	}
	if n.Version != *expected {
		return ConflictError(fmt.Sprintf("node was modified: expected version %d, current %d", *expected, n.Version))
	}
	return nil
}
