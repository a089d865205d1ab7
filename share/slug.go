package share

import (
	"strings"

	"github.com/google/uuid"
)

// randomSlugBase generates a slug when the caller didn't request one.
func randomSlugBase() string {
	return randomSlugSuffix()
}

// randomSlugSuffix returns a short, URL-safe, collision-resistant
// token for the random-suffix slug policy.
func randomSlugSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
