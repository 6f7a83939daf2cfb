package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Key builds a stable cache key from an endpoint name and its query
// parameters. Parameters are sorted so equivalent requests in any parameter
// order hash to the same key, and hashed rather than concatenated so long or
// unbounded param values (e.g. free-text filters) never produce an
// oversized Redis key.
func Key(endpoint string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, k := range names {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
		b.WriteByte('&')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("analytics:%s:%s", endpoint, hex.EncodeToString(sum[:16]))
}
