package gateway

import "strconv"

// parseHeight parses a height that Cosmos REST responses encode as a
// JSON string (to avoid precision loss on very large chains).
func parseHeight(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
