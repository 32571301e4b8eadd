package scripts

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
)

// chainhashSha256 computes a plain single SHA-256, the hash a P2WSH scriptPubKey
// commits to (not Bitcoin's double-SHA256 "Hash" function).
func chainhashSha256(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// parseThreshWrapper parses "wsh(thresh(n,k1,k2,...))" and returns the threshold value
// and the comma-separated key tokens.
func parseThreshWrapper(s string) ([]string, int, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "wsh(thresh(") || !strings.HasSuffix(s, "))") {
		return nil, 0, fmt.Errorf("%w: not a wsh(thresh(...)) descriptor string", ErrBadParameters)
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "wsh(thresh("), "))")
	parts := strings.Split(inner, ",")
	if len(parts) < 2 {
		return nil, 0, fmt.Errorf("%w: malformed thresh() body %q", ErrBadParameters, inner)
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: bad threshold %q: %v", ErrBadParameters, parts[0], err)
	}
	return parts[1:], n, nil
}
