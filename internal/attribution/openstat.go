package attribution

import (
	"encoding/base64"
	"net/url"
	"strings"
)

// base64Encodings are tried in order when an openstat token is not plainly
// delimited.
var base64Encodings = []*base64.Encoding{
	base64.RawURLEncoding,
	base64.URLEncoding,
	base64.StdEncoding,
	base64.RawStdEncoding,
}

// splitOpenstat decomposes an openstat token into service, campaign, ad and
// source. Pieces that cannot be resolved are returned empty.
//
// The token is URL-decoded once. A ';' in the result means the token is
// already delimited; otherwise it is treated as base64url and re-split.
// Valid base64 without ';' resolves nothing.
func splitOpenstat(token string) [4]string {
	var out [4]string

	token = strings.TrimSpace(token)
	if token == "" {
		return out
	}
	if decoded, err := url.PathUnescape(token); err == nil {
		token = decoded
	}

	if !strings.Contains(token, ";") {
		decoded, ok := decodeBase64(token)
		if !ok || !strings.Contains(decoded, ";") {
			return out
		}
		token = decoded
	}

	for i, piece := range strings.SplitN(token, ";", 4) {
		out[i] = clean(piece)
	}
	return out
}

func decodeBase64(s string) (string, bool) {
	for _, enc := range base64Encodings {
		if b, err := enc.DecodeString(s); err == nil {
			return string(b), true
		}
	}
	return "", false
}
