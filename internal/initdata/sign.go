package initdata

import "net/url"

// Sign returns values urlencoded with a "hash" computed for token. Any hash
// already present in values is replaced. Used to build fixtures and local
// test payloads; values is not modified.
func Sign(token string, values url.Values) string {
	pairs := make(map[string]string, len(values))
	for k, v := range values {
		if k == hashField || len(v) == 0 {
			continue
		}
		pairs[k] = v[len(v)-1]
	}

	out := url.Values{}
	for k, v := range pairs {
		out.Set(k, v)
	}
	out.Set(hashField, expectedHash(token, DataCheckString(pairs)))
	return out.Encode()
}
