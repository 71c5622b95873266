package initdata

import (
	"net/url"
	"sort"
	"strings"
)

const hashField = "hash"

// decodePairs turns the urlencoded payload into a key-unique map.
// When a key repeats, the last value wins.
func decodePairs(raw []byte) (map[string]string, error) {
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, &Error{Kind: KindMalformedPayload, Err: err}
	}

	pairs := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			pairs[k] = v[len(v)-1]
		}
	}
	return pairs, nil
}

// splitHash removes the claimed hash from pairs and returns it.
func splitHash(pairs map[string]string) (string, error) {
	hash, ok := pairs[hashField]
	if !ok {
		return "", MissingField(hashField)
	}
	delete(pairs, hashField)
	return hash, nil
}

// DataCheckString builds the signing string: "key=value" lines sorted by key
// and joined by '\n'. A "hash" entry, if present, is skipped.
func DataCheckString(pairs map[string]string) string {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		if k == hashField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(pairs[k])
	}
	return b.String()
}
