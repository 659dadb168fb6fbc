// Package urlparams extracts verification parameters from an inbound
// link. The identity backend delivers parameters in either the query
// string or the URL fragment depending on the flow, so both locations
// are merged into a single case-insensitive map.
package urlparams

import (
	"net/url"
	"strings"
)

// Values is a case-insensitive key/value view of a link's parameters.
// Keys are stored lowercase.
type Values map[string]string

// verificationKeys are the parameters the identity backend places on a
// verification link. They are stripped from the URL once the attempt has
// been consumed so a reload never re-runs the same attempt.
var verificationKeys = []string{
	"error_code",
	"error_description",
	"access_token",
	"refresh_token",
	"token_hash",
	"token",
	"type",
	"email",
	"code",
}

// Extract parses rawURL and merges its query string and fragment
// parameters into one map. The fragment wins on key collision: the
// backend prefers the fragment for sensitive tokens so they never reach
// server logs. Extract has no failure mode; an unparsable URL or an
// absent part yields an empty map.
func Extract(rawURL string) Values {
	out := Values{}

	u, err := url.Parse(rawURL)
	if err != nil {
		return out
	}

	for key, vals := range u.Query() {
		if len(vals) == 0 {
			continue
		}
		out[strings.ToLower(key)] = vals[0]
	}

	// Fragment values overwrite query values.
	frag, err := url.ParseQuery(strings.TrimPrefix(u.Fragment, "/"))
	if err != nil {
		return out
	}
	for key, vals := range frag {
		if len(vals) == 0 {
			continue
		}
		out[strings.ToLower(key)] = vals[0]
	}

	return out
}

// Get returns the value for key, case-insensitively. Absent keys yield
// the empty string.
func (v Values) Get(key string) string {
	return v[strings.ToLower(key)]
}

// Has reports whether key is present with a non-empty value.
func (v Values) Has(key string) bool {
	return v.Get(key) != ""
}

// StripVerification returns rawURL with all verification parameters
// removed from both the query string and the fragment. The result is
// the clean URL the UI replaces into the address bar after a terminal
// state, whatever the outcome. An unparsable URL is returned unchanged.
func StripVerification(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.RawQuery = stripKeys(u.Query()).Encode()

	if u.Fragment != "" {
		// Same slash-prefixed fragment shape Extract accepts; the prefix is
		// dropped rather than restored so the clean URL carries no remnant.
		frag, err := url.ParseQuery(strings.TrimPrefix(u.Fragment, "/"))
		if err == nil {
			u.Fragment = stripKeys(frag).Encode()
			u.RawFragment = ""
		}
	}

	return u.String()
}

func stripKeys(vals url.Values) url.Values {
	for key := range vals {
		for _, k := range verificationKeys {
			if strings.EqualFold(key, k) {
				vals.Del(key)
				break
			}
		}
	}
	return vals
}
