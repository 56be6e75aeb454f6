package registry

import "net/url"

// UTM parameters added to QR-code targets when absent or empty.
const (
	DefaultUTMSource   = "qr"
	DefaultUTMCampaign = "default"
)

// WithUTMDefaults returns raw with utm_source and utm_campaign set when
// they are missing or empty. URLs that already carry both, or that do not
// parse, are returned unchanged. When a parameter is added the query is
// re-encoded, which sorts its keys.
func WithUTMDefaults(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return raw
	}
	changed := false
	if !hasValue(q, "utm_source") {
		q.Set("utm_source", DefaultUTMSource)
		changed = true
	}
	if !hasValue(q, "utm_campaign") {
		q.Set("utm_campaign", DefaultUTMCampaign)
		changed = true
	}
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func hasValue(q url.Values, key string) bool {
	for _, v := range q[key] {
		if v != "" {
			return true
		}
	}
	return false
}

// ApplyUTMDefaults returns a copy of entries with WithUTMDefaults applied
// to every URL, and how many URLs changed.
func ApplyUTMDefaults(entries []Entry) ([]Entry, int) {
	out := make([]Entry, len(entries))
	changed := 0
	for i, e := range entries {
		nu := WithUTMDefaults(e.URL)
		if nu != e.URL {
			changed++
		}
		out[i] = Entry{File: e.File, URL: nu}
	}
	return out, changed
}
