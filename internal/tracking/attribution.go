// Package tracking captures marketing attribution parameters, keeps them per
// session, and logs funnel events enriched with them.
package tracking

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
	"github.com/boddenberg/upsell-checkout-bfa/internal/port"
)

// Keys is the attribution allow-list, in the order fragments are built.
var Keys = []string{
	"utm_source",
	"utm_medium",
	"utm_campaign",
	"utm_term",
	"utm_content",
	"click_id",
	"fbclid",
	"gclid",
}

// ExtractParams picks the allow-listed, non-empty parameters out of a query.
func ExtractParams(q url.Values) domain.AttributionParams {
	var p domain.AttributionParams
	for _, k := range Keys {
		if v := q.Get(k); v != "" {
			p.Set(k, v)
		}
	}
	return p
}

// Capture persists the parameters found in q, replacing any earlier snapshot.
// When q carries none, the stored snapshot is left alone. It reports whether
// anything was written.
func Capture(ctx context.Context, store port.KeyValueStore, q url.Values) (domain.AttributionParams, bool) {
	p := ExtractParams(q)
	if p.IsEmpty() {
		return p, false
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return p, false
	}
	if err := store.Set(ctx, domain.StorageKeyUTMParams, string(raw)); err != nil {
		return p, false
	}
	return p, true
}

// Snapshot returns the stored parameters. Missing or unreadable storage
// yields an empty set.
func Snapshot(ctx context.Context, store port.KeyValueStore) domain.AttributionParams {
	var p domain.AttributionParams

	raw, ok, err := store.Get(ctx, domain.StorageKeyUTMParams)
	if err != nil || !ok {
		return p
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.AttributionParams{}
	}
	return p
}

// BuildQuery renders the non-empty parameters as "&k=v&k=v" in allow-list
// order, or "" when there are none.
func BuildQuery(p domain.AttributionParams) string {
	var b strings.Builder
	for _, kv := range p.Pairs() {
		if kv[1] == "" {
			continue
		}
		b.WriteByte('&')
		b.WriteString(kv[0])
		b.WriteByte('=')
		b.WriteString(EncodeComponent(kv[1]))
	}
	return b.String()
}

// AppendToURL adds the parameters to base with "?" or "&" as needed.
// base is returned untouched when there is nothing to add.
func AppendToURL(base string, p domain.AttributionParams) string {
	fragment := BuildQuery(p)
	if fragment == "" {
		return base
	}

	sep := "?"
	switch {
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
		sep = ""
	case strings.Contains(base, "?"):
		sep = "&"
	}
	return base + sep + fragment[1:]
}

// CheckoutURL appends the session's stored parameters to base.
func CheckoutURL(ctx context.Context, store port.KeyValueStore, base string) string {
	return AppendToURL(base, Snapshot(ctx, store))
}

// Clear drops the stored snapshot and the event log.
func Clear(ctx context.Context, store port.KeyValueStore) error {
	if err := store.Delete(ctx, domain.StorageKeyUTMParams); err != nil {
		return err
	}
	return store.Delete(ctx, domain.StorageKeyTrackedEvents)
}

const upperHex = "0123456789ABCDEF"

// EncodeComponent percent-encodes s leaving only A-Z a-z 0-9 and -_.!~*'()
// unescaped, the set browsers keep in URI components.
func EncodeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if keepUnescaped(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&15])
	}
	return b.String()
}

func keepUnescaped(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
