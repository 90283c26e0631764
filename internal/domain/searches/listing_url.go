package searches

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"pricewatch/internal/domain/shared/daterange"
)

const (
	paramCheckin  = "checkin"
	paramCheckout = "checkout"
)

var ErrMalformedURL = errors.New("searches: listing url cannot be parsed")

// ListingURL is what a marketplace search URL says about the stay it describes.
type ListingURL struct {
	Checkin  daterange.Date
	Checkout daterange.Date
	PlaceID  string
	Query    string
}

// ParseListingURL extracts stay hints. Missing or malformed dates are left zero.
func ParseListingURL(raw string) (ListingURL, error) {
	u, err := parseAbsolute(raw)
	if err != nil {
		return ListingURL{}, err
	}
	q := u.Query()
	out := ListingURL{
		PlaceID: q.Get("place_id"),
		Query:   q.Get("query"),
	}
	if d, err := daterange.ParseDate(q.Get(paramCheckin)); err == nil {
		out.Checkin = d
	}
	if d, err := daterange.ParseDate(q.Get(paramCheckout)); err == nil {
		out.Checkout = d
	}
	return out, nil
}

// WithStayDates points base at the given stay by overwriting its checkin and
// checkout parameters. Every other parameter keeps its position and encoding.
// When base cannot be parsed it is returned unchanged along with ErrMalformedURL.
func WithStayDates(base string, stay daterange.DateRange) (string, error) {
	u, err := parseAbsolute(base)
	if err != nil {
		return base, err
	}
	u.RawQuery = setQueryParams(u.RawQuery, []queryParam{
		{key: paramCheckin, value: stay.CheckIn.String()},
		{key: paramCheckout, value: stay.CheckOut.String()},
	})
	return u.String(), nil
}

func parseAbsolute(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrMalformedURL, raw)
	}
	return u, nil
}

type queryParam struct {
	key   string
	value string
}

// setQueryParams replaces the first occurrence of each key in place, drops any
// repeats, and appends keys that were absent.
func setQueryParams(rawQuery string, params []queryParam) string {
	written := make(map[string]bool, len(params))
	lookup := make(map[string]string, len(params))
	for _, p := range params {
		lookup[p.key] = p.value
	}

	var parts []string
	if rawQuery != "" {
		for _, part := range strings.Split(rawQuery, "&") {
			key := part
			if i := strings.IndexByte(part, '='); i >= 0 {
				key = part[:i]
			}
			if unescaped, err := url.QueryUnescape(key); err == nil {
				key = unescaped
			}
			value, ok := lookup[key]
			if !ok {
				parts = append(parts, part)
				continue
			}
			if written[key] {
				continue
			}
			written[key] = true
			parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(value))
		}
	}
	for _, p := range params {
		if !written[p.key] {
			parts = append(parts, url.QueryEscape(p.key)+"="+url.QueryEscape(p.value))
		}
	}
	return strings.Join(parts, "&")
}
