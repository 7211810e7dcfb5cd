package apikey

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
)

// Location names where an Extractor reads the key from. It is sent as the
// "in" parameter of the challenge.
type Location string

const (
	LocationHeader              Location = "header"
	LocationAuthorizationHeader Location = "authorization_header"
	LocationQueryParams         Location = "query_params"
	LocationHeaderOrQueryParams Location = "header_or_query_params"
)

// Extractor reads a candidate key from a request. It returns "" when the
// request carries no key.
type Extractor interface {
	Extract(r *http.Request, scheme string, opts *Options) (string, error)
	Location() Location
}

// Built-in extractors.
var (
	// InHeader reads the first value of the KeyName header.
	InHeader Extractor = headerExtractor{}
	// InAuthorizationHeader reads "Authorization: <scheme> <key>" where the
	// scheme token equals the scheme name or KeyName, ignoring case.
	InAuthorizationHeader Extractor = authorizationExtractor{}
	// InQueryParams reads the first value of the KeyName query parameter.
	InQueryParams Extractor = queryExtractor{}
	// InHeaderOrQueryParams tries the query parameter, the header, then
	// "Authorization: <KeyName> <key>".
	InHeaderOrQueryParams Extractor = headerOrQueryExtractor{}
)

var errMultipleAuthorization = errors.New("multiple Authorization headers")

type headerExtractor struct{}

func (headerExtractor) Location() Location { return LocationHeader }

func (headerExtractor) Extract(r *http.Request, _ string, opts *Options) (string, error) {
	return fromHeader(r, opts.KeyName), nil
}

type authorizationExtractor struct{}

func (authorizationExtractor) Location() Location { return LocationAuthorizationHeader }

func (authorizationExtractor) Extract(r *http.Request, scheme string, opts *Options) (string, error) {
	return fromAuthorization(r, scheme, opts.KeyName)
}

type queryExtractor struct{}

func (queryExtractor) Location() Location { return LocationQueryParams }

func (queryExtractor) Extract(r *http.Request, _ string, opts *Options) (string, error) {
	return fromQuery(r, opts.KeyName), nil
}

type headerOrQueryExtractor struct{}

func (headerOrQueryExtractor) Location() Location { return LocationHeaderOrQueryParams }

func (headerOrQueryExtractor) Extract(r *http.Request, _ string, opts *Options) (string, error) {
	if v, ok := r.URL.Query()[opts.KeyName]; ok {
		return first(v), nil
	}
	if v := r.Header.Values(opts.KeyName); len(v) > 0 {
		return v[0], nil
	}
	return fromAuthorization(r, opts.KeyName)
}

func fromHeader(r *http.Request, name string) string {
	return first(r.Header.Values(name))
}

func fromQuery(r *http.Request, name string) string {
	return first(r.URL.Query()[name])
}

// fromAuthorization returns the parameter of the Authorization header when
// its scheme token matches one of schemes.
func fromAuthorization(r *http.Request, schemes ...string) (string, error) {
	values := r.Header.Values("Authorization")
	switch len(values) {
	case 0:
		return "", nil
	case 1:
	default:
		return "", errMultipleAuthorization
	}

	token, param, _ := strings.Cut(strings.TrimSpace(values[0]), " ")
	for _, s := range schemes {
		if s != "" && strings.EqualFold(token, s) {
			return strings.TrimSpace(param), nil
		}
	}
	return "", nil
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
