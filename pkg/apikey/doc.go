// Package apikey implements API key authentication schemes for net/http
// servers.
//
// A scheme reads a candidate key from the request with an Extractor, hands it
// to a validation strategy and turns the outcome into an authenticated
// Principal or a rejection. Two validation strategies exist: an inline
// Events.ValidateKey hook, and a Service resolved per request through a
// ServiceFactory or the scheme's Options.NewService constructor. The hook is
// a full override: when it sets a result the Service is never consulted.
//
// # Registration
//
//	reg := apikey.NewRegistry(apikey.WithServiceFactory(factory))
//	err := reg.AddInHeader("ApiKey", func(o *apikey.Options) {
//	    o.Realm = "Sample Web API"
//	    o.KeyName = "X-API-KEY"
//	})
//
// Four registration variants select where the key is read from:
// AddInHeader, AddInAuthorizationHeader, AddInQueryParams and
// AddInHeaderOrQueryParams. Options are validated once at registration, so a
// scheme that can never validate a key fails at boot rather than on the first
// request.
//
// # Request pipeline
//
// Registry.Authenticate returns a middleware that runs one or more schemes
// for a route, stores the resulting Principal in the request context and
// issues a challenge (401 with a WWW-Authenticate header) when no scheme
// succeeds. AllowAnonymous marks a route as reachable without credentials and
// RequireClaim forbids (403) authenticated callers lacking a claim.
//
// The challenge header has the form:
//
//	ApiKey realm="Sample Web API", charset="UTF-8", in="header", key_name="X-API-KEY"
package apikey
