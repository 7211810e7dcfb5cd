package apikey

import "slices"

// Well-known claim types.
const (
	ClaimName           = "name"
	ClaimNameIdentifier = "nameidentifier"
	ClaimRole           = "role"
)

// Claim is a single name/value assertion attached to an identity.
type Claim struct {
	Type  string
	Value string
}

// APIKey is a validated key record returned by a Service.
type APIKey interface {
	// Key returns the raw secret. Unless Options.LegacyIgnoreExtraKeyCheck is
	// set it must equal the submitted key, ignoring case.
	Key() string
	// OwnerName is used as the principal name when no name claim is present.
	OwnerName() string
	Claims() []Claim
}

// Key is an immutable APIKey value.
type Key struct {
	key    string
	owner  string
	claims []Claim
}

var _ APIKey = Key{}

// NewKey returns a Key. The claims slice is copied.
func NewKey(key, owner string, claims ...Claim) Key {
	return Key{
		key:    key,
		owner:  owner,
		claims: slices.Clone(claims),
	}
}

func (k Key) Key() string       { return k.key }
func (k Key) OwnerName() string { return k.owner }
func (k Key) Claims() []Claim   { return slices.Clone(k.claims) }

// Principal is the identity produced by a successful authentication.
type Principal struct {
	// Scheme is the name of the scheme that authenticated the principal.
	// An empty Scheme denotes an anonymous, unauthenticated principal.
	Scheme string
	Claims []Claim
}

// Anonymous returns a new principal for a request that was not authenticated.
func Anonymous() *Principal {
	return &Principal{}
}

// NewPrincipal builds an authenticated principal for scheme. When ownerName is
// not blank and claims carry no ClaimName entry, a name claim with ownerName is
// appended.
func NewPrincipal(scheme, ownerName string, claims []Claim) *Principal {
	out := slices.Clone(claims)
	if !isBlank(ownerName) && !hasClaimType(out, ClaimName) {
		out = append(out, Claim{Type: ClaimName, Value: ownerName})
	}
	return &Principal{Scheme: scheme, Claims: out}
}

// Authenticated reports whether p was produced by a scheme.
func (p *Principal) Authenticated() bool {
	return p != nil && p.Scheme != ""
}

// Name returns the value of the first name claim.
func (p *Principal) Name() string {
	v, _ := p.FindFirst(ClaimName)
	return v
}

// FindFirst returns the value of the first claim of the given type.
func (p *Principal) FindFirst(typ string) (string, bool) {
	if p == nil {
		return "", false
	}
	for _, c := range p.Claims {
		if c.Type == typ {
			return c.Value, true
		}
	}
	return "", false
}

// HasClaim reports whether p carries a claim with the given type and value.
func (p *Principal) HasClaim(typ, value string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Claims, Claim{Type: typ, Value: value})
}

func hasClaimType(claims []Claim, typ string) bool {
	return slices.ContainsFunc(claims, func(c Claim) bool { return c.Type == typ })
}
