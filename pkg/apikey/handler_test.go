package apikey

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helpers ---

func newTestHandler(t *testing.T, svc Service, configure func(o *Options)) *Handler {
	t.Helper()

	opts := Options{
		KeyName: fakeKeyName,
		Realm:   fakeRealm,
	}
	if svc != nil {
		opts.NewService = func() Service { return svc }
	}
	if configure != nil {
		configure(&opts)
	}

	h, err := NewHandler(HandlerConfig{
		Scheme:    Scheme{Name: DefaultScheme},
		Extractor: InHeader,
		Options:   opts,
	})
	require.NoError(t, err)
	return h
}

func keyRequest(key string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if key != "" {
		req.Header.Set(fakeKeyName, key)
	}
	return req
}

// --- Tests ---

func TestHandler_Authenticate(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		configure   func(o *Options)
		wantOutcome Outcome
		wantErr     error
		wantCalls   int32
	}{
		{
			name:        "no key yields no result",
			key:         "",
			wantOutcome: OutcomeNone,
			wantCalls:   0,
		},
		{
			name:        "blank key yields no result",
			key:         "   ",
			wantOutcome: OutcomeNone,
			wantCalls:   0,
		},
		{
			name:        "valid key succeeds",
			key:         fakeKey,
			wantOutcome: OutcomeSucceeded,
			wantCalls:   1,
		},
		{
			name:        "key comparison ignores case",
			key:         "MYRANDOMFAKEKEY",
			wantOutcome: OutcomeSucceeded,
			wantCalls:   1,
		},
		{
			name:        "unknown key fails",
			key:         fakeInvalidKey,
			wantOutcome: OutcomeFailed,
			wantErr:     ErrInvalidKey,
			wantCalls:   1,
		},
		{
			name:        "substituted key fails extra key check",
			key:         fakeAliasKey,
			wantOutcome: OutcomeFailed,
			wantErr:     ErrInvalidKey,
			wantCalls:   1,
		},
		{
			name:        "substituted key accepted with legacy flag",
			key:         fakeAliasKey,
			configure:   func(o *Options) { o.LegacyIgnoreExtraKeyCheck = true },
			wantOutcome: OutcomeSucceeded,
			wantCalls:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			h := newTestHandler(t, svc, tt.configure)

			res, err := h.Authenticate(keyRequest(tt.key))
			require.NoError(t, err)

			assert.Equal(t, tt.wantOutcome, res.Outcome())
			assert.Equal(t, tt.wantCalls, svc.calls.Load())
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.Failure(), tt.wantErr)
			}
		})
	}
}

func TestHandler_Authenticate_Claims(t *testing.T) {
	t.Run("credential claims are kept as is", func(t *testing.T) {
		h := newTestHandler(t, newFakeService(), nil)

		res, err := h.Authenticate(keyRequest(fakeKey))
		require.NoError(t, err)
		require.True(t, res.Succeeded())

		p := res.Principal()
		assert.True(t, p.Authenticated())
		assert.Equal(t, DefaultScheme, p.Scheme)
		assert.ElementsMatch(t, []Claim{fakeNameClaim, fakeNameIdentifierClaim, fakeRoleClaim}, p.Claims)
		assert.Equal(t, "FakeNameClaim", p.Name())
	})

	t.Run("name claim is synthesized from owner", func(t *testing.T) {
		svc := newFakeService()
		svc.claims = []Claim{fakeRoleClaim}
		h := newTestHandler(t, svc, nil)

		res, err := h.Authenticate(keyRequest(fakeKey))
		require.NoError(t, err)
		require.True(t, res.Succeeded())

		p := res.Principal()
		assert.ElementsMatch(t, []Claim{fakeRoleClaim, {Type: ClaimName, Value: fakeOwner}}, p.Claims)
		assert.Equal(t, fakeOwner, p.Name())
	})
}

func TestHandler_Authenticate_Idempotent(t *testing.T) {
	svc := newFakeService()
	h := newTestHandler(t, svc, nil)

	for _, key := range []string{fakeKey, fakeInvalidKey, ""} {
		first, err := h.Authenticate(keyRequest(key))
		require.NoError(t, err)
		second, err := h.Authenticate(keyRequest(key))
		require.NoError(t, err)

		assert.Equal(t, first.Outcome(), second.Outcome(), "key %q", key)
		assert.Equal(t, first.Principal().Claims, second.Principal().Claims, "key %q", key)
	}
}

func TestHandler_Authenticate_IgnoreAnonymous(t *testing.T) {
	svc := newFakeService()
	h := newTestHandler(t, svc, func(o *Options) { o.IgnoreIfEndpointAllowsAnonymous = true })

	req := keyRequest(fakeKey)
	req = req.WithContext(WithAllowAnonymous(req.Context()))

	res, err := h.Authenticate(req)
	require.NoError(t, err)
	assert.True(t, res.None())
	assert.False(t, res.Principal().Authenticated())
	assert.Zero(t, svc.calls.Load())

	// Without the marker the key is validated as usual.
	res, err = h.Authenticate(keyRequest(fakeKey))
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.EqualValues(t, 1, svc.calls.Load())
}

func TestHandler_Authenticate_ExtractorError(t *testing.T) {
	svc := newFakeService()
	h, err := NewHandler(HandlerConfig{
		Extractor: InAuthorizationHeader,
		Options: Options{
			KeyName:    fakeKeyName,
			Realm:      fakeRealm,
			NewService: func() Service { return svc },
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Add("Authorization", DefaultScheme+" "+fakeKey)
	req.Header.Add("Authorization", DefaultScheme+" other")

	res, err := h.Authenticate(req)
	require.NoError(t, err)
	require.True(t, res.Failed())

	var parseErr *ParseError
	require.ErrorAs(t, res.Failure(), &parseErr)
	assert.Contains(t, res.Failure().Error(), "error parsing api key")
	assert.Zero(t, svc.calls.Load())
}

func TestHandler_Authenticate_ValidateKeyHook(t *testing.T) {
	t.Run("explicit result skips service", func(t *testing.T) {
		svc := newFakeService()
		h := newTestHandler(t, svc, func(o *Options) {
			o.Events = &hooks{validateKey: func(_ context.Context, c *ValidateKeyContext) error {
				assert.Nil(t, c.Result())
				c.ValidationSucceeded("inline", Claim{Type: ClaimRole, Value: "Inline"})
				return nil
			}}
		})

		res, err := h.Authenticate(keyRequest(fakeKey))
		require.NoError(t, err)
		require.True(t, res.Succeeded())
		assert.Zero(t, svc.calls.Load())
		assert.NotContains(t, res.Principal().Claims, fakeRoleClaim)
		assert.Equal(t, "inline", res.Principal().Name())
	})

	t.Run("explicit failure skips service", func(t *testing.T) {
		svc := newFakeService()
		h := newTestHandler(t, svc, func(o *Options) {
			o.Events = &hooks{validateKey: func(_ context.Context, c *ValidateKeyContext) error {
				c.ValidationFailed("revoked")
				return nil
			}}
		})

		res, err := h.Authenticate(keyRequest(fakeKey))
		require.NoError(t, err)
		require.True(t, res.Failed())
		assert.EqualError(t, res.Failure(), "revoked")
		assert.Zero(t, svc.calls.Load())
	})

	t.Run("blank failure message yields no result", func(t *testing.T) {
		svc := newFakeService()
		h := newTestHandler(t, svc, func(o *Options) {
			o.Events = &hooks{validateKey: func(_ context.Context, c *ValidateKeyContext) error {
				c.ValidationFailed("")
				return nil
			}}
		})

		res, err := h.Authenticate(keyRequest(fakeKey))
		require.NoError(t, err)
		assert.True(t, res.None())
		assert.Zero(t, svc.calls.Load())
	})

	t.Run("authenticated principal is implicit success", func(t *testing.T) {
		svc := newFakeService()
		h := newTestHandler(t, svc, func(o *Options) {
			o.Events = &hooks{validateKey: func(_ context.Context, c *ValidateKeyContext) error {
				c.Principal = NewPrincipal(c.Scheme.Name, "implicit", nil)
				return nil
			}}
		})

		res, err := h.Authenticate(keyRequest(fakeKey))
		require.NoError(t, err)
		require.True(t, res.Succeeded())
		assert.Equal(t, "implicit", res.Principal().Name())
		assert.Zero(t, svc.calls.Load())
	})

	t.Run("no decision falls back to service", func(t *testing.T) {
		svc := newFakeService()
		h := newTestHandler(t, svc, func(o *Options) {
			o.Events = &hooks{validateKey: func(_ context.Context, c *ValidateKeyContext) error {
				assert.Equal(t, fakeKey, c.Key)
				return nil
			}}
		})

		res, err := h.Authenticate(keyRequest(fakeKey))
		require.NoError(t, err)
		require.True(t, res.Succeeded())
		assert.Contains(t, res.Principal().Claims, fakeRoleClaim)
		assert.EqualValues(t, 1, svc.calls.Load())
	})
}

func TestHandler_Authenticate_SuccessWithoutPrincipal(t *testing.T) {
	t.Run("validate key hook", func(t *testing.T) {
		svc := newFakeService()
		h := newTestHandler(t, svc, func(o *Options) {
			o.Events = &hooks{validateKey: func(_ context.Context, c *ValidateKeyContext) error {
				c.Success()
				return nil
			}}
		})

		res, err := h.Authenticate(keyRequest(fakeKey))
		require.NoError(t, err)
		require.True(t, res.Failed())
		assert.ErrorIs(t, res.Failure(), ErrNoPrincipal)
		assert.Zero(t, svc.calls.Load())
	})

	t.Run("succeeded hook with rejected principal", func(t *testing.T) {
		h := newTestHandler(t, newFakeService(), func(o *Options) {
			o.Events = &hooks{succeeded: func(_ context.Context, c *SucceededContext) error {
				c.RejectPrincipal()
				c.Success()
				return nil
			}}
		})

		res, err := h.Authenticate(keyRequest(fakeKey))
		require.NoError(t, err)
		require.True(t, res.Failed())
		assert.ErrorIs(t, res.Failure(), ErrNoPrincipal)
	})

	t.Run("succeeded hook with anonymous principal", func(t *testing.T) {
		h := newTestHandler(t, newFakeService(), func(o *Options) {
			o.Events = &hooks{succeeded: func(_ context.Context, c *SucceededContext) error {
				c.Principal = Anonymous()
				c.Success()
				return nil
			}}
		})

		res, err := h.Authenticate(keyRequest(fakeKey))
		require.NoError(t, err)
		require.True(t, res.Failed())
		assert.ErrorIs(t, res.Failure(), ErrNoPrincipal)
	})
}

func TestHandler_Authenticate_SucceededHook(t *testing.T) {
	t.Run("result and principal cleared fails", func(t *testing.T) {
		h := newTestHandler(t, newFakeService(), func(o *Options) {
			o.Events = &hooks{succeeded: func(_ context.Context, c *SucceededContext) error {
				assert.Nil(t, c.Result())
				c.RejectPrincipal()
				return nil
			}}
		})

		res, err := h.Authenticate(keyRequest(fakeKey))
		require.NoError(t, err)
		require.True(t, res.Failed())
		assert.ErrorIs(t, res.Failure(), ErrNoPrincipal)
	})

	t.Run("explicit result wins", func(t *testing.T) {
		h := newTestHandler(t, newFakeService(), func(o *Options) {
			o.Events = &hooks{succeeded: func(_ context.Context, c *SucceededContext) error {
				require.NotNil(t, c.Principal)
				c.Fail(errors.New("owner suspended"))
				return nil
			}}
		})

		res, err := h.Authenticate(keyRequest(fakeKey))
		require.NoError(t, err)
		require.True(t, res.Failed())
		assert.EqualError(t, res.Failure(), "owner suspended")
	})

	t.Run("added claims are kept", func(t *testing.T) {
		extra := Claim{Type: "tenant", Value: "acme"}
		h := newTestHandler(t, newFakeService(), func(o *Options) {
			o.Events = &hooks{succeeded: func(_ context.Context, c *SucceededContext) error {
				c.Principal.Claims = append(c.Principal.Claims, extra)
				return nil
			}}
		})

		res, err := h.Authenticate(keyRequest(fakeKey))
		require.NoError(t, err)
		require.True(t, res.Succeeded())
		assert.Contains(t, res.Principal().Claims, extra)
	})
}

func TestHandler_Authenticate_FailedHook(t *testing.T) {
	t.Run("service error is returned when unhandled", func(t *testing.T) {
		var seen error
		h := newTestHandler(t, newFakeService(), func(o *Options) {
			o.Events = &hooks{failed: func(_ context.Context, c *FailedContext) error {
				seen = c.Err
				return nil
			}}
		})

		_, err := h.Authenticate(keyRequest(fakeBrokenKey))
		require.ErrorIs(t, err, errFakeNotImplemented)
		assert.ErrorIs(t, seen, errFakeNotImplemented)
	})

	t.Run("hook may replace error with result", func(t *testing.T) {
		h := newTestHandler(t, newFakeService(), func(o *Options) {
			o.Events = &hooks{failed: func(_ context.Context, c *FailedContext) error {
				c.NoResult()
				return nil
			}}
		})

		res, err := h.Authenticate(keyRequest(fakeBrokenKey))
		require.NoError(t, err)
		assert.True(t, res.None())
	})

	t.Run("missing service is a configuration error", func(t *testing.T) {
		var seen error
		h, err := NewHandler(HandlerConfig{
			Extractor: InHeader,
			Options: Options{
				KeyName: fakeKeyName,
				Realm:   fakeRealm,
				Events: &hooks{failed: func(_ context.Context, c *FailedContext) error {
					seen = c.Err
					return nil
				}},
			},
		})
		require.NoError(t, err)

		_, err = h.Authenticate(keyRequest(fakeKey))
		require.ErrorIs(t, err, ErrNoService)
		assert.ErrorIs(t, seen, ErrNoService)
	})

	t.Run("missing service downgraded by hook", func(t *testing.T) {
		h, err := NewHandler(HandlerConfig{
			Extractor: InHeader,
			Options: Options{
				KeyName: fakeKeyName,
				Realm:   fakeRealm,
				Events: &hooks{failed: func(_ context.Context, c *FailedContext) error {
					c.Fail(c.Err)
					return nil
				}},
			},
		})
		require.NoError(t, err)

		res, err := h.Authenticate(keyRequest(fakeKey))
		require.NoError(t, err)
		require.True(t, res.Failed())
		assert.ErrorIs(t, res.Failure(), ErrNoService)
	})

	t.Run("hook error aborts", func(t *testing.T) {
		hookErr := errors.New("validate key broke")
		h := newTestHandler(t, newFakeService(), func(o *Options) {
			o.Events = &hooks{validateKey: func(context.Context, *ValidateKeyContext) error {
				return hookErr
			}}
		})

		_, err := h.Authenticate(keyRequest(fakeKey))
		require.ErrorIs(t, err, hookErr)
	})
}

func TestHandler_Authenticate_ClosesService(t *testing.T) {
	for _, key := range []string{fakeKey, fakeInvalidKey, fakeBrokenKey} {
		t.Run(key, func(t *testing.T) {
			inner := newFakeService()
			h := newTestHandler(t, closingService{inner}, nil)

			_, _ = h.Authenticate(keyRequest(key))
			assert.EqualValues(t, 1, inner.closed.Load())
		})
	}
}

func TestHandler_Authenticate_ResolvesPerRequest(t *testing.T) {
	var resolved []string
	svc := newFakeService()
	h, err := NewHandler(HandlerConfig{
		Scheme:    Scheme{Name: "Custom"},
		Extractor: InHeader,
		Options:   Options{KeyName: fakeKeyName, Realm: fakeRealm},
		Resolve: func(_ context.Context, scheme string) (Service, error) {
			resolved = append(resolved, scheme)
			return svc, nil
		},
	})
	require.NoError(t, err)

	for range 2 {
		res, err := h.Authenticate(keyRequest(fakeKey))
		require.NoError(t, err)
		require.True(t, res.Succeeded())
		assert.Equal(t, "Custom", res.Principal().Scheme)
	}
	assert.Equal(t, []string{"Custom", "Custom"}, resolved)
}

func TestHandler_Challenge(t *testing.T) {
	tests := []struct {
		name       string
		ex         Extractor
		configure  func(o *Options)
		wantHeader string
	}{
		{
			name:       "header",
			ex:         InHeader,
			wantHeader: `ApiKey realm="Test Realm", charset="UTF-8", in="header", key_name="X-API-KEY"`,
		},
		{
			name:       "authorization header",
			ex:         InAuthorizationHeader,
			wantHeader: `ApiKey realm="Test Realm", charset="UTF-8", in="authorization_header", key_name="X-API-KEY"`,
		},
		{
			name:       "query params",
			ex:         InQueryParams,
			wantHeader: `ApiKey realm="Test Realm", charset="UTF-8", in="query_params", key_name="X-API-KEY"`,
		},
		{
			name:       "header or query params",
			ex:         InHeaderOrQueryParams,
			wantHeader: `ApiKey realm="Test Realm", charset="UTF-8", in="header_or_query_params", key_name="X-API-KEY"`,
		},
		{
			name:       "legacy key name as scheme",
			ex:         InHeader,
			configure:  func(o *Options) { o.LegacyUseKeyNameAsSchemeNameInChallenge = true },
			wantHeader: `X-API-KEY realm="Test Realm", charset="UTF-8", in="header", key_name="X-API-KEY"`,
		},
		{
			name:       "suppressed",
			ex:         InHeader,
			configure:  func(o *Options) { o.SuppressChallengeHeader = true },
			wantHeader: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{KeyName: fakeKeyName, Realm: fakeRealm, NewService: func() Service { return newFakeService() }}
			if tt.configure != nil {
				tt.configure(&opts)
			}
			h, err := NewHandler(HandlerConfig{Extractor: tt.ex, Options: opts})
			require.NoError(t, err)

			w := httptest.NewRecorder()
			handled, err := h.Challenge(w, httptest.NewRequest(http.MethodGet, "/", nil), nil)
			require.NoError(t, err)
			assert.False(t, handled)
			assert.Equal(t, tt.wantHeader, w.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestHandler_Challenge_Hook(t *testing.T) {
	t.Run("hook adds header without handling", func(t *testing.T) {
		h := newTestHandler(t, newFakeService(), func(o *Options) {
			o.Events = &hooks{challenge: func(_ context.Context, c *ChallengeContext) error {
				c.Response.Header().Set("X-Hook", "challenge")
				return nil
			}}
		})

		w := httptest.NewRecorder()
		handled, err := h.Challenge(w, httptest.NewRequest(http.MethodGet, "/", nil), ErrInvalidKey)
		require.NoError(t, err)
		assert.False(t, handled)
		assert.Equal(t, "challenge", w.Header().Get("X-Hook"))
		assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
	})

	t.Run("handled hook suppresses header", func(t *testing.T) {
		var failure error
		h := newTestHandler(t, newFakeService(), func(o *Options) {
			o.Events = &hooks{challenge: func(_ context.Context, c *ChallengeContext) error {
				failure = c.Failure
				c.Handled()
				return nil
			}}
		})

		w := httptest.NewRecorder()
		handled, err := h.Challenge(w, httptest.NewRequest(http.MethodGet, "/", nil), ErrInvalidKey)
		require.NoError(t, err)
		assert.True(t, handled)
		assert.Empty(t, w.Header().Get("WWW-Authenticate"))
		assert.ErrorIs(t, failure, ErrInvalidKey)
	})
}

func TestHandler_Forbid(t *testing.T) {
	t.Run("unhandled", func(t *testing.T) {
		h := newTestHandler(t, newFakeService(), nil)

		handled, err := h.Forbid(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.False(t, handled)
	})

	t.Run("handled by hook", func(t *testing.T) {
		h := newTestHandler(t, newFakeService(), func(o *Options) {
			o.Events = &hooks{forbidden: func(_ context.Context, c *ForbiddenContext) error {
				c.Response.WriteHeader(http.StatusTeapot)
				c.Handled()
				return nil
			}}
		})

		w := httptest.NewRecorder()
		handled, err := h.Forbid(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.True(t, handled)
		assert.Equal(t, http.StatusTeapot, w.Code)
	})
}

func TestValidateKeyContext_ValidationFailedErr(t *testing.T) {
	revoked := errors.New("key revoked")
	h := newTestHandler(t, newFakeService(), func(o *Options) {
		o.Events = &hooks{validateKey: func(_ context.Context, c *ValidateKeyContext) error {
			c.ValidationFailedErr(revoked)
			return nil
		}}
	})

	res, err := h.Authenticate(keyRequest(fakeKey))
	require.NoError(t, err)
	require.True(t, res.Failed())
	assert.ErrorIs(t, res.Failure(), revoked)
}
