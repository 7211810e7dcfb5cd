package app

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/apikey-auth/internal/domain/auth"
	"github.com/xenking/apikey-auth/pkg/apikey"
)

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

// publicHandler greets anonymous and authenticated callers alike.
func publicHandler(w http.ResponseWriter, r *http.Request) {
	p := apikey.PrincipalFrom(r.Context())
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str("public endpoint")
		e.FieldStart("authenticated")
		e.Bool(p.Authenticated())
		e.ObjEnd()
	})
}

func valuesHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		e.Str("value1")
		e.Str("value2")
		e.ArrEnd()
	})
}

// claimsHandler returns the principal with its claims.
func claimsHandler(w http.ResponseWriter, r *http.Request) {
	p := apikey.PrincipalFrom(r.Context())
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("scheme")
		e.Str(p.Scheme)
		e.FieldStart("name")
		e.Str(p.Name())
		e.FieldStart("claims")
		auth.WriteClaims(e, p.Claims)
		e.ObjEnd()
	})
}

func adminHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str("hello " + apikey.PrincipalFrom(r.Context()).Name())
		e.ObjEnd()
	})
}
