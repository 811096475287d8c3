// Package csrf derives and checks per-session anti-forgery tokens.
//
// A token is HKDF-SHA256 over the session secret, salted with the session id.
// It is stable while the secret is unchanged, changes whenever the secret
// rotates, and never validates for a different session.
package csrf

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmcleod/storefront/internal/util"
	"github.com/jmcleod/storefront/session"
)

const (
	// FieldName is the form field forms embed the token in.
	FieldName = "_csrf"
	// HeaderName is the response/request header carrying the token.
	HeaderName = "X-CSRF-Token"

	tokenInfo = "storefront csrf v1"
)

// Alternative request headers accepted for the submitted token.
var requestHeaders = []string{HeaderName, "CSRF-Token", "X-XSRF-Token"}

var (
	// ErrInvalidToken is returned when the submitted token is missing or
	// does not match the session's expected token.
	ErrInvalidToken = errors.New("invalid csrf token")
	// ErrNoSecret is returned for sessions without secret material.
	ErrNoSecret = errors.New("session has no csrf secret")
)

// Token returns the expected token for sess.
func Token(sess *session.Session) (string, error) {
	if sess == nil || len(sess.Secret) == 0 {
		return "", ErrNoSecret
	}
	k, err := util.DeriveKey(sess.Secret, []byte(sess.ID), []byte(tokenInfo), 0)
	if err != nil {
		return "", fmt.Errorf("deriving csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(k), nil
}

// Verify compares submitted against the expected token for sess in constant
// time with respect to the token contents.
func Verify(sess *session.Session, submitted string) error {
	expected, err := Token(sess)
	if err != nil {
		return err
	}
	if submitted == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(submitted)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// Safe reports whether method is exempt from token validation.
func Safe(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// Submitted extracts the token a client sent, from the parsed form first and
// then from the request headers. The form must already be parsed.
func Submitted(r *http.Request) string {
	if r.Form != nil {
		if v := r.Form.Get(FieldName); v != "" {
			return v
		}
	}
	if r.MultipartForm != nil {
		if vs := r.MultipartForm.Value[FieldName]; len(vs) > 0 && vs[0] != "" {
			return vs[0]
		}
	}
	for _, h := range requestHeaders {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	return ""
}
