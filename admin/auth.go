// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"emperror.dev/emperror"
	"github.com/golang-jwt/jwt"
	"github.com/xmidt-org/httpaux/erraux"
)

const (
	jwtPrincipalKey    = "sub"
	capabilitiesKey    = "capabilities"
	bearerPrefix       = "Bearer "
	defaultCapability  = "sirihub:admin"
	authenticateHeader = "WWW-Authenticate"
)

var (
	ErrMissingToken      = errors.New("missing bearer token")
	ErrInvalidToken      = errors.New("invalid bearer token")
	ErrInvalidPrincipal  = errors.New("token has no principal")
	ErrInsufficientScope = errors.New("token lacks the admin capability")
)

// AuthConfig configures bearer token checks. Tokens are HMAC signed JWTs.
type AuthConfig struct {
	// Secret is the HMAC key. An empty secret disables authentication.
	Secret string

	// AdminCapability must appear in the capabilities claim of tokens used
	// for anything but reads.
	// (Optional). Defaults to "sirihub:admin".
	AdminCapability string
}

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Admin   bool
}

type principalKey struct{}

// GetPrincipal returns the caller stored by BearerAuth.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func unauthorized(err error) error {
	return &erraux.Error{
		Err:    err,
		Code:   http.StatusUnauthorized,
		Header: http.Header{authenticateHeader: {"Bearer"}},
	}
}

// BearerAuth returns middleware that rejects requests without a valid token
// and writes without the admin capability.
func BearerAuth(config AuthConfig) func(http.Handler) http.Handler {
	if config.Secret == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	if config.AdminCapability == "" {
		config.AdminCapability = defaultCapability
	}
	secret := []byte(config.Secret)
	keyfunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := authenticate(r, keyfunc, config.AdminCapability)
			if err == nil && !p.Admin && !readOnly(r.Method) {
				err = &erraux.Error{Err: ErrInsufficientScope, Code: http.StatusForbidden}
			}
			if err != nil {
				encodeError(r.Context(), err, w)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
		})
	}
}

func readOnly(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func authenticate(r *http.Request, keyfunc jwt.Keyfunc, adminCapability string) (Principal, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return Principal{}, unauthorized(ErrMissingToken)
	}
	value := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if value == "" {
		return Principal{}, unauthorized(ErrMissingToken)
	}

	claims := make(jwt.MapClaims)
	token, err := jwt.ParseWithClaims(value, claims, keyfunc)
	if err != nil {
		return Principal{}, unauthorized(emperror.Wrap(ErrInvalidToken, err.Error()))
	}
	if !token.Valid {
		return Principal{}, unauthorized(ErrInvalidToken)
	}

	subject, ok := claims[jwtPrincipalKey].(string)
	if !ok || subject == "" {
		return Principal{}, unauthorized(emperror.WrapWith(ErrInvalidPrincipal, "principal value not found", "principal key", jwtPrincipalKey))
	}
	return Principal{Subject: subject, Admin: hasCapability(claims[capabilitiesKey], adminCapability)}, nil
}

func hasCapability(claim interface{}, capability string) bool {
	switch list := claim.(type) {
	case []interface{}:
		for _, c := range list {
			if s, ok := c.(string); ok && s == capability {
				return true
			}
		}
	case []string:
		for _, s := range list {
			if s == capability {
				return true
			}
		}
	case string:
		for _, s := range strings.Fields(list) {
			if s == capability {
				return true
			}
		}
	}
	return false
}
