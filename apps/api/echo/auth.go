package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/core/user"
)

const (
	contextPrincipalKey = "principal"
	contextClaimsKey    = "claims"
	bearerPrefix        = "Bearer "
	audience            = "coursereview"
)

// Claims represents the authorization claims transmitted via a JWT.
// Refresh tokens carry the same claims with Refresh set; they only grant a new access token.
type Claims struct {
	jwt.RegisteredClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Role         string `json:"role"`
	Refresh      bool   `json:"refresh,omitempty"`
}

func (c Claims) Principal() core.Principal {
	return core.Principal{ID: c.Subject, Role: c.Role}
}

type tokenIssuer struct {
	conf *core.Config
	key  []byte
}

func newTokenIssuer(conf *core.Config) tokenIssuer {
	return tokenIssuer{conf: conf, key: []byte(conf.SecretKey)}
}

// claims returns the access (or refresh) claims of usr.
// origIat is the issue time of the login the token descends from; zero means now.
func (ti tokenIssuer) claims(usr user.User, refresh bool, origIat int64) *Claims {
	now := time.Now()
	if origIat == 0 {
		origIat = now.Unix()
	}
	exp := now.Add(ti.conf.Server.JWTExpirationDelta)
	if refresh {
		exp = time.Unix(origIat, 0).Add(ti.conf.Server.JWTRefreshExpirationDelta)
	}
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.conf.AppName,
			Subject:   usr.Email,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		OrigIssuedAt: origIat,
		Role:         usr.Role,
		Refresh:      refresh,
	}
}

// generate signs claims with HS256.
func (ti tokenIssuer) generate(claims *Claims) (string, error) {
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// pair returns a new access token, and a refresh token bound to the same login.
func (ti tokenIssuer) pair(usr user.User, origIat int64) (TokenResponse, error) {
	access, err := ti.generate(ti.claims(usr, false, origIat))
	if err != nil {
		return TokenResponse{}, err
	}
	refresh, err := ti.generate(ti.claims(usr, true, origIat))
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{Token: access, RefreshToken: refresh}, nil
}

func (ti tokenIssuer) parse(raw string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(
		raw, claims,
		func(*jwt.Token) (interface{}, error) { return ti.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

type authMode int

const (
	authOptional authMode = iota
	authRequired
	authRefresh
)

// authMiddleware reads the bearer token into the context principal.
// Without a token the principal is core.Anonymous, which only authOptional accepts.
// A token that is present but invalid is always refused.
func authMiddleware(ti tokenIssuer, mode authMode) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			raw, ok := bearerToken(ctx.Request())
			if !ok {
				if mode == authOptional {
					ctx.Set(contextPrincipalKey, core.Anonymous)
					return next(ctx)
				}
				return errMissingToken
			}

			claims, err := ti.parse(raw)
			if err != nil {
				return &echo.HTTPError{Code: http.StatusUnauthorized, Message: errInvalidToken.Message, Internal: err}
			}
			if claims.Refresh != (mode == authRefresh) {
				return errInvalidToken
			}
			ctx.Set(contextClaimsKey, *claims)
			ctx.Set(contextPrincipalKey, claims.Principal())
			return next(ctx)
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(h, bearerPrefix) {
		return "", false
	}
	raw := strings.TrimSpace(h[len(bearerPrefix):])
	return raw, raw != ""
}

func getContextPrincipal(ctx echo.Context) core.Principal {
	if p, ok := ctx.Get(contextPrincipalKey).(core.Principal); ok {
		return p
	}
	return core.Anonymous
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(Claims); ok {
		return claims, nil
	}
	return Claims{}, errUnauthorized
}
