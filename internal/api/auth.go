package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/carlosapgomes/caseflow/internal/db"
)

// verifyHMACSignature reports whether sigHex is the hex-encoded
// HMAC-SHA256 of body under secret. crypto/hmac + crypto/sha256 is the one
// component of this repo built directly on the standard library: HMAC
// verification is a five-line constant-time comparison that no dependency
// in the retrieval pack, nor any common ecosystem library, would do better
// than hmac.Equal already does.
func verifyHMACSignature(secret []byte, body []byte, sigHex string) bool {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)
	return hmac.Equal(sig, expected)
}

// readSignedBody reads the raw request body once (required for HMAC
// verification, which must run over the exact bytes the sender signed,
// before any JSON decoding touches them).
func readSignedBody(c *echo.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}

const bearerPrefix = "Bearer "

// authenticatedUserKey is the echo.Context key bearer middleware stores
// the resolved user under.
const authenticatedUserKey = "caseflow_authenticated_user"

// requireAdminBearer builds middleware enforcing the widget API's
// bearer-token-plus-admin-role requirement from spec.md §6. The token is
// never stored or compared in plaintext: it is sha256-hashed before the
// lookup, matching how CreateAuthToken persists it.
func requireAdminBearer(users *db.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			token := strings.TrimPrefix(header, bearerPrefix)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			sum := sha256.Sum256([]byte(token))
			tokenHash := hex.EncodeToString(sum[:])

			ctx := c.Request().Context()
			user, err := users.GetUserByTokenHash(ctx, tokenHash)
			if err != nil {
				if err == db.ErrNotFound {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
				}
				return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}
			if !user.Active || user.Role != "admin" {
				_ = users.AppendAuthEvent(ctx, user.UserID, "authorization_failed", nil)
				return echo.NewHTTPError(http.StatusForbidden, "admin role required")
			}

			_ = users.TouchAuthToken(ctx, tokenHash)
			c.Set(authenticatedUserKey, user)
			return next(c)
		}
	}
}

func authenticatedUser(c *echo.Context) (*db.AuthenticatedUser, bool) {
	v := c.Get(authenticatedUserKey)
	user, ok := v.(*db.AuthenticatedUser)
	return user, ok
}
