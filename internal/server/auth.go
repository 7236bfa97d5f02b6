package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// AuthConfig enables bearer auth when JWTSecret is set. The token subject
// must equal the user id in the request path.
type AuthConfig struct {
	JWTSecret string
	Logger    *zap.Logger
}

func (c AuthConfig) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func authenticateJWT(token string, secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("subject claim required")
	}
	return claims.Subject, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// userFromPath returns the unescaped first segment below basePath of an
// escaped request path. Splitting before unescaping keeps an encoded "/"
// inside the user id, matching what the router binds.
func userFromPath(basePath, escaped string) (string, error) {
	rest, ok := strings.CutPrefix(escaped, basePath+"/")
	if !ok {
		return "", nil
	}
	segment, _, _ := strings.Cut(rest, "/")
	return url.PathUnescape(segment)
}

func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	return func(next http.Handler) http.Handler {
		if strings.TrimSpace(cfg.JWTSecret) == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.URL.EscapedPath() == healthPath {
				next.ServeHTTP(w, req)
				return
			}
			userID, err := userFromPath(basePath, req.URL.EscapedPath())
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusBadRequest, "invalid user id in path"))
				return
			}
			if userID == "" {
				next.ServeHTTP(w, req)
				return
			}
			token, ok := bearerToken(req.Header.Get("Authorization"))
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "authentication required"))
				return
			}
			subject, err := authenticateJWT(token, cfg.JWTSecret)
			if err != nil {
				cfg.logger().Info("rejected token", zap.String("path", req.URL.Path), zap.Error(err))
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid credentials"))
				return
			}
			if subject != userID {
				cfg.logger().Info("token subject mismatch", zap.String("subject", subject), zap.String("user_id", userID))
				respondStatusError(w, newAPIError(http.StatusForbidden, "token does not grant access to this user"))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
