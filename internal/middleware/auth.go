package middleware

import (
	"errors"
	"strings"

	"backend/internal/authz"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// identityKey is the gin context key the authenticated caller is stored
// under.
const identityKey = "identity"

// Identity extracts the authenticated caller from the gin context. The
// boolean is false on unauthenticated requests.
func Identity(c *gin.Context) (authz.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return authz.Identity{}, false
	}
	ident, ok := v.(authz.Identity)
	return ident, ok
}

// Authenticate validates the bearer access token and re-checks the account
// against the store (a deleted or deactivated user is cut off immediately,
// not at token expiry). On success the identity lands in the gin context.
func Authenticate(users repository.UserRepository, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AbortFail(c, apperror.Unauthorized("Token de acceso no proporcionado"))
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			response.AbortFail(c, apperror.Unauthorized("Formato de autorización inválido"))
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.AbortFail(c, apperror.Unauthorized("Token expirado. Utiliza el endpoint /auth/refresh"))
				return
			}
			response.AbortFail(c, apperror.Unauthorized("Token inválido"))
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			response.AbortFail(c, apperror.Unauthorized("Token inválido"))
			return
		}
		if tokenType, _ := claims["type"].(string); tokenType != "access" {
			response.AbortFail(c, apperror.Unauthorized("Tipo de token incorrecto"))
			return
		}
		sub, ok := claims["sub"].(float64)
		if !ok {
			response.AbortFail(c, apperror.Unauthorized("Token inválido"))
			return
		}

		user, err := users.GetByID(c.Request.Context(), uint(sub))
		if err != nil {
			response.AbortFail(c, apperror.Unauthorized("Usuario no encontrado"))
			return
		}
		if !user.Activo {
			response.AbortFail(c, apperror.Unauthorized("Cuenta inactiva o eliminada"))
			return
		}

		c.Set(identityKey, authz.Identity{
			UserID:   user.ID,
			Username: user.Username,
			Roles:    user.RoleNames(),
		})
		c.Next()
	}
}

// RequireRoles allows only callers holding at least one of the given roles.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := Identity(c)
		if !ok {
			response.AbortFail(c, apperror.Unauthorized("No autenticado"))
			return
		}
		if !ident.HasAnyRole(roles...) {
			response.AbortFail(c, apperror.Forbidden("Acceso denegado. Requiere rol: "+strings.Join(roles, " o ")))
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows any caller with at least one recognized role.
func RequireAnyRole() gin.HandlerFunc {
	return RequireRoles(model.AllRoles...)
}
