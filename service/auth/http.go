package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"bizlink/logger"
	"bizlink/service/storage"
	"bizlink/tools/security"
)

// CodeTokenExpired on a 401 tells the client coordinator to refresh instead
// of failing outright.
const (
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeInvalidToken = "INVALID_TOKEN"

	ctxClaimsKey = "authClaims"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RegisterRoutes mounts /auth/login, /auth/register, /auth/refresh plus the
// protected /auth/me.
func RegisterRoutes(rg *gin.RouterGroup, svc *Service, jwt security.Options) {
	rg.POST("/login", func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "email and password are required")
			return
		}
		u, pair, err := svc.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			unauthorized(c, "invalid email or password")
			return
		}
		sessionResponse(c, u, pair)
	})

	rg.POST("/register", func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "email and password are required")
			return
		}
		u, pair, err := svc.Register(c.Request.Context(), req.Email, req.Password, req.Name, req.Type)
		if errors.Is(err, ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"success": false, "message": "email already registered"})
			return
		}
		if err != nil {
			logger.Errorf("[auth] register failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "registration failed"})
			return
		}
		sessionResponse(c, u, pair)
	})

	rg.POST("/refresh", func(c *gin.Context) {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "refreshToken is required")
			return
		}
		u, pair, err := svc.Refresh(c.Request.Context(), req.RefreshToken)
		if err != nil {
			unauthorized(c, "invalid or expired refresh token")
			return
		}
		sessionResponse(c, u, pair)
	})

	rg.GET("/me", RequireAuth(jwt), func(c *gin.Context) {
		claims := c.MustGet(ctxClaimsKey).(*security.Claims)
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"user": gin.H{
				"id":    claims.UserID,
				"email": claims.Email,
				"type":  claims.UserType,
			},
		})
	})
}

// RequireAuth validates the bearer access token. Expired tokens answer with
// code TOKEN_EXPIRED so the client refreshes; anything else is fatal for the
// call.
func RequireAuth(jwt security.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false, "code": CodeInvalidToken, "message": "No token provided",
			})
			return
		}
		claims, err := security.Verify(jwt, token)
		if errors.Is(err, security.ErrExpired) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false, "code": CodeTokenExpired, "message": "Access token expired",
			})
			return
		}
		if err != nil || claims.Kind != "access" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false, "code": CodeInvalidToken, "message": "Invalid token",
			})
			return
		}
		c.Set(ctxClaimsKey, claims)
		c.Next()
	}
}

func sessionResponse(c *gin.Context, u *storage.User, pair security.TokenPair) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user": gin.H{
			"id":    u.ID,
			"email": u.Email,
			"name":  u.Name,
			"type":  u.Type,
		},
		"tokens": gin.H{
			"accessToken":  pair.AccessToken,
			"refreshToken": pair.RefreshToken,
			"expiresIn":    int64(time.Until(pair.ExpiresAt).Seconds()),
		},
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msg})
}

func unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": msg})
}

func bearerToken(c *gin.Context) string {
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if authz != "" && strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}
