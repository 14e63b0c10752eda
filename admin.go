// admin.go - privacy-conscious visitor analytics and the admin dashboard
package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminCookie   = "admin_token"
	adminIssuer   = "portfolio-admin"
	adminTokenTTL = 24 * time.Hour
	visitorMaxAge = 12 // months
)

// untrackedPrefixes are never recorded as page views.
var untrackedPrefixes = []string{
	"/static/", "/images/", "/admin/", "/favicon", "/privacy", "/health", "/metrics", "/api/",
}

func randomHex(n int) string {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return hex.EncodeToString(bytes)
}

// adminAuth holds the signing key and the bcrypt hash of the admin password.
type adminAuth struct {
	username string
	hash     []byte
	secret   []byte
}

func newAdminAuth(cfg AdminConfig) (*adminAuth, error) {
	a := &adminAuth{username: cfg.Username}

	switch {
	case cfg.PasswordHash != "":
		a.hash = []byte(cfg.PasswordHash)
	case cfg.Password != "":
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		a.hash = hash
	default:
		slog.Warn("admin login disabled: no ADMIN_PASSWORD or ADMIN_PASSWORD_HASH set")
	}

	if cfg.JWTSecret != "" {
		a.secret = []byte(cfg.JWTSecret)
	} else {
		// Sessions do not survive a restart without a configured secret.
		a.secret = []byte(randomHex(32))
	}
	return a, nil
}

func (a *adminAuth) checkCredentials(username, password string) bool {
	if a.hash == nil {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
	return userOK && passOK
}

func (a *adminAuth) issueToken(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    adminIssuer,
		Subject:   a.username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(adminTokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *adminAuth) validToken(raw string) bool {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(adminIssuer))
	return err == nil && token.Valid
}

// hashIP is stable for the life of the process; the salt is regenerated on
// every start.
func (app *App) hashIP(ip string) string {
	hash := sha256.New()
	hash.Write([]byte(ip + app.salt))
	return hex.EncodeToString(hash.Sum(nil))[:16]
}

func (app *App) clientKey(c *gin.Context) string {
	return app.hashIP(c.ClientIP())
}

// Middleware to check admin authentication
func (app *App) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(adminCookie)
		if err != nil || !app.admin.validToken(token) {
			c.Redirect(http.StatusFound, "/admin/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Privacy-conscious visitor tracking middleware. Only full page loads of
// registered routes that succeeded are counted; htmx fragment requests and
// unmatched paths are not.
func (app *App) visitorTrackingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if c.Request.Method != http.MethodGet || isUntracked(path) || c.GetHeader("DNT") == "1" || isHTMX(c) {
			c.Next()
			return
		}

		c.Next()

		route := c.FullPath()
		if route == "" || c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		hashedIP := app.hashIP(c.ClientIP())
		userAgent := c.GetHeader("User-Agent")
		app.metrics.pageView(route)
		app.background(func(ctx context.Context) {
			if err := app.store.InsertVisitor(ctx, hashedIP, userAgent, path); err != nil {
				slog.Error("recording visitor", "error", err)
			}
		})
	}
}

func isUntracked(path string) bool {
	for _, prefix := range untrackedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// cleanupOldVisitorData enforces the visitor retention window.
func (app *App) cleanupOldVisitorData(ctx context.Context) {
	cutoff := time.Now().AddDate(0, -visitorMaxAge, 0)
	rowsDeleted, err := app.store.DeleteVisitorsBefore(ctx, cutoff)
	if err != nil {
		slog.Error("cleaning up old visitor data", "error", err)
		return
	}
	if rowsDeleted > 0 {
		slog.Info("privacy cleanup", "removed", rowsDeleted, "older_than_months", visitorMaxAge)
	}
}

// Setup all admin routes
func (app *App) setupAdminRoutes(r *gin.Engine) {
	r.GET("/privacy", func(c *gin.Context) {
		c.HTML(http.StatusOK, "privacy.html", gin.H{
			"title":     "Privacy Policy",
			"developer": app.profile.Developer,
			"months":    visitorMaxAge,
		})
	})

	r.GET("/admin/login", func(c *gin.Context) {
		c.HTML(http.StatusOK, "admin-login.html", gin.H{
			"title": "Admin Login",
		})
	})

	r.POST("/admin/login", app.loginLimiter.Middleware(), func(c *gin.Context) {
		username := c.PostForm("username")
		password := c.PostForm("password")

		if !app.admin.checkCredentials(username, password) {
			slog.Warn("failed admin login", "from", app.clientKey(c))
			c.HTML(http.StatusUnauthorized, "admin-login.html", gin.H{
				"title": "Admin Login",
				"error": "Invalid credentials",
			})
			return
		}

		token, err := app.admin.issueToken(time.Now())
		if err != nil {
			slog.Error("issuing admin token", "error", err)
			c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{
				"error": "Login failed",
			})
			return
		}
		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(adminCookie, token, int(adminTokenTTL.Seconds()), "/admin", "", gin.Mode() == gin.ReleaseMode, true)
		slog.Info("admin login", "from", app.clientKey(c))
		c.Redirect(http.StatusFound, "/admin/dashboard")
	})

	r.GET("/admin/logout", func(c *gin.Context) {
		c.SetCookie(adminCookie, "", -1, "/admin", "", gin.Mode() == gin.ReleaseMode, true)
		slog.Info("admin logout", "from", app.clientKey(c))
		c.Redirect(http.StatusFound, "/admin/login")
	})

	adminGroup := r.Group("/admin")
	adminGroup.Use(app.adminAuthMiddleware())

	adminGroup.GET("/dashboard", func(c *gin.Context) {
		stats, err := app.store.AdminStats(c.Request.Context())
		if err != nil {
			slog.Error("loading admin stats", "error", err)
			c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{
				"error": "Failed to load statistics",
			})
			return
		}
		c.HTML(http.StatusOK, "admin-dashboard.html", gin.H{
			"title": "Dashboard",
			"stats": stats,
		})
	})

	adminGroup.GET("/api/stats", func(c *gin.Context) {
		stats, err := app.store.AdminStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	adminGroup.GET("/visitors", func(c *gin.Context) {
		visitors, err := app.store.ListVisitors(c.Request.Context(), 200)
		if err != nil {
			slog.Error("loading visitors", "error", err)
			c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{
				"error": "Failed to load visitors",
			})
			return
		}
		c.HTML(http.StatusOK, "admin-visitors.html", gin.H{
			"title":    "Visitors",
			"visitors": visitors,
		})
	})

	adminGroup.GET("/messages", func(c *gin.Context) {
		msgs, err := app.store.ListContactMessages(c.Request.Context(), 200)
		if err != nil {
			slog.Error("loading contact messages", "error", err)
			c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{
				"error": "Failed to load messages",
			})
			return
		}
		c.HTML(http.StatusOK, "admin-messages.html", gin.H{
			"title":    "Messages",
			"messages": msgs,
		})
	})

	adminGroup.DELETE("/messages/:id", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message id"})
			return
		}

		err = app.store.DeleteContactMessage(c.Request.Context(), id)
		if errors.Is(err, ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
			return
		}
		if err != nil {
			slog.Error("deleting contact message", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete message"})
			return
		}

		slog.Info("contact message deleted", "id", id, "by", app.clientKey(c))
		c.JSON(http.StatusOK, gin.H{"message": "Message deleted successfully"})
	})

	adminGroup.POST("/privacy/cleanup", func(c *gin.Context) {
		app.background(app.cleanupOldVisitorData)
		c.JSON(http.StatusOK, gin.H{"message": "Privacy cleanup initiated"})
	})

	adminGroup.GET("/export/stats", func(c *gin.Context) {
		stats, err := app.store.AdminStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.Header("Content-Disposition", "attachment; filename=admin-stats.json")
		slog.Info("admin stats exported", "by", app.clientKey(c))
		c.JSON(http.StatusOK, stats)
	})
}
