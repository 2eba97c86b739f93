// Package auth guards the API with a cookie session and a single bcrypt-hashed login.
package auth

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionKey   = "user"
	sessionIDKey = "sid"
)

type Credentials struct {
	User         string
	PasswordHash string
}

// Check compares a login attempt. An empty hash never matches.
func (c Credentials) Check(user, password string) bool {
	if c.PasswordHash == "" || user != c.User {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) == nil
}

func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}

// CurrentUser returns the signed-in user, or "".
func CurrentUser(c *gin.Context) string {
	u, _ := sessions.Default(c).Get(sessionKey).(string)
	return u
}

// SessionID identifies one signed-in cookie, or "".
func SessionID(c *gin.Context) string {
	id, _ := sessions.Default(c).Get(sessionIDKey).(string)
	return id
}

// SignIn stores the user and a fresh session ID, so each login gets its
// own server-side state even when the user name is shared.
func SignIn(c *gin.Context, user string) error {
	session := sessions.Default(c)
	session.Set(sessionKey, user)
	session.Set(sessionIDKey, uuid.NewString())
	return session.Save()
}

func SignOut(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	return session.Save()
}

// Required rejects requests without a session.
func Required(c *gin.Context) {
	if CurrentUser(c) == "" || SessionID(c) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "login required"})
		return
	}
	c.Next()
}
