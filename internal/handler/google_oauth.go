package handler

import (
	"encoding/json"
	"net/http"
	"net/url"

	"bazari/config"
	"bazari/internal/models"
	"bazari/internal/repository"
	"bazari/internal/service"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

type GoogleOAuthHandler struct {
	cfg       *config.Config
	authSvc   *service.AuthService
	auditRepo *repository.AuditLogRepository
}

func NewGoogleOAuthHandler(cfg *config.Config, authSvc *service.AuthService, auditRepo *repository.AuditLogRepository) *GoogleOAuthHandler {
	return &GoogleOAuthHandler{cfg: cfg, authSvc: authSvc, auditRepo: auditRepo}
}

func (h *GoogleOAuthHandler) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.cfg.OAuth.GoogleClientID,
		ClientSecret: h.cfg.OAuth.GoogleClientSecret,
		RedirectURL:  h.cfg.OAuth.GoogleRedirectURL,
		Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"},
		Endpoint:     google.Endpoint,
	}
}

// Redirect sends the user to the Google consent screen.
func (h *GoogleOAuthHandler) Redirect(c *gin.Context) {
	if h.cfg.OAuth.GoogleClientID == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google OAuth not configured"})
		return
	}
	c.Redirect(http.StatusFound, h.oauth2Config().AuthCodeURL("state", oauth2.AccessTypeOffline))
}

type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Callback exchanges the code, fetches user info, creates or links the
// account, and returns JWTs.
func (h *GoogleOAuthHandler) Callback(c *gin.Context) {
	if h.cfg.OAuth.GoogleClientID == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google OAuth not configured"})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}
	ctx := c.Request.Context()
	conf := h.oauth2Config()
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exchange failed"})
		return
	}
	resp, err := conf.Client(ctx, tok).Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil || resp.StatusCode != http.StatusOK {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user info"})
		return
	}
	defer resp.Body.Close()
	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user info"})
		return
	}
	h.finishLogin(c, info.ID, info.Email, info.Name, info.Picture)
}

// tokeninfoResponse is the response from the Google tokeninfo endpoint.
type tokeninfoResponse struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Token accepts an ID token from a mobile Google sign-in and returns JWTs.
func (h *GoogleOAuthHandler) Token(c *gin.Context) {
	if h.cfg.OAuth.GoogleClientID == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google OAuth not configured"})
		return
	}
	var req struct {
		IDToken string `json:"id_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id_token required"})
		return
	}
	resp, err := http.Get("https://oauth2.googleapis.com/tokeninfo?id_token=" + url.QueryEscape(req.IDToken))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token verification failed"})
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id_token"})
		return
	}
	var info tokeninfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid token response"})
		return
	}
	if info.Sub == "" || info.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token payload"})
		return
	}
	h.finishLogin(c, info.Sub, info.Email, info.Name, info.Picture)
}

func (h *GoogleOAuthHandler) finishLogin(c *gin.Context, googleID, email, name, picture string) {
	u, access, refresh, _, err := h.authSvc.LoginWithGoogle(googleID, email, name, picture)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if h.auditRepo != nil {
		_ = h.auditRepo.Create(&models.AuditLog{
			UserID:    &u.ID,
			Action:    "google_oauth_login",
			Resource:  "auth",
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "access_token": access, "refresh_token": refresh})
}
