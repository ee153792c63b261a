package auth

import (
	"testing"
	"time"

	"bazari/config"
	"bazari/internal/domain"
)

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 168 * time.Hour,
		Issuer:        "bazari",
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateAccessToken(cfg, 42, "a@b.co", domain.RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != 42 || claims.Email != "a@b.co" || claims.Role != domain.RoleAdmin {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateAccessToken(cfg, 42, "a@b.co", domain.RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	other := testJWTConfig()
	other.AccessSecret = "some-other-secret"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Error("token accepted under the wrong secret")
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.AccessExpiry = -time.Minute
	token, err := GenerateAccessToken(cfg, 42, "a@b.co", domain.RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Error("expired token accepted")
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateRefreshToken(cfg, 42)
	if err != nil {
		t.Fatal(err)
	}
	userID, err := ParseRefreshToken(cfg, token)
	if err != nil {
		t.Fatal(err)
	}
	if userID != 42 {
		t.Errorf("userID = %d, want 42", userID)
	}
}

func TestParseRejectsForeignIssuer(t *testing.T) {
	other := testJWTConfig()
	other.Issuer = "some-other-service"
	access, err := GenerateAccessToken(other, 42, "a@b.co", domain.RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	refresh, err := GenerateRefreshToken(other, 42)
	if err != nil {
		t.Fatal(err)
	}
	cfg := testJWTConfig()
	if _, err := ParseAccessToken(cfg, access); err == nil {
		t.Error("access token from another issuer accepted")
	}
	if _, err := ParseRefreshToken(cfg, refresh); err == nil {
		t.Error("refresh token from another issuer accepted")
	}
}

func TestRefreshTokenNotValidAsAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateRefreshToken(cfg, 42)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Error("refresh token accepted as an access token")
	}
}
