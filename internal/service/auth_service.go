package service

import (
	"errors"
	"strings"

	"bazari/config"
	"bazari/internal/auth"
	"bazari/internal/domain"
	"bazari/internal/models"
	"bazari/internal/repository"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailExists  = errors.New("email already registered")
	ErrInvalidCreds = errors.New("invalid email or password")
)

type AuthService struct {
	cfg      *config.Config
	userRepo *repository.UserRepository
}

func NewAuthService(cfg *config.Config, userRepo *repository.UserRepository) *AuthService {
	return &AuthService{cfg: cfg, userRepo: userRepo}
}

func (s *AuthService) Register(name, email, password string) (*models.User, string, string, error) {
	_, err := s.userRepo.GetByEmail(email)
	if err == nil {
		return nil, "", "", ErrEmailExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", "", err
	}
	u := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
	}
	if err := s.userRepo.Create(u); err != nil {
		return nil, "", "", err
	}
	access, refresh, err := s.issueTokens(u)
	return u, access, refresh, err
}

func (s *AuthService) Login(email, password string) (*models.User, string, string, error) {
	u, err := s.userRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", "", ErrInvalidCreds
		}
		return nil, "", "", err
	}
	if u.PasswordHash == "" {
		return nil, "", "", ErrInvalidCreds
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", "", ErrInvalidCreds
	}
	access, refresh, err := s.issueTokens(u)
	return u, access, refresh, err
}

// LoginWithGoogle finds or creates a user for the Google identity and returns
// tokens plus an isNew flag. Google accounts always get the USER role; admin
// access is never granted through OAuth.
func (s *AuthService) LoginWithGoogle(googleID, email, name, avatarURL string) (*models.User, string, string, bool, error) {
	u, err := s.userRepo.GetByGoogleID(googleID)
	if err == nil {
		access, refresh, err := s.issueTokens(u)
		return u, access, refresh, false, err
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", "", false, err
	}
	existing, _ := s.userRepo.GetByEmail(email)
	if existing != nil {
		gid := googleID
		existing.GoogleID = &gid
		if avatarURL != "" {
			existing.AvatarURL = avatarURL
		}
		if err := s.userRepo.Update(existing); err != nil {
			return nil, "", "", false, err
		}
		access, refresh, err := s.issueTokens(existing)
		return existing, access, refresh, false, err
	}
	gid := googleID
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	u = &models.User{
		Name:      name,
		Email:     email,
		GoogleID:  &gid,
		Role:      domain.RoleUser,
		AvatarURL: avatarURL,
	}
	if err := s.userRepo.Create(u); err != nil {
		return nil, "", "", false, err
	}
	access, refresh, err := s.issueTokens(u)
	return u, access, refresh, true, err
}

func (s *AuthService) Profile(userID uint) (*models.User, error) {
	return s.userRepo.GetByID(userID)
}

// UpdateProfile changes the mutable profile fields; email and role are not
// client-editable.
func (s *AuthService) UpdateProfile(userID uint, name, avatarURL string) (*models.User, error) {
	u, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if name != "" {
		u.Name = name
	}
	if avatarURL != "" {
		u.AvatarURL = avatarURL
	}
	if err := s.userRepo.Update(u); err != nil {
		return nil, err
	}
	return u, nil
}

// ChangePassword updates the user's password after verifying the current one.
func (s *AuthService) ChangePassword(userID uint, currentPassword, newPassword string) error {
	u, err := s.userRepo.GetByID(userID)
	if err != nil {
		return ErrInvalidCreds
	}
	if u.PasswordHash == "" {
		return errors.New("account uses Google sign-in; no password set")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCreds
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return s.userRepo.Update(u)
}

func (s *AuthService) RefreshToken(refreshToken string) (access, refresh string, err error) {
	userID, err := auth.ParseRefreshToken(&s.cfg.JWT, refreshToken)
	if err != nil {
		return "", "", err
	}
	u, err := s.userRepo.GetByID(userID)
	if err != nil {
		return "", "", err
	}
	return s.issueTokens(u)
}

func (s *AuthService) issueTokens(u *models.User) (string, string, error) {
	access, err := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email, u.Role)
	if err != nil {
		return "", "", err
	}
	refresh, err := auth.GenerateRefreshToken(&s.cfg.JWT, u.ID)
	if err != nil {
		return access, "", err
	}
	return access, refresh, nil
}
