package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"aggregator/aggregator/config"
	"aggregator/aggregator/sources/psql/dao"
	"aggregator/aggregator/utils/logging"
	"aggregator/aggregator/utils/types"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

type AuthController struct {
	userDAO *dao.UserDAO
	cfg     config.Config
	now     func() time.Time
}

func NewAuthController(userDAO *dao.UserDAO, cfg config.Config) *AuthController {
	return &AuthController{
		userDAO: userDAO,
		cfg:     cfg,
		now:     time.Now,
	}
}

func (c *AuthController) Login(ctx context.Context, req types.LoginRequest) (*types.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := c.userDAO.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsAdmin {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		logging.AppLogger.Info("failed login", zap.String("email", email))
		return nil, ErrInvalidCredentials
	}

	now := c.now()
	expires := now.Add(c.cfg.TokenTTL)
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"exp":     expires.Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.cfg.JWTSecret))
	if err != nil {
		return nil, err
	}
	if err := c.userDAO.TouchLastLogin(ctx, user.ID, now.UTC()); err != nil {
		logging.ErrorLogger.Error("update last login", zap.Int("user_id", user.ID), zap.Error(err))
	}
	return &types.LoginResponse{Token: signed, ExpiresAt: expires.UTC()}, nil
}

// EnsureAdmin creates the first admin from configuration when none exists.
func (c *AuthController) EnsureAdmin(ctx context.Context) error {
	if c.cfg.AdminEmail == "" || c.cfg.AdminPassword == "" {
		return nil
	}
	n, err := c.userDAO.CountAdmins(ctx)
	if err != nil || n > 0 {
		return err
	}
	hash, err := hashPassword(c.cfg.AdminPassword)
	if err != nil {
		return err
	}
	email := strings.ToLower(strings.TrimSpace(c.cfg.AdminEmail))
	if _, err := c.userDAO.CreateUser(ctx, email, "Administrator", hash, true); err != nil {
		return err
	}
	logging.AppLogger.Info("seeded admin account", zap.String("email", email))
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
