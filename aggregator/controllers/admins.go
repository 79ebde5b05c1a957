package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aggregator/aggregator/sources/psql/dao"
	"aggregator/aggregator/sources/psql/models"
	"aggregator/aggregator/utils/types"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

var (
	ErrWeakPassword = fmt.Errorf("password must be at least %d characters", minPasswordLen)
	ErrAdminExists  = errors.New("an account with this email already exists")
	ErrNotFound     = errors.New("not found")
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

type AdminController struct {
	dao *dao.UserDAO
}

func NewAdminController(dao *dao.UserDAO) *AdminController {
	return &AdminController{dao: dao}
}

func adminView(u models.User) types.AdminView {
	return types.AdminView{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
	}
}

func (c *AdminController) List(ctx context.Context) ([]types.AdminView, error) {
	users, err := c.dao.GetAllUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.AdminView, 0, len(users))
	for _, u := range users {
		if u.IsAdmin {
			out = append(out, adminView(u))
		}
	}
	return out, nil
}

func (c *AdminController) Create(ctx context.Context, req types.CreateAdminRequest) (*types.AdminView, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLen {
		return nil, ErrWeakPassword
	}
	existing, err := c.dao.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAdminExists
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = email
	}
	user, err := c.dao.CreateUser(ctx, email, name, hash, true)
	if err != nil {
		return nil, err
	}
	v := adminView(*user)
	return &v, nil
}

func (c *AdminController) ChangePassword(ctx context.Context, userID int, req types.ChangePasswordRequest) error {
	if len(req.NewPassword) < minPasswordLen {
		return ErrWeakPassword
	}
	user, err := c.dao.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := hashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return c.dao.UpdatePassword(ctx, userID, hash)
}
