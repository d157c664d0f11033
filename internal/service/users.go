package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alphabot-ai/murmur/internal/auth"
	"github.com/alphabot-ai/murmur/internal/model"
	"github.com/alphabot-ai/murmur/internal/store"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// RegisterInput is the closed set of fields a registration may carry.
// ConfirmPassword is a request-time equality check only; it is never
// persisted in any form.
type RegisterInput struct {
	FirstName       string `json:"firstname" validate:"max=64"`
	LastName        string `json:"lastname" validate:"max=64"`
	Username        string `json:"username" validate:"required,min=5,max=32"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// ProfileUpdate enumerates exactly the mutable profile fields. Anything
// else in a request body is rejected at decode time.
type ProfileUpdate struct {
	Bio      string `json:"bio" validate:"max=500"`
	Location string `json:"location" validate:"max=128"`
}

type Users struct {
	store store.Store
}

func NewUsers(st store.Store) *Users {
	return &Users{store: st}
}

func (u *Users) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	if err := validate.Struct(in); err != nil {
		return model.User{}, invalidInput(err)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := model.User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Username:     strings.TrimSpace(in.Username),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	id, err := u.store.CreateUser(ctx, &user)
	if err != nil {
		return model.User{}, fromStore(err)
	}
	user.ID = id
	return user, nil
}

func (u *Users) Get(ctx context.Context, id int64) (model.User, error) {
	user, err := u.store.GetUser(ctx, id)
	if err != nil {
		return model.User{}, fromStore(err)
	}
	return user, nil
}

// Profile projects a user to its public-safe shape. The projection is
// structural: secrets cannot appear in it regardless of caller.
func (u *Users) Profile(ctx context.Context, id int64) (model.Profile, error) {
	user, err := u.store.GetUser(ctx, id)
	if err != nil {
		return model.Profile{}, fromStore(err)
	}
	return user.Profile(), nil
}

func (u *Users) List(ctx context.Context, limit int) ([]model.Profile, error) {
	users, err := u.store.ListUsers(ctx, limit)
	if err != nil {
		return nil, fromStore(err)
	}
	profiles := make([]model.Profile, 0, len(users))
	for _, usr := range users {
		profiles = append(profiles, usr.Profile())
	}
	return profiles, nil
}

// UpdateProfile lets a user edit their own bio/location; admins may
// edit anyone's.
func (u *Users) UpdateProfile(ctx context.Context, callerID, targetID int64, in ProfileUpdate) (model.Profile, error) {
	if err := validate.Struct(in); err != nil {
		return model.Profile{}, invalidInput(err)
	}
	if callerID != targetID {
		caller, err := u.store.GetUser(ctx, callerID)
		if err != nil {
			return model.Profile{}, fromStore(err)
		}
		if !caller.IsAdmin {
			return model.Profile{}, fmt.Errorf("profile %d: %w", targetID, ErrForbidden)
		}
	}
	if err := u.store.UpdateUserProfile(ctx, targetID, strings.TrimSpace(in.Bio), strings.TrimSpace(in.Location)); err != nil {
		return model.Profile{}, fromStore(err)
	}
	return u.Profile(ctx, targetID)
}

// Delete removes an account. Self-service or admin.
func (u *Users) Delete(ctx context.Context, callerID, targetID int64) error {
	if callerID != targetID {
		caller, err := u.store.GetUser(ctx, callerID)
		if err != nil {
			return fromStore(err)
		}
		if !caller.IsAdmin {
			return fmt.Errorf("user %d: %w", targetID, ErrForbidden)
		}
	}
	return fromStore(u.store.DeleteUser(ctx, targetID))
}

// invalidInput flattens the first validator failure into the taxonomy.
func invalidInput(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return invalidf("%s failed on %q", strings.ToLower(fe.Field()), fe.Tag())
	}
	return invalidf("%v", err)
}
