package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wellspring/apiserver/internal/store"
	"github.com/wellspring/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Login for an unknown email or a
// wrong password. The two cases are deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("invalid credentials")

// maxPasswordBytes is the longest input bcrypt hashes.
const maxPasswordBytes = 72

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
	cost int
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo, cost: bcrypt.DefaultCost}
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// FindByEmail looks a user up by email. The address is normalized first.
func (s *UserService) FindByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, NormalizeEmail(email))
}

// Register validates the input, hashes the password and creates the user.
// An email that is already taken yields store.ErrDuplicateEmail.
func (s *UserService) Register(ctx context.Context, fullName, email, password string) (types.User, error) {
	user := types.User{
		FullName: strings.TrimSpace(fullName),
		Email:    NormalizeEmail(email),
		Role:     types.RoleUser,
	}

	verr := &types.ValidationError{}
	if err := types.ValidateUser(user); err != nil {
		errors.As(err, &verr)
	}
	switch {
	case password == "":
		verr = addFieldError(verr, "password", "password is required")
	case len(password) > maxPasswordBytes:
		verr = addFieldError(verr, "password", fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}
	if len(verr.Fields) > 0 {
		return types.User{}, verr
	}

	if _, err := s.repo.GetByEmail(ctx, user.Email); err == nil {
		return types.User{}, store.ErrDuplicateEmail
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, fmt.Errorf("check email: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = string(hashed)

	return s.repo.Create(ctx, user)
}

// Login returns the user owning email if password matches its stored hash.
func (s *UserService) Login(ctx context.Context, email, password string) (types.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if !VerifyPassword(user, password) {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// VerifyPassword compares candidate against the user's bcrypt hash.
func VerifyPassword(user types.User, candidate string) bool {
	if user.PasswordHash == "" || candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(candidate)) == nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func addFieldError(verr *types.ValidationError, field, message string) *types.ValidationError {
	if verr.Fields == nil {
		verr.Fields = make(map[string]string)
	}
	verr.Fields[field] = message
	return verr
}
