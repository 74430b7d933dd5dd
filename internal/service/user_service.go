package service

import (
	"context"
	"strings"
	"time"

	"academy/internal/access"
	"academy/internal/models"
	"academy/internal/repository"
	"academy/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// UserService handles registration, credentials and entitlements.
type UserService struct {
	userRepo   repository.UserRepository
	bcryptCost int
	now        func() time.Time
}

// RegisterInput is the input for creating an account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Language string
}

// AccessInput is an admin change to a user's entitlement.
type AccessInput struct {
	AccessLevel         *models.AccessLevel
	Role                *models.Role
	SubscriptionStatus  *models.SubscriptionStatus
	SubscriptionEndDate *time.Time
	ClearEndDate        bool
}

// Profile is the caller's own account with the tier that currently applies.
type Profile struct {
	*models.User
	EffectiveTier models.AccessLevel `json:"effective_tier"`
	IsStaff       bool               `json:"is_staff"`
	CanUseChat    bool               `json:"can_use_chat"`
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo, bcryptCost: bcrypt.DefaultCost, now: time.Now}
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.userRepo.List(ctx, limit, offset)
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// Register validates and creates a free student account.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Language == "" {
		in.Language = models.LangRU
	}

	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, models.NewValidationError("Username, email, and password are required")
	}
	for _, check := range []error{
		validation.ValidateUsername(in.Username),
		validation.ValidateEmail(in.Email),
		validation.ValidatePassword(in.Password),
		validation.ValidateLanguage(in.Language),
	} {
		if check != nil {
			return nil, models.NewValidationError(check.Error())
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username:           in.Username,
		Email:              in.Email,
		Password:           string(hash),
		Language:           in.Language,
		Role:               models.RoleStudent,
		AccessLevel:        models.AccessFree,
		SubscriptionStatus: models.SubscriptionNone,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks an email and password pair. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	return user, nil
}

// Profile returns the user with the entitlement that applies right now.
func (s *UserService) Profile(ctx context.Context, id uint) (*Profile, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &Profile{
		User:          user,
		EffectiveTier: access.EffectiveTier(user, now),
		IsStaff:       user.Role.IsStaff(),
		CanUseChat:    access.CanUseChat(user, now),
	}, nil
}

// UpdateAccess applies an admin entitlement change.
func (s *UserService) UpdateAccess(ctx context.Context, targetID uint, in AccessInput) (*models.User, error) {
	if in.AccessLevel != nil && !in.AccessLevel.Valid() {
		return nil, models.NewValidationError("access_level must be free, basic or premium")
	}
	if in.Role != nil && !in.Role.Valid() {
		return nil, models.NewValidationError("role must be student, teacher or admin")
	}
	if in.SubscriptionStatus != nil && !in.SubscriptionStatus.Valid() {
		return nil, models.NewValidationError("unknown subscription_status")
	}
	if in.ClearEndDate && in.SubscriptionEndDate != nil {
		return nil, models.NewValidationError("subscription_end_date cannot be both set and cleared")
	}
	return s.userRepo.UpdateAccess(ctx, targetID, repository.AccessUpdate{
		AccessLevel:         in.AccessLevel,
		Role:                in.Role,
		SubscriptionStatus:  in.SubscriptionStatus,
		SubscriptionEndDate: in.SubscriptionEndDate,
		ClearEndDate:        in.ClearEndDate,
	})
}
