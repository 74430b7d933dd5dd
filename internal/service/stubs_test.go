package service

import (
	"context"
	"testing"
	"time"

	"academy/internal/models"
	"academy/internal/repository"

	"github.com/stretchr/testify/assert"
)

type userRepoStub struct {
	getByIDFn       func(context.Context, uint) (*models.User, error)
	getByEmailFn    func(context.Context, string) (*models.User, error)
	getByUsernameFn func(context.Context, string) (*models.User, error)
	getByIDsFn      func(context.Context, []uint) ([]models.User, error)
	createFn        func(context.Context, *models.User) error
	updateAccessFn  func(context.Context, uint, repository.AccessUpdate) (*models.User, error)
	saveAIUsageFn   func(context.Context, *models.User) error
	listFn          func(context.Context, int, int) ([]models.User, error)
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getByUsernameFn(ctx, username)
}
func (s *userRepoStub) GetByIDs(ctx context.Context, ids []uint) ([]models.User, error) {
	return s.getByIDsFn(ctx, ids)
}
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}
func (s *userRepoStub) UpdateAccess(ctx context.Context, id uint, upd repository.AccessUpdate) (*models.User, error) {
	return s.updateAccessFn(ctx, id, upd)
}
func (s *userRepoStub) SaveAIUsage(ctx context.Context, user *models.User) error {
	return s.saveAIUsageFn(ctx, user)
}
func (s *userRepoStub) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.listFn(ctx, limit, offset)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn: func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id, AccessLevel: models.AccessFree}, nil
		},
		getByEmailFn:    func(context.Context, string) (*models.User, error) { return nil, nil },
		getByUsernameFn: func(context.Context, string) (*models.User, error) { return nil, nil },
		getByIDsFn:      func(context.Context, []uint) ([]models.User, error) { return nil, nil },
		createFn:        func(context.Context, *models.User) error { return nil },
		updateAccessFn: func(_ context.Context, id uint, _ repository.AccessUpdate) (*models.User, error) {
			return &models.User{ID: id}, nil
		},
		saveAIUsageFn: func(context.Context, *models.User) error { return nil },
		listFn:        func(context.Context, int, int) ([]models.User, error) { return nil, nil },
	}
}

type chatRepoStub struct {
	repository.ChatRepository
	findPrivateFn        func(context.Context, uint, uint) (*models.Conversation, error)
	createConversationFn func(context.Context, *models.Conversation, []uint) error
	getConversationFn    func(context.Context, uint) (*models.Conversation, error)
}

func (s *chatRepoStub) FindPrivate(ctx context.Context, a, b uint) (*models.Conversation, error) {
	return s.findPrivateFn(ctx, a, b)
}
func (s *chatRepoStub) CreateConversation(ctx context.Context, conv *models.Conversation, ids []uint) error {
	return s.createConversationFn(ctx, conv, ids)
}
func (s *chatRepoStub) GetConversation(ctx context.Context, id uint) (*models.Conversation, error) {
	return s.getConversationFn(ctx, id)
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err), "expected validation error, got %v", err)
}

func assertCode(t *testing.T, code string, err error) {
	t.Helper()
	assert.Equal(t, code, models.ErrorCode(err), "unexpected error %v", err)
}

// steppingClock returns a clock that advances by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(step)
		return now
	}
}
