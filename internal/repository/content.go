package repository

import (
	"context"
	"strings"

	"academy/internal/cache"
	"academy/internal/models"
	"academy/internal/observability"

	"gorm.io/gorm"
)

// ContentFilter narrows list queries. Zero values mean no filter.
type ContentFilter struct {
	Category string
	Limit    int
	Offset   int
}

// ContentRepository reads the course catalogue: protocols, quizzes and resources.
type ContentRepository interface {
	ListProtocols(ctx context.Context, f ContentFilter) ([]models.MassageProtocol, error)
	GetProtocol(ctx context.Context, slug string) (*models.MassageProtocol, error)
	SearchProtocols(ctx context.Context, query string, limit int) ([]models.MassageProtocol, error)
	ListQuizzes(ctx context.Context, f ContentFilter) ([]QuizSummary, error)
	GetQuiz(ctx context.Context, id uint) (*models.Quiz, error)
	ListResources(ctx context.Context, f ContentFilter) ([]models.Resource, error)
	GetResource(ctx context.Context, slug string) (*models.Resource, error)
}

// QuizSummary is quiz metadata plus the size of its question bank.
type QuizSummary struct {
	models.Quiz
	QuestionCount int `json:"question_count"`
}

type contentRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewContentRepository returns a ContentRepository backed by db. Single-item
// protocol and resource reads go through the Redis cache when one is configured.
func NewContentRepository(db *gorm.DB) ContentRepository {
	return &contentRepository{db: db, log: observability.NewRepoLogger("content")}
}

func applyFilter(db *gorm.DB, f ContentFilter) *gorm.DB {
	if f.Category != "" {
		db = db.Where("category = ?", f.Category)
	}
	if f.Limit > 0 {
		db = db.Limit(f.Limit)
	}
	if f.Offset > 0 {
		db = db.Offset(f.Offset)
	}
	return db
}

func (r *contentRepository) ListProtocols(ctx context.Context, f ContentFilter) ([]models.MassageProtocol, error) {
	var protocols []models.MassageProtocol
	if err := applyFilter(r.db.WithContext(ctx), f).Order("id ASC").Find(&protocols).Error; err != nil {
		r.log.LogError(ctx, err, "list_protocols")
		return nil, models.NewInternalError(err)
	}
	return protocols, nil
}

func (r *contentRepository) GetProtocol(ctx context.Context, slug string) (*models.MassageProtocol, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	var protocol models.MassageProtocol
	err := cache.Aside(ctx, cache.ProtocolKey(slug), &protocol, cache.ContentTTL, func() error {
		return r.db.WithContext(ctx).Where("slug = ?", slug).First(&protocol).Error
	})
	if err != nil {
		return nil, translate(err, "Protocol", slug)
	}
	return &protocol, nil
}

// SearchProtocols matches query against both titles, case-insensitively for
// ASCII text.
func (r *contentRepository) SearchProtocols(ctx context.Context, query string, limit int) ([]models.MassageProtocol, error) {
	query = strings.TrimSpace(query)
	var protocols []models.MassageProtocol
	if query == "" {
		return protocols, nil
	}
	like := "%" + strings.ToLower(query) + "%"
	err := r.db.WithContext(ctx).
		Where("LOWER(title_ru) LIKE ? OR LOWER(title_ro) LIKE ? OR LOWER(category) LIKE ?", like, like, like).
		Order("id ASC").
		Limit(limit).
		Find(&protocols).Error
	if err != nil {
		r.log.LogError(ctx, err, "search_protocols")
		return nil, models.NewInternalError(err)
	}
	return protocols, nil
}

func (r *contentRepository) ListQuizzes(ctx context.Context, f ContentFilter) ([]QuizSummary, error) {
	var quizzes []models.Quiz
	if err := applyFilter(r.db.WithContext(ctx), f).Order("id ASC").Find(&quizzes).Error; err != nil {
		r.log.LogError(ctx, err, "list_quizzes")
		return nil, models.NewInternalError(err)
	}

	out := make([]QuizSummary, 0, len(quizzes))
	if len(quizzes) == 0 {
		return out, nil
	}
	ids := make([]uint, 0, len(quizzes))
	for _, q := range quizzes {
		ids = append(ids, q.ID)
	}

	var counts []struct {
		QuizID uint
		N      int
	}
	err := r.db.WithContext(ctx).Model(&models.QuizQuestion{}).
		Select("quiz_id, COUNT(*) AS n").
		Where("quiz_id IN ?", ids).
		Group("quiz_id").
		Scan(&counts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	byQuiz := make(map[uint]int, len(counts))
	for _, c := range counts {
		byQuiz[c.QuizID] = c.N
	}
	for _, q := range quizzes {
		out = append(out, QuizSummary{Quiz: q, QuestionCount: byQuiz[q.ID]})
	}
	return out, nil
}

// GetQuiz loads the quiz with its whole question bank, answers included.
// It is never cached because answers must not reach Redis.
func (r *contentRepository) GetQuiz(ctx context.Context, id uint) (*models.Quiz, error) {
	var quiz models.Quiz
	err := r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&quiz, id).Error
	if err != nil {
		return nil, translate(err, "Quiz", id)
	}
	return &quiz, nil
}

func (r *contentRepository) ListResources(ctx context.Context, f ContentFilter) ([]models.Resource, error) {
	var resources []models.Resource
	if err := applyFilter(r.db.WithContext(ctx), f).Order("id ASC").Find(&resources).Error; err != nil {
		r.log.LogError(ctx, err, "list_resources")
		return nil, models.NewInternalError(err)
	}
	return resources, nil
}

func (r *contentRepository) GetResource(ctx context.Context, slug string) (*models.Resource, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	var resource models.Resource
	err := cache.Aside(ctx, cache.ResourceKey(slug), &resource, cache.ContentTTL, func() error {
		return r.db.WithContext(ctx).Where("slug = ?", slug).First(&resource).Error
	})
	if err != nil {
		return nil, translate(err, "Resource", slug)
	}
	return &resource, nil
}
