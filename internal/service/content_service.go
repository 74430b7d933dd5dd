package service

import (
	"context"
	"math/rand/v2"
	"time"

	"academy/internal/access"
	"academy/internal/models"
	"academy/internal/observability"
	"academy/internal/repository"
)

// ContentService serves the catalogue with tier gates applied. Denied reads
// still succeed with redacted bodies and an access_info block.
type ContentService struct {
	repo   repository.ContentRepository
	policy *access.Policy
	now    func() time.Time
	newRNG func() *rand.Rand
}

// ProtocolView is a protocol as a given user may see it.
type ProtocolView struct {
	models.MassageProtocol
	AccessInfo access.Decision `json:"access_info"`
}

// ResourceView is a resource as a given user may see it.
type ResourceView struct {
	models.Resource
	AccessInfo access.Decision `json:"access_info"`
}

// QuizListItem is quiz metadata without questions.
type QuizListItem struct {
	repository.QuizSummary
	AccessInfo access.Decision `json:"access_info"`
}

// QuizView is one attempt: a random sample of the bank, answers withheld.
type QuizView struct {
	models.Quiz
	Questions            []models.QuizQuestion `json:"questions"`
	TotalQuestionsInBank int                   `json:"total_questions_in_bank"`
	AccessInfo           access.Decision       `json:"access_info"`
}

// AnswerResult grades one submitted answer.
type AnswerResult struct {
	QuestionID   uint `json:"question_id"`
	Selected     int  `json:"selected"`
	CorrectIndex int  `json:"correct_index"`
	Correct      bool `json:"correct"`
}

// QuizResult grades a submitted attempt.
type QuizResult struct {
	QuizID   uint           `json:"quiz_id"`
	Total    int            `json:"total"`
	Correct  int            `json:"correct"`
	Score    int            `json:"score_percent"`
	Results  []AnswerResult `json:"results"`
	Unknown  []uint         `json:"unknown_question_ids,omitempty"`
	Answered time.Time      `json:"answered_at"`
}

// NewContentService returns a ContentService enforcing policy.
func NewContentService(repo repository.ContentRepository, policy *access.Policy) *ContentService {
	if policy == nil {
		policy = access.DefaultPolicy()
	}
	return &ContentService{
		repo:   repo,
		policy: policy,
		now:    time.Now,
		newRNG: func() *rand.Rand { return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) },
	}
}

// Policy returns the access policy in force.
func (s *ContentService) Policy() *access.Policy {
	return s.policy
}

func (s *ContentService) decide(user *models.User, required models.AccessLevel) access.Decision {
	d := access.CheckAccess(user, required, s.now())
	observability.AccessDecisions.WithLabelValues(string(required), observability.Result(d.HasAccess)).Inc()
	return d
}

func (s *ContentService) protocolView(user *models.User, p models.MassageProtocol) ProtocolView {
	d := s.decide(user, s.policy.ProtocolTier(p.Slug))
	s.policy.Redact(&p, d.HasAccess)
	return ProtocolView{MassageProtocol: p, AccessInfo: d}
}

// ListProtocols returns protocols with each body redacted to its own tier.
func (s *ContentService) ListProtocols(ctx context.Context, user *models.User, f repository.ContentFilter) ([]ProtocolView, error) {
	protocols, err := s.repo.ListProtocols(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]ProtocolView, 0, len(protocols))
	for _, p := range protocols {
		out = append(out, s.protocolView(user, p))
	}
	return out, nil
}

// GetProtocol returns one protocol by slug.
func (s *ContentService) GetProtocol(ctx context.Context, user *models.User, slug string) (*ProtocolView, error) {
	p, err := s.repo.GetProtocol(ctx, slug)
	if err != nil {
		return nil, err
	}
	view := s.protocolView(user, *p)
	return &view, nil
}

// ListQuizzes returns quiz metadata. Listing is open to everyone.
func (s *ContentService) ListQuizzes(ctx context.Context, user *models.User, f repository.ContentFilter) ([]QuizListItem, error) {
	quizzes, err := s.repo.ListQuizzes(ctx, f)
	if err != nil {
		return nil, err
	}
	d := access.CheckAccess(user, access.QuizTier, s.now())
	out := make([]QuizListItem, 0, len(quizzes))
	for _, q := range quizzes {
		out = append(out, QuizListItem{QuizSummary: q, AccessInfo: d})
	}
	return out, nil
}

// GetQuiz samples an attempt from the quiz bank. Users below the quiz tier
// get the metadata and an empty question list.
func (s *ContentService) GetQuiz(ctx context.Context, user *models.User, id uint) (*QuizView, error) {
	quiz, err := s.repo.GetQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	d := s.decide(user, access.QuizTier)
	view := &QuizView{
		Quiz:                 *quiz,
		Questions:            []models.QuizQuestion{},
		TotalQuestionsInBank: len(quiz.Questions),
		AccessInfo:           d,
	}
	view.Quiz.Questions = nil
	if d.HasAccess {
		view.Questions = access.SampleQuestions(quiz.Questions, s.policy.QuizSampleSize, s.newRNG())
	}
	return view, nil
}

// SubmitQuiz grades answers keyed by question id. Ids outside the bank are
// reported back and not scored.
func (s *ContentService) SubmitQuiz(ctx context.Context, user *models.User, id uint, answers map[uint]int) (*QuizResult, error) {
	if user == nil {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	if len(answers) == 0 {
		return nil, models.NewValidationError("At least one answer is required")
	}
	quiz, err := s.repo.GetQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := s.decide(user, access.QuizTier); !d.HasAccess {
		return nil, models.NewForbiddenError("Quizzes require a Premium subscription")
	}

	result := &QuizResult{QuizID: quiz.ID, Results: []AnswerResult{}, Answered: s.now()}
	bank := make(map[uint]models.QuizQuestion, len(quiz.Questions))
	for _, q := range quiz.Questions {
		bank[q.ID] = q
	}
	for _, q := range quiz.Questions {
		selected, ok := answers[q.ID]
		if !ok {
			continue
		}
		r := AnswerResult{QuestionID: q.ID, Selected: selected, CorrectIndex: q.CorrectIndex, Correct: selected == q.CorrectIndex}
		if r.Correct {
			result.Correct++
		}
		result.Results = append(result.Results, r)
	}
	for qid := range answers {
		if _, ok := bank[qid]; !ok {
			result.Unknown = append(result.Unknown, qid)
		}
	}
	result.Unknown = models.UniqueIDs(result.Unknown)
	result.Total = len(result.Results)
	if result.Total > 0 {
		result.Score = result.Correct * 100 / result.Total
	}
	return result, nil
}

func (s *ContentService) resourceView(user *models.User, r models.Resource) ResourceView {
	d := s.decide(user, access.ResourceTier)
	s.policy.Redact(&r, d.HasAccess)
	if !d.HasAccess {
		r.FileURL = ""
	}
	return ResourceView{Resource: r, AccessInfo: d}
}

// ListResources returns study material redacted for users below the resource tier.
func (s *ContentService) ListResources(ctx context.Context, user *models.User, f repository.ContentFilter) ([]ResourceView, error) {
	resources, err := s.repo.ListResources(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]ResourceView, 0, len(resources))
	for _, r := range resources {
		out = append(out, s.resourceView(user, r))
	}
	return out, nil
}

// GetResource returns one resource by slug.
func (s *ContentService) GetResource(ctx context.Context, user *models.User, slug string) (*ResourceView, error) {
	r, err := s.repo.GetResource(ctx, slug)
	if err != nil {
		return nil, err
	}
	view := s.resourceView(user, *r)
	return &view, nil
}
