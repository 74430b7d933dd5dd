package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"academy/internal/access"
	"academy/internal/featureflags"
	"academy/internal/models"
	"academy/internal/observability"
	"academy/internal/repository"
)

const (
	maxQuestionLen   = 2000
	maxSuggestions   = 3
	maxSearchTerms   = 6
	minSearchTermLen = 4
)

// AssistantService answers study questions within a daily per-tier budget.
type AssistantService struct {
	users   repository.UserRepository
	content repository.ContentRepository
	policy  *access.Policy
	flags   *featureflags.Manager
	now     func() time.Time
}

// Suggestion points the user at a protocol relevant to the question.
type Suggestion struct {
	Slug       string          `json:"slug"`
	Title      string          `json:"title"`
	AccessInfo access.Decision `json:"access_info"`
}

// AssistantAnswer is the reply to one question with the budget left after it.
type AssistantAnswer struct {
	Answer      string               `json:"answer"`
	Suggestions []Suggestion         `json:"suggestions"`
	Quota       access.QuotaDecision `json:"quota"`
}

// NewAssistantService returns an AssistantService.
func NewAssistantService(users repository.UserRepository, content repository.ContentRepository, policy *access.Policy, flags *featureflags.Manager) *AssistantService {
	if policy == nil {
		policy = access.DefaultPolicy()
	}
	return &AssistantService{users: users, content: content, policy: policy, flags: flags, now: time.Now}
}

func (s *AssistantService) enabled(userID uint) error {
	if !s.flags.Enabled(featureflags.AIAssistant, userID) {
		observability.AssistantRequests.WithLabelValues("disabled").Inc()
		return models.NewForbiddenError("The assistant is not available")
	}
	return nil
}

// Quota reports the user's budget for today without consuming it.
func (s *AssistantService) Quota(ctx context.Context, userID uint) (*access.QuotaDecision, error) {
	if err := s.enabled(userID); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	d := s.policy.Quota(user, s.now())
	return &d, nil
}

// Ask charges one request and answers. When the budget is spent it returns a
// RATE_LIMITED error together with an answer carrying only the quota.
//
// The counter is read, checked and written back without a lock, so concurrent
// requests from one user may overshoot the limit slightly.
func (s *AssistantService) Ask(ctx context.Context, userID uint, question string) (*AssistantAnswer, error) {
	if err := s.enabled(userID); err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, models.NewValidationError("Question is required")
	}
	if utf8.RuneCountInString(question) > maxQuestionLen {
		return nil, models.NewValidationError(fmt.Sprintf("Question too long (max %d characters)", maxQuestionLen))
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	quota := s.policy.Consume(user, now)
	if !quota.Allowed {
		observability.AssistantRequests.WithLabelValues("rate_limited").Inc()
		return &AssistantAnswer{Suggestions: []Suggestion{}, Quota: quota},
			models.NewRateLimitedError("Daily assistant limit reached")
	}
	if err := s.users.SaveAIUsage(ctx, user); err != nil {
		observability.AssistantRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	suggestions, err := s.suggest(ctx, user, question, now)
	if err != nil {
		observability.AssistantRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	observability.AssistantRequests.WithLabelValues("answered").Inc()
	return &AssistantAnswer{
		Answer:      compose(user.Language, suggestions),
		Suggestions: suggestions,
		Quota:       quota,
	}, nil
}

func (s *AssistantService) suggest(ctx context.Context, user *models.User, question string, now time.Time) ([]Suggestion, error) {
	out := []Suggestion{}
	seen := map[string]bool{}
	for _, term := range searchTerms(question) {
		hits, err := s.content.SearchProtocols(ctx, term, maxSuggestions)
		if err != nil {
			return nil, err
		}
		for _, p := range hits {
			if seen[p.Slug] {
				continue
			}
			seen[p.Slug] = true
			title := p.TitleRU
			if user.Language == models.LangRO {
				title = p.TitleRO
			}
			out = append(out, Suggestion{
				Slug:       p.Slug,
				Title:      title,
				AccessInfo: access.CheckAccess(user, s.policy.ProtocolTier(p.Slug), now),
			})
			if len(out) == maxSuggestions {
				return out, nil
			}
		}
	}
	return out, nil
}

// searchTerms keeps the longer words of the question, longest first.
func searchTerms(question string) []string {
	words := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	seen := map[string]bool{}
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < minSearchTermLen || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	slices.SortStableFunc(terms, func(a, b string) int {
		return utf8.RuneCountInString(b) - utf8.RuneCountInString(a)
	})
	if len(terms) > maxSearchTerms {
		terms = terms[:maxSearchTerms]
	}
	return terms
}

func compose(lang string, suggestions []Suggestion) string {
	titles := make([]string, 0, len(suggestions))
	for _, sg := range suggestions {
		titles = append(titles, sg.Title)
	}
	if lang == models.LangRO {
		if len(titles) == 0 {
			return "Nu am găsit protocoale potrivite. Încercați să reformulați întrebarea."
		}
		return "Iată protocoalele care vă pot ajuta: " + strings.Join(titles, "; ") + "."
	}
	if len(titles) == 0 {
		return "Не нашёл подходящих протоколов. Попробуйте переформулировать вопрос."
	}
	return "Вот протоколы, которые могут помочь: " + strings.Join(titles, "; ") + "."
}
