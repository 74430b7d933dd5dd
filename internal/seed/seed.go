// Package seed fills a database with demo academy data: users in every tier and
// role, massage protocols, a quiz bank, study resources and a staff chat.
// It is intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"log"
	"time"

	"academy/internal/access"
	"academy/internal/cache"
	"academy/internal/database"
	"academy/internal/models"

	"gorm.io/gorm"
)

// DefaultQuizBankSize is the number of questions in each seeded quiz.
const DefaultQuizBankSize = 25

// Options configure the seeder.
type Options struct {
	StudentsPerTier int
	QuizBankSize    int
	ShouldClean     bool
	DryRun          bool
	SkipBcrypt      bool
	WithChat        bool
	RandSeed        int64
	// Policy supplies the basic allow-list; nil means access.DefaultPolicy().
	Policy *access.Policy
}

// Result summarizes what a run created.
type Result struct {
	Users     []*models.User
	Protocols []*models.MassageProtocol
	Quizzes   []*models.Quiz
	Resources []*models.Resource
	Group     *models.Conversation
}

var premiumProtocols = []struct{ slug, category string }{
	{"lymphatic-drainage", "therapeutic"},
	{"hot-stone-therapy", "spa"},
	{"sports-recovery", "sports"},
	{"deep-tissue-release", "therapeutic"},
	{"anti-cellulite-program", "cosmetic"},
}

var quizTopics = []struct{ slug, category string }{
	{"anatomy-basics", "anatomy"},
	{"contraindications", "safety"},
}

var resourceSlugs = []struct{ slug, category string }{
	{"muscle-atlas", "anatomy"},
	{"client-intake-form", "practice"},
	{"hygiene-checklist", "safety"},
}

type demoAccount struct {
	username string
	role     models.Role
	level    models.AccessLevel
	status   models.SubscriptionStatus
	endIn    time.Duration
}

// Fixed accounts, one per tier and role, with predictable logins.
var demoAccounts = []demoAccount{
	{"demo_free", models.RoleStudent, models.AccessFree, models.SubscriptionNone, 0},
	{"demo_basic", models.RoleStudent, models.AccessBasic, models.SubscriptionActive, 30 * 24 * time.Hour},
	{"demo_premium", models.RoleStudent, models.AccessPremium, models.SubscriptionActive, 365 * 24 * time.Hour},
	{"demo_trial", models.RoleStudent, models.AccessPremium, models.SubscriptionTrial, 7 * 24 * time.Hour},
	{"demo_expired", models.RoleStudent, models.AccessPremium, models.SubscriptionActive, -24 * time.Hour},
	{"demo_teacher", models.RoleTeacher, models.AccessFree, models.SubscriptionNone, 0},
	{"demo_admin", models.RoleAdmin, models.AccessFree, models.SubscriptionNone, 0},
}

// Seed populates the database with demo data.
func Seed(db *gorm.DB, opts Options) (*Result, error) {
	if opts.QuizBankSize <= 0 {
		opts.QuizBankSize = DefaultQuizBankSize
	}
	policy := opts.Policy
	if policy == nil {
		policy = access.DefaultPolicy()
	}
	log.Printf("🌱 Seeding academy data (%d students per tier, dry-run=%v)", opts.StudentsPerTier, opts.DryRun)

	if opts.ShouldClean && !opts.DryRun {
		if err := Clean(db); err != nil {
			return nil, err
		}
	}

	f := NewFactory(db, opts)
	res := &Result{}

	users, err := seedUsers(f, opts.StudentsPerTier)
	if err != nil {
		return nil, err
	}
	res.Users = users
	log.Printf("✓ %d users created", len(users))

	for _, slug := range policy.BasicProtocolSlugs {
		p, err := f.CreateProtocol(slug, "classic")
		if err != nil {
			return nil, err
		}
		res.Protocols = append(res.Protocols, p)
	}
	for _, pp := range premiumProtocols {
		p, err := f.CreateProtocol(pp.slug, pp.category)
		if err != nil {
			return nil, err
		}
		res.Protocols = append(res.Protocols, p)
	}
	log.Printf("✓ %d protocols created (%d open to basic)", len(res.Protocols), len(policy.BasicProtocolSlugs))

	for _, topic := range quizTopics {
		q, err := f.CreateQuiz(topic.slug, topic.category, opts.QuizBankSize)
		if err != nil {
			return nil, err
		}
		res.Quizzes = append(res.Quizzes, q)
	}
	log.Printf("✓ %d quizzes created with %d questions each", len(res.Quizzes), opts.QuizBankSize)

	for _, rs := range resourceSlugs {
		r, err := f.CreateResource(rs.slug, rs.category)
		if err != nil {
			return nil, err
		}
		res.Resources = append(res.Resources, r)
	}
	log.Printf("✓ %d resources created", len(res.Resources))

	if !opts.DryRun {
		invalidateContent(res)
	}

	if opts.WithChat {
		group, err := seedChat(f, users)
		if err != nil {
			return nil, err
		}
		res.Group = group
	}

	log.Println("🎉 Seeding completed")
	return res, nil
}

func seedUsers(f *Factory, perTier int) ([]*models.User, error) {
	now := time.Now()
	users := make([]*models.User, 0, len(demoAccounts)+3*perTier)
	for _, acct := range demoAccounts {
		acct := acct
		u, err := f.CreateUser(func(u *models.User) {
			u.Username = acct.username
			u.Email = acct.username + "@academy.local"
			u.Role = acct.role
			u.AccessLevel = acct.level
			u.SubscriptionStatus = acct.status
			if acct.endIn != 0 {
				end := now.Add(acct.endIn)
				u.SubscriptionEndDate = &end
			}
		})
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	for _, level := range []models.AccessLevel{models.AccessFree, models.AccessBasic, models.AccessPremium} {
		for i := 0; i < perTier; i++ {
			level := level
			u, err := f.CreateUser(func(u *models.User) {
				u.AccessLevel = level
				if level != models.AccessFree {
					u.SubscriptionStatus = models.SubscriptionActive
					end := now.AddDate(0, 1, 0)
					u.SubscriptionEndDate = &end
				}
			})
			if err != nil {
				return nil, err
			}
			users = append(users, u)
		}
	}
	return users, nil
}

// seedChat opens a teacher-led group with every chat-capable demo student and
// posts a short exchange.
func seedChat(f *Factory, users []*models.User) (*models.Conversation, error) {
	byName := make(map[string]*models.User, len(users))
	for _, u := range users {
		byName[u.Username] = u
	}
	teacher := byName["demo_teacher"]
	members := []*models.User{byName["demo_basic"], byName["demo_premium"], byName["demo_trial"]}

	group, err := f.CreateGroup("Massage Basics Q&A", teacher, members...)
	if err != nil {
		return nil, err
	}
	speakers := append([]*models.User{teacher}, members...)
	for i := 0; i < 8; i++ {
		if _, err := f.CreateMessage(group, speakers[i%len(speakers)]); err != nil {
			return nil, err
		}
	}
	log.Printf("✓ group %q created with %d members", group.Name, len(speakers))
	return group, nil
}

// invalidateContent drops cached reads of the slugs just written so a running
// server does not serve a previous run's rows.
func invalidateContent(res *Result) {
	keys := make([]string, 0, len(res.Protocols)+len(res.Resources))
	for _, p := range res.Protocols {
		keys = append(keys, cache.ProtocolKey(p.Slug))
	}
	for _, r := range res.Resources {
		keys = append(keys, cache.ResourceKey(r.Slug))
	}
	cache.Invalidate(context.Background(), keys...)
}

// Clean deletes every seeded row, children first.
func Clean(db *gorm.DB) error {
	log.Println("🗑️  Clearing existing data...")
	tables := database.PersistentModels()
	return db.Transaction(func(tx *gorm.DB) error {
		for i := len(tables) - 1; i >= 0; i-- {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(tables[i]).Error; err != nil {
				return fmt.Errorf("clear %T: %w", tables[i], err)
			}
		}
		return nil
	})
}
