package seed

import (
	"fmt"
	"log"
	"strings"
	"time"

	"academy/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "password123"

// Factory builds academy entities and persists them to the database.
// In DryRun mode nothing is written and synthetic IDs are assigned.
type Factory struct {
	db     *gorm.DB
	opts   Options
	faker  *gofakeit.Faker
	hash   string
	nextID uint
}

// NewFactory creates a Factory bound to db. A zero opts.RandSeed seeds from the clock.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{db: db, opts: opts, faker: gofakeit.New(seed), nextID: 1000}
}

func (f *Factory) passwordHash() (string, error) {
	if f.opts.SkipBcrypt {
		return DemoPassword, nil
	}
	if f.hash != "" {
		return f.hash, nil
	}
	h, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash demo password: %w", err)
	}
	f.hash = string(h)
	return f.hash, nil
}

func (f *Factory) create(label string, value any, setID func(uint)) error {
	if f.opts.DryRun {
		f.nextID++
		setID(f.nextID)
		log.Printf("[dry-run] %s #%d", label, f.nextID)
		return nil
	}
	return f.db.Create(value).Error
}

// CreateUser persists a student with a generated identity. Overrides run
// before the insert.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	hash, err := f.passwordHash()
	if err != nil {
		return nil, err
	}
	first, last := f.faker.FirstName(), f.faker.LastName()
	username := strings.ToLower(fmt.Sprintf("%s_%s%d", first, last, f.faker.Number(10, 999)))
	user := &models.User{
		Username:           username,
		Email:              username + "@academy.local",
		Password:           hash,
		Language:           f.faker.RandomString([]string{models.LangRU, models.LangRO}),
		Role:               models.RoleStudent,
		AccessLevel:        models.AccessFree,
		SubscriptionStatus: models.SubscriptionNone,
	}
	for _, override := range overrides {
		override(user)
	}
	if err := f.create("CreateUser "+user.Username, user, func(id uint) { user.ID = id }); err != nil {
		return nil, fmt.Errorf("create user %s: %w", user.Username, err)
	}
	return user, nil
}

// BuildProtocol returns an unsaved protocol with bilingual filler text long
// enough to exercise preview redaction.
func (f *Factory) BuildProtocol(slug, category string) *models.MassageProtocol {
	title := strings.ReplaceAll(slug, "-", " ")
	return &models.MassageProtocol{
		Slug:            slug,
		Category:        category,
		TitleRU:         "Протокол: " + title,
		TitleRO:         "Protocol: " + title,
		ContentRU:       f.steps("Шаг"),
		ContentRO:       f.steps("Pasul"),
		DurationMinutes: f.faker.RandomInt([]int{30, 45, 60, 90}),
		ImageURL:        fmt.Sprintf("https://picsum.photos/seed/%s/800/600", slug),
	}
}

// CreateProtocol persists a protocol built by BuildProtocol.
func (f *Factory) CreateProtocol(slug, category string, overrides ...func(*models.MassageProtocol)) (*models.MassageProtocol, error) {
	p := f.BuildProtocol(slug, category)
	for _, override := range overrides {
		override(p)
	}
	if err := f.create("CreateProtocol "+slug, p, func(id uint) { p.ID = id }); err != nil {
		return nil, fmt.Errorf("create protocol %s: %w", slug, err)
	}
	return p, nil
}

// BuildQuiz returns an unsaved quiz with a bank of n four-option questions.
func (f *Factory) BuildQuiz(slug, category string, n int) *models.Quiz {
	q := &models.Quiz{
		Slug:     slug,
		Category: category,
		TitleRU:  "Тест: " + category,
		TitleRO:  "Test: " + category,
	}
	for i := 0; i < n; i++ {
		options := make([]models.QuizOption, 4)
		for j := range options {
			word := f.faker.Noun()
			options[j] = models.QuizOption{TextRU: fmt.Sprintf("Вариант %d: %s", j+1, word), TextRO: fmt.Sprintf("Varianta %d: %s", j+1, word)}
		}
		q.Questions = append(q.Questions, models.QuizQuestion{
			TextRU:       fmt.Sprintf("Вопрос %d. %s", i+1, f.faker.Question()),
			TextRO:       fmt.Sprintf("Întrebarea %d. %s", i+1, f.faker.Question()),
			Options:      options,
			CorrectIndex: f.faker.Number(0, len(options)-1),
		})
	}
	return q
}

// CreateQuiz persists a quiz and its question bank.
func (f *Factory) CreateQuiz(slug, category string, n int) (*models.Quiz, error) {
	q := f.BuildQuiz(slug, category, n)
	err := f.create(fmt.Sprintf("CreateQuiz %s (%d questions)", slug, n), q, func(id uint) {
		q.ID = id
		for i := range q.Questions {
			f.nextID++
			q.Questions[i].ID = f.nextID
			q.Questions[i].QuizID = id
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create quiz %s: %w", slug, err)
	}
	return q, nil
}

// CreateResource persists a study resource.
func (f *Factory) CreateResource(slug, category string) (*models.Resource, error) {
	r := &models.Resource{
		Slug:      slug,
		Category:  category,
		TitleRU:   "Материал: " + strings.ReplaceAll(slug, "-", " "),
		TitleRO:   "Material: " + strings.ReplaceAll(slug, "-", " "),
		ContentRU: f.faker.Paragraph(3, 5, 12, "\n\n"),
		ContentRO: f.faker.Paragraph(3, 5, 12, "\n\n"),
		FileURL:   fmt.Sprintf("https://files.academy.local/%s.pdf", slug),
	}
	if err := f.create("CreateResource "+slug, r, func(id uint) { r.ID = id }); err != nil {
		return nil, fmt.Errorf("create resource %s: %w", slug, err)
	}
	return r, nil
}

// CreateGroup persists a group conversation owned by creator.
func (f *Factory) CreateGroup(name string, creator *models.User, members ...*models.User) (*models.Conversation, error) {
	conv := &models.Conversation{
		Type:         models.ConversationGroup,
		Name:         name,
		Avatar:       fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID()),
		CreatedBy:    &creator.ID,
		Participants: []models.User{*creator},
	}
	for _, m := range members {
		conv.Participants = append(conv.Participants, *m)
	}
	if err := f.create("CreateGroup "+name, conv, func(id uint) { conv.ID = id }); err != nil {
		return nil, fmt.Errorf("create group %s: %w", name, err)
	}
	return conv, nil
}

// CreateMessage persists a message and refreshes the conversation summary.
// Unread counters are left untouched.
func (f *Factory) CreateMessage(conv *models.Conversation, sender *models.User) (*models.Message, error) {
	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		Content:        f.faker.Sentence(f.faker.Number(4, 14)),
		Type:           models.MessageText,
	}
	if f.opts.DryRun {
		f.nextID++
		msg.ID = f.nextID
		return msg, nil
	}
	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(conv).Updates(map[string]any{
			"last_message_content":   msg.Content,
			"last_message_sender_id": msg.SenderID,
			"last_message_timestamp": msg.CreatedAt,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

func (f *Factory) steps(word string) string {
	var b strings.Builder
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&b, "%s %d. %s\n\n", word, i, f.faker.Paragraph(1, 3, 14, " "))
	}
	return strings.TrimSpace(b.String())
}
