package access

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"academy/internal/models"

	"gopkg.in/yaml.v3"
)

// Defaults used when the policy file omits a value.
const (
	DefaultPreviewLength  = 400
	DefaultQuizSampleSize = 10
)

// Policy is the static tier configuration: which protocols are open to basic
// subscribers, how much of gated content is previewed and the assistant quota.
type Policy struct {
	BasicProtocolSlugs []string                   `yaml:"basic_protocol_slugs"`
	PreviewLength      int                        `yaml:"preview_length"`
	QuizSampleSize     int                        `yaml:"quiz_sample_size"`
	AIDailyQuota       map[models.AccessLevel]int `yaml:"ai_daily_quota"`
	RedactionMarkers   map[string]string          `yaml:"redaction_markers"`

	basicSlugs map[string]struct{}
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() *Policy {
	p := &Policy{
		BasicProtocolSlugs: []string{
			"classic-back-massage",
			"neck-and-collar-zone",
			"relaxing-foot-massage",
		},
	}
	p.applyDefaults()
	return p
}

// LoadPolicy reads a YAML policy file and fills missing values with defaults.
func LoadPolicy(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read access policy: %w", err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy decodes a YAML policy document.
func ParsePolicy(raw []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode access policy: %w", err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Policy) applyDefaults() {
	if p.PreviewLength <= 0 {
		p.PreviewLength = DefaultPreviewLength
	}
	if p.QuizSampleSize <= 0 {
		p.QuizSampleSize = DefaultQuizSampleSize
	}
	if p.AIDailyQuota == nil {
		p.AIDailyQuota = map[models.AccessLevel]int{}
	}
	for level, n := range map[models.AccessLevel]int{
		models.AccessFree:    5,
		models.AccessBasic:   50,
		models.AccessPremium: 200,
	} {
		if _, ok := p.AIDailyQuota[level]; !ok {
			p.AIDailyQuota[level] = n
		}
	}
	if p.RedactionMarkers == nil {
		p.RedactionMarkers = map[string]string{}
	}
	if _, ok := p.RedactionMarkers[models.LangRU]; !ok {
		p.RedactionMarkers[models.LangRU] = "… [Полный текст доступен по подписке]"
	}
	if _, ok := p.RedactionMarkers[models.LangRO]; !ok {
		p.RedactionMarkers[models.LangRO] = "… [Textul complet este disponibil cu abonament]"
	}
	p.basicSlugs = make(map[string]struct{}, len(p.BasicProtocolSlugs))
	for _, slug := range p.BasicProtocolSlugs {
		p.basicSlugs[normalizeSlug(slug)] = struct{}{}
	}
}

// Validate rejects policies that would make a gate meaningless.
func (p *Policy) Validate() error {
	for level, n := range p.AIDailyQuota {
		if !level.Valid() {
			return fmt.Errorf("ai_daily_quota: unknown access level %q", level)
		}
		if n < 0 {
			return fmt.Errorf("ai_daily_quota: %s must not be negative", level)
		}
	}
	for _, slug := range p.BasicProtocolSlugs {
		if normalizeSlug(slug) == "" {
			return errors.New("basic_protocol_slugs: empty slug")
		}
	}
	return nil
}

// ProtocolTier is basic for allow-listed slugs and premium for everything else.
func (p *Policy) ProtocolTier(slug string) models.AccessLevel {
	if _, ok := p.basicSlugs[normalizeSlug(slug)]; ok {
		return models.AccessBasic
	}
	return models.AccessPremium
}

func normalizeSlug(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
