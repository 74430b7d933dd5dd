// Package featureflags gates optional academy features per user.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"academy/internal/middleware"
)

// Flags read by the application. Unlisted names may still be configured and
// show up in Raw, but nothing consults them.
const (
	AIAssistant = "ai_assistant"
	ChatPush    = "chat_push"
)

// Known lists the flags the application consults.
var Known = []string{AIAssistant, ChatPush}

// rule is one parsed flag value: fully on, fully off or a percentage rollout.
type rule struct {
	raw     string
	percent int
}

// Manager evaluates flags configured as a comma-separated key=value list,
// for example "ai_assistant=on,chat_push=25%".
type Manager struct {
	rules map[string]rule
}

// NewManager parses raw. Malformed entries are logged and skipped.
func NewManager(raw string) *Manager {
	m := &Manager{rules: make(map[string]rule)}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key, value = normalize(key), normalize(value)
		if !ok || key == "" || value == "" {
			middleware.Logger.Warn("ignoring malformed feature flag", slog.String("entry", pair))
			continue
		}
		r, err := parseRule(value)
		if err != nil {
			middleware.Logger.Warn("ignoring feature flag", slog.String("flag", key), slog.String("error", err.Error()))
			continue
		}
		m.rules[key] = r
	}
	return m
}

func parseRule(value string) (rule, error) {
	switch value {
	case "on", "true", "1":
		return rule{raw: value, percent: 100}, nil
	case "off", "false", "0":
		return rule{raw: value, percent: 0}, nil
	}
	pctRaw, ok := strings.CutSuffix(value, "%")
	if !ok {
		return rule{}, fmt.Errorf("unknown value %q", value)
	}
	pct, err := strconv.Atoi(pctRaw)
	if err != nil {
		return rule{}, fmt.Errorf("bad percentage %q", value)
	}
	return rule{raw: value, percent: min(max(pct, 0), 100)}, nil
}

// Enabled reports whether name is on for userID. Partial rollouts bucket users
// deterministically and never include the anonymous user 0.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	if !ok {
		return false
	}
	switch {
	case r.percent <= 0:
		return false
	case r.percent >= 100:
		return true
	case userID == 0:
		return false
	}
	return rolloutBucket(name, userID) < r.percent
}

// Raw returns the configured values by flag name.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.rules))
	for k, r := range m.rules {
		out[k] = r.raw
	}
	return out
}

// Snapshot evaluates every configured and every known flag for userID.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(m.rules)+len(Known))
	for _, name := range m.names() {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func (m *Manager) names() []string {
	seen := make(map[string]struct{}, len(m.rules)+len(Known))
	for k := range m.rules {
		seen[k] = struct{}{}
	}
	for _, k := range Known {
		seen[k] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%s:%d", normalize(name), userID)
	return int(h.Sum32() % 100)
}
