//go:build integration

package seed

import (
	"net/url"
	"os"
	"strings"
	"testing"

	"academy/internal/config"
	"academy/internal/database"
	"academy/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseDatabaseURLToConfig(dsn string) (*config.Config, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	password := ""
	if u.User != nil {
		password, _ = u.User.Password()
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	return &config.Config{
		DBHost:     u.Hostname(),
		DBPort:     port,
		DBUser:     u.User.Username(),
		DBPassword: password,
		DBName:     strings.TrimPrefix(u.Path, "/"),
		DBSSLMode:  "disable",
		Env:        "test",
	}, nil
}

func TestIntegration_SeedPostgres(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration seed test")
	}
	cfg, err := parseDatabaseURLToConfig(dsn)
	require.NoError(t, err)

	db, err := database.Connect(cfg)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	res, err := Seed(db, Options{StudentsPerTier: 3, ShouldClean: true, SkipBcrypt: true, WithChat: true})
	require.NoError(t, err)
	require.NotNil(t, res.Group)

	var questions int64
	require.NoError(t, db.Model(&models.QuizQuestion{}).Count(&questions).Error)
	assert.Equal(t, int64(len(res.Quizzes)*DefaultQuizBankSize), questions)
}
