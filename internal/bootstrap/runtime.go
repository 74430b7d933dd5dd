// Package bootstrap wires the process-level dependencies shared by the server
// and the maintenance commands.
package bootstrap

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"academy/internal/cache"
	"academy/internal/config"
	"academy/internal/database"
	"academy/internal/middleware"
	"academy/internal/models"
	"academy/internal/seed"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo fills an empty database with demo content.
	SeedDemo bool
}

// InitRuntime connects to the database and Redis, ensures the development root
// admin and optionally seeds demo content. A nil Redis client means Redis is
// unavailable.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	rdb := cache.InitRedis(cfg.RedisURL)

	if err := EnsureDevRootAdmin(cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development root admin: %w", err)
	}

	if opts.SeedDemo {
		if err := seedIfEmpty(db); err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo content: %w", err)
		}
	}

	return db, rdb, nil
}

func seedIfEmpty(db *gorm.DB) error {
	var protocols int64
	if err := db.Model(&models.MassageProtocol{}).Count(&protocols).Error; err != nil {
		return err
	}
	if protocols > 0 {
		return nil
	}
	_, err := seed.Seed(db, seed.Options{StudentsPerTier: 5, WithChat: true})
	return err
}

// rootAdmin returns the development root account described by cfg, or nil
// when bootstrapping is off.
func rootAdmin(cfg *config.Config) (*models.User, error) {
	if cfg == nil || !cfg.DevBootstrapRoot || !strings.EqualFold(cfg.Env, "development") {
		return nil, nil
	}
	if cfg.DevRootPassword == "" {
		return nil, errors.New("DEV_ROOT_PASSWORD must be set when DEV_BOOTSTRAP_ROOT is enabled")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.DevRootPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash root password: %w", err)
	}
	return &models.User{
		ID:                 1,
		Username:           cmp.Or(strings.TrimSpace(cfg.DevRootUsername), "academy_root"),
		Email:              cmp.Or(strings.ToLower(strings.TrimSpace(cfg.DevRootEmail)), "root@academy.local"),
		Password:           string(hash),
		Language:           models.LangRU,
		Role:               models.RoleAdmin,
		AccessLevel:        models.AccessFree,
		SubscriptionStatus: models.SubscriptionNone,
	}, nil
}

// EnsureDevRootAdmin makes user 1 an admin in development when
// DEV_BOOTSTRAP_ROOT is set, creating the account if the table is empty. An
// existing user 1 keeps its credentials and only gains the admin role.
func EnsureDevRootAdmin(cfg *config.Config, db *gorm.DB) error {
	if db == nil {
		return nil
	}
	root, err := rootAdmin(cfg)
	if err != nil || root == nil {
		return err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		promote := tx.Model(&models.User{}).Where("id = ?", root.ID).Update("role", models.RoleAdmin)
		if promote.Error != nil {
			return promote.Error
		}
		if promote.RowsAffected == 0 {
			if err := tx.Create(root).Error; err != nil {
				return err
			}
		}
		return syncUserSequence(tx)
	})
	if err != nil {
		return err
	}

	middleware.Logger.Info("development root admin ensured", slog.Uint64("user_id", uint64(root.ID)), slog.String("email", root.Email))
	return nil
}

// syncUserSequence moves the postgres id sequence past an explicitly inserted
// id. Other dialects need nothing.
func syncUserSequence(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	const q = `SELECT setval(pg_get_serial_sequence('users', 'id'), GREATEST((SELECT COALESCE(MAX(id), 1) FROM users), 1), true)`
	if err := tx.Exec(q).Error; err != nil {
		return fmt.Errorf("reset users sequence: %w", err)
	}
	return nil
}
