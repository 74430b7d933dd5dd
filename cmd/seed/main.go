// Command seed fills the database with demo academy data.
package main

import (
	"flag"
	"log"

	"academy/internal/access"
	"academy/internal/cache"
	"academy/internal/config"
	"academy/internal/database"
	"academy/internal/seed"
)

func main() {
	perTier := flag.Int("students", 10, "Generated students per access tier")
	bank := flag.Int("questions", seed.DefaultQuizBankSize, "Questions per quiz bank")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	dryRun := flag.Bool("dry-run", false, "Build entities without writing them")
	fast := flag.Bool("fast", false, "Store the demo password unhashed (local only)")
	withChat := flag.Bool("chat", true, "Create a demo group conversation")
	flag.Parse()

	log.Println("🌱 Academy Seeder")
	log.Println("=================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	policy := access.DefaultPolicy()
	if cfg.AccessPolicyPath != "" {
		if policy, err = access.LoadPolicy(cfg.AccessPolicyPath); err != nil {
			log.Fatalf("Failed to load access policy: %v", err)
		}
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Optional; lets the seeder drop cached content of a running server.
	cache.InitRedis(cfg.RedisURL)

	if _, err := seed.Seed(db, seed.Options{
		StudentsPerTier: *perTier,
		QuizBankSize:    *bank,
		ShouldClean:     *shouldClean,
		DryRun:          *dryRun,
		SkipBcrypt:      *fast,
		WithChat:        *withChat,
		Policy:          policy,
	}); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✨ All done! Demo accounts: demo_free, demo_basic, demo_premium, demo_trial, demo_expired, demo_teacher, demo_admin")
	log.Printf("📧 All seeded users have the password: %s", seed.DemoPassword)
}
