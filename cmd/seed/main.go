// Command seed populates the configured database with demo data.
package main

import (
	"context"
	"flag"
	"log"

	"chitchat/internal/cache"
	"chitchat/internal/config"
	"chitchat/internal/database"
	"chitchat/internal/observability"
	"chitchat/internal/repository"
	"chitchat/internal/seed"
	"chitchat/internal/service"
	"chitchat/internal/token"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numPosts := flag.Int("posts", 200, "Number of posts to create")
	seedValue := flag.Int64("seed", 0, "Random seed (0 picks one)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}
	observability.SetupLogger(cfg.Env)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	ttl, err := cfg.TokenTTL()
	if err != nil {
		log.Fatalf("Invalid token settings: %v", err)
	}
	tokens := token.NewService(token.Options{
		Secret:   cfg.JWTSecret,
		TTL:      ttl,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})

	// Seeding bypasses Redis; cached profiles expire on their own.
	store := cache.NewStore(nil)
	users := repository.NewUserRepository(db, store)
	posts := repository.NewPostRepository(db, store)

	s := seed.NewSeeder(
		service.NewAuthService(users, tokens, store, 0),
		service.NewUserService(users, nil),
		service.NewPostService(posts, users, nil),
		seed.Options{Users: *numUsers, Posts: *numPosts, Seed: *seedValue},
	)

	sum, err := s.Run(context.Background())
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d users, %d follows, %d posts (%d replies), %d likes",
		sum.Users, sum.Follows, sum.Posts, sum.Replies, sum.Likes)
	log.Printf("All seeded users have the password: %s", seed.DefaultPassword)
}
