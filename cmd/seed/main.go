// Command seed populates a murmur database with admin accounts and a
// handful of sample posts. It writes through the store directly, so it
// can set the admin flag the public API never exposes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/alphabot-ai/murmur/internal/auth"
	"github.com/alphabot-ai/murmur/internal/model"
	"github.com/alphabot-ai/murmur/internal/store/sqlite"
)

var admins = []struct {
	first, last, username, email string
}{
	{"Ada", "Admin", "ada-admin", "ada@murmur.local"},
	{"Bram", "Admin", "bram-admin", "bram@murmur.local"},
}

var posts = []struct {
	content  string
	category string
}{
	{"Welcome to murmur! Short posts, honest votes.", "general"},
	{"Tip: anonymous posts can never be edited, so proofread first.", "meta"},
	{"What is everyone listening to this week?", "music"},
	{"Hot take: tabs and spaces can coexist.", "programming"},
}

func main() {
	dbPath := flag.String("db", "murmur.db", "database path")
	password := flag.String("password", "", "password for seeded admin accounts (required)")
	flag.Parse()

	if *password == "" {
		log.Fatal("-password is required")
	}

	st, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	var firstAdmin int64
	for _, a := range admins {
		id, err := st.CreateUser(ctx, &model.User{
			FirstName:    a.first,
			LastName:     a.last,
			Username:     a.username,
			Email:        a.email,
			PasswordHash: hash,
			IsAdmin:      true,
			CreatedAt:    time.Now(),
		})
		if err != nil {
			log.Fatalf("create admin %s: %v", a.username, err)
		}
		if firstAdmin == 0 {
			firstAdmin = id
		}
		log.Printf("created admin %s (id %d)", a.username, id)
	}

	for i, p := range posts {
		post := model.Post{
			Content:   p.content,
			Category:  p.category,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		// Alternate authored and anonymous posts.
		if i%2 == 0 {
			author := firstAdmin
			post.AuthorID = &author
		}
		id, err := st.CreatePost(ctx, &post)
		if err != nil {
			log.Fatalf("create post: %v", err)
		}
		if _, err := st.CastVote(ctx, firstAdmin, id, 1); err != nil {
			log.Fatalf("seed vote: %v", err)
		}
	}

	fmt.Printf("seeded %d admins and %d posts into %s\n", len(admins), len(posts), *dbPath)
}
