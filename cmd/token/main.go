// Command token issues a bearer token for local testing of the API.
//
//	JWT_SECRET=... go run ./cmd/token -user alice -role attendee
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Shivanand-hulikatti/conference-registration/internal/auth"
	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

func main() {
	user := flag.String("user", "", "user id (token subject)")
	role := flag.String("role", string(model.RoleAttendee), "admin, speaker, researcher or attendee")
	email := flag.String("email", "", "user email")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if *user == "" || secret == "" {
		fmt.Fprintln(os.Stderr, "usage: JWT_SECRET=... token -user <id> [-role r] [-ttl d]")
		os.Exit(2)
	}
	if !model.Role(*role).IsValid() {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	tok, err := auth.NewTokens(secret).Issue(model.User{ID: *user, Email: *email, Role: model.Role(*role)}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
