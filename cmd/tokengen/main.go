// tokengen mints bearer tokens for local testing. Issuing tokens for real
// users belongs to the identity service.
package main

import (
	"flag"
	"fmt"
	"github.com/joho/godotenv"
	"github.com/katoapp/agrimarket/internal/access"
	"github.com/katoapp/agrimarket/internal/auth"
	"github.com/katoapp/agrimarket/internal/config"
	"log"
	"os"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	id := flag.String("user", "", "user id")
	role := flag.String("role", "customer", "admin, petani, management or customer")
	sub := flag.String("subrole", "", "management subrole")
	verified := flag.Bool("verified", true, "account is verified")
	ttl := flag.Duration("ttl", cfg.JWT.TTL, "token lifetime")
	flag.Parse()

	r, err := access.ParseRole(*role)
	if err != nil {
		log.Fatal(err)
	}
	s, err := access.ParseSubrole(*sub)
	if err != nil {
		log.Fatal(err)
	}
	a := access.Actor{ID: *id, Role: r, Subrole: s, Verified: *verified}
	if err := a.Validate(); err != nil {
		log.Fatal(err)
	}
	tok, err := auth.GenerateToken(cfg.JWT.Secret, a, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Fprintln(os.Stdout, tok)
}
