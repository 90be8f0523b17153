package main

import (
	"fmt"
	"log"
	"os"

	"seostats.local/internal/platform/auth"
	"seostats.local/internal/platform/config"
)

func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		log.Fatal("usage: go run ./cmd/tools/issuetoken <subject> [role]")
	}
	role := "user"
	if len(os.Args) == 3 {
		role = os.Args[2]
	}

	cfg := config.Load()
	ts, err := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		log.Fatal(err)
	}
	token, err := ts.Issue(os.Args[1], role)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(token)
}
