package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/YanagiOrigami/LightCPVerifier/internal/cli"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	base := flag.String("base", envOr("JUDGED_ADDR", "http://127.0.0.1:8087"), "judged base URL")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Parse()

	session := cli.NewSession(cli.NewClient(*base, *timeout))
	if err := session.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "cli failed: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
