package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ducktype/ducktype/internal/client"
	"github.com/ducktype/ducktype/internal/tui"
)

func main() {
	server := flag.String("server", envOr("DUCKTYPE_SERVER", "http://localhost:8080"), "DuckType API base URL")
	userID := flag.String("user", os.Getenv("DUCKTYPE_USER"), "user id to scope conversations to")
	timeout := flag.Duration("timeout", 2*time.Minute, "request timeout")
	style := flag.String("style", "", "glamour style (dark, light, notty); empty detects")
	flag.Parse()

	r, err := tui.NewRenderer(os.Stdout, tui.Width(int(os.Stdout.Fd())), *style)
	if err != nil {
		fmt.Fprintf(os.Stderr, "renderer: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repl := tui.NewREPL(client.New(*server, *userID, *timeout), r)
	if err := repl.Run(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "duck: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
