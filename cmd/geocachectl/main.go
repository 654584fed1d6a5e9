package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/sachanni/salonhub-geocache/internal/cli"
)

func main() {
	// Values already in the environment win over the file.
	_ = godotenv.Load(".env.local")

	if err := cli.NewRootCommand(cli.Options{}).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
