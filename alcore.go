package main

import (
	"context"
	"fmt"
	"os"

	"alcoretech.dev/alcore/internal/demo"
)

func main() {
	fmt.Printf("Starting alcore demo\n")

	soundPath := ""
	if len(os.Args) > 1 {
		soundPath = os.Args[1]
	}

	if err := demo.Run(context.Background(), soundPath); err != nil {
		fmt.Printf("Application exited with a fatal error: %v", err)
		os.Exit(1)
	}
	fmt.Printf("Stopping alcore demo")
}
