// Package main our entry point.
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/johndosdos/deskchat/internal/cmd"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env file: %+v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cmd.Execute()
}
