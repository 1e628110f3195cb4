package main

import (
	"os"

	"github.com/lumarchive/chatscope/cmd/chatscope/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
