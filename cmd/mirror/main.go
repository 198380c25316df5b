// Command mirror copies fills of a primary account onto target accounts.
//
//	go run ./cmd/mirror run
//	go run ./cmd/mirror check
//	go run ./cmd/mirror config
package main

import (
	"os"

	"trade_mirror/cmd/mirror/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
