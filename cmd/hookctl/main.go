package main

import (
	"log"

	"github.com/pagemarkhq/pagehook/cmd/hookctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
