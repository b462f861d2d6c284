package main

import (
	"log"

	"github.com/supportops/zendesk-sync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
