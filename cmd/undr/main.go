package main

import (
	"log"

	"undrgen/cmd/undr/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
