package main

import (
	"log"

	"github.com/railzwaylabs/tallybook/internal/app"
)

func main() {
	if err := app.Run(app.Scheduler); err != nil {
		log.Fatal(err)
	}
}
