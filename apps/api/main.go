package main

import (
	"log"

	"github.com/railzwaylabs/tallybook/internal/app"
)

func main() {
	if err := app.Run(app.API); err != nil {
		log.Fatal(err)
	}
}
