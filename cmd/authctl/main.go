package main

import (
	"log"
	"os"

	"github.com/shelfmark/authd/internal/authctl"
)

func main() {
	app := authctl.NewApp(os.Stdout)
	if err := app.Run(os.Args[1:]); err != nil {
		log.Fatalf("%v", err)
	}
}
