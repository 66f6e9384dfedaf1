package main

import (
	"log"

	"github.com/LaDySmOkEs/DueProcessAI44/app"
)

func main() {
	app.MustInitDB()
	app.InitStripe()
	app.InitLLM()
	router, err := app.NewRouter()
	if err != nil {
		log.Fatalf("failed to initialize router: %v", err)
	}
	router.Run("0.0.0.0:8080")
}
