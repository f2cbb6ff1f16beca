package main

import (
	"log"

	"github.com/oxkey/ident/internal/ident/app"
	"github.com/oxkey/ident/internal/ident/collab"
)

func main() {
	cfg := app.LoadConfig()

	// Development collaborators; a real deployment wires its own account
	// store, mailer and provider clients here.
	collaborators := app.Collaborators{
		Accounts: collab.NewMemoryAccounts(),
		Email:    &collab.LogSender{},
		Exchange: collab.LoopbackExchange{},
	}

	application, err := app.New(cfg, collaborators)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
