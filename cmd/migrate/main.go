// Command migrate applies pending schema migrations and exits.
package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/notevault/internal/server"
	"github.com/dmitrijs2005/notevault/internal/server/config"
)

func main() {
	ctx, cancel := server.WithSignals(context.Background())
	defer cancel()

	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	app.Logger().Info(ctx, "schema is up to date")
}
