// Command reencrypt migrates every user from the shared master key to
// per-user derived keys. It exits with status 1 when any note or user failed,
// so operators know an audit is needed before anything else touches those
// users. Do not run it while the store is serving writes.
package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/notevault/internal/server"
	"github.com/dmitrijs2005/notevault/internal/server/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := server.WithSignals(context.Background())
	defer cancel()

	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	defer app.Close()

	report, err := app.Reencrypt(ctx)
	if err != nil {
		app.Logger().Error(ctx, "re-encryption aborted", "error", err)
		return 1
	}
	if report.Failed() {
		app.Logger().Error(ctx, "re-encryption finished with errors; audit before rerunning",
			"note_errors", report.NoteErrors, "users_failed", report.UsersFailed)
		return 1
	}
	return 0
}
