// Command cin7sync serves the sync, webhook and health routes, runs a single
// sync, or prints the field mapping documentation.
//
//	cin7sync [serve]        start the HTTP server
//	cin7sync sync           run one sync and print the summary
//	cin7sync fields [-schema] print the mapping table as CSV
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/homemade/cin7sync/server"
	"github.com/homemade/cin7sync/sync"
)

func main() {
	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	cfg, err := sync.LoadConfigFromEnvironment()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := sync.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		err = serve(ctx, cfg, logger, args)
	case "sync":
		err = runOnce(ctx, logger)
	case "fields":
		err = fields(ctx, cfg, args)
	default:
		err = fmt.Errorf("unknown command %q (want serve, sync or fields)", command)
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg sync.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", cfg.Server.Listen, "address to listen on")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return server.New(sync.LoadConfigFromEnvironment, logger).Start(ctx, *listen)
}

func runOnce(ctx context.Context, logger *zap.Logger) error {
	status, body := server.New(sync.LoadConfigFromEnvironment, logger).RunSync(ctx)
	fmt.Println(string(body))
	if status != 200 {
		return fmt.Errorf("sync failed with status %d", status)
	}
	return nil
}

func fields(ctx context.Context, cfg sync.Config, args []string) error {
	fs := flag.NewFlagSet("fields", flag.ExitOnError)
	withSchema := fs.Bool("schema", cfg.HubSpot.Token != "", "check properties against the live HubSpot schema")
	asJSON := fs.Bool("json", false, "print JSON instead of CSV")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var schema sync.PropertySchema
	if *withSchema {
		var err error
		schema, err = sync.HubSpotFetcherAndUpdater{SyncContext: sync.NewSyncContext(cfg, nil)}.FetchPropertySchema(ctx)
		if err != nil {
			return err
		}
	}
	doc := sync.GenerateFieldDocumentation(cfg, schema)
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	out, err := doc.FormatCSV()
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
