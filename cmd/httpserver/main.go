package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/storage-adapter/cmd/flags"
	"github.com/ruteri/storage-adapter/httpserver"
	"github.com/urfave/cli/v2"
)

var serverFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	&cli.Int64Flag{
		Name:  "max-upload-bytes",
		Value: 64 << 20,
		Usage: "largest accepted upload body",
	},
}

func main() {
	allFlags := append(append(append([]cli.Flag{}, serverFlags...), flags.StorageFlags...), flags.LogFlags...)
	allFlags = append(allFlags, flags.CommonFlags...)

	app := &cli.App{
		Name:  "storage-adapter",
		Usage: "Serve the file storage adapter over HTTP",
		Flags: allFlags,
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String("listen-addr")
			maxUploadBytes := cCtx.Int64("max-upload-bytes")

			logger := flags.SetupLogger(cCtx)

			a, err := flags.BuildAdapter(cCtx, logger)
			if err != nil {
				logger.Error("Failed to create storage adapter", "err", err)
				return err
			}
			defer a.Close()

			cfg := flags.ConfigureServer(cCtx, logger, listenAddr)
			handler := httpserver.NewHandler(a, maxUploadBytes, logger)

			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server")
			server.RunInBackground()

			// Wait for termination signal
			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
