package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/datum/internal/config"
	httpAdapter "github.com/aretw0/datum/pkg/adapters/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge HTTP server",
	Long: `Starts the Datum engine in server mode, exposing the bridge message
protocol and the script registry over a JSON HTTP API.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		if addr, _ := cmd.Flags().GetString("addr"); cmd.Flags().Changed("addr") {
			cfg.HTTPAddr = addr
		}
		logger := newLogger(cmd, cfg)

		engine, promReg, cleanup, err := buildEngine(cmd.Context(), cfg, logger)
		if err != nil {
			fmt.Printf("Error initializing datum: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		handler := httpAdapter.NewHandler(engine.Dispatcher(), engine.Registry(), engine.HotLoader(), promReg, logger)

		srv := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: handler,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("Starting Datum Server on %s\n", srv.Addr)
			fmt.Printf("Scripts directory: %s\n", cfg.ScriptsDir)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// Blocking main and waiting for shutdown.
		select {
		case err := <-serverErrors:
			// Error when starting HTTP server.
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			fmt.Printf("\nStart shutdown... Signal: %v\n", sig)

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			// Asking listener to shut down and shed load.
			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					fmt.Printf("Error killing server: %v\n", err)
				}
			}
			fmt.Println("Datum Server stopped gracefully")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on (overrides DATUM_HTTP_ADDR)")
}
