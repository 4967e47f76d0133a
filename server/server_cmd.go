package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/trevex/tenantscope"
	"github.com/trevex/tenantscope/hotel"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func NewServerCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [flags]",
		Short: "Serve the hotel entities through tenant-restricted clients",
	}

	var (
		configFile string
		addr       string
		migrate    bool
	)

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "path to a YAML config file")
	flags.StringVar(&addr, "addr", "", "address the server is listening on, overrides the config")
	flags.BoolVar(&migrate, "migrate", false, "run migrations before serving")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := LoadConfig(configFile)
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.Addr = addr
		}

		if migrate {
			if err := Migrate(ctx, cfg.Storage); err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}
		}
		storage, err := OpenStorage(cfg.Storage, hotel.Schema)
		if err != nil {
			return err
		}
		defer storage.Close()

		opts := []tenantscope.Option{tenantscope.WithLogger(log.WithGroup("client"))}
		if cfg.AllowUnlisted {
			opts = append(opts, tenantscope.AllowUnlisted())
		}
		handler := NewHandler(log.WithGroup("handler"), storage, hotel.Policy, NewMetrics(), opts...)

		server := http.Server{
			Addr:    cfg.Addr,
			Handler: h2c.NewHandler(handler, &http2.Server{}),
			BaseContext: func(l net.Listener) context.Context {
				return ctx
			},
		}

		log.Info("started server", slog.String("addr", cfg.Addr), slog.String("storage", cfg.Storage.Driver))
		go func() {
			err := server.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				log.Info("server gracefully closed")
			} else if err != nil {
				log.Error("error listening on server", slog.Any("error", err))
			}
		}()

		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer func() {
			cancel()
		}()

		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error("error on server shutdown", slog.Any("error", err))
			return err
		}
		return nil
	}

	return cmd
}

func NewMigrateCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [flags]",
		Short: "Create or update the hotel tables of the configured storage",
	}

	var configFile string
	cmd.Flags().StringVar(&configFile, "config", "", "path to a YAML config file")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configFile)
		if err != nil {
			return err
		}
		if err := Migrate(cmd.Context(), cfg.Storage); err != nil {
			return err
		}
		log.Info("migrations applied", slog.String("storage", cfg.Storage.Driver))
		return nil
	}

	return cmd
}
