package cmd

import (
	"fmt"
	"net"
	"time"

	"github.com/dkhoanguyen/playground/cmd/compose"
	"github.com/dkhoanguyen/playground/internal/utils"
	"github.com/dkhoanguyen/playground/pkg/db"
	"github.com/dkhoanguyen/playground/pkg/handlers"
	"github.com/dkhoanguyen/playground/pkg/server"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	dbPingAttempts = 5
	dbPingTimeout  = 2 * time.Second
	dbPingInterval = time.Second
)

func newServeCmd(rt *compose.Runtime) *cobra.Command {
	var addr string
	var checkDB bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, logger := rt.Config, rt.Logger
			if err := config.Validate(); err != nil {
				logger.Error(fmt.Sprintf("Invalid configuration: %s", err))
				return err
			}
			if addr == "" {
				addr = config.HTTPAddr
			}
			if !config.IsDevelopment() {
				gin.SetMode(gin.ReleaseMode)
			}

			manager := db.NewManager(config, logger)
			defer manager.Close()

			if checkDB {
				address := net.JoinHostPort(config.Postgres.Host, config.Postgres.Port)
				if !utils.Ping(cmd.Context(), address, dbPingAttempts, dbPingTimeout, dbPingInterval, logger) {
					return errors.Errorf("database at %s is not reachable", address)
				}
				conn := manager.Postgres(cmd.Context())
				if conn == nil {
					return errors.Errorf("cannot connect to database at %s", address)
				}
				if err := db.HealthCheck(cmd.Context(), conn); err != nil {
					return err
				}
				logger.Info(fmt.Sprintf("Database at %s is ready", address))
			}

			router := server.NewRouter(logger)
			handlers.Register(router, manager, logger)
			return server.Run(cmd.Context(), addr, router, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $HTTP_ADDR)")
	cmd.Flags().BoolVar(&checkDB, "check-db", false, "refuse to start until the database is reachable")
	return cmd
}
