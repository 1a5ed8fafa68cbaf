package cli

import (
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cct-network/carbond/internal/api"
	"github.com/cct-network/carbond/internal/daemon"
	"github.com/cct-network/carbond/internal/infra/observability"
	"github.com/cct-network/carbond/internal/infra/registry"
	"github.com/cct-network/carbond/internal/infra/sqlite"
	"github.com/cct-network/carbond/internal/ledger"
	"github.com/cct-network/carbond/internal/oracle"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the settlement daemon",
	Long: `Start the carbond daemon: opens the ledger store, connects the
registry client and serves the HTTP API until interrupted.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return err
	}

	db, err := sqlite.Open(cfg.Ledger.DataDir)
	if err != nil {
		return fmt.Errorf("open ledger store: %w", err)
	}
	defer db.Close()

	led, err := ledger.New(cfg.Oracle.Identity, db)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	reg := registry.New(cfg.Registry.BaseURL, cfg.RegistryTimeout())

	var tracer *observability.Tracer
	if cfg.Oracle.Tracing {
		tracer = observability.NewTracer(observability.DefaultTracerConfig())
	}

	o := oracle.New(cfg.Oracle.Identity, oracle.Deps{
		Ledger:    led,
		Accounts:  reg.Accounts(),
		Emissions: reg.Emissions(),
		Projects:  reg.Projects(),
		Tracer:    tracer,
	})

	srv := api.NewServer(o, led)
	srv.SetEvents(db)
	if cfg.API.Metrics {
		srv.EnableMetrics()
	}

	log.Printf("[daemon] carbond %s listening on %s (registry %s, data %s)",
		api.Version, cfg.ListenAddr(), cfg.Registry.BaseURL, cfg.Ledger.DataDir)
	return http.ListenAndServe(cfg.ListenAddr(), srv.Handler())
}
