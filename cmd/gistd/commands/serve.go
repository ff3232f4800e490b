package commands

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/wmnsk/go-gtp/gtpv1"

	"gist/internal/config"
	"gist/internal/engine"
	"gist/internal/metrics"
	"gist/internal/nslp/natfw"
	"gist/internal/nslp/qos"
	"gist/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gistd signaling daemon",
	Long: `serve loads configuration (§6 defaults, overlaid by an optional YAML
file and by GISTD_* environment variables for keys that file sets), starts the GIST state machine and its
Q-mode/C-mode transports, attaches whichever NSLPs are enabled (NAT/Firewall,
QoS), and serves Prometheus metrics until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Bool("foreground", true, "run in the foreground (gistd does not daemonize itself)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	logger := telemetry.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	log := telemetry.ForModule(logger, "gistd")

	reg := prometheus.NewRegistry()

	eng, err := engine.New(cfg, log, reg)
	if err != nil {
		return err
	}

	if cfg.NATFW.Enabled {
		installer := natfw.NewMemoryInstaller()
		mgr := natfw.NewManager(installer, eng.Dispatcher(), telemetry.ForModule(logger, "natfw"))
		eng.AddSweeper(mgr)
		log.Info("NAT/Firewall NSLP attached")
	}

	if cfg.QoS.Enabled {
		var installer qos.TunnelInstaller
		addr, err := net.ResolveUDPAddr("udp", cfg.QoS.GTPListenAddr)
		if err != nil {
			return err
		}
		gtpu, err := qos.NewGTPUInstaller(addr, cfg.QoS.GTPInterface, gtpv1.RoleSGSN)
		if err != nil {
			log.WithError(err).Warn("QoS GTP-U device unavailable, falling back to a no-op tunnel installer")
			installer = qos.NewNoopInstaller(telemetry.ForModule(logger, "qos"))
		} else {
			installer = gtpu
		}
		mgr := qos.NewManager(installer, eng.Dispatcher(), telemetry.ForModule(logger, "qos"))
		eng.AddSweeper(mgr)
		log.Info("QoS NSLP attached")
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.NewServer(reg)}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Warn("metrics server stopped")
			}
		}()
		log.WithField("addr", cfg.Metrics.Addr).Info("metrics server listening")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Info("gistd started, press Ctrl+C to stop")
	<-sigCh

	log.Info("shutdown signal received")
	eng.Stop()
	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(ctx)
	}
	<-done
	log.Info("gistd stopped")
	return nil
}
