package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"plcmotion/pkg/config"
	"plcmotion/pkg/log"
	"plcmotion/pkg/metrics"
	"plcmotion/pkg/rt"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the motion kernel",
	Long: `Starts the tick loop, the command API and the status stream. Software
range limits are reloaded live when the configuration file changes; other
changes are reported and need a restart.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(configPath)
	if err != nil {
		return err
	}
	cfg := settings.Config()

	logCloser, err := setupLogging(cfg.Log)
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	k, err := newKernel(settings)
	if err != nil {
		return err
	}
	return k.run(ctx)
}

func loadSettings(path string) (*config.AutosaveConfig, error) {
	if path == "" {
		cfg := config.Default()
		return config.NewAutosaveConfig(&cfg, ""), nil
	}
	return config.LoadAutosave(path)
}

// setupLogging applies the log section to the root logger. The returned
// closer is nil unless a log file was opened.
func setupLogging(lc config.LogConfig) (io.Closer, error) {
	l := log.Default()
	if logLevel == "" {
		l.SetLevel(log.ParseLevel(lc.Level))
	}
	if logFormat == "" {
		l.SetFormat(log.ParseFormat(lc.Format))
	}
	l.SetCaller(lc.Caller)
	if lc.File == "" {
		return nil, nil
	}
	closer, err := log.TeeToFile(l, lc.FileConfig())
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return closer, nil
}

// run blocks until ctx is done or a server fails, then shuts everything
// down in reverse order.
func (k *kernel) run(ctx context.Context) error {
	k.log.Info("motiond %s starting, %d axes at %.0f Hz", version, len(k.sched.Axes()), k.sched.Frequency())

	tuned, err := rt.Apply(rt.Options{LockMemory: k.cfg.Realtime.LockMemory, Nice: k.cfg.Realtime.Nice})
	if err != nil {
		k.log.WithError(err).Warn("realtime tuning incomplete")
	}
	defer rt.Release(tuned)

	runID := ""
	if k.store != nil {
		run, err := k.store.StartRun(version)
		if err != nil {
			return err
		}
		runID = run.ID
	}

	jctx, stopJournal := context.WithCancel(context.Background())
	journalDone := make(chan struct{})
	if k.journal != nil {
		go func() {
			k.journal.Run(jctx)
			close(journalDone)
		}()
	} else {
		close(journalDone)
	}

	tickCtx, stopTicks := context.WithCancel(context.Background())
	tickDone := make(chan error, 1)
	go func() { tickDone <- k.reactor.Run(tickCtx) }()
	if k.cfg.Watchdog.Timeout > 0 {
		k.safety.StartWatchdog()
	}

	serverErr := make(chan error, 2)
	go func() { serverErr <- k.api.ListenAndServe(k.cfg.API.Addr) }()

	var ms *metrics.Server
	if k.cfg.Metrics.Addr != "" {
		mcfg := metrics.DefaultServerConfig()
		mcfg.Address = k.cfg.Metrics.Addr
		mcfg.Username, mcfg.Password = k.cfg.Metrics.Username, k.cfg.Metrics.Password
		mcfg.Ready = k.reactor.Running
		ms = metrics.NewServer(k.metrics, mcfg)
		go func() { serverErr <- ms.ListenAndServe() }()
	}

	if path := k.settings.Path(); path != "" {
		rm := config.NewReloadManager(k, &k.cfg, path)
		rm.OnReloadComplete(k.reloaded)
		if err := rm.Watch(); err != nil {
			k.log.WithError(err).Warn("config watch disabled")
		}
	}

	k.log.Info("ready, api on %s", k.cfg.API.Addr)

	var runErr error
	select {
	case <-ctx.Done():
		k.log.Info("received shutdown signal")
	case runErr = <-serverErr:
		if runErr == nil {
			runErr = fmt.Errorf("server stopped unexpectedly")
		}
		k.log.WithError(runErr).Error("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := k.api.Shutdown(shutdownCtx); err != nil {
		k.log.WithError(err).Warn("api shutdown")
	}
	if ms != nil {
		if err := ms.Shutdown(shutdownCtx); err != nil {
			k.log.WithError(err).Warn("metrics shutdown")
		}
	}
	k.hub.Close()

	k.safety.StopWatchdog()
	stopTicks()
	<-tickDone

	stopJournal()
	<-journalDone
	if runID != "" {
		if err := k.store.EndRun(runID); err != nil {
			k.log.WithError(err).Warn("end run")
		}
	}
	k.close()

	k.log.Info("stopped after %d ticks, %d overruns", k.reactor.Ticks(), k.reactor.Overruns())
	return runErr
}

// reloaded keeps the saved settings in line with the file after a live
// reload.
func (k *kernel) reloaded(results []config.ReloadResult) {
	applied := false
	for _, r := range results {
		applied = applied || r.WasReloaded
	}
	if !applied {
		return
	}
	if err := k.settings.ReloadFromDisk(); err != nil {
		k.log.WithError(err).Warn("settings reload failed")
	}
}
