package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"voxd/internal/config"
	"voxd/internal/delivery"
	"voxd/internal/eventtap"
	"voxd/internal/health"
	"voxd/internal/history"
	"voxd/internal/ipc"
	"voxd/internal/logging"
	"voxd/internal/metrics"
	"voxd/internal/permission"
	"voxd/internal/session"
)

// daemon ties every subsystem together for one run of the process.
type daemon struct {
	cfg    *config.Config
	loader *config.Loader
	log    *logging.Logger
	audit  *logging.AuditLogger
	vm     *metrics.VoxdMetrics

	hist     *history.Store
	monitor  *eventtap.Monitor
	watchdog *permission.Watchdog
	ctrl     *session.Controller
	pipeline *delivery.Pipeline

	server  *ipc.Server
	handler *ipc.DaemonHandler
	checker *health.Checker

	httpServers []*http.Server
	shutdownCh  chan string
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	detach := fs.Bool("detach", false, "run in the background")
	fs.Parse(os.Args[2:])

	if *detach {
		detachAndExit(*configPath)
	}

	d := &daemon{shutdownCh: make(chan string, 1)}
	if err := d.run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "voxd: %v\n", err)
		os.Exit(1)
	}
}

// detachAndExit re-execs the daemon detached from the terminal.
func detachAndExit(configPath string) {
	args := []string{"run"}
	if configPath != "" {
		args = append(args, "-config", configPath)
	}

	cmd := exec.Command(os.Args[0], args...)
	cmd.SysProcAttr = getDaemonSysProcAttr()
	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("voxd started (PID %d)\n", cmd.Process.Pid)
	os.Exit(0)
}

func (d *daemon) run(configPath string) error {
	defer logging.RecoverPanic()

	if pid := readDaemonPID(); pid != 0 {
		return fmt.Errorf("daemon already running (PID %d)", pid)
	}

	if err := d.setup(configPath); err != nil {
		return err
	}
	defer d.teardown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.startWatchdog(ctx)
	d.startTapKeeper(ctx)
	d.startMaintenance(ctx)

	if err := d.startIPC(); err != nil {
		return err
	}
	d.startHTTP()
	d.checker.SetReady(true)

	d.log.Info("voxd ready",
		"version", Version,
		"hotkey", d.ctrl.Status().Hotkey,
		"socket", d.socketPath())

	return d.waitForShutdown(cancel)
}

// setup loads configuration and builds every subsystem in dependency order.
func (d *daemon) setup(configPath string) error {
	d.loader = config.NewLoader(configPath, nil)
	cfg, err := d.loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	d.cfg = cfg

	if err := d.setupLogging(); err != nil {
		return err
	}
	if err := d.setupAudit(); err != nil {
		return err
	}

	d.vm = metrics.InitMetrics(metrics.Default())
	d.checker = health.NewChecker()

	if err := d.setupHistory(); err != nil {
		return err
	}
	if err := d.setupSession(); err != nil {
		return err
	}

	d.setupConfigReload()

	if err := os.WriteFile(pidFilePath(), []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	d.audit.LogStartup(Version)
	return nil
}

func (d *daemon) setupLogging() error {
	level, err := logging.ParseLevel(d.cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	format, err := logging.ParseFormat(d.cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}

	log, err := logging.New(&logging.Config{
		Level:      level,
		Format:     format,
		Output:     d.cfg.Logging.Output,
		FilePath:   d.cfg.Logging.FilePath,
		MaxSize:    int64(d.cfg.Logging.MaxSizeMB),
		MaxAge:     d.cfg.Logging.MaxAgeDays,
		MaxBackups: d.cfg.Logging.MaxBackups,
		Compress:   d.cfg.Logging.Compress,
		Component:  "voxd",
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	logging.SetDefault(log)
	d.log = log
	return nil
}

func (d *daemon) setupAudit() error {
	audit, err := logging.NewAuditLogger(logging.DefaultAuditConfig())
	if err != nil {
		return fmt.Errorf("setup audit log: %w", err)
	}
	d.audit = audit
	return nil
}

func (d *daemon) setupHistory() error {
	if !d.cfg.History.Enabled {
		return nil
	}

	hist, err := history.Open(d.cfg.History.Path, d.cfg.History.SecretPath)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	d.hist = hist
	d.checker.RegisterFunc("history", false, health.DatabaseCheck(hist.Ping))

	// Startup prune keeps retention honest across restarts.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	d.pruneHistory(ctx)
	return nil
}

func (d *daemon) pruneHistory(ctx context.Context) {
	if d.hist == nil {
		return
	}
	if days := d.cfg.History.RetentionDays; days > 0 {
		n, err := d.hist.PruneOlderThan(ctx, time.Duration(days)*24*time.Hour)
		if err != nil {
			d.log.Warn("history retention prune failed", "error", err)
		} else if n > 0 {
			d.log.Info("pruned expired transcripts", "removed", n)
		}
	}
	if max := d.cfg.History.MaxEntries; max > 0 {
		n, err := d.hist.PruneToCount(ctx, max)
		if err != nil {
			d.log.Warn("history cap prune failed", "error", err)
		} else if n > 0 {
			d.log.Info("pruned transcripts over cap", "removed", n)
		}
	}
}

func (d *daemon) setupSession() error {
	hk, err := d.cfg.ParsedHotkey()
	if err != nil {
		return err
	}

	d.monitor = eventtap.NewMonitor(eventtap.NewPlatformSource(), d.log.Logger)

	pipeline, clip, err := buildPipeline(d.cfg, d.log)
	if err != nil {
		return err
	}
	d.pipeline = pipeline

	var historian session.Historian
	if d.hist != nil {
		historian = d.hist
	}
	var restore session.RestoreCanceller
	if clip != nil {
		restore = clip
	}

	d.ctrl = session.NewController(session.Config{
		Hotkey:           hk,
		UseDoubleTapOnly: d.cfg.Hotkey.UseDoubleTapOnly,
		MinimumKeyTime:   d.cfg.MinimumKeyTime(),
		RetainClipboard:  d.cfg.Delivery.RetainClipboard,
		Recorder:         &session.NopRecorder{},
		Transcriber:      &session.ExecTranscriber{Command: d.cfg.Transcriber.Command},
		Deliverer:        pipeline,
		Restore:          restore,
		Historian:        historian,
	}, d.log.Logger)
	d.ctrl.OnEvent(d.onSessionEvent)
	d.ctrl.Attach(d.monitor)

	d.watchdog = permission.NewWatchdog(
		permission.NewPlatformChecker(),
		d.monitor,
		d.cfg.PermissionPollInterval(),
		d.log.Logger,
	)
	d.watchdog.OnChange(d.onPermissionChange)

	d.checker.RegisterFunc("event_tap", true, health.TapCheck(
		d.monitor.Alive,
		d.vm.TapRestartsTotal.Value,
	))
	d.checker.RegisterFunc("permission", true, health.PermissionCheck(func() (bool, string) {
		status := d.watchdog.Status()
		return status == permission.StatusGranted, status.String()
	}))
	return nil
}

// buildPipeline assembles delivery strategies in configured order. The
// clipboard strategy is returned separately so the controller can cancel
// its pending restore on a follow-up session.
func buildPipeline(cfg *config.Config, log *logging.Logger) (*delivery.Pipeline, *delivery.ClipboardStrategy, error) {
	board := delivery.NewPlatformPasteboard()
	synth := delivery.NewPlatformSynthesizer()
	ax := delivery.NewPlatformAccessibility()

	var clip *delivery.ClipboardStrategy
	var strategies []delivery.Strategy
	for _, name := range cfg.Delivery.Strategies {
		switch name {
		case "accessibility":
			strategies = append(strategies, delivery.NewAccessibilityStrategy(ax, log.Logger))
		case "clipboard":
			clip = delivery.NewClipboardStrategy(board, synth, log.Logger)
			strategies = append(strategies, clip)
		case "typing":
			strategies = append(strategies, delivery.NewTypingStrategy(synth, ax, log.Logger))
		default:
			return nil, nil, fmt.Errorf("unknown delivery strategy %q", name)
		}
	}
	if len(strategies) == 0 {
		return nil, nil, fmt.Errorf("no delivery strategies configured")
	}
	return delivery.NewPipeline(board, log.Logger, strategies...), clip, nil
}

func (d *daemon) setupConfigReload() {
	d.loader.OnChange(func(old, new *config.Config) {
		d.cfg = new

		hk, err := new.ParsedHotkey()
		if err != nil {
			d.log.Error("reloaded config has invalid hotkey, keeping old trigger", "error", err)
		} else {
			d.ctrl.Rearm(hk, new.Hotkey.UseDoubleTapOnly, new.MinimumKeyTime())
		}

		d.audit.LogConfigChange("config", "", "reloaded")
		if d.handler != nil {
			d.handler.BroadcastConfigChanged()
		}
	})

	if err := d.loader.Watch(); err != nil {
		d.log.Warn("config watch unavailable", "error", err)
	}
	go func() {
		for err := range d.loader.Errors() {
			d.log.Error("config reload failed", "error", err)
			d.vm.RecordError()
		}
	}()
}

// onSessionEvent fans one lifecycle event out to metrics, the audit
// trail, and IPC subscribers. Runs on the controller's goroutines and
// must not block.
func (d *daemon) onSessionEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventStarted:
		d.vm.SessionStarted()
		d.audit.LogSession("started", nil)
	case session.EventLocked:
		d.audit.LogSession("locked", nil)
	case session.EventStopped:
		d.vm.SessionEnded(ev.Duration)
		d.audit.LogSession("stopped", map[string]any{"duration": ev.Duration.String()})
	case session.EventDiscarded:
		d.vm.SessionDiscarded()
		d.audit.LogSession("discarded", map[string]any{"duration": ev.Duration.String()})
	case session.EventCancelled:
		d.vm.SessionCancelled()
		d.audit.LogSession("cancelled", nil)
	case session.EventDelivered:
		d.vm.RecordDelivery(ev.Strategy, 0, ev.Chars, 1, true)
		d.audit.LogDelivery(ev.Strategy, ev.Chars, nil)
	case session.EventDeliveryFailed:
		d.vm.RecordDelivery("", 0, 0, 0, false)
		d.audit.LogDelivery(ev.Strategy, 0, fmt.Errorf("%s", ev.Err))
	}

	if d.handler != nil {
		d.handler.BroadcastSessionEvent(ev)
	}
}

func (d *daemon) onPermissionChange(ch permission.Change) {
	d.vm.SetPermission(ch.Status == permission.StatusGranted)
	d.audit.LogPermission(ch.Status.String(), string(ch.Reason))
	if d.handler != nil {
		d.handler.BroadcastPermissionChange(ch)
	}
}

func (d *daemon) startWatchdog(ctx context.Context) {
	go func() {
		defer logging.RecoverPanic()
		d.watchdog.Run(ctx)
	}()
}

// startTapKeeper restarts the hook when the OS disables it.
func (d *daemon) startTapKeeper(ctx context.Context) {
	go func() {
		defer logging.RecoverPanic()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.monitor.RestartRequests():
				d.vm.RecordTapRestart()
				if err := d.monitor.Restart(); err != nil {
					d.log.Error("tap restart failed", "error", err)
					d.audit.LogError("tap_restart", err)
				} else {
					d.log.Info("event tap restarted")
				}
			}
		}
	}()
}

// startMaintenance runs periodic housekeeping: uptime and history
// gauges, plus retention pruning once an hour.
func (d *daemon) startMaintenance(ctx context.Context) {
	go func() {
		defer logging.RecoverPanic()
		gauges := time.NewTicker(15 * time.Second)
		prune := time.NewTicker(time.Hour)
		defer gauges.Stop()
		defer prune.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-gauges.C:
				d.vm.UpdateUptime()
				d.vm.SetPaused(d.ctrl.Status().Paused)
				if d.hist != nil {
					if stats, err := d.hist.Stats(ctx); err == nil {
						d.vm.SetHistoryTranscripts(stats.Count)
					}
				}
			case <-prune.C:
				d.pruneHistory(ctx)
			}
		}
	}()
}

func (d *daemon) startIPC() error {
	if !d.cfg.IPC.Enabled {
		return nil
	}

	d.handler = ipc.NewDaemonHandler(ipc.DaemonHandlerConfig{
		Version:    Version,
		Controller: d.ctrl,
		Pipeline:   d.pipeline,
		History:    d.hist,
		Loader:     d.loader,
		Watchdog:   d.watchdog,
		OnShutdown: func() {
			select {
			case d.shutdownCh <- "ipc request":
			default:
			}
		},
	})

	serverCfg := ipc.DefaultServerConfig(config.VoxdDir())
	serverCfg.Version = Version
	if d.cfg.IPC.SocketPath != "" {
		serverCfg.SocketPath = d.cfg.IPC.SocketPath
	}
	if d.cfg.IPC.MaxConnections > 0 {
		serverCfg.MaxConnections = d.cfg.IPC.MaxConnections
	}
	if d.cfg.IPC.TimeoutSec > 0 {
		serverCfg.ReadTimeout = time.Duration(d.cfg.IPC.TimeoutSec) * time.Second
	}

	server, err := ipc.NewServer(serverCfg, d.handler)
	if err != nil {
		return fmt.Errorf("create IPC server: %w", err)
	}
	d.handler.SetBroadcaster(server.Broadcast)

	if err := server.Start(); err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	d.server = server
	d.checker.RegisterFunc("ipc", false, health.SocketCheck(server.SocketPath()))
	return nil
}

func (d *daemon) socketPath() string {
	if d.server != nil {
		return d.server.SocketPath()
	}
	return ""
}

func (d *daemon) startHTTP() {
	if d.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Default().HTTPHandler())
		d.serveHTTP("metrics", d.cfg.Metrics.ListenAddr, mux)
	}

	if d.cfg.Health.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/healthz", d.checker.HealthHandler())
		mux.Handle("/livez", d.checker.LivenessHandler())
		mux.Handle("/readyz", d.checker.ReadinessHandler())
		d.serveHTTP("health", d.cfg.Health.ListenAddr, mux)
	}
}

func (d *daemon) serveHTTP(name, addr string, mux *http.ServeMux) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	d.httpServers = append(d.httpServers, srv)
	go func() {
		defer logging.RecoverPanic()
		d.log.Info("http endpoint listening", "name", name, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.log.Error("http endpoint failed", "name", name, "error", err)
		}
	}()
}

func (d *daemon) waitForShutdown(cancel context.CancelFunc) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	reloadCh := make(chan os.Signal, 1)
	notifyReload(reloadCh)

	for {
		select {
		case sig := <-sigCh:
			d.log.Info("shutdown signal received", "signal", sig.String())
			cancel()
			d.audit.LogShutdown(sig.String())
			return nil
		case <-reloadCh:
			d.log.Info("reload signal received")
			d.loader.Reload()
		case reason := <-d.shutdownCh:
			d.log.Info("shutdown requested", "reason", reason)
			cancel()
			d.audit.LogShutdown(reason)
			return nil
		}
	}
}

// teardown stops subsystems in reverse dependency order.
func (d *daemon) teardown() {
	if d.checker != nil {
		d.checker.SetReady(false)
	}

	for _, srv := range d.httpServers {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		srv.Shutdown(ctx)
		cancel()
	}

	if d.server != nil {
		if err := d.server.Stop(); err != nil {
			d.log.Warn("IPC server stop failed", "error", err)
		}
	}
	if d.ctrl != nil {
		d.ctrl.Close()
	}
	if d.monitor != nil {
		d.monitor.Deactivate()
	}
	if d.hist != nil {
		d.hist.Close()
	}
	if d.loader != nil {
		d.loader.Close()
	}

	os.Remove(pidFilePath())

	if d.audit != nil {
		d.audit.Close()
	}
	if d.log != nil {
		d.log.Info("voxd stopped")
		d.log.Close()
	}
}
