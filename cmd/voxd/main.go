// voxd - Push-to-talk dictation daemon
//
//	voxd run            Run the daemon in the foreground
//	voxd run -detach    Run the daemon in the background
//	voxd status         Show daemon status
//	voxd permissions    Check input monitoring permission
//	voxd config         Print the effective configuration
//	voxd deliver        Deliver text through the pipeline without the daemon
//	voxd history        Inspect the transcript history database
//	voxd version        Print the version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"voxd/internal/config"
	"voxd/internal/delivery"
	"voxd/internal/history"
	"voxd/internal/ipc"
	"voxd/internal/logging"
	"voxd/internal/permission"
)

// Version is the daemon version, overridable at build time.
var Version = "0.9.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "run":
		cmdRun()
	case "status":
		cmdStatus()
	case "permissions":
		cmdPermissions()
	case "config":
		cmdConfig()
	case "deliver":
		cmdDeliver()
	case "history":
		cmdHistory()
	case "version", "-v", "--version":
		fmt.Printf("voxd %s\n", Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`voxd - Push-to-Talk Dictation Daemon

USAGE:
    voxd <command> [options]

COMMANDS:
    run             Run the daemon (use -detach for background)
    status          Show daemon status
    permissions     Check input monitoring permission (-prompt to ask the OS)
    config          Print the effective configuration
    deliver         Deliver text through the pipeline without the daemon
    history         Inspect the transcript history database directly
    version         Print the version
    help            Show this help message

WORKFLOW:
    1. voxd permissions -prompt       # Grant input monitoring once
    2. voxd run -detach               # Start the daemon
    3. Hold the hotkey and speak; release to insert the transcript
    4. voxctl status                  # Inspect from the command line

The hotkey, delivery strategies, transcriber command, and history
retention are configured in config.toml. The daemon reloads the file
on change; no restart needed.`)
}

func pidFilePath() string {
	return filepath.Join(config.VoxdDir(), "voxd.pid")
}

// readDaemonPID returns the PID from the pid file, or 0 when the daemon
// is not running.
func readDaemonPID() int {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	if !processExists(pid) {
		return 0
	}
	return pid
}

func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix FindProcess always succeeds; signal 0 probes for existence.
	return process.Signal(syscall.Signal(0)) == nil
}

func cmdStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	showConfig := fs.Bool("full", false, "include the daemon's effective config")
	fs.Parse(os.Args[2:])

	cfg := loadConfigOrExit(*configPath)

	pid := readDaemonPID()
	if pid == 0 {
		fmt.Println("Daemon: NOT RUNNING")
		fmt.Println()
		fmt.Println("Start it with: voxd run -detach")
		os.Exit(1)
	}
	fmt.Printf("Daemon: RUNNING (PID %d)\n", pid)

	client := ipc.NewClient(ipc.DefaultClientConfig(cfg.IPC.SocketPath))
	if err := client.Connect(); err != nil {
		fmt.Printf("Socket: NOT RESPONDING (%v)\n", err)
		os.Exit(1)
	}
	defer client.Close()

	status, err := client.Status(*showConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Version:    %s\n", status.Version)
	fmt.Printf("Uptime:     %s\n", status.Uptime.Round(time.Second))
	fmt.Printf("Hotkey:     %s\n", status.Hotkey)
	fmt.Printf("State:      %s\n", status.SessionState)
	fmt.Printf("Paused:     %v\n", status.Paused)
	fmt.Printf("Permission: %s\n", status.Permission)
	if status.HistoryStatus.Enabled {
		fmt.Printf("History:    %d transcripts, %d chars\n",
			status.HistoryStatus.Transcripts, status.HistoryStatus.TotalChars)
	} else {
		fmt.Println("History:    disabled")
	}
	if *showConfig && status.Config != nil {
		fmt.Println()
		fmt.Println("Config:")
		for k, v := range status.Config {
			fmt.Printf("  %s = %v\n", k, v)
		}
	}
}

func cmdPermissions() {
	fs := flag.NewFlagSet("permissions", flag.ExitOnError)
	prompt := fs.Bool("prompt", false, "ask the OS to show its permission dialog")
	fs.Parse(os.Args[2:])

	checker := permission.NewPlatformChecker()
	status := checker.Check()

	fmt.Printf("Input monitoring: %s\n", strings.ToUpper(status.String()))

	switch status {
	case permission.StatusGranted:
		return
	case permission.StatusDenied:
		if *prompt {
			fmt.Println("Requesting permission from the OS...")
			checker.Prompt()
			fmt.Println("Grant access in the system settings dialog, then re-run this command.")
		} else {
			fmt.Println()
			fmt.Println("Run 'voxd permissions -prompt' to open the system dialog.")
		}
		os.Exit(1)
	default:
		fmt.Println("Permission state could not be determined on this platform.")
	}
}

func cmdConfig() {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	format := fs.String("format", "toml", "output format: toml, json, yaml")
	fs.Parse(os.Args[2:])

	cfg := loadConfigOrExit(*configPath)

	out, err := config.Export(cfg, *format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(out)
}

// cmdDeliver runs the delivery pipeline once with the configured
// strategies. Useful for probing which strategy the focused application
// accepts, without a daemon running.
func cmdDeliver() {
	fs := flag.NewFlagSet("deliver", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	retain := fs.Bool("retain-clipboard", false, "leave the text on the clipboard")
	fs.Parse(os.Args[2:])

	text := strings.Join(fs.Args(), " ")
	if text == "" {
		fmt.Fprintln(os.Stderr, "Usage: voxd deliver [options] <text>")
		os.Exit(2)
	}

	cfg := loadConfigOrExit(*configPath)

	log, err := logging.New(&logging.Config{
		Level:  logging.LevelWarn,
		Format: logging.FormatText,
		Output: "stderr",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	pipeline, _, err := buildPipeline(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	outcome, err := pipeline.Deliver(ctx, text, delivery.Options{RetainClipboard: *retain})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Delivery failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Delivered %d chars via %s (%d attempt(s))\n",
		len(text), outcome.Strategy, len(outcome.Attempts))
}

// cmdHistory reads the transcript database directly, so it works whether
// or not the daemon is up. voxctl history goes through the daemon instead.
func cmdHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	limit := fs.Int("n", 20, "number of transcripts to show")
	search := fs.String("search", "", "show transcripts containing this text")
	stats := fs.Bool("stats", false, "show history statistics instead of entries")
	showText := fs.Bool("text", false, "include transcript text")
	fs.Parse(os.Args[2:])

	cfg := loadConfigOrExit(*configPath)
	if !cfg.History.Enabled {
		fmt.Fprintln(os.Stderr, "History is disabled in the configuration.")
		os.Exit(1)
	}

	store, err := history.Open(cfg.History.Path, cfg.History.SecretPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening history: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if *stats {
		st, err := store.Stats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Transcripts: %d\n", st.Count)
		fmt.Printf("Characters:  %d\n", st.TotalChars)
		if st.Count > 0 {
			fmt.Printf("Oldest:      %s\n", st.Oldest.Format(time.RFC3339))
			fmt.Printf("Newest:      %s\n", st.Newest.Format(time.RFC3339))
		}
		return
	}

	var entries []history.Entry
	if *search != "" {
		entries, err = store.Search(ctx, *search, *limit)
	} else {
		entries, err = store.List(ctx, *limit, 0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(entries) == 0 {
		fmt.Println("No transcripts.")
		return
	}
	for _, e := range entries {
		fmt.Printf("#%d  %s  %s  %d chars  %s\n",
			e.ID, e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Duration.Round(time.Millisecond), e.Chars, e.Strategy)
		if *showText {
			fmt.Printf("    %s\n", e.Text)
		}
	}
}

func loadConfigOrExit(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
