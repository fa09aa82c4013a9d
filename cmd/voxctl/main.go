// voxctl is the control CLI for voxd.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"voxd/internal/config"
	"voxd/internal/ipc"
)

// Version is the CLI version, overridable at build time.
var Version = "0.9.0"

var configPath = flag.String("config", "", "path to config file")

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	switch cmd {
	case "status":
		cmdStatus(args)
	case "ping":
		cmdPing()
	case "pause":
		cmdPause()
	case "resume":
		cmdResume()
	case "deliver":
		cmdDeliver(args)
	case "history":
		cmdHistory(args)
	case "get-config":
		cmdGetConfig(args)
	case "reload":
		cmdReload()
	case "watch":
		cmdWatch(args)
	case "stop":
		cmdStop()
	case "version", "-v", "--version":
		fmt.Printf("voxctl %s\n", Version)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `voxctl - Control utility for voxd

Usage: voxctl [options] <command> [args]

Commands:
  status              Show daemon status
  ping                Check whether the daemon is responding
  pause               Suspend hotkey detection
  resume              Re-enable hotkey detection
  deliver <text>      Insert text through the delivery pipeline
  history <action>    Inspect the transcript history
                      (list, search <query>, stats, prune)
  get-config [keys]   Print the daemon's effective configuration
  reload              Reload the configuration file
  watch               Stream daemon events until interrupted
  stop                Shut the daemon down
  help                Show this help message

Options:
  -config <path>  Path to config file (default: platform config dir)`)
}

// connect dials the daemon, exiting with a hint when it is not running.
func connect() *ipc.IPCClient {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	clientCfg := ipc.DefaultClientConfig(cfg.IPC.SocketPath)
	clientCfg.ClientName = "voxctl"
	clientCfg.ClientVersion = Version

	client := ipc.NewClient(clientCfg)
	if err := client.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot connect to daemon: %v\n", err)
		fmt.Fprintln(os.Stderr, "Start it with: voxd run -detach")
		os.Exit(1)
	}
	return client
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	full := fs.Bool("full", false, "include the effective configuration")
	fs.Parse(args)

	client := connect()
	defer client.Close()

	status, err := client.Status(*full)
	if err != nil {
		fatal("Failed to get status: %v", err)
	}

	fmt.Println("=== voxd Status ===")
	fmt.Printf("Version:    %s\n", status.Version)
	fmt.Printf("Started:    %s\n", status.StartedAt.Format(time.RFC3339))
	fmt.Printf("Uptime:     %s\n", status.Uptime.Round(time.Second))
	fmt.Printf("Hotkey:     %s\n", status.Hotkey)
	fmt.Printf("State:      %s\n", status.SessionState)
	fmt.Printf("Paused:     %v\n", status.Paused)
	fmt.Printf("Permission: %s\n", status.Permission)
	if status.HistoryStatus.Enabled {
		fmt.Printf("History:    %d transcripts, %d chars", status.HistoryStatus.Transcripts, status.HistoryStatus.TotalChars)
		if !status.HistoryStatus.Newest.IsZero() {
			fmt.Printf(", newest %s", status.HistoryStatus.Newest.Format("2006-01-02 15:04"))
		}
		fmt.Println()
	} else {
		fmt.Println("History:    disabled")
	}
	if *full && status.Config != nil {
		fmt.Println()
		fmt.Println("Config:")
		printConfigMap(status.Config, "  ")
	}
}

func cmdPing() {
	client := connect()
	defer client.Close()

	start := time.Now()
	if err := client.Ping(); err != nil {
		fatal("Daemon not responding: %v", err)
	}
	fmt.Printf("Daemon responding (latency %s)\n", time.Since(start).Round(time.Microsecond))
}

func cmdPause() {
	client := connect()
	defer client.Close()

	resp, err := client.Pause()
	if err != nil {
		fatal("Pause failed: %v", err)
	}
	if resp.Paused {
		fmt.Println("Dictation paused.")
	}
}

func cmdResume() {
	client := connect()
	defer client.Close()

	resp, err := client.Resume()
	if err != nil {
		fatal("Resume failed: %v", err)
	}
	if !resp.Paused {
		fmt.Println("Dictation resumed.")
	}
}

func cmdDeliver(args []string) {
	fs := flag.NewFlagSet("deliver", flag.ExitOnError)
	retain := fs.Bool("retain-clipboard", false, "leave delivered text on the clipboard")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: voxctl deliver [-retain-clipboard] <text>")
		os.Exit(1)
	}
	text := strings.Join(fs.Args(), " ")

	client := connect()
	defer client.Close()

	resp, err := client.Deliver(text, *retain)
	if err != nil {
		fatal("Delivery failed: %v", err)
	}
	if !resp.Success {
		fatal("Delivery failed: %s", resp.Error)
	}
	fmt.Printf("Delivered %d chars via %s.\n", resp.Chars, resp.Strategy)
}

func cmdHistory(args []string) {
	if len(args) == 0 {
		args = []string{"list"}
	}

	switch args[0] {
	case "list":
		cmdHistoryList(args[1:])
	case "search":
		cmdHistorySearch(args[1:])
	case "stats":
		cmdHistoryStats()
	case "prune":
		cmdHistoryPrune(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown history action: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "Usage: voxctl history <list|search|stats|prune>")
		os.Exit(1)
	}
}

func cmdHistoryList(args []string) {
	fs := flag.NewFlagSet("history list", flag.ExitOnError)
	limit := fs.Int("n", 20, "number of transcripts to show")
	offset := fs.Int("offset", 0, "number of transcripts to skip")
	showText := fs.Bool("text", false, "print transcript text")
	fs.Parse(args)

	client := connect()
	defer client.Close()

	resp, err := client.HistoryList(*limit, *offset)
	if err != nil {
		fatal("Failed to list history: %v", err)
	}
	if len(resp.Entries) == 0 {
		fmt.Println("No transcripts recorded.")
		return
	}

	fmt.Printf("=== Transcript History (%d of %d) ===\n", len(resp.Entries), resp.Total)
	printTranscripts(resp.Entries, *showText)
}

func cmdHistorySearch(args []string) {
	fs := flag.NewFlagSet("history search", flag.ExitOnError)
	limit := fs.Int("n", 20, "number of matches to show")
	showText := fs.Bool("text", false, "print transcript text")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: voxctl history search [-n limit] <query>")
		os.Exit(1)
	}
	query := strings.Join(fs.Args(), " ")

	client := connect()
	defer client.Close()

	resp, err := client.HistorySearch(query, *limit)
	if err != nil {
		fatal("Search failed: %v", err)
	}
	if len(resp.Entries) == 0 {
		fmt.Printf("No transcripts match %q.\n", query)
		return
	}

	fmt.Printf("=== %d matches for %q ===\n", len(resp.Entries), query)
	printTranscripts(resp.Entries, *showText)
}

func cmdHistoryStats() {
	client := connect()
	defer client.Close()

	resp, err := client.HistoryStats()
	if err != nil {
		fatal("Failed to get stats: %v", err)
	}

	fmt.Println("=== Transcript History ===")
	fmt.Printf("Transcripts: %d\n", resp.Transcripts)
	fmt.Printf("Total chars: %d\n", resp.TotalChars)
	if !resp.Oldest.IsZero() {
		fmt.Printf("Oldest:      %s\n", resp.Oldest.Format("2006-01-02 15:04"))
	}
	if !resp.Newest.IsZero() {
		fmt.Printf("Newest:      %s\n", resp.Newest.Format("2006-01-02 15:04"))
	}
}

func cmdHistoryPrune(args []string) {
	fs := flag.NewFlagSet("history prune", flag.ExitOnError)
	maxAgeDays := fs.Int("older-than", 0, "remove transcripts older than this many days")
	maxKeep := fs.Int("keep", 0, "keep at most this many transcripts")
	fs.Parse(args)

	if *maxAgeDays == 0 && *maxKeep == 0 {
		fmt.Fprintln(os.Stderr, "Usage: voxctl history prune [-older-than days] [-keep n]")
		os.Exit(1)
	}

	client := connect()
	defer client.Close()

	resp, err := client.HistoryPrune(time.Duration(*maxAgeDays)*24*time.Hour, *maxKeep)
	if err != nil {
		fatal("Prune failed: %v", err)
	}
	fmt.Printf("Removed %d transcripts.\n", resp.Removed)
}

func printTranscripts(transcripts []ipc.TranscriptInfo, showText bool) {
	for _, t := range transcripts {
		fmt.Printf("[%d] %s  %d chars", t.ID, t.CreatedAt.Format("2006-01-02 15:04:05"), t.Chars)
		if t.Strategy != "" {
			fmt.Printf("  via %s", t.Strategy)
		}
		if t.Duration > 0 {
			fmt.Printf("  (%s)", t.Duration.Round(time.Second))
		}
		fmt.Println()
		if showText && t.Text != "" {
			fmt.Printf("    %s\n", t.Text)
		}
	}
}

func cmdGetConfig(keys []string) {
	client := connect()
	defer client.Close()

	resp, err := client.GetConfig(keys)
	if err != nil {
		fatal("Failed to get config: %v", err)
	}
	printConfigMap(resp.Config, "")
}

func printConfigMap(cfg map[string]interface{}, indent string) {
	for k, v := range cfg {
		if nested, ok := v.(map[string]interface{}); ok {
			fmt.Printf("%s[%s]\n", indent, k)
			printConfigMap(nested, indent+"  ")
			continue
		}
		fmt.Printf("%s%s = %v\n", indent, k, v)
	}
}

func cmdReload() {
	client := connect()
	defer client.Close()

	if err := client.ReloadConfig(); err != nil {
		fatal("Reload failed: %v", err)
	}
	fmt.Println("Configuration reloaded.")
}

func cmdWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	jsonOut := fs.Bool("json", false, "print raw event JSON")
	fs.Parse(args)

	client := connect()
	defer client.Close()

	if err := client.Subscribe(nil); err != nil {
		fatal("Subscribe failed: %v", err)
	}

	fmt.Println("Watching daemon events. Press Ctrl+C to stop.")
	fmt.Println()

	for event := range client.Events() {
		if *jsonOut {
			printEventJSON(event)
			continue
		}
		printEvent(event)
	}
}

func cmdStop() {
	client := connect()
	defer client.Close()

	if err := client.Shutdown(); err != nil {
		fatal("Shutdown failed: %v", err)
	}
	fmt.Println("Daemon stopping.")
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
