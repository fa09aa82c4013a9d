// voxd-indicator is a small always-visible status window for voxd. It
// subscribes to the daemon's event stream over IPC and shows the current
// dictation state: idle, recording, locked, delivering.
package main

import (
	"log"
	"os"
	"time"

	"gioui.org/app"
	"gioui.org/op"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"voxd/cmd/voxd-indicator/internal/theme"
	"voxd/cmd/voxd-indicator/internal/ui"
	"voxd/internal/config"
	"voxd/internal/ipc"
)

func main() {
	go func() {
		w := new(app.Window)
		w.Option(app.Title("Voxd"))
		w.Option(app.Size(unit.Dp(280), unit.Dp(96)))
		w.Option(app.MinSize(unit.Dp(220), unit.Dp(72)))

		if err := loop(w); err != nil {
			log.Fatal(err)
		}
		os.Exit(0)
	}()
	app.Main()
}

func loop(w *app.Window) error {
	t := theme.NewTheme(material.NewTheme())
	indicator := ui.NewIndicator(t)

	go feedEvents(w, indicator)

	var ops op.Ops
	for {
		switch e := w.Event().(type) {
		case app.DestroyEvent:
			return e.Err
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)
			indicator.Layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}

// feedEvents keeps a daemon connection alive and pushes events into the
// indicator state. Reconnects with backoff when the daemon goes away.
func feedEvents(w *app.Window, indicator *ui.Indicator) {
	cfg, err := config.Load("")
	if err != nil {
		indicator.SetDisconnected(err.Error())
		w.Invalidate()
		return
	}

	for {
		clientCfg := ipc.DefaultClientConfig(cfg.IPC.SocketPath)
		clientCfg.ClientName = "voxd-indicator"
		clientCfg.AutoReconnect = false

		client := ipc.NewClient(clientCfg)
		if err := client.Connect(); err != nil {
			indicator.SetDisconnected("daemon not running")
			w.Invalidate()
			time.Sleep(2 * time.Second)
			continue
		}

		if status, err := client.Status(false); err == nil {
			indicator.SetStatus(status)
			w.Invalidate()
		}

		if err := client.Subscribe(nil); err != nil {
			client.Close()
			time.Sleep(2 * time.Second)
			continue
		}

		// Events() closes when the connection drops.
		for event := range client.Events() {
			indicator.Apply(event)
			w.Invalidate()
			if event.Type == ipc.EventDaemonShutdown {
				break
			}
		}

		client.Close()
		indicator.SetDisconnected("connection lost")
		w.Invalidate()
		time.Sleep(2 * time.Second)
	}
}
