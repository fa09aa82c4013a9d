//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// getDaemonSysProcAttr returns the SysProcAttr for detaching a daemon process on Unix-like systems.
func getDaemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid: true,
	}
}

// notifyReload registers SIGHUP as the config reload trigger.
func notifyReload(ch chan os.Signal) {
	signal.Notify(ch, syscall.SIGHUP)
}
