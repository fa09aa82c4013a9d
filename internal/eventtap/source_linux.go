//go:build linux

package eventtap

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"voxd/internal/hotkey"
)

// linuxSource reads /dev/input/event* devices directly. This is listen-only:
// evdev readers cannot swallow events, so the consumed flag is advisory on
// Linux and the trigger chord will also reach the focused application.
type linuxSource struct {
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	state modifierState
}

// NewPlatformSource returns the Linux evdev source.
func NewPlatformSource() Source {
	return &linuxSource{}
}

// modifierState tracks held modifier keys across devices. evdev reports
// left and right variants as distinct codes, so sides come for free.
type modifierState struct {
	mu   sync.Mutex
	held map[uint16]bool
}

func (ms *modifierState) set(code uint16, down bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.held == nil {
		ms.held = make(map[uint16]bool)
	}
	if down {
		ms.held[code] = true
	} else {
		delete(ms.held, code)
	}
}

func (ms *modifierState) modifiers() hotkey.Modifiers {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var mods hotkey.Modifiers
	add := func(leftCode, rightCode uint16, kind hotkey.ModifierKind) {
		l, r := ms.held[leftCode], ms.held[rightCode]
		switch {
		case l && r:
			mods = append(mods, hotkey.Modifier{Kind: kind, Side: hotkey.SideEither})
		case l:
			mods = append(mods, hotkey.Modifier{Kind: kind, Side: hotkey.SideLeft})
		case r:
			mods = append(mods, hotkey.Modifier{Kind: kind, Side: hotkey.SideRight})
		}
	}
	add(keyLeftShift, keyRightShift, hotkey.ModShift)
	add(keyLeftCtrl, keyRightCtrl, hotkey.ModControl)
	add(keyLeftAlt, keyRightAlt, hotkey.ModOption)
	add(keyLeftMeta, keyRightMeta, hotkey.ModCommand)
	return mods
}

// inputEvent matches the kernel's struct input_event on 64-bit platforms.
type inputEvent struct {
	Time  syscall.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

const (
	evKey = 1

	valueRelease = 0
	valuePress   = 1
	valueRepeat  = 2
)

// findInputDevices finds /dev/input devices with key capabilities
// (keyboards and mice both report EV_KEY).
func findInputDevices() ([]string, error) {
	var devices []string

	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var currentHandler string
	hasKeys := false

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "H: Handlers=") {
			for _, part := range strings.Fields(line) {
				if strings.HasPrefix(part, "event") {
					currentHandler = "/dev/input/" + part
				}
			}
		}
		if strings.HasPrefix(line, "B: KEY=") && len(line) > 10 {
			hasKeys = true
		}
		if line == "" {
			if hasKeys && currentHandler != "" {
				devices = append(devices, currentHandler)
			}
			currentHandler = ""
			hasKeys = false
		}
	}

	matches, _ := filepath.Glob("/dev/input/by-id/*-kbd")
	for _, m := range matches {
		resolved, err := filepath.EvalSymlinks(m)
		if err == nil && !contains(devices, resolved) {
			devices = append(devices, resolved)
		}
	}

	return devices, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s *linuxSource) Start(emit func(Event) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	devices, err := findInputDevices()
	if err != nil {
		return fmt.Errorf("enumerating input devices: %w", err)
	}
	if len(devices) == 0 {
		return errors.New("no input devices found")
	}

	var files []*os.File
	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDONLY, 0)
		if err != nil {
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return errors.New("cannot read input devices (need 'input' group or root)")
	}

	s.stopCh = make(chan struct{})
	s.running = true
	for _, f := range files {
		s.wg.Add(1)
		go s.readLoop(f, emit)
	}
	return nil
}

func (s *linuxSource) readLoop(f *os.File, emit func(Event) bool) {
	defer s.wg.Done()
	defer f.Close()

	// Closing the fd from Stop unblocks the Read.
	go func() {
		<-s.stopCh
		f.Close()
	}()

	buf := make([]byte, int(unsafe.Sizeof(inputEvent{})))
	for {
		if _, err := f.Read(buf); err != nil {
			return
		}
		var ev inputEvent
		if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &ev); err != nil {
			continue
		}
		if ev.Type != evKey || ev.Value == valueRepeat {
			continue
		}
		s.deliver(ev, emit)
	}
}

func (s *linuxSource) deliver(raw inputEvent, emit func(Event) bool) {
	down := raw.Value == valuePress
	now := time.Now()

	if isModifierCode(raw.Code) {
		s.state.set(raw.Code, down)
		emit(Event{Kind: KindFlagsChanged, Modifiers: s.state.modifiers(), When: now})
		return
	}

	if isMouseButtonCode(raw.Code) {
		if down {
			emit(Event{Kind: KindMouseDown, Modifiers: s.state.modifiers(), When: now})
		}
		return
	}

	kind := KindKeyUp
	if down {
		kind = KindKeyDown
	}
	emit(Event{
		Kind:      kind,
		Key:       keyFromEvdevCode(raw.Code),
		Modifiers: s.state.modifiers(),
		When:      now,
	})
}

func (s *linuxSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *linuxSource) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
