//go:build darwin && cgo

package eventtap

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework ApplicationServices -framework Foundation

#include <ApplicationServices/ApplicationServices.h>
#include <pthread.h>
#include <unistd.h>

// Run loop state
static CFRunLoopRef tapRunLoop = NULL;
static volatile int tapEnabled = 0;
static volatile int tapDisabledBySystem = 0;

static CFMachPortRef eventTap = NULL;
static CFRunLoopSourceRef runLoopSource = NULL;

static void stopEventTap(void);

// Implemented in Go. Returns nonzero when the event should be swallowed.
extern int voxdTapEmit(int type, long long keycode, unsigned long long flags);

static CGEventRef eventCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *refcon) {
    (void)proxy;
    (void)refcon;

    // The OS disables the tap if the callback is too slow or on user-input
    // flood protection. Re-enable eagerly and tell Go so the watchdog can
    // verify the tap actually came back.
    if (type == kCGEventTapDisabledByUserInput || type == kCGEventTapDisabledByTimeout) {
        tapDisabledBySystem = 1;
        if (eventTap != NULL) {
            CGEventTapEnable(eventTap, true);
        }
        voxdTapEmit(-1, 0, 0);
        return event;
    }

    long long keycode = 0;
    if (type == kCGEventKeyDown || type == kCGEventKeyUp) {
        keycode = CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode);
    } else if (type == kCGEventFlagsChanged) {
        keycode = CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode);
    }
    unsigned long long flags = (unsigned long long)CGEventGetFlags(event);

    if (voxdTapEmit((int)type, keycode, flags)) {
        return NULL; // swallow
    }
    return event;
}

static void* runLoopThread(void* arg) {
    (void)arg;
    tapRunLoop = CFRunLoopGetCurrent();
    CFRunLoopAddSource(tapRunLoop, runLoopSource, kCFRunLoopCommonModes);
    CGEventTapEnable(eventTap, true);
    tapEnabled = 1;
    CFRunLoopRun();
    tapEnabled = 0;
    tapRunLoop = NULL;
    return NULL;
}

static pthread_t runLoopThreadHandle;
static volatile int threadRunning = 0;

static int startEventTap(void) {
    if (eventTap != NULL) {
        return 1; // already running
    }

    CGEventMask eventMask =
        CGEventMaskBit(kCGEventKeyDown) |
        CGEventMaskBit(kCGEventKeyUp) |
        CGEventMaskBit(kCGEventFlagsChanged) |
        CGEventMaskBit(kCGEventLeftMouseDown) |
        CGEventMaskBit(kCGEventRightMouseDown) |
        CGEventMaskBit(kCGEventOtherMouseDown);

    // Head insertion so we see events before the focused app and can
    // swallow the trigger chord.
    eventTap = CGEventTapCreate(
        kCGSessionEventTap,
        kCGHeadInsertEventTap,
        kCGEventTapOptionDefault,
        eventMask,
        eventCallback,
        NULL
    );

    if (eventTap == NULL) {
        return -1; // permission denied or unavailable
    }

    runLoopSource = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, eventTap, 0);
    if (runLoopSource == NULL) {
        CFRelease(eventTap);
        eventTap = NULL;
        return -2;
    }

    threadRunning = 1;
    if (pthread_create(&runLoopThreadHandle, NULL, runLoopThread, NULL) != 0) {
        CFRelease(runLoopSource);
        CFRelease(eventTap);
        runLoopSource = NULL;
        eventTap = NULL;
        threadRunning = 0;
        return -3;
    }

    // Wait for the tap to come up, bounded.
    for (int i = 0; i < 100 && !tapEnabled; i++) {
        usleep(10000);
    }
    if (!tapEnabled) {
        stopEventTap();
        return -4;
    }
    return 0;
}

static void stopEventTap(void) {
    if (eventTap == NULL) {
        return;
    }
    CGEventTapEnable(eventTap, false);
    tapEnabled = 0;
    if (tapRunLoop != NULL) {
        CFRunLoopStop(tapRunLoop);
    }
    if (threadRunning) {
        pthread_join(runLoopThreadHandle, NULL);
        threadRunning = 0;
    }
    if (runLoopSource != NULL) {
        CFRelease(runLoopSource);
        runLoopSource = NULL;
    }
    if (eventTap != NULL) {
        CFRelease(eventTap);
        eventTap = NULL;
    }
    tapRunLoop = NULL;
}

static int isTapEnabled(void) {
    if (eventTap == NULL) {
        return 0;
    }
    return tapEnabled && CGEventTapIsEnabled(eventTap);
}

static int wasTapDisabledBySystem(void) {
    int val = tapDisabledBySystem;
    tapDisabledBySystem = 0;
    return val;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"time"

	"voxd/internal/hotkey"
)

// darwinSource installs a CGEventTap on its own run-loop thread.
type darwinSource struct {
	mu      sync.Mutex
	emit    func(Event) bool
	running bool
}

// Single CGEventTap per process; the C side is all globals, so the Go side
// mirrors that with one active source.
var (
	activeDarwinMu sync.Mutex
	activeDarwin   *darwinSource
)

// NewPlatformSource returns the macOS CGEventTap source.
func NewPlatformSource() Source {
	return &darwinSource{}
}

func (s *darwinSource) Start(emit func(Event) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	activeDarwinMu.Lock()
	activeDarwin = s
	activeDarwinMu.Unlock()
	s.emit = emit

	if rc := C.startEventTap(); rc < 0 {
		activeDarwinMu.Lock()
		activeDarwin = nil
		activeDarwinMu.Unlock()
		return fmt.Errorf("CGEventTapCreate failed (code %d): input monitoring permission missing?", int(rc))
	}
	s.running = true
	return nil
}

func (s *darwinSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	C.stopEventTap()
	s.running = false

	activeDarwinMu.Lock()
	activeDarwin = nil
	activeDarwinMu.Unlock()
	return nil
}

func (s *darwinSource) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && C.isTapEnabled() == 1
}

//export voxdTapEmit
func voxdTapEmit(cgType C.int, keycode C.longlong, flags C.ulonglong) C.int {
	activeDarwinMu.Lock()
	src := activeDarwin
	activeDarwinMu.Unlock()
	if src == nil {
		return 0
	}

	ev := Event{When: time.Now(), Modifiers: modifiersFromCGFlags(uint64(flags))}
	switch int64(cgType) {
	case -1:
		ev.Kind = KindTapDisabled
	case 10: // kCGEventKeyDown
		ev.Kind = KindKeyDown
		ev.Key = keyFromCGKeycode(uint16(keycode))
	case 11: // kCGEventKeyUp
		ev.Kind = KindKeyUp
		ev.Key = keyFromCGKeycode(uint16(keycode))
	case 12: // kCGEventFlagsChanged
		ev.Kind = KindFlagsChanged
	case 1, 3, 25: // left/right/other mouse down
		ev.Kind = KindMouseDown
	default:
		return 0
	}

	if src.emit(ev) {
		return 1
	}
	return 0
}

// CGEventFlags device-specific modifier bits. The NX_DEVICE* masks survive
// in the IOKit headers and are the only way to recover left/right sides
// from a CGEvent.
const (
	nxDeviceLCtlKey   = 0x00000001
	nxDeviceLShiftKey = 0x00000002
	nxDeviceRShiftKey = 0x00000004
	nxDeviceLCmdKey   = 0x00000008
	nxDeviceRCmdKey   = 0x00000010
	nxDeviceLAltKey   = 0x00000020
	nxDeviceRAltKey   = 0x00000040
	nxDeviceRCtlKey   = 0x00002000

	cgFlagShift   = 0x00020000
	cgFlagControl = 0x00040000
	cgFlagOption  = 0x00080000
	cgFlagCommand = 0x00100000
	cgFlagFn      = 0x00800000
)

// modifiersFromCGFlags converts CGEventFlags into a side-aware modifier set.
func modifiersFromCGFlags(flags uint64) hotkey.Modifiers {
	var mods hotkey.Modifiers

	add := func(kind hotkey.ModifierKind, genericBit uint64, leftBit, rightBit uint64) {
		if flags&genericBit == 0 {
			return
		}
		side := hotkey.SideEither
		switch {
		case flags&leftBit != 0 && flags&rightBit == 0:
			side = hotkey.SideLeft
		case flags&rightBit != 0 && flags&leftBit == 0:
			side = hotkey.SideRight
		}
		mods = append(mods, hotkey.Modifier{Kind: kind, Side: side})
	}

	add(hotkey.ModShift, cgFlagShift, nxDeviceLShiftKey, nxDeviceRShiftKey)
	add(hotkey.ModControl, cgFlagControl, nxDeviceLCtlKey, nxDeviceRCtlKey)
	add(hotkey.ModOption, cgFlagOption, nxDeviceLAltKey, nxDeviceRAltKey)
	add(hotkey.ModCommand, cgFlagCommand, nxDeviceLCmdKey, nxDeviceRCmdKey)
	if flags&cgFlagFn != 0 {
		mods = append(mods, hotkey.Modifier{Kind: hotkey.ModFn})
	}
	return mods
}
