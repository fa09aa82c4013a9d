//go:build windows

package eventtap

import (
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"voxd/internal/hotkey"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookEx = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx   = user32.NewProc("CallNextHookEx")
	procGetMessage       = user32.NewProc("GetMessageW")
	procPostThreadMessage = user32.NewProc("PostThreadMessageW")
	procGetAsyncKeyState = user32.NewProc("GetAsyncKeyState")

	kernel32               = windows.NewLazySystemDLL("kernel32.dll")
	procGetCurrentThreadID = kernel32.NewProc("GetCurrentThreadId")
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14

	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmSysKeyDown = 0x0104
	wmSysKeyUp   = 0x0105

	wmLButtonDown = 0x0201
	wmRButtonDown = 0x0204
	wmMButtonDown = 0x0207
	wmXButtonDown = 0x020B

	wmQuit = 0x0012
)

// kbdllhookstruct mirrors KBDLLHOOKSTRUCT.
type kbdllhookstruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

// windowsSource installs low-level keyboard and mouse hooks on a dedicated
// message-loop thread. Low-level hooks deliver on the installing thread's
// message queue, so the thread is locked and pumps GetMessage until Stop
// posts WM_QUIT.
type windowsSource struct {
	mu       sync.Mutex
	running  bool
	threadID uint32
	done     chan struct{}
	emit     func(Event) bool
}

// NewPlatformSource returns the Windows low-level hook source.
func NewPlatformSource() Source {
	return &windowsSource{}
}

func (s *windowsSource) Start(emit func(Event) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.emit = emit
	s.done = make(chan struct{})

	errCh := make(chan error, 1)
	go s.messageLoop(errCh)
	if err := <-errCh; err != nil {
		return err
	}
	s.running = true
	return nil
}

func (s *windowsSource) messageLoop(errCh chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.done)

	tid, _, _ := procGetCurrentThreadID.Call()
	s.threadID = uint32(tid)

	kbProc := windows.NewCallback(func(code int32, wparam, lparam uintptr) uintptr {
		if code >= 0 && s.handleKeyboard(wparam, lparam) {
			return 1 // swallow
		}
		ret, _, _ := procCallNextHookEx.Call(0, uintptr(code), wparam, lparam)
		return ret
	})
	mouseProc := windows.NewCallback(func(code int32, wparam, lparam uintptr) uintptr {
		if code >= 0 {
			s.handleMouse(wparam)
		}
		ret, _, _ := procCallNextHookEx.Call(0, uintptr(code), wparam, lparam)
		return ret
	})

	kbHook, _, err := procSetWindowsHookEx.Call(whKeyboardLL, kbProc, 0, 0)
	if kbHook == 0 {
		errCh <- fmt.Errorf("SetWindowsHookEx(WH_KEYBOARD_LL): %w", err)
		return
	}
	mouseHook, _, err := procSetWindowsHookEx.Call(whMouseLL, mouseProc, 0, 0)
	if mouseHook == 0 {
		procUnhookWindowsHookEx.Call(kbHook)
		errCh <- fmt.Errorf("SetWindowsHookEx(WH_MOUSE_LL): %w", err)
		return
	}
	errCh <- nil

	var msg struct {
		Hwnd    uintptr
		Message uint32
		WParam  uintptr
		LParam  uintptr
		Time    uint32
		Pt      struct{ X, Y int32 }
	}
	for {
		ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		if int32(ret) <= 0 || msg.Message == wmQuit {
			break
		}
	}

	procUnhookWindowsHookEx.Call(kbHook)
	procUnhookWindowsHookEx.Call(mouseHook)
}

func (s *windowsSource) handleKeyboard(wparam, lparam uintptr) bool {
	kb := (*kbdllhookstruct)(unsafe.Pointer(lparam))
	down := wparam == wmKeyDown || wparam == wmSysKeyDown

	ev := Event{When: time.Now(), Modifiers: currentWindowsModifiers()}
	if isWindowsModifierVK(uint16(kb.VkCode)) {
		ev.Kind = KindFlagsChanged
	} else {
		if down {
			ev.Kind = KindKeyDown
		} else {
			ev.Kind = KindKeyUp
		}
		ev.Key = keyFromVirtualKey(uint16(kb.VkCode))
	}
	return s.emit(ev)
}

func (s *windowsSource) handleMouse(wparam uintptr) {
	switch wparam {
	case wmLButtonDown, wmRButtonDown, wmMButtonDown, wmXButtonDown:
		s.emit(Event{Kind: KindMouseDown, Modifiers: currentWindowsModifiers(), When: time.Now()})
	}
}

func (s *windowsSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	procPostThreadMessage.Call(uintptr(s.threadID), wmQuit, 0, 0)
	<-s.done
	s.running = false
	return nil
}

func (s *windowsSource) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Virtual-key codes.
const (
	vkLButton = 0x01

	vkShift    = 0x10
	vkControl  = 0x11
	vkMenu     = 0x12
	vkLShift   = 0xA0
	vkRShift   = 0xA1
	vkLControl = 0xA2
	vkRControl = 0xA3
	vkLMenu    = 0xA4
	vkRMenu    = 0xA5
	vkLWin     = 0x5B
	vkRWin     = 0x5C
)

func isWindowsModifierVK(vk uint16) bool {
	switch vk {
	case vkShift, vkControl, vkMenu, vkLShift, vkRShift,
		vkLControl, vkRControl, vkLMenu, vkRMenu, vkLWin, vkRWin:
		return true
	}
	return false
}

func asyncDown(vk uint16) bool {
	ret, _, _ := procGetAsyncKeyState.Call(uintptr(vk))
	return ret&0x8000 != 0
}

// currentWindowsModifiers samples the async key state for a side-aware
// modifier set. The Windows key maps to ModCommand to keep hotkey configs
// portable across platforms.
func currentWindowsModifiers() hotkey.Modifiers {
	var mods hotkey.Modifiers
	add := func(left, right uint16, kind hotkey.ModifierKind) {
		l, r := asyncDown(left), asyncDown(right)
		switch {
		case l && r:
			mods = append(mods, hotkey.Modifier{Kind: kind, Side: hotkey.SideEither})
		case l:
			mods = append(mods, hotkey.Modifier{Kind: kind, Side: hotkey.SideLeft})
		case r:
			mods = append(mods, hotkey.Modifier{Kind: kind, Side: hotkey.SideRight})
		}
	}
	add(vkLShift, vkRShift, hotkey.ModShift)
	add(vkLControl, vkRControl, hotkey.ModControl)
	add(vkLMenu, vkRMenu, hotkey.ModOption)
	add(vkLWin, vkRWin, hotkey.ModCommand)
	return mods
}

// vkKeyTable maps virtual-key codes to symbolic keys.
var vkKeyTable = map[uint16]hotkey.Key{
	0x08: hotkey.KeyBackspace,
	0x09: hotkey.KeyTab,
	0x0D: hotkey.KeyReturn,
	0x1B: hotkey.KeyEscape,
	0x20: hotkey.KeySpace,
	0x25: hotkey.KeyLeft,
	0x26: hotkey.KeyUp,
	0x27: hotkey.KeyRight,
	0x28: hotkey.KeyDown,
	0x2E: hotkey.KeyDelete,

	0xBA: ";", 0xBB: "=", 0xBC: ",", 0xBD: "-", 0xBE: ".",
	0xBF: "/", 0xC0: "`", 0xDB: "[", 0xDC: "\\", 0xDD: "]", 0xDE: "'",
}

func keyFromVirtualKey(vk uint16) hotkey.Key {
	switch {
	case vk >= '0' && vk <= '9':
		return hotkey.Key(string(rune('0' + vk - '0')))
	case vk >= 'A' && vk <= 'Z':
		return hotkey.Key(string(rune('a' + vk - 'A')))
	case vk >= 0x70 && vk <= 0x83: // VK_F1..VK_F20
		return hotkey.Key(fmt.Sprintf("f%d", vk-0x70+1))
	}
	return vkKeyTable[vk]
}
