package delivery

import (
	"fmt"
	"time"
	"unicode/utf16"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32DLL   = windows.NewLazySystemDLL("user32.dll")
	kernel32DLL = windows.NewLazySystemDLL("kernel32.dll")

	procOpenClipboard              = user32DLL.NewProc("OpenClipboard")
	procCloseClipboard             = user32DLL.NewProc("CloseClipboard")
	procEmptyClipboard             = user32DLL.NewProc("EmptyClipboard")
	procGetClipboardData           = user32DLL.NewProc("GetClipboardData")
	procSetClipboardData           = user32DLL.NewProc("SetClipboardData")
	procIsClipboardFormatAvailable = user32DLL.NewProc("IsClipboardFormatAvailable")
	procGetClipboardSequenceNumber = user32DLL.NewProc("GetClipboardSequenceNumber")
	procSendInput                  = user32DLL.NewProc("SendInput")

	procGlobalAlloc  = kernel32DLL.NewProc("GlobalAlloc")
	procGlobalLock   = kernel32DLL.NewProc("GlobalLock")
	procGlobalUnlock = kernel32DLL.NewProc("GlobalUnlock")
	procGlobalFree   = kernel32DLL.NewProc("GlobalFree")
	procGlobalSize   = kernel32DLL.NewProc("GlobalSize")
)

const (
	cfUnicodeText = 13
	gmemMoveable  = 0x0002

	inputKeyboard   = 1
	keyeventfKeyup  = 0x0002
	keyeventfUnicode = 0x0004

	vkControl = 0x11
	vkV       = 0x56
)

// windowsPasteboard drives the Win32 clipboard. The clipboard is a
// shared resource guarded by Open/Close; every access runs on the UI
// thread with a bounded open retry, other apps hold it for short
// stretches.
type windowsPasteboard struct{}

// NewPlatformPasteboard returns the Windows clipboard.
func NewPlatformPasteboard() Pasteboard {
	return windowsPasteboard{}
}

func openClipboardRetry() error {
	for i := 0; i < 10; i++ {
		r, _, _ := procOpenClipboard.Call(0)
		if r != 0 {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("OpenClipboard: clipboard held by another process")
}

func closeClipboard() {
	procCloseClipboard.Call()
}

func (windowsPasteboard) ChangeCount() int64 {
	seq, _, _ := procGetClipboardSequenceNumber.Call()
	return int64(seq)
}

func (p windowsPasteboard) Snapshot() (*Snapshot, error) {
	snap := &Snapshot{ChangeCount: p.ChangeCount()}
	err := runOnUIThread(func() error {
		if err := openClipboardRetry(); err != nil {
			return err
		}
		defer closeClipboard()
		text, ok := readClipboardText()
		if ok && text != "" {
			snap.Representations = append(snap.Representations, Representation{
				Type: TypeText,
				Data: []byte(text),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (p windowsPasteboard) Restore(snap *Snapshot) error {
	text, _ := snap.Text()
	return p.WriteText(text)
}

func (windowsPasteboard) WriteText(text string) error {
	return runOnUIThread(func() error {
		if err := openClipboardRetry(); err != nil {
			return err
		}
		defer closeClipboard()
		procEmptyClipboard.Call()

		units := utf16.Encode([]rune(text))
		units = append(units, 0)
		size := uintptr(len(units) * 2)
		h, _, _ := procGlobalAlloc.Call(gmemMoveable, size)
		if h == 0 {
			return fmt.Errorf("GlobalAlloc failed")
		}
		ptr, _, _ := procGlobalLock.Call(h)
		if ptr == 0 {
			procGlobalFree.Call(h)
			return fmt.Errorf("GlobalLock failed")
		}
		dst := unsafe.Slice((*uint16)(unsafe.Pointer(ptr)), len(units))
		copy(dst, units)
		procGlobalUnlock.Call(h)

		// Ownership transfers to the clipboard on success.
		if r, _, _ := procSetClipboardData.Call(cfUnicodeText, h); r == 0 {
			procGlobalFree.Call(h)
			return fmt.Errorf("SetClipboardData failed")
		}
		return nil
	})
}

func (windowsPasteboard) ReadText() (string, error) {
	var text string
	err := runOnUIThread(func() error {
		if err := openClipboardRetry(); err != nil {
			return err
		}
		defer closeClipboard()
		text, _ = readClipboardText()
		return nil
	})
	return text, err
}

// readClipboardText assumes the clipboard is already open.
func readClipboardText() (string, bool) {
	if r, _, _ := procIsClipboardFormatAvailable.Call(cfUnicodeText); r == 0 {
		return "", false
	}
	h, _, _ := procGetClipboardData.Call(cfUnicodeText)
	if h == 0 {
		return "", false
	}
	ptr, _, _ := procGlobalLock.Call(h)
	if ptr == 0 {
		return "", false
	}
	defer procGlobalUnlock.Call(h)
	size, _, _ := procGlobalSize.Call(h)
	units := unsafe.Slice((*uint16)(unsafe.Pointer(ptr)), size/2)
	for i, u := range units {
		if u == 0 {
			units = units[:i]
			break
		}
	}
	return string(utf16.Decode(units)), true
}

type keyboardInput struct {
	Type uint32
	_    uint32 // struct alignment for the INPUT union
	Ki   struct {
		Vk        uint16
		Scan      uint16
		Flags     uint32
		Time      uint32
		ExtraInfo uintptr
		_         [8]byte // pad to the size of MOUSEINPUT
	}
}

func sendInputs(inputs []keyboardInput) error {
	n, _, err := procSendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if int(n) != len(inputs) {
		return fmt.Errorf("SendInput posted %d of %d events: %v", n, len(inputs), err)
	}
	return nil
}

func keyInput(vk uint16, flags uint32) keyboardInput {
	var in keyboardInput
	in.Type = inputKeyboard
	in.Ki.Vk = vk
	in.Ki.Flags = flags
	return in
}

func unicodeInput(unit uint16, flags uint32) keyboardInput {
	var in keyboardInput
	in.Type = inputKeyboard
	in.Ki.Scan = unit
	in.Ki.Flags = keyeventfUnicode | flags
	return in
}

// windowsSynthesizer posts input through SendInput.
type windowsSynthesizer struct{}

// NewPlatformSynthesizer returns the Windows synthetic input poster.
func NewPlatformSynthesizer() Synthesizer {
	return windowsSynthesizer{}
}

func (windowsSynthesizer) PasteShortcut() error {
	return runOnUIThread(func() error {
		return sendInputs([]keyboardInput{
			keyInput(vkControl, 0),
			keyInput(vkV, 0),
			keyInput(vkV, keyeventfKeyup),
			keyInput(vkControl, keyeventfKeyup),
		})
	})
}

func (windowsSynthesizer) MenuPaste() error {
	return fmt.Errorf("menu paste not supported on this platform")
}

func (windowsSynthesizer) TypeText(text string) error {
	units := utf16.Encode([]rune(text))
	const chunkSize = 16
	for off := 0; off < len(units); off += chunkSize {
		end := off + chunkSize
		if end > len(units) {
			end = len(units)
		}
		inputs := make([]keyboardInput, 0, (end-off)*2)
		for _, u := range units[off:end] {
			inputs = append(inputs,
				unicodeInput(u, 0),
				unicodeInput(u, keyeventfKeyup),
			)
		}
		err := runOnUIThread(func() error { return sendInputs(inputs) })
		if err != nil {
			return err
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

// windowsAccessibility is a placeholder; UI Automation value patterns
// are not wired yet, so the pipeline falls through to the clipboard
// strategy.
type windowsAccessibility struct{}

// NewPlatformAccessibility returns the Windows accessibility bridge.
func NewPlatformAccessibility() Accessibility {
	return windowsAccessibility{}
}

func (windowsAccessibility) FocusedElement() (Element, error) {
	return Element{}, ErrElementUnsupported
}

func (windowsAccessibility) SetFocusedValue(string, int) error {
	return ErrElementUnsupported
}
