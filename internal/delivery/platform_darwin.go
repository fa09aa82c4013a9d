//go:build darwin && cgo

package delivery

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Cocoa -framework ApplicationServices

#import <Cocoa/Cocoa.h>
#import <ApplicationServices/ApplicationServices.h>
#include <stdlib.h>

// ---------------------------------------------------------------------------
// NSPasteboard
//
// AppKit pasteboard access must happen on the main thread or a single
// serial context; the Go side funnels every call through one locked OS
// thread, so plain direct access is safe here.
// ---------------------------------------------------------------------------

static long pasteboardChangeCount(void) {
    @autoreleasepool {
        return [[NSPasteboard generalPasteboard] changeCount];
    }
}

static char* pasteboardReadText(void) {
    @autoreleasepool {
        NSString *text = [[NSPasteboard generalPasteboard] stringForType:NSPasteboardTypeString];
        if (text == nil) {
            return NULL;
        }
        return strdup([text UTF8String]);
    }
}

static int pasteboardWriteText(const char* text) {
    @autoreleasepool {
        NSPasteboard *pb = [NSPasteboard generalPasteboard];
        [pb clearContents];
        BOOL ok = [pb setString:[NSString stringWithUTF8String:text]
                        forType:NSPasteboardTypeString];
        return ok ? 1 : 0;
    }
}

// Snapshot iteration: count of types on the first item, then type name and
// data per index. Multi-item pasteboards are rare; the first item carries
// the representations every app cares about.
static int pasteboardTypeCount(void) {
    @autoreleasepool {
        NSArray<NSPasteboardType> *types = [[NSPasteboard generalPasteboard] types];
        return (int)[types count];
    }
}

static char* pasteboardTypeAt(int idx) {
    @autoreleasepool {
        NSArray<NSPasteboardType> *types = [[NSPasteboard generalPasteboard] types];
        if (idx < 0 || idx >= (int)[types count]) {
            return NULL;
        }
        return strdup([[types objectAtIndex:idx] UTF8String]);
    }
}

static void* pasteboardDataAt(int idx, int* outLen) {
    @autoreleasepool {
        NSPasteboard *pb = [NSPasteboard generalPasteboard];
        NSArray<NSPasteboardType> *types = [pb types];
        *outLen = 0;
        if (idx < 0 || idx >= (int)[types count]) {
            return NULL;
        }
        NSData *data = [pb dataForType:[types objectAtIndex:idx]];
        if (data == nil) {
            return NULL;
        }
        void *buf = malloc([data length]);
        memcpy(buf, [data bytes], [data length]);
        *outLen = (int)[data length];
        return buf;
    }
}

static void pasteboardBeginRestore(void) {
    @autoreleasepool {
        [[NSPasteboard generalPasteboard] clearContents];
    }
}

static int pasteboardRestoreType(const char* type, const void* data, int len) {
    @autoreleasepool {
        NSPasteboard *pb = [NSPasteboard generalPasteboard];
        NSData *d = [NSData dataWithBytes:data length:len];
        BOOL ok = [pb setData:d forType:[NSString stringWithUTF8String:type]];
        return ok ? 1 : 0;
    }
}

// ---------------------------------------------------------------------------
// Synthetic input
// ---------------------------------------------------------------------------

static int postPasteShortcut(void) {
    CGEventSourceRef source = CGEventSourceCreate(kCGEventSourceStateCombinedSessionState);
    if (source == NULL) {
        return 0;
    }
    // 0x09 is ANSI V.
    CGEventRef vDown = CGEventCreateKeyboardEvent(source, 0x09, true);
    CGEventRef vUp = CGEventCreateKeyboardEvent(source, 0x09, false);
    CGEventSetFlags(vDown, kCGEventFlagMaskCommand);
    CGEventSetFlags(vUp, kCGEventFlagMaskCommand);
    CGEventPost(kCGHIDEventTap, vDown);
    CGEventPost(kCGHIDEventTap, vUp);
    CFRelease(vDown);
    CFRelease(vUp);
    CFRelease(source);
    return 1;
}

static int postUnicodeChunk(const unsigned short* chars, int len) {
    CGEventSourceRef source = CGEventSourceCreate(kCGEventSourceStateCombinedSessionState);
    if (source == NULL) {
        return 0;
    }
    CGEventRef down = CGEventCreateKeyboardEvent(source, 0, true);
    CGEventRef up = CGEventCreateKeyboardEvent(source, 0, false);
    CGEventKeyboardSetUnicodeString(down, len, chars);
    CGEventKeyboardSetUnicodeString(up, len, chars);
    CGEventPost(kCGHIDEventTap, down);
    CGEventPost(kCGHIDEventTap, up);
    CFRelease(down);
    CFRelease(up);
    CFRelease(source);
    return 1;
}

// ---------------------------------------------------------------------------
// Accessibility tree
// ---------------------------------------------------------------------------

static AXUIElementRef focusedElement(void) {
    AXUIElementRef systemWide = AXUIElementCreateSystemWide();
    AXUIElementRef focused = NULL;
    AXError err = AXUIElementCopyAttributeValue(
        systemWide, kAXFocusedUIElementAttribute, (CFTypeRef*)&focused);
    CFRelease(systemWide);
    if (err != kAXErrorSuccess) {
        return NULL;
    }
    return focused;
}

static char* copyStringAttr(AXUIElementRef el, CFStringRef attr) {
    CFTypeRef value = NULL;
    if (AXUIElementCopyAttributeValue(el, attr, &value) != kAXErrorSuccess || value == NULL) {
        return NULL;
    }
    char* result = NULL;
    if (CFGetTypeID(value) == CFStringGetTypeID()) {
        CFStringRef str = (CFStringRef)value;
        CFIndex len = CFStringGetMaximumSizeForEncoding(CFStringGetLength(str), kCFStringEncodingUTF8) + 1;
        result = malloc(len);
        if (!CFStringGetCString(str, result, len, kCFStringEncodingUTF8)) {
            free(result);
            result = NULL;
        }
    }
    CFRelease(value);
    return result;
}

// axFocusedText reads role, value and selection of the focused element.
// Returns 0 on success, nonzero when there is no usable focused element.
static int axFocusedText(char** role, char** value, long* selStart, long* selLen, int* settable) {
    AXUIElementRef el = focusedElement();
    if (el == NULL) {
        return 1;
    }
    *role = copyStringAttr(el, kAXRoleAttribute);
    *value = copyStringAttr(el, kAXValueAttribute);

    Boolean canSet = false;
    AXUIElementIsAttributeSettable(el, kAXValueAttribute, &canSet);
    *settable = canSet ? 1 : 0;

    *selStart = -1;
    *selLen = 0;
    CFTypeRef rangeValue = NULL;
    if (AXUIElementCopyAttributeValue(el, kAXSelectedTextRangeAttribute, &rangeValue) == kAXErrorSuccess
        && rangeValue != NULL) {
        CFRange range;
        if (AXValueGetValue((AXValueRef)rangeValue, kAXValueTypeCFRange, &range)) {
            *selStart = range.location;
            *selLen = range.length;
        }
        CFRelease(rangeValue);
    }
    CFRelease(el);
    return 0;
}

static int axSetFocusedValue(const char* value, long caret) {
    AXUIElementRef el = focusedElement();
    if (el == NULL) {
        return 1;
    }
    CFStringRef str = CFStringCreateWithCString(kCFAllocatorDefault, value, kCFStringEncodingUTF8);
    AXError err = AXUIElementSetAttributeValue(el, kAXValueAttribute, str);
    CFRelease(str);
    if (err != kAXErrorSuccess) {
        CFRelease(el);
        return 2;
    }
    CFRange range = CFRangeMake(caret, 0);
    AXValueRef rangeValue = AXValueCreate(kAXValueTypeCFRange, &range);
    AXUIElementSetAttributeValue(el, kAXSelectedTextRangeAttribute, rangeValue);
    CFRelease(rangeValue);
    CFRelease(el);
    return 0;
}
*/
import "C"

import (
	"fmt"
	"os/exec"
	"time"
	"unicode/utf16"
	"unsafe"
)

// darwinPasteboard wraps NSPasteboard. All calls run on the shared
// UI-affinity thread.
type darwinPasteboard struct{}

// NewPlatformPasteboard returns the macOS pasteboard.
func NewPlatformPasteboard() Pasteboard {
	return darwinPasteboard{}
}

func (darwinPasteboard) ChangeCount() int64 {
	var count C.long
	runOnUIThread(func() error {
		count = C.pasteboardChangeCount()
		return nil
	})
	return int64(count)
}

func (darwinPasteboard) Snapshot() (*Snapshot, error) {
	snap := &Snapshot{}
	err := runOnUIThread(func() error {
		snap.ChangeCount = int64(C.pasteboardChangeCount())
		n := int(C.pasteboardTypeCount())
		for i := 0; i < n; i++ {
			ctype := C.pasteboardTypeAt(C.int(i))
			if ctype == nil {
				continue
			}
			typeName := C.GoString(ctype)
			C.free(unsafe.Pointer(ctype))

			var length C.int
			data := C.pasteboardDataAt(C.int(i), &length)
			if data == nil {
				continue
			}
			raw := C.GoBytes(data, length)
			C.free(data)
			snap.Representations = append(snap.Representations, Representation{
				Type: normalizeDarwinType(typeName),
				Data: raw,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (darwinPasteboard) Restore(snap *Snapshot) error {
	return runOnUIThread(func() error {
		C.pasteboardBeginRestore()
		if snap.Empty() {
			return nil
		}
		for _, rep := range snap.Representations {
			ctype := C.CString(denormalizeDarwinType(rep.Type))
			var ok C.int
			if len(rep.Data) > 0 {
				ok = C.pasteboardRestoreType(ctype, unsafe.Pointer(&rep.Data[0]), C.int(len(rep.Data)))
			}
			C.free(unsafe.Pointer(ctype))
			if ok == 0 {
				// Keep restoring the remaining representations; a partial
				// restore beats a cleared clipboard.
				continue
			}
		}
		return nil
	})
}

func (darwinPasteboard) WriteText(text string) error {
	return runOnUIThread(func() error {
		ctext := C.CString(text)
		defer C.free(unsafe.Pointer(ctext))
		if C.pasteboardWriteText(ctext) == 0 {
			return fmt.Errorf("NSPasteboard setString failed")
		}
		return nil
	})
}

func (darwinPasteboard) ReadText() (string, error) {
	var text string
	err := runOnUIThread(func() error {
		ctext := C.pasteboardReadText()
		if ctext == nil {
			return nil
		}
		text = C.GoString(ctext)
		C.free(unsafe.Pointer(ctext))
		return nil
	})
	return text, err
}

const nsPasteboardTypeString = "public.utf8-plain-text"

func normalizeDarwinType(t string) string {
	if t == nsPasteboardTypeString {
		return TypeText
	}
	return t
}

func denormalizeDarwinType(t string) string {
	if t == TypeText {
		return nsPasteboardTypeString
	}
	return t
}

// darwinSynthesizer posts CGEvents and drives the Edit menu via
// System Events.
type darwinSynthesizer struct{}

// NewPlatformSynthesizer returns the macOS synthetic input poster.
func NewPlatformSynthesizer() Synthesizer {
	return darwinSynthesizer{}
}

func (darwinSynthesizer) PasteShortcut() error {
	return runOnUIThread(func() error {
		if C.postPasteShortcut() == 0 {
			return fmt.Errorf("CGEventPost for Cmd+V failed")
		}
		return nil
	})
}

// menuPasteScript clicks Edit→Paste in the frontmost process. Some apps
// ignore synthetic Cmd+V but honor their own menu item.
const menuPasteScript = `
tell application "System Events"
	tell process (name of first application process whose frontmost is true)
		click menu item "Paste" of menu "Edit" of menu bar item "Edit" of menu bar 1
	end tell
end tell
`

func (darwinSynthesizer) MenuPaste() error {
	cmd := exec.Command("osascript", "-e", menuPasteScript)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("menu paste: %v (%s)", err, out)
	}
	return nil
}

func (darwinSynthesizer) TypeText(text string) error {
	// CGEventKeyboardSetUnicodeString takes UTF-16; chunk to stay inside
	// the per-event limit and pace the events so slow apps keep up.
	const chunkSize = 16
	units := utf16.Encode([]rune(text))
	for off := 0; off < len(units); off += chunkSize {
		end := off + chunkSize
		if end > len(units) {
			end = len(units)
		}
		chunk := units[off:end]
		err := runOnUIThread(func() error {
			if C.postUnicodeChunk((*C.ushort)(unsafe.Pointer(&chunk[0])), C.int(len(chunk))) == 0 {
				return fmt.Errorf("CGEventPost for unicode chunk failed")
			}
			return nil
		})
		if err != nil {
			return err
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

// darwinAccessibility reads and writes the focused element through the AX
// API.
type darwinAccessibility struct{}

// NewPlatformAccessibility returns the macOS accessibility bridge.
func NewPlatformAccessibility() Accessibility {
	return darwinAccessibility{}
}

func (darwinAccessibility) FocusedElement() (Element, error) {
	var el Element
	err := runOnUIThread(func() error {
		var role, value *C.char
		var selStart, selLen C.long
		var settable C.int
		if C.axFocusedText(&role, &value, &selStart, &selLen, &settable) != 0 {
			return ErrElementUnsupported
		}
		if role != nil {
			el.Role = C.GoString(role)
			C.free(unsafe.Pointer(role))
		}
		if value != nil {
			el.Value = C.GoString(value)
			C.free(unsafe.Pointer(value))
		}
		el.Editable = settable == 1
		if selStart >= 0 {
			el.SelectionStart = int(selStart)
			el.SelectionEnd = int(selStart + selLen)
		} else {
			el.SelectionStart = len(el.Value)
			el.SelectionEnd = len(el.Value)
		}
		return nil
	})
	return el, err
}

func (darwinAccessibility) SetFocusedValue(value string, caret int) error {
	return runOnUIThread(func() error {
		cvalue := C.CString(value)
		defer C.free(unsafe.Pointer(cvalue))
		if C.axSetFocusedValue(cvalue, C.long(caret)) != 0 {
			return fmt.Errorf("AXUIElementSetAttributeValue failed")
		}
		return nil
	})
}
