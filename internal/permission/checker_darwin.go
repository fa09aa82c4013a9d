//go:build darwin && cgo

package permission

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework ApplicationServices -framework Foundation -framework IOKit

#include <ApplicationServices/ApplicationServices.h>
#include <IOKit/hidsystem/IOHIDLib.h>

// Input Monitoring (the permission CGEventTap needs for keyboard events)
// gained a real query API in 10.15; fall back to the accessibility check
// on anything older.
static int checkInputMonitoring(void) {
    if (@available(macOS 10.15, *)) {
        IOHIDAccessType t = IOHIDCheckAccess(kIOHIDRequestTypeListenEvent);
        return t == kIOHIDAccessTypeGranted ? 1 : 0;
    }
    NSDictionary *options = @{(__bridge id)kAXTrustedCheckOptionPrompt: @NO};
    return AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)options) ? 1 : 0;
}

static void promptInputMonitoring(void) {
    if (@available(macOS 10.15, *)) {
        IOHIDRequestAccess(kIOHIDRequestTypeListenEvent);
        return;
    }
    NSDictionary *options = @{(__bridge id)kAXTrustedCheckOptionPrompt: @YES};
    AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)options);
}

static int checkAccessibility(void) {
    NSDictionary *options = @{(__bridge id)kAXTrustedCheckOptionPrompt: @NO};
    return AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)options) ? 1 : 0;
}
*/
import "C"

// darwinChecker queries Input Monitoring via IOHIDCheckAccess.
type darwinChecker struct{}

// NewPlatformChecker returns the macOS input-monitoring checker.
func NewPlatformChecker() Checker {
	return darwinChecker{}
}

func (darwinChecker) Check() Status {
	if C.checkInputMonitoring() == 1 {
		return StatusGranted
	}
	return StatusDenied
}

func (darwinChecker) Prompt() {
	C.promptInputMonitoring()
}

// AccessibilityTrusted reports whether the process holds the Accessibility
// permission, which the delivery pipeline needs for element insertion and
// keystroke synthesis.
func AccessibilityTrusted() bool {
	return C.checkAccessibility() == 1
}
