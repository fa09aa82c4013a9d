//go:build linux

package eventtap

import "voxd/internal/hotkey"

// Kernel input event codes from linux/input-event-codes.h.
const (
	keyLeftCtrl   = 29
	keyLeftShift  = 42
	keyRightShift = 54
	keyLeftAlt    = 56
	keyRightCtrl  = 97
	keyRightAlt   = 100
	keyLeftMeta   = 125
	keyRightMeta  = 126

	btnMouseFirst = 0x110 // BTN_LEFT
	btnMouseLast  = 0x117 // BTN_TASK
)

func isModifierCode(code uint16) bool {
	switch code {
	case keyLeftCtrl, keyLeftShift, keyRightShift, keyLeftAlt,
		keyRightCtrl, keyRightAlt, keyLeftMeta, keyRightMeta:
		return true
	}
	return false
}

func isMouseButtonCode(code uint16) bool {
	return code >= btnMouseFirst && code <= btnMouseLast
}

// evdevKeyTable maps KEY_* codes to symbolic keys.
var evdevKeyTable = map[uint16]hotkey.Key{
	1: hotkey.KeyEscape,
	2: "1", 3: "2", 4: "3", 5: "4", 6: "5",
	7: "6", 8: "7", 9: "8", 10: "9", 11: "0",
	12: "-", 13: "=",
	14: hotkey.KeyBackspace,
	15: hotkey.KeyTab,
	16: "q", 17: "w", 18: "e", 19: "r", 20: "t", 21: "y",
	22: "u", 23: "i", 24: "o", 25: "p", 26: "[", 27: "]",
	28: hotkey.KeyReturn,
	30: "a", 31: "s", 32: "d", 33: "f", 34: "g", 35: "h",
	36: "j", 37: "k", 38: "l", 39: ";", 40: "'", 41: "`",
	43: "\\",
	44: "z", 45: "x", 46: "c", 47: "v", 48: "b", 49: "n",
	50: "m", 51: ",", 52: ".", 53: "/",
	57: hotkey.KeySpace,
	59: "f1", 60: "f2", 61: "f3", 62: "f4", 63: "f5", 64: "f6",
	65: "f7", 66: "f8", 67: "f9", 68: "f10", 87: "f11", 88: "f12",
	103: hotkey.KeyUp,
	105: hotkey.KeyLeft,
	106: hotkey.KeyRight,
	108: hotkey.KeyDown,
	111: hotkey.KeyDelete,
	183: "f13", 184: "f14", 185: "f15", 186: "f16",
	187: "f17", 188: "f18", 189: "f19", 190: "f20",
}

// keyFromEvdevCode maps an evdev key code to its symbolic key, or KeyNone
// for keys the trigger layer does not track.
func keyFromEvdevCode(code uint16) hotkey.Key {
	return evdevKeyTable[code]
}
