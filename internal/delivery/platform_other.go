//go:build !linux && !windows && (!darwin || !cgo)

package delivery

import "fmt"

var errPlatformUnsupported = fmt.Errorf("text delivery not supported on this platform")

type nullPasteboard struct{}

// NewPlatformPasteboard returns a pasteboard that fails every call.
func NewPlatformPasteboard() Pasteboard { return nullPasteboard{} }

func (nullPasteboard) ChangeCount() int64           { return 0 }
func (nullPasteboard) Snapshot() (*Snapshot, error) { return nil, errPlatformUnsupported }
func (nullPasteboard) Restore(*Snapshot) error      { return errPlatformUnsupported }
func (nullPasteboard) WriteText(string) error       { return errPlatformUnsupported }
func (nullPasteboard) ReadText() (string, error)    { return "", errPlatformUnsupported }

type nullSynthesizer struct{}

// NewPlatformSynthesizer returns a synthesizer that fails every call.
func NewPlatformSynthesizer() Synthesizer { return nullSynthesizer{} }

func (nullSynthesizer) PasteShortcut() error  { return errPlatformUnsupported }
func (nullSynthesizer) MenuPaste() error      { return errPlatformUnsupported }
func (nullSynthesizer) TypeText(string) error { return errPlatformUnsupported }

type nullAccessibility struct{}

// NewPlatformAccessibility returns an accessibility bridge that reports
// every element as unsupported.
func NewPlatformAccessibility() Accessibility { return nullAccessibility{} }

func (nullAccessibility) FocusedElement() (Element, error) { return Element{}, ErrElementUnsupported }
func (nullAccessibility) SetFocusedValue(string, int) error {
	return ErrElementUnsupported
}
