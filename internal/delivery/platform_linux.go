package delivery

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// linuxPasteboard shells out to the session's clipboard tool. Wayland
// sessions get wl-copy/wl-paste, X11 sessions xclip then xsel. There is
// no native change counter on either display server, so one is emulated
// by hashing the current contents on each call.
type linuxPasteboard struct {
	mu        sync.Mutex
	lastHash  string
	counter   int64
	copyCmd   []string
	pasteCmd  []string
	available bool
}

// NewPlatformPasteboard probes for a clipboard tool and returns the
// Linux pasteboard.
func NewPlatformPasteboard() Pasteboard {
	pb := &linuxPasteboard{}
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		if _, err := exec.LookPath("wl-copy"); err == nil {
			pb.copyCmd = []string{"wl-copy"}
			pb.pasteCmd = []string{"wl-paste", "--no-newline"}
			pb.available = true
			return pb
		}
	}
	if _, err := exec.LookPath("xclip"); err == nil {
		pb.copyCmd = []string{"xclip", "-selection", "clipboard", "-in"}
		pb.pasteCmd = []string{"xclip", "-selection", "clipboard", "-out"}
		pb.available = true
		return pb
	}
	if _, err := exec.LookPath("xsel"); err == nil {
		pb.copyCmd = []string{"xsel", "--clipboard", "--input"}
		pb.pasteCmd = []string{"xsel", "--clipboard", "--output"}
		pb.available = true
	}
	return pb
}

func (p *linuxPasteboard) run(args []string, stdin string) (string, error) {
	if !p.available {
		return "", fmt.Errorf("no clipboard tool found (install wl-clipboard, xclip or xsel)")
	}
	cmd := exec.Command(args[0], args[1:]...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", args[0], err)
	}
	return out.String(), nil
}

func (p *linuxPasteboard) ChangeCount() int64 {
	text, err := p.run(p.pasteCmd, "")
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil && text != p.lastHash {
		p.lastHash = text
		p.counter++
	}
	return p.counter
}

func (p *linuxPasteboard) Snapshot() (*Snapshot, error) {
	text, err := p.run(p.pasteCmd, "")
	snap := &Snapshot{ChangeCount: p.ChangeCount()}
	if err == nil && text != "" {
		snap.Representations = append(snap.Representations, Representation{
			Type: TypeText,
			Data: []byte(text),
		})
	}
	return snap, nil
}

func (p *linuxPasteboard) Restore(snap *Snapshot) error {
	text, _ := snap.Text()
	return p.WriteText(text)
}

func (p *linuxPasteboard) WriteText(text string) error {
	if _, err := p.run(p.copyCmd, text); err != nil {
		return err
	}
	p.mu.Lock()
	p.lastHash = text
	p.counter++
	p.mu.Unlock()
	return nil
}

func (p *linuxPasteboard) ReadText() (string, error) {
	return p.run(p.pasteCmd, "")
}

// linuxSynthesizer posts keystrokes through xdotool on X11 and wtype on
// Wayland. Both cover the paste shortcut and raw typing; neither exposes
// application menus, so MenuPaste reports unsupported.
type linuxSynthesizer struct {
	tool string
}

// NewPlatformSynthesizer probes for an input synthesis tool.
func NewPlatformSynthesizer() Synthesizer {
	s := &linuxSynthesizer{}
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		if _, err := exec.LookPath("wtype"); err == nil {
			s.tool = "wtype"
			return s
		}
	}
	if _, err := exec.LookPath("xdotool"); err == nil {
		s.tool = "xdotool"
	}
	return s
}

func (s *linuxSynthesizer) PasteShortcut() error {
	switch s.tool {
	case "xdotool":
		return exec.Command("xdotool", "key", "--clearmodifiers", "ctrl+v").Run()
	case "wtype":
		return exec.Command("wtype", "-M", "ctrl", "-k", "v", "-m", "ctrl").Run()
	}
	return fmt.Errorf("no input synthesis tool found (install xdotool or wtype)")
}

func (s *linuxSynthesizer) MenuPaste() error {
	return fmt.Errorf("menu paste not supported on this platform")
}

func (s *linuxSynthesizer) TypeText(text string) error {
	switch s.tool {
	case "xdotool":
		return exec.Command("xdotool", "type", "--clearmodifiers", "--delay", "5", "--", text).Run()
	case "wtype":
		return exec.Command("wtype", "--", text).Run()
	}
	return fmt.Errorf("no input synthesis tool found (install xdotool or wtype)")
}
