package delivery

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	atspiRegistryService = "org.a11y.atspi.Registry"
	atspiRootPath        = "/org/a11y/atspi/accessible/root"

	atspiAccessibleIface   = "org.a11y.atspi.Accessible"
	atspiTextIface         = "org.a11y.atspi.Text"
	atspiEditableTextIface = "org.a11y.atspi.EditableText"

	// AT-SPI StateType bit positions.
	atspiStateEditable = 7
	atspiStateFocused  = 12

	// Bounds for the focused-element scan. Desktop trees can be huge;
	// anything past these limits is treated as not found.
	atspiMaxDepth = 12
	atspiMaxNodes = 4000
)

// atspiAccessibility resolves the focused text element over the AT-SPI
// accessibility bus. The bus address comes from the session bus; the
// accessibility daemon runs its own private bus.
type atspiAccessibility struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

// NewPlatformAccessibility returns the AT-SPI accessibility bridge.
func NewPlatformAccessibility() Accessibility {
	return &atspiAccessibility{}
}

func (a *atspiAccessibility) bus() (*dbus.Conn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return a.conn, nil
	}
	session, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}
	var address string
	obj := session.Object("org.a11y.Bus", "/org/a11y/bus")
	if err := obj.Call("org.a11y.Bus.GetAddress", 0).Store(&address); err != nil {
		return nil, fmt.Errorf("a11y bus address: %w", err)
	}
	conn, err := dbus.Connect(address)
	if err != nil {
		return nil, fmt.Errorf("a11y bus connect: %w", err)
	}
	a.conn = conn
	return conn, nil
}

type atspiRef struct {
	Service string
	Path    dbus.ObjectPath
}

func (a *atspiAccessibility) children(conn *dbus.Conn, ref atspiRef) ([]atspiRef, error) {
	obj := conn.Object(ref.Service, ref.Path)
	var raw [][]interface{}
	if err := obj.Call(atspiAccessibleIface+".GetChildren", 0).Store(&raw); err != nil {
		return nil, err
	}
	refs := make([]atspiRef, 0, len(raw))
	for _, pair := range raw {
		if len(pair) != 2 {
			continue
		}
		service, ok1 := pair[0].(string)
		path, ok2 := pair[1].(dbus.ObjectPath)
		if !ok1 || !ok2 {
			continue
		}
		refs = append(refs, atspiRef{Service: service, Path: path})
	}
	return refs, nil
}

func (a *atspiAccessibility) state(conn *dbus.Conn, ref atspiRef) (uint64, error) {
	obj := conn.Object(ref.Service, ref.Path)
	var words []uint32
	if err := obj.Call(atspiAccessibleIface+".GetState", 0).Store(&words); err != nil {
		return 0, err
	}
	var state uint64
	for i, w := range words {
		state |= uint64(w) << (32 * i)
	}
	return state, nil
}

func hasState(state uint64, bit int) bool {
	return state&(1<<uint(bit)) != 0
}

// findFocused walks the desktop tree breadth-first for an element with
// the FOCUSED state. Applications publish exactly one focused element,
// so the first hit wins.
func (a *atspiAccessibility) findFocused(conn *dbus.Conn) (atspiRef, error) {
	root := atspiRef{Service: atspiRegistryService, Path: atspiRootPath}
	queue := []atspiRef{root}
	depth := map[atspiRef]int{root: 0}
	visited := 0
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		visited++
		if visited > atspiMaxNodes {
			break
		}
		if ref != root {
			state, err := a.state(conn, ref)
			if err == nil && hasState(state, atspiStateFocused) {
				return ref, nil
			}
		}
		if depth[ref] >= atspiMaxDepth {
			continue
		}
		kids, err := a.children(conn, ref)
		if err != nil {
			continue
		}
		for _, kid := range kids {
			depth[kid] = depth[ref] + 1
			queue = append(queue, kid)
		}
	}
	return atspiRef{}, ErrElementUnsupported
}

func (a *atspiAccessibility) FocusedElement() (Element, error) {
	conn, err := a.bus()
	if err != nil {
		return Element{}, err
	}
	ref, err := a.findFocused(conn)
	if err != nil {
		return Element{}, err
	}
	obj := conn.Object(ref.Service, ref.Path)

	var el Element
	var role string
	if err := obj.Call(atspiAccessibleIface+".GetRoleName", 0).Store(&role); err == nil {
		el.Role = role
	}
	state, err := a.state(conn, ref)
	if err != nil {
		return Element{}, err
	}
	el.Editable = hasState(state, atspiStateEditable)

	var count int32
	if err := obj.StoreProperty(atspiTextIface+".CharacterCount", &count); err != nil {
		return Element{}, ErrElementUnsupported
	}
	var value string
	if err := obj.Call(atspiTextIface+".GetText", 0, int32(0), count).Store(&value); err != nil {
		return Element{}, ErrElementUnsupported
	}
	el.Value = value

	var caret int32
	if err := obj.StoreProperty(atspiTextIface+".CaretOffset", &caret); err == nil && caret >= 0 {
		el.SelectionStart = int(caret)
		el.SelectionEnd = int(caret)
	} else {
		el.SelectionStart = len(value)
		el.SelectionEnd = len(value)
	}
	// Selections override the bare caret offset.
	var nSel int32
	if err := obj.Call(atspiTextIface+".GetNSelections", 0).Store(&nSel); err == nil && nSel > 0 {
		var start, end int32
		if err := obj.Call(atspiTextIface+".GetSelection", 0, int32(0)).Store(&start, &end); err == nil {
			el.SelectionStart = int(start)
			el.SelectionEnd = int(end)
		}
	}
	return el, nil
}

func (a *atspiAccessibility) SetFocusedValue(value string, caret int) error {
	conn, err := a.bus()
	if err != nil {
		return err
	}
	ref, err := a.findFocused(conn)
	if err != nil {
		return err
	}
	obj := conn.Object(ref.Service, ref.Path)

	var ok bool
	if err := obj.Call(atspiEditableTextIface+".SetTextContents", 0, value).Store(&ok); err != nil {
		return fmt.Errorf("set text contents: %w", err)
	}
	if !ok {
		return ErrElementUnsupported
	}
	obj.Call(atspiTextIface+".SetCaretOffset", 0, int32(caret))
	return nil
}
