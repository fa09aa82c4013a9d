package main

import (
	"encoding/json"
	"fmt"
	"time"

	"voxd/internal/ipc"
)

// printEvent renders one daemon event as a human-readable line.
func printEvent(event *ipc.Event) {
	ts := event.Timestamp.Format("15:04:05")

	switch event.Type {
	case ipc.EventSessionStarted:
		fmt.Printf("[%s] recording started\n", ts)
	case ipc.EventSessionLocked:
		fmt.Printf("[%s] recording locked (double tap)\n", ts)
	case ipc.EventSessionStopped:
		se := sessionData(event)
		fmt.Printf("[%s] recording stopped (%s)\n", ts, se.Duration.Round(time.Millisecond))
	case ipc.EventSessionDiscarded:
		fmt.Printf("[%s] recording discarded (below minimum hold)\n", ts)
	case ipc.EventSessionCancelled:
		fmt.Printf("[%s] recording cancelled\n", ts)
	case ipc.EventDelivered:
		se := sessionData(event)
		fmt.Printf("[%s] delivered %d chars via %s\n", ts, se.Chars, se.Strategy)
	case ipc.EventDeliveryFailed:
		se := sessionData(event)
		fmt.Printf("[%s] delivery failed: %s\n", ts, se.Error)
	case ipc.EventPermissionChange:
		var pe ipc.PermissionEvent
		decodeData(event, &pe)
		if pe.Granted {
			fmt.Printf("[%s] input monitoring granted\n", ts)
		} else {
			fmt.Printf("[%s] input monitoring revoked (%s)\n", ts, pe.Reason)
		}
	case ipc.EventConfigChanged:
		fmt.Printf("[%s] configuration reloaded\n", ts)
	case ipc.EventDaemonShutdown:
		fmt.Printf("[%s] daemon shutting down\n", ts)
	default:
		fmt.Printf("[%s] %s\n", ts, eventTypeName(event.Type))
	}
}

func printEventJSON(event *ipc.Event) {
	data, _ := json.MarshalIndent(event, "", "  ")
	fmt.Printf("%s\n\n", data)
}

func sessionData(event *ipc.Event) ipc.SessionEvent {
	var se ipc.SessionEvent
	decodeData(event, &se)
	return se
}

// decodeData recovers a typed payload from the event's generic Data
// field, which arrives as map[string]interface{} after JSON transport.
func decodeData(event *ipc.Event, v any) {
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return
	}
	json.Unmarshal(raw, v)
}

// eventTypeName returns a human-readable event type name.
func eventTypeName(et ipc.EventType) string {
	switch et {
	case ipc.EventSessionStarted:
		return "SessionStarted"
	case ipc.EventSessionLocked:
		return "SessionLocked"
	case ipc.EventSessionStopped:
		return "SessionStopped"
	case ipc.EventSessionDiscarded:
		return "SessionDiscarded"
	case ipc.EventSessionCancelled:
		return "SessionCancelled"
	case ipc.EventDelivered:
		return "Delivered"
	case ipc.EventDeliveryFailed:
		return "DeliveryFailed"
	case ipc.EventPermissionChange:
		return "PermissionChange"
	case ipc.EventConfigChanged:
		return "ConfigChanged"
	case ipc.EventDaemonShutdown:
		return "DaemonShutdown"
	default:
		return fmt.Sprintf("Unknown(%d)", et)
	}
}
