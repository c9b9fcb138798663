package realtime

import (
	"crypto/subtle"
	"strings"

	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/pkg/apperror"
)

// Role is what a connection has registered as.
type Role int

const (
	RoleUnregistered Role = iota
	RoleScanner
	RoleDashboard
)

func (r Role) String() string {
	switch r {
	case RoleScanner:
		return "scanner"
	case RoleDashboard:
		return "dashboard"
	}
	return "unregistered"
}

// Group is a broadcast group.
type Group int

const (
	GroupScanners Group = iota + 1
	GroupDashboards
)

// SessionState is the per-connection state owned by its read loop.
type SessionState struct {
	Role     Role
	Identity *domain.Identity // attached at upgrade time, nil for devices
}

// InboundKind enumerates the frames a client may send.
type InboundKind int

const (
	InboundUnknown InboundKind = iota
	InboundMalformed
	InboundDeviceRegister
	InboundDashboardRegister
	InboundTap
	InboundScanMode
)

// Inbound is one decoded client frame.
type Inbound struct {
	Kind      InboundKind
	Type      string // raw type, for logging
	DeviceKey string
	UID       string
	Enabled   bool
	Err       error // decode failure for InboundMalformed
}

// Policy holds the settings Transition decides with.
type Policy struct {
	DeviceKey string
}

// CommandKind enumerates the effects Transition can ask for.
type CommandKind int

const (
	CmdIgnore CommandKind = iota
	CmdJoin
	CmdReply
	CmdPushDeviceStatus // to the session itself
	CmdBroadcastDeviceStatus
	CmdResolveTap
	CmdSetScanMode
)

// Command is one effect for the dispatcher to execute.
type Command struct {
	Kind    CommandKind
	Group   Group
	Reply   Envelope
	UID     string
	Enabled bool
	Reason  string // why a frame was ignored
}

// Transition decides what a frame does to a session. It performs no I/O.
func Transition(state SessionState, in Inbound, policy Policy) (SessionState, []Command) {
	switch in.Kind {
	case InboundMalformed:
		return state, ignore("malformed frame")
	case InboundUnknown:
		return state, ignore("unknown message type")

	case InboundDeviceRegister:
		switch state.Role {
		case RoleDashboard:
			return state, ignore("dashboard cannot register as device")
		case RoleScanner:
			return state, []Command{reply(Envelope{Type: TypeDeviceRegistered, Data: registeredData{Success: true}})}
		}
		if !deviceKeyMatches(in.DeviceKey, policy.DeviceKey) {
			return state, []Command{
				reply(Envelope{Type: TypeDeviceRegistered, Data: registeredData{Success: false}}),
				{Kind: CmdIgnore, Reason: "device key rejected"},
			}
		}
		state.Role = RoleScanner
		return state, []Command{
			{Kind: CmdJoin, Group: GroupScanners},
			reply(Envelope{Type: TypeDeviceRegistered, Data: registeredData{Success: true}}),
			{Kind: CmdBroadcastDeviceStatus},
		}

	case InboundDashboardRegister:
		switch state.Role {
		case RoleScanner:
			return state, ignore("device cannot register as dashboard")
		case RoleDashboard:
			return state, []Command{{Kind: CmdPushDeviceStatus}}
		}
		if state.Identity == nil {
			return state, []Command{reply(errorFrame(apperror.CodeUnauthorized, "Authentication required"))}
		}
		if !state.Identity.IsConductor() {
			return state, []Command{reply(errorFrame(apperror.CodeForbidden, "Conductor role required"))}
		}
		state.Role = RoleDashboard
		return state, []Command{
			{Kind: CmdJoin, Group: GroupDashboards},
			{Kind: CmdPushDeviceStatus},
		}

	case InboundTap:
		if state.Role != RoleScanner {
			return state, ignore("tap from unregistered connection")
		}
		uid := strings.TrimSpace(in.UID)
		if uid == "" {
			return state, []Command{reply(tapResult(domain.TapStatusInvalidCard))}
		}
		return state, []Command{{Kind: CmdResolveTap, UID: uid}}

	case InboundScanMode:
		if state.Role != RoleDashboard {
			return state, ignore("scan mode from non-dashboard connection")
		}
		return state, []Command{{Kind: CmdSetScanMode, Enabled: in.Enabled}}
	}
	return state, ignore("unhandled frame")
}

func ignore(reason string) []Command {
	return []Command{{Kind: CmdIgnore, Reason: reason}}
}

func reply(env Envelope) Command {
	return Command{Kind: CmdReply, Reply: env}
}

func deviceKeyMatches(presented, configured string) bool {
	if configured == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}

// parseInbound decodes a frame into an Inbound event.
func parseInbound(c codec, frame []byte) Inbound {
	msgType, data, err := c.decode(frame)
	if err != nil {
		return Inbound{Kind: InboundMalformed, Err: err}
	}

	in := Inbound{Type: msgType}
	switch msgType {
	case TypeDeviceRegister:
		var d deviceRegisterData
		err = c.unmarshal(data, &d)
		in.Kind, in.DeviceKey = InboundDeviceRegister, d.DeviceKey
	case TypeDashboardRegister:
		in.Kind = InboundDashboardRegister
	case TypeTap:
		var d tapData
		err = c.unmarshal(data, &d)
		in.Kind, in.UID = InboundTap, d.UID
	case TypeScanMode:
		var d scanModeData
		err = c.unmarshal(data, &d)
		in.Kind, in.Enabled = InboundScanMode, d.Enabled
	default:
		in.Kind = InboundUnknown
	}
	if err != nil {
		return Inbound{Kind: InboundMalformed, Type: msgType, Err: err}
	}
	return in
}
