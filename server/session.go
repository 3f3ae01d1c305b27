package server

import (
	"posrelay/protocol"
	"posrelay/transport"
)

// SessionState 单个连接的生命周期：Connecting → Joined → Closed
type SessionState int

const (
	StateConnecting SessionState = iota
	StateJoined
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session 服务端视角的一个连接
type Session struct {
	ID     protocol.PlayerID
	Remote string
	State  SessionState

	out *transport.Outbox
}
