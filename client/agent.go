package client

import (
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"posrelay/protocol"
	"posrelay/transport"
)

// Outbound 发送端（通常是 transport.Outbox）；入队不阻塞
// EnqueueLatest 入队的消息在积压时只保留同 key 的最新一条
type Outbound interface {
	Enqueue(msg []byte) (overflowed bool, err error)
	EnqueueLatest(key string, msg []byte) (overflowed bool, err error)
	Close()
}

// selfKey 本地位置更新的合并键
const selfKey = "self"

// FrameSource 入站消息来源（通常是 transport.ClientStream）
type FrameSource interface {
	ReadFrames(fn func([]byte)) error
}

var ErrNotStarted = errors.New("client: agent not started")

// Agent 客户端同步代理
// 本地位置只由本地输入修改；其他玩家的位置镜像只由入站广播修改
type Agent struct {
	out Outbound
	log *zap.SugaredLogger

	mu      sync.RWMutex
	self    protocol.PlayerID
	pos     protocol.Position
	others  map[protocol.PlayerID]protocol.Position
	started bool
	stopped bool

	malformed atomic.Int64
}

func NewAgent(out Outbound, initial protocol.Position, log *zap.SugaredLogger) *Agent {
	return &Agent{
		out:    out,
		log:    log,
		pos:    initial,
		others: make(map[protocol.PlayerID]protocol.Position),
	}
}

// SetSelf 已知自己的 PlayerID 时设置，之后针对自己的 UPDATE 会被忽略
func (a *Agent) SetSelf(id protocol.PlayerID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.self = id
	delete(a.others, id)
}

// Start 发送一次 "Connected"（携带初始位置），必须先于任何移动消息
func (a *Agent) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	a.started = true
	return a.send(protocol.Join{Pos: a.pos})
}

// Move 应用一次本地输入；只有净位移非零时才发送 "moved to"
func (a *Agent) Move(dx, dy int) (bool, error) {
	if dx == 0 && dy == 0 {
		return false, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started || a.stopped {
		return false, ErrNotStarted
	}
	a.pos = a.pos.Add(dx, dy)
	return true, a.send(protocol.Move{Pos: a.pos})
}

// Shutdown 先发送 "Disconnected" 再关闭发送端；可重复调用
func (a *Agent) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return nil
	}
	a.stopped = true
	var err error
	if a.started {
		err = a.send(protocol.Leave{})
	}
	a.out.Close()
	return err
}

// send 调用方须持有 mu，保证消息按本地顺序入队
// 积压的 "moved to" 合并为最新位置，"Connected" / "Disconnected" 不会被丢弃
func (a *Agent) send(m protocol.ClientMessage) error {
	var (
		overflowed bool
		err        error
	)
	if _, ok := m.(protocol.Move); ok {
		overflowed, err = a.out.EnqueueLatest(selfKey, protocol.EncodeClient(m))
	} else {
		overflowed, err = a.out.Enqueue(protocol.EncodeClient(m))
	}
	if overflowed {
		a.log.Debugf("send queue backlog, stale move replaced")
	}
	return err
}

// Handle 处理一条入站广播；非法消息计数后丢弃
func (a *Agent) Handle(raw []byte) {
	msg, err := protocol.DecodeServer(raw)
	if err != nil {
		a.malformed.Add(1)
		a.log.Debugf("dropping server message: %v", err)
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	switch m := msg.(type) {
	case protocol.Update:
		if a.self != "" && m.ID == a.self {
			return
		}
		a.others[m.ID] = m.Pos
	case protocol.Remove:
		delete(a.others, m.ID)
	}
}

// Consume 入站循环，阻塞直到流结束
func (a *Agent) Consume(src FrameSource) error {
	return src.ReadFrames(a.Handle)
}

// Position 本地玩家位置（供表现层读取）
func (a *Agent) Position() protocol.Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pos
}

// Others 其他玩家位置的副本（供表现层读取）
func (a *Agent) Others() map[protocol.PlayerID]protocol.Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[protocol.PlayerID]protocol.Position, len(a.others))
	for id, p := range a.others {
		out[id] = p
	}
	return out
}

// Malformed 被丢弃的非法入站消息数
func (a *Agent) Malformed() int64 {
	return a.malformed.Load()
}

var _ Outbound = (*transport.Outbox)(nil)
var _ FrameSource = (*transport.ClientStream)(nil)
