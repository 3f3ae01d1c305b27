package server

import (
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"posrelay/protocol"
	"posrelay/transport"
)

// Hub 会话管理器：唯一持有玩家位置表与活动会话集合
// 所有读改写都在 mu 下串行执行，广播也在持锁期间入队
type Hub struct {
	log     *zap.SugaredLogger
	metrics *HubMetrics
	echo    atomic.Bool

	mu       sync.Mutex
	players  map[protocol.PlayerID]protocol.Position // 玩家位置表：已加入且未离开的玩家
	sessions map[protocol.PlayerID]*Session          // 活动会话集合：从接受连接到关闭
	stalled  []*Session                              // 本轮广播中发送队列堵死、待关闭的会话
}

// NewHub 创建会话管理器
func NewHub(cfg Config, log *zap.SugaredLogger) *Hub {
	h := &Hub{
		log:      log,
		metrics:  &HubMetrics{},
		players:  make(map[protocol.PlayerID]protocol.Position),
		sessions: make(map[protocol.PlayerID]*Session),
	}
	h.echo.Store(cfg.EchoToSender)
	return h
}

func (h *Hub) Metrics() *HubMetrics { return h.metrics }

// SetEchoToSender 运行期切换是否回显给发送者
func (h *Hub) SetEchoToSender(v bool) { h.echo.Store(v) }

func (h *Hub) EchoToSender() bool { return h.echo.Load() }

// Dispatch 处理传输层事件，实现 transport.Handler
func (h *Hub) Dispatch(ev transport.Event) {
	switch ev := ev.(type) {
	case transport.Accepted:
		h.accept(ev)
	case transport.Received:
		h.receive(ev)
	case transport.Terminated:
		h.terminate(ev)
	default:
		h.log.Warnf("unexpected transport event %T", ev)
	}
}

func (h *Hub) accept(ev transport.Accepted) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[ev.ID]; ok {
		// 关闭新连接的发送端；传输层看到 Outbox 已关闭就不会为它读取消息，
		// 因此后续同 ID 的事件只可能来自已有会话
		h.log.Errorf("duplicate session id %s from %s, closing new connection", ev.ID, ev.Remote)
		ev.Outbox.Close()
		return
	}
	id := ev.ID
	ev.Outbox.OnError(func(err error) {
		h.metrics.IncDeliveryFailures()
		h.log.Warnf("write to player %s failed: %v", id, err)
	})
	h.sessions[id] = &Session{ID: id, Remote: ev.Remote, State: StateConnecting, out: ev.Outbox}
	h.metrics.IncAccepted()
	h.log.Infof("session %s accepted from %s", id, ev.Remote)
}

func (h *Hub) receive(ev transport.Received) {
	msg, err := protocol.DecodeClient(ev.Payload)

	h.mu.Lock()
	defer h.mu.Unlock()
	defer h.reap()
	s, ok := h.sessions[ev.ID]
	if !ok {
		// 已关闭或未知的会话，后续事件一律忽略
		return
	}
	if err != nil {
		h.metrics.IncMalformed()
		h.log.Debugf("player %s: dropping message: %v", ev.ID, err)
		return
	}
	switch m := msg.(type) {
	case protocol.Join:
		h.join(s, m.Pos)
	case protocol.Move:
		h.move(s, m.Pos)
	case protocol.Leave:
		h.metrics.IncLeaves()
		h.close(s, "leave")
	}
}

func (h *Hub) terminate(ev transport.Terminated) {
	h.mu.Lock()
	defer h.mu.Unlock()
	defer h.reap()
	s, ok := h.sessions[ev.ID]
	if !ok {
		return
	}
	h.metrics.IncTerminations()
	if ev.Err != nil {
		h.log.Infof("player %s connection lost: %v", ev.ID, ev.Err)
	}
	h.close(s, "terminated")
}

// join Connecting → Joined：写入位置表，补发现有玩家快照，再通知其他人
func (h *Hub) join(s *Session, pos protocol.Position) {
	if s.State != StateConnecting {
		h.metrics.IncUnknownSession()
		h.log.Debugf("player %s: duplicate join ignored", s.ID)
		return
	}
	s.State = StateJoined
	h.players[s.ID] = pos
	h.metrics.IncJoins()
	h.log.Infof("player %s joined at %s", s.ID, pos)

	ids := make([]protocol.PlayerID, 0, len(h.players))
	for id := range h.players {
		if id != s.ID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		h.deliver(s, protocol.Update{ID: id, Pos: h.players[id]})
	}

	h.announcePosition(s.ID, pos, h.echo.Load())
}

// move 仅对已加入的会话生效；加入前的移动按未知会话丢弃
func (h *Hub) move(s *Session, pos protocol.Position) {
	if s.State != StateJoined {
		h.metrics.IncUnknownSession()
		h.log.Debugf("player %s: move before join dropped", s.ID)
		return
	}
	h.players[s.ID] = pos
	h.metrics.IncMoves()
	h.announcePosition(s.ID, pos, h.echo.Load())
}

// close → Closed：移出活动集合与位置表；只有加入过的玩家才广播 REMOVE
func (h *Hub) close(s *Session, reason string) {
	delete(h.sessions, s.ID)
	s.State = StateClosed
	_, joined := h.players[s.ID]
	delete(h.players, s.ID)
	if joined {
		h.announceRemove(s.ID)
	}
	s.out.Close()
	h.log.Infof("player %s closed (%s)", s.ID, reason)
}

// Players 返回位置表的副本，供管理接口与测试读取
func (h *Hub) Players() map[protocol.PlayerID]protocol.Position {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[protocol.PlayerID]protocol.Position, len(h.players))
	for id, pos := range h.players {
		out[id] = pos
	}
	return out
}

// SessionCount 活动会话数（含尚未加入的连接）
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// State 返回会话状态；不在活动集合中即视为 Closed
func (h *Hub) State(id protocol.PlayerID) SessionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[id]; ok {
		return s.State
	}
	return StateClosed
}

// Shutdown 关闭所有会话的发送端（进程退出时调用）
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sessions {
		s.out.Close()
	}
}
