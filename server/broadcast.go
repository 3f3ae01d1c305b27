package server

import (
	"errors"

	"posrelay/protocol"
	"posrelay/transport"
)

// AnnouncePosition 向活动集合中的每个会话发送一条 UPDATE；includeSender 为 false 时跳过发送者
func (h *Hub) AnnouncePosition(sender protocol.PlayerID, pos protocol.Position, includeSender bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	defer h.reap()
	return h.announcePosition(sender, pos, includeSender)
}

// AnnounceRemove 向活动集合中的每个会话发送一条 REMOVE
func (h *Hub) AnnounceRemove(id protocol.PlayerID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	defer h.reap()
	return h.announceRemove(id)
}

func (h *Hub) announcePosition(sender protocol.PlayerID, pos protocol.Position, includeSender bool) int {
	skip := sender
	if includeSender {
		skip = ""
	}
	return h.fanout(protocol.Update{ID: sender, Pos: pos}, skip)
}

func (h *Hub) announceRemove(id protocol.PlayerID) int {
	return h.fanout(protocol.Remove{ID: id}, "")
}

// fanout 调用方须持有 mu；返回成功入队的接收者数
// 单个接收者失败只记录，不影响其他接收者；队列堵死的会话留给 reap 处理
func (h *Hub) fanout(msg protocol.ServerMessage, skip protocol.PlayerID) int {
	h.metrics.IncBroadcasts()
	n := 0
	for id, s := range h.sessions {
		if id == skip {
			continue
		}
		if h.deliver(s, msg) {
			n++
		}
	}
	return n
}

// deliver UPDATE 按玩家合并，只保留最新位置；REMOVE 必须送达
func (h *Hub) deliver(s *Session, msg protocol.ServerMessage) bool {
	var (
		overflowed bool
		err        error
	)
	switch m := msg.(type) {
	case protocol.Update:
		overflowed, err = s.out.EnqueueLatest(string(m.ID), protocol.EncodeServer(m))
	default:
		overflowed, err = s.out.Enqueue(protocol.EncodeServer(m))
	}
	if overflowed {
		h.metrics.IncQueueOverflows()
		h.log.Debugf("player %s: stale position update replaced", s.ID)
	}
	if err != nil {
		h.metrics.IncDeliveryFailures()
		switch {
		case errors.Is(err, transport.ErrQueueFull):
			h.log.Warnf("deliver to player %s: %v, closing session", s.ID, err)
			h.stalled = append(h.stalled, s)
		case errors.Is(err, transport.ErrOutboxClosed):
			h.log.Debugf("deliver to player %s: %v", s.ID, err)
		default:
			h.log.Warnf("deliver to player %s: %v", s.ID, err)
		}
		return false
	}
	return true
}

// reap 关闭发送队列堵死的会话（其镜像已无法保证一致）；调用方须持有 mu
// 关闭时广播的 REMOVE 可能再堵死其他会话，循环直到清空
func (h *Hub) reap() {
	for len(h.stalled) > 0 {
		s := h.stalled[0]
		h.stalled = h.stalled[1:]
		if h.sessions[s.ID] == s {
			h.close(s, "send queue full")
		}
	}
	h.stalled = nil
}
