package transport

import "posrelay/protocol"

// Event 传输层事件（封闭集合：Accepted / Received / Terminated），由会话管理器穷举处理
type Event interface {
	PlayerID() protocol.PlayerID
	event()
}

// Accepted 新连接已建立，会话流已就绪
type Accepted struct {
	ID     protocol.PlayerID
	Remote string
	Outbox *Outbox
}

// Received 会话流上收到一条完整消息
type Received struct {
	ID      protocol.PlayerID
	Payload []byte
}

// Terminated 连接结束；Err 为 nil 表示对端正常关闭
type Terminated struct {
	ID  protocol.PlayerID
	Err error
}

func (e Accepted) PlayerID() protocol.PlayerID   { return e.ID }
func (e Received) PlayerID() protocol.PlayerID   { return e.ID }
func (e Terminated) PlayerID() protocol.PlayerID { return e.ID }

func (Accepted) event()   {}
func (Received) event()   {}
func (Terminated) event() {}

// Handler 连接网络层与会话逻辑的接口
type Handler interface {
	Dispatch(Event)
}
