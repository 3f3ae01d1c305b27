package server

import (
	"sync/atomic"
)

// HubMetrics 记录中继运行期的关键指标（用于监控与调试）
type HubMetrics struct {
	SessionsAccepted int64 // 接受的连接数
	Joins            int64 // 成功加入的玩家数
	Moves            int64 // 处理的移动消息数
	Leaves           int64 // 主动离开（Disconnected）
	Terminations     int64 // 连接中断导致的离开
	Malformed        int64 // 无法解析而被丢弃的消息
	UnknownSession   int64 // 未加入就移动、重复加入等被丢弃的消息
	Broadcasts       int64 // 广播次数（UPDATE + REMOVE）
	DeliveryFailures int64 // 向单个接收者投递失败
	QueueOverflows   int64 // 发送队列积压而被替换或淘汰的旧位置更新
}

func (m *HubMetrics) IncAccepted() { atomic.AddInt64(&m.SessionsAccepted, 1) }
func (m *HubMetrics) IncJoins() { atomic.AddInt64(&m.Joins, 1) }
func (m *HubMetrics) IncMoves() { atomic.AddInt64(&m.Moves, 1) }
func (m *HubMetrics) IncLeaves() { atomic.AddInt64(&m.Leaves, 1) }
func (m *HubMetrics) IncTerminations() { atomic.AddInt64(&m.Terminations, 1) }
func (m *HubMetrics) IncMalformed() { atomic.AddInt64(&m.Malformed, 1) }
func (m *HubMetrics) IncUnknownSession() { atomic.AddInt64(&m.UnknownSession, 1) }
func (m *HubMetrics) IncBroadcasts() { atomic.AddInt64(&m.Broadcasts, 1) }
func (m *HubMetrics) IncDeliveryFailures() { atomic.AddInt64(&m.DeliveryFailures, 1) }
func (m *HubMetrics) IncQueueOverflows() { atomic.AddInt64(&m.QueueOverflows, 1) }

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *HubMetrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"sessions_accepted": atomic.LoadInt64(&m.SessionsAccepted),
		"joins":             atomic.LoadInt64(&m.Joins),
		"moves":             atomic.LoadInt64(&m.Moves),
		"leaves":            atomic.LoadInt64(&m.Leaves),
		"terminations":      atomic.LoadInt64(&m.Terminations),
		"malformed":         atomic.LoadInt64(&m.Malformed),
		"unknown_session":   atomic.LoadInt64(&m.UnknownSession),
		"broadcasts":        atomic.LoadInt64(&m.Broadcasts),
		"delivery_failures": atomic.LoadInt64(&m.DeliveryFailures),
		"queue_overflows":   atomic.LoadInt64(&m.QueueOverflows),
	}
}
