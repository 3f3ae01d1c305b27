package transport

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrOutboxClosed 发送队列已关闭（会话结束或底层写失败）
	ErrOutboxClosed = errors.New("outbox closed")
	// ErrQueueFull 队列已满且没有可替换的位置更新，发送端随之关闭
	ErrQueueFull = errors.New("send queue full")
)

const (
	DefaultQueueSize    = 256
	DefaultWriteTimeout = 5 * time.Second
)

// MessageWriter 把一条完整消息写到底层连接；deadline 之后必须返回
type MessageWriter interface {
	WriteMessage(msg []byte, deadline time.Time) error
	Close() error
}

type queued struct {
	key string // 非空表示可合并/可淘汰的位置更新
	msg []byte
}

// Outbox 单个连接的发送端：有界队列 + 独立写协程，入队永不阻塞
//
// 队列满时只淘汰位置更新（EnqueueLatest 入队的消息），其余消息不会被丢弃
type Outbox struct {
	w       MessageWriter
	timeout time.Duration
	size    int

	mu      sync.Mutex
	queue   []queued
	closed  bool
	stopped bool // 由 Close 关闭：之后的写失败不再上报
	err     error
	onError func(error)

	wake chan struct{}
	done chan struct{}
}

func NewOutbox(w MessageWriter, size int, timeout time.Duration) *Outbox {
	if size < 1 {
		size = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &Outbox{
		w:       w,
		timeout: timeout,
		size:    size,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// OnError 注册写失败回调（每个 Outbox 最多触发一次，Close 之后的失败不触发）
func (o *Outbox) OnError(fn func(error)) {
	o.mu.Lock()
	o.onError = fn
	o.mu.Unlock()
}

// Enqueue 压入一条必须送达的消息（非阻塞）
// 队列满时淘汰最旧的位置更新腾出空间，overflowed 为 true；
// 若队列中没有位置更新可淘汰，发送端关闭并返回 ErrQueueFull
func (o *Outbox) Enqueue(msg []byte) (overflowed bool, err error) {
	return o.push(queued{msg: msg})
}

// EnqueueLatest 压入一条以 key 标识的位置更新（非阻塞）
// 队列中已有同 key 的消息时原地替换，只保留最新值；替换或淘汰旧消息时 overflowed 为 true
func (o *Outbox) EnqueueLatest(key string, msg []byte) (overflowed bool, err error) {
	return o.push(queued{key: key, msg: msg})
}

func (o *Outbox) push(q queued) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false, ErrOutboxClosed
	}
	if q.key != "" {
		for i := range o.queue {
			if o.queue[i].key == q.key {
				o.queue[i].msg = q.msg
				return true, nil
			}
		}
	}
	overflowed := false
	if len(o.queue) >= o.size {
		if !o.evictOldestUpdate() {
			o.shutdown(ErrQueueFull)
			return false, ErrQueueFull
		}
		overflowed = true
	}
	o.queue = append(o.queue, q)
	o.signal()
	return overflowed, nil
}

// evictOldestUpdate 调用方须持有 mu
func (o *Outbox) evictOldestUpdate() bool {
	for i := range o.queue {
		if o.queue[i].key != "" {
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			return true
		}
	}
	return false
}

// shutdown 因错误关闭，丢弃未发送的消息；调用方须持有 mu
func (o *Outbox) shutdown(err error) {
	o.closed = true
	o.err = err
	o.queue = nil
	o.signal()
}

func (o *Outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Len 当前排队中的消息数
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Closed 是否已停止接收新消息
func (o *Outbox) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Err 导致发送端异常关闭的错误；正常关闭为 nil
func (o *Outbox) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Close 停止接收新消息；写协程会先冲刷已排队的消息，再关闭底层写端
// 可重复调用
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		o.stopped = true
		o.signal()
	}
}

// Done 在写协程退出后关闭
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

// Run 写协程主体，阻塞直到 Close 后冲刷完毕或写失败
func (o *Outbox) Run() {
	defer close(o.done)
	defer o.w.Close()
	for {
		msg, ok := o.next()
		if !ok {
			return
		}
		if err := o.w.WriteMessage(msg, time.Now().Add(o.timeout)); err != nil {
			o.fail(err)
			return
		}
	}
}

func (o *Outbox) next() ([]byte, bool) {
	for {
		o.mu.Lock()
		if len(o.queue) > 0 {
			msg := o.queue[0].msg
			o.queue[0] = queued{}
			o.queue = o.queue[1:]
			o.mu.Unlock()
			return msg, true
		}
		closed := o.closed
		o.mu.Unlock()
		if closed {
			return nil, false
		}
		<-o.wake
	}
}

func (o *Outbox) fail(err error) {
	o.mu.Lock()
	if o.closed && o.err != nil {
		o.mu.Unlock()
		return
	}
	report := !o.stopped
	o.shutdown(err)
	fn := o.onError
	o.mu.Unlock()
	if report && fn != nil {
		fn(err)
	}
}
