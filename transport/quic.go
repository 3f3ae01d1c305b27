package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"posrelay/protocol"
)

const (
	DefaultAddr = ":4433"
	DefaultALPN = "posrelay"

	// 连接建立后等待客户端打开会话流的上限
	streamAcceptTimeout = 10 * time.Second

	codeNormal   quic.ApplicationErrorCode = 0
	codeNoStream quic.ApplicationErrorCode = 1
	codeRejected quic.ApplicationErrorCode = 2
	codeStalled  quic.ApplicationErrorCode = 3
)

// Options 传输层参数
type Options struct {
	ALPN         string
	QueueSize    int
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func DefaultOptions() Options {
	return Options{
		ALPN:         DefaultALPN,
		QueueSize:    DefaultQueueSize,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  30 * time.Second,
	}
}

func (o Options) quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  o.IdleTimeout,
		KeepAlivePeriod: o.IdleTimeout / 2,
	}
}

// streamWriter 以换行分帧写入 QUIC 流；只由 Outbox 写协程调用
type streamWriter struct {
	s   *quic.Stream
	buf []byte
}

func (w *streamWriter) WriteMessage(msg []byte, deadline time.Time) error {
	if err := w.s.SetWriteDeadline(deadline); err != nil {
		return err
	}
	w.buf = protocol.AppendFrame(w.buf[:0], msg)
	_, err := w.s.Write(w.buf)
	return err
}

// Close 发送 FIN（end of stream），读方向不受影响
func (w *streamWriter) Close() error {
	return w.s.Close()
}

// QUICListener 在 UDP 上接受 QUIC 连接，每个连接的第一条双向流即会话流
type QUICListener struct {
	ln   *quic.Listener
	opts Options
	log  *zap.SugaredLogger
}

func ListenQUIC(addr string, tlsConf *tls.Config, opts Options, log *zap.SugaredLogger) (*QUICListener, error) {
	ln, err := quic.ListenAddr(addr, tlsConf, opts.quicConfig())
	if err != nil {
		return nil, err
	}
	return &QUICListener{ln: ln, opts: opts, log: log}, nil
}

func (l *QUICListener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *QUICListener) Close() error {
	return l.ln.Close()
}

// Serve 接受连接直到 ctx 取消或监听器关闭
func (l *QUICListener) Serve(ctx context.Context, h Handler) error {
	for {
		conn, err := l.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			return err
		}
		go l.serveConn(ctx, conn, h)
	}
}

func (l *QUICListener) serveConn(ctx context.Context, conn *quic.Conn, h Handler) {
	id := protocol.PlayerID(uuid.NewString())
	remote := conn.RemoteAddr().String()

	actx, cancel := context.WithTimeout(ctx, streamAcceptTimeout)
	stream, err := conn.AcceptStream(actx)
	cancel()
	if err != nil {
		l.log.Warnf("quic %s: no session stream: %v", remote, err)
		_ = conn.CloseWithError(codeNoStream, "no session stream")
		return
	}

	out := NewOutbox(&streamWriter{s: stream}, l.opts.QueueSize, l.opts.WriteTimeout)
	h.Dispatch(Accepted{ID: id, Remote: remote, Outbox: out})
	if out.Closed() {
		// 会话管理器拒绝了这个连接，不再读取它的消息
		_ = conn.CloseWithError(codeRejected, "session rejected")
		return
	}
	go out.Run()
	go func() {
		// 发送端因写失败或队列堵死而关闭时，连接也随之断开，读循环会退出
		<-out.Done()
		if err := out.Err(); err != nil {
			_ = conn.CloseWithError(codeStalled, err.Error())
		}
	}()

	err = pumpFrames(stream, id, h, l.log)
	h.Dispatch(Terminated{ID: id, Err: err})

	// 给写协程一点时间把剩余消息冲刷出去，再关闭连接
	select {
	case <-out.Done():
	case <-time.After(l.opts.WriteTimeout):
	}
	_ = conn.CloseWithError(codeNormal, "")
}

// pumpFrames 读会话流并逐条分发；返回 nil 表示对端正常结束
func pumpFrames(r io.Reader, id protocol.PlayerID, h Handler, log *zap.SugaredLogger) error {
	fr := NewFrameReader(r)
	for {
		msg, err := fr.Next()
		switch {
		case err == nil:
			h.Dispatch(Received{ID: id, Payload: msg})
		case errors.Is(err, protocol.ErrMalformed):
			log.Debugf("player %s: %v", id, err)
		case errors.Is(err, io.EOF):
			return nil
		default:
			return err
		}
	}
}

// ClientStream 客户端侧的 QUIC 会话流
type ClientStream struct {
	conn    *quic.Conn
	stream  *quic.Stream
	outbox  *Outbox
	timeout time.Duration

	reading  atomic.Bool
	readDone chan struct{}
}

// DialQUIC 建立连接并打开会话流，写协程随之启动
func DialQUIC(ctx context.Context, addr string, tlsConf *tls.Config, opts Options) (*ClientStream, error) {
	conn, err := quic.DialAddr(ctx, addr, tlsConf, opts.quicConfig())
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(codeNoStream, "open stream")
		return nil, err
	}
	out := NewOutbox(&streamWriter{s: stream}, opts.QueueSize, opts.WriteTimeout)
	go out.Run()
	return &ClientStream{
		conn:     conn,
		stream:   stream,
		outbox:   out,
		timeout:  opts.WriteTimeout,
		readDone: make(chan struct{}),
	}, nil
}

func (c *ClientStream) Outbox() *Outbox {
	return c.outbox
}

// ReadFrames 阻塞读取服务端消息直到流结束；超长帧被跳过
func (c *ClientStream) ReadFrames(fn func([]byte)) error {
	if !c.reading.CompareAndSwap(false, true) {
		return errors.New("session stream already being read")
	}
	defer close(c.readDone)
	fr := NewFrameReader(c.stream)
	for {
		msg, err := fr.Next()
		switch {
		case err == nil:
			fn(msg)
		case errors.Is(err, protocol.ErrMalformed):
			continue
		case errors.Is(err, io.EOF):
			return nil
		default:
			return err
		}
	}
}

// Close 冲刷发送队列后关闭连接
// 正在读取时先等服务端结束会话流（FIN），确保 "Disconnected" 已被对端处理，
// 否则连接关闭可能丢弃尚未发出的数据
func (c *ClientStream) Close() error {
	c.outbox.Close()
	deadline := time.After(c.timeout)
	select {
	case <-c.outbox.Done():
	case <-deadline:
	}
	if c.reading.Load() {
		select {
		case <-c.readDone:
		case <-deadline:
		}
	}
	return c.conn.CloseWithError(codeNormal, "")
}
