package client

import (
	"context"
	"crypto/tls"
	"math/rand"

	"go.uber.org/zap"

	"posrelay/protocol"
	"posrelay/transport"
)

const (
	ViewportWidth  = 400
	ViewportHeight = 300
	// Step 每个输入周期、每个按下的方向移动的距离
	Step = 5
)

// RandomPosition 视口内的随机初始位置
func RandomPosition(rng *rand.Rand) protocol.Position {
	return protocol.Position{X: rng.Intn(ViewportWidth + 1), Y: rng.Intn(ViewportHeight + 1)}
}

// Conn 一个已连接的客户端：代理 + 会话流
type Conn struct {
	*Agent
	stream *transport.ClientStream
}

// Dial 连接中继、发送 "Connected"，并在后台启动入站循环
// done 在入站循环结束时收到其返回值
func Dial(ctx context.Context, addr string, tlsConf *tls.Config, opts transport.Options,
	initial protocol.Position, log *zap.SugaredLogger) (*Conn, <-chan error, error) {
	stream, err := transport.DialQUIC(ctx, addr, tlsConf, opts)
	if err != nil {
		return nil, nil, err
	}
	agent := NewAgent(stream.Outbox(), initial, log)
	if err := agent.Start(); err != nil {
		_ = stream.Close()
		return nil, nil, err
	}
	done := make(chan error, 1)
	go func() { done <- agent.Consume(stream) }()
	return &Conn{Agent: agent, stream: stream}, done, nil
}

// Close 发送 "Disconnected"，冲刷后关闭连接
func (c *Conn) Close() error {
	err := c.Shutdown()
	if cerr := c.stream.Close(); err == nil {
		err = cerr
	}
	return err
}
