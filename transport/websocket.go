package transport

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"posrelay/protocol"
)

const (
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	wsReadLimit = 64 * protocol.MaxMessageSize
)

// wsWriter 每条消息一个文本帧，WebSocket 自带分帧
type wsWriter struct {
	ws *websocket.Conn
}

func (w *wsWriter) WriteMessage(msg []byte, deadline time.Time) error {
	if err := w.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return w.ws.WriteMessage(websocket.TextMessage, msg)
}

func (w *wsWriter) Close() error {
	_ = w.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return w.ws.Close()
}

// WSAcceptor 把 WebSocket 连接桥接到与 QUIC 相同的事件流，浏览器或调试客户端可以加入同一张玩家表
type WSAcceptor struct {
	h        Handler
	opts     Options
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader
}

func NewWSAcceptor(h Handler, opts Options, log *zap.SugaredLogger) *WSAcceptor {
	return &WSAcceptor{
		h:    h,
		opts: opts,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{opts.ALPN},
			CheckOrigin: func(r *http.Request) bool {
				// 演示环境：允许所有来源
				return true
			},
		},
	}
}

func (a *WSAcceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warnf("ws upgrade error: %v", err)
		return
	}
	id := protocol.PlayerID(uuid.NewString())
	out := NewOutbox(&wsWriter{ws: ws}, a.opts.QueueSize, a.opts.WriteTimeout)
	a.h.Dispatch(Accepted{ID: id, Remote: ws.RemoteAddr().String(), Outbox: out})
	if out.Closed() {
		// 会话管理器拒绝了这个连接，不再读取它的消息
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session rejected"), time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}

	go out.Run()
	go a.readPump(ws, id)
}

// readPump 读取客户端消息；退出时通知会话管理器连接已终止
func (a *WSAcceptor) readPump(ws *websocket.Conn, id protocol.PlayerID) {
	stop := make(chan struct{})
	defer func() {
		close(stop)
		_ = ws.Close()
	}()
	go ping(ws, stop)

	// 超过 MaxMessageSize 的消息交给解码器判为非法，会话保留；
	// 超过 wsReadLimit 的帧由 gorilla 直接断开连接，避免单条消息占用过多内存
	ws.SetReadLimit(wsReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error { return ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			a.h.Dispatch(Terminated{ID: id, Err: err})
			return
		}
		a.h.Dispatch(Received{ID: id, Payload: payload})
	}
}

// ping 定期发送 ping 以维持读超时；WriteControl 可与其他写并发调用
func ping(ws *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
