package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	prefixJoin   = "Connected pos:"
	prefixMove   = "moved to:"
	msgLeave     = "Disconnected"
	prefixUpdate = "UPDATE"
	prefixRemove = "REMOVE"

	// Delimiter 服务端消息的字段分隔符
	Delimiter = "|"

	// MaxMessageSize 单条消息的最大字节数，超过即视为非法
	MaxMessageSize = 1024
)

// ErrMalformed 入站字节无法解析。可恢复：调用方丢弃该消息即可，不应断开会话
var ErrMalformed = errors.New("malformed message")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// EncodeClient 将客户端消息编码为线上文本
func EncodeClient(m ClientMessage) []byte {
	switch m := m.(type) {
	case Join:
		return []byte(prefixJoin + m.Pos.String())
	case Move:
		return []byte(prefixMove + m.Pos.String())
	case Leave:
		return []byte(msgLeave)
	default:
		panic(fmt.Sprintf("protocol: unknown client message %T", m))
	}
}

// DecodeClient 按字面前缀分类并解析客户端消息
func DecodeClient(b []byte) (ClientMessage, error) {
	s, err := text(b)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasPrefix(s, prefixJoin):
		pos, err := parsePosition(s[len(prefixJoin):])
		if err != nil {
			return nil, err
		}
		return Join{Pos: pos}, nil
	case strings.HasPrefix(s, prefixMove):
		pos, err := parsePosition(s[len(prefixMove):])
		if err != nil {
			return nil, err
		}
		return Move{Pos: pos}, nil
	case s == msgLeave:
		return Leave{}, nil
	default:
		return nil, malformed("unknown client message %q", truncate(s))
	}
}

// EncodeServer 将广播消息编码为线上文本
func EncodeServer(m ServerMessage) []byte {
	switch m := m.(type) {
	case Update:
		return []byte(prefixUpdate + Delimiter + string(m.ID) + Delimiter + m.Pos.String())
	case Remove:
		return []byte(prefixRemove + Delimiter + string(m.ID))
	default:
		panic(fmt.Sprintf("protocol: unknown server message %T", m))
	}
}

// DecodeServer 解析服务端广播消息；字段数不符或坐标非整数均返回 ErrMalformed
func DecodeServer(b []byte) (ServerMessage, error) {
	s, err := text(b)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(s, Delimiter)
	switch parts[0] {
	case prefixUpdate:
		if len(parts) != 3 {
			return nil, malformed("update wants 3 fields, got %d", len(parts))
		}
		id, err := parseID(parts[1])
		if err != nil {
			return nil, err
		}
		pos, err := parsePosition(parts[2])
		if err != nil {
			return nil, err
		}
		return Update{ID: id, Pos: pos}, nil
	case prefixRemove:
		if len(parts) != 2 {
			return nil, malformed("remove wants 2 fields, got %d", len(parts))
		}
		id, err := parseID(parts[1])
		if err != nil {
			return nil, err
		}
		return Remove{ID: id}, nil
	default:
		return nil, malformed("unknown server message %q", truncate(s))
	}
}

// ValidID 报告 id 是否可以安全地放进服务端消息
func ValidID(id PlayerID) bool {
	_, err := parseID(string(id))
	return err == nil
}

// AppendFrame 在字节流传输上为消息追加换行分帧符
func AppendFrame(dst, msg []byte) []byte {
	dst = append(dst, msg...)
	return append(dst, '\n')
}

func text(b []byte) (string, error) {
	if len(b) > MaxMessageSize {
		return "", malformed("message too large: %d bytes", len(b))
	}
	if !utf8.Valid(b) {
		return "", malformed("invalid utf-8")
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

func parseID(s string) (PlayerID, error) {
	if s == "" {
		return "", malformed("empty player id")
	}
	if strings.ContainsAny(s, Delimiter+"\r\n") {
		return "", malformed("player id %q contains a delimiter", truncate(s))
	}
	return PlayerID(s), nil
}

func parsePosition(s string) (Position, error) {
	xy := strings.Split(s, ",")
	if len(xy) != 2 {
		return Position{}, malformed("position wants 2 coordinates, got %d", len(xy))
	}
	x, err := strconv.Atoi(xy[0])
	if err != nil {
		return Position{}, malformed("bad x coordinate %q", truncate(xy[0]))
	}
	y, err := strconv.Atoi(xy[1])
	if err != nil {
		return Position{}, malformed("bad y coordinate %q", truncate(xy[1]))
	}
	return Position{X: x, Y: y}, nil
}

// truncate 日志里只保留前 32 个字节，防止恶意长输入刷屏
func truncate(s string) string {
	const max = 32
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
