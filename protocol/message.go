package protocol

import "strconv"

// PlayerID 表示一个连接的玩家唯一标识（由传输层为每个连接分配）
type PlayerID string

// Position 二维整数坐标；边界由表现层负责，协议本身不做限制
type Position struct {
	X int
	Y int
}

func (p Position) String() string {
	return strconv.Itoa(p.X) + "," + strconv.Itoa(p.Y)
}

// Add 返回平移后的坐标
func (p Position) Add(dx, dy int) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// ClientMessage 客户端 → 服务端的消息（封闭集合：Join / Move / Leave）
type ClientMessage interface {
	clientMessage()
}

// Join 首次上报位置："Connected pos:<x>,<y>"
type Join struct {
	Pos Position
}

// Move 新位置："moved to:<x>,<y>"
type Move struct {
	Pos Position
}

// Leave 主动离开："Disconnected"
type Leave struct{}

func (Join) clientMessage()  {}
func (Move) clientMessage()  {}
func (Leave) clientMessage() {}

// ServerMessage 服务端 → 客户端的广播消息（封闭集合：Update / Remove）
type ServerMessage interface {
	serverMessage()
}

// Update 某玩家的新（或初始）位置："UPDATE|<id>|<x>,<y>"
type Update struct {
	ID  PlayerID
	Pos Position
}

// Remove 某玩家已离开："REMOVE|<id>"
type Remove struct {
	ID PlayerID
}

func (Update) serverMessage() {}
func (Remove) serverMessage() {}
