package main

import (
	"fmt"
	"sort"

	"github.com/nsf/termbox-go"

	"posrelay/client"
	"posrelay/protocol"
)

// 世界坐标 (400×300) 映射到终端字符格
func toCell(p protocol.Position, w, h int) (int, int) {
	return p.X * (w - 1) / client.ViewportWidth, p.Y * (h - 2) / client.ViewportHeight
}

func inside(x, y, w, h int) bool {
	return x >= 0 && y >= 0 && x < w && y < h-1
}

func drawText(x, y int, s string, fg termbox.Attribute) {
	for i, r := range s {
		termbox.SetCell(x+i, y, r, fg, termbox.ColorDefault)
	}
}

// render 绘制一帧：其他玩家（蓝）、自己（红）、底部状态栏
func render(me protocol.Position, others map[protocol.PlayerID]protocol.Position) {
	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)
	w, h := termbox.Size()

	ids := make([]protocol.PlayerID, 0, len(others))
	for id := range others {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if x, y := toCell(others[id], w, h); inside(x, y, w, h) {
			termbox.SetCell(x, y, '#', termbox.ColorBlue, termbox.ColorDefault)
		}
	}
	if x, y := toCell(me, w, h); inside(x, y, w, h) {
		termbox.SetCell(x, y, '@', termbox.ColorRed|termbox.AttrBold, termbox.ColorDefault)
	}

	status := fmt.Sprintf(" pos %s | players %d | WASD move, q quit ", me, len(others)+1)
	drawText(0, h-1, status, termbox.ColorWhite)
	termbox.Flush()
}
