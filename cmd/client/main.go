package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/nsf/termbox-go"

	"posrelay/client"
	"posrelay/logging"
	"posrelay/transport"
)

const frameInterval = time.Second / 60

// posrelay 终端客户端：WASD 移动，q / Esc 退出
func main() {
	var (
		addr     string
		alpn     string
		caFile   string
		insecure bool
		logFile  string
	)
	flag.StringVar(&addr, "addr", "localhost:4433", "relay address (udp)")
	flag.StringVar(&alpn, "alpn", transport.DefaultALPN, "application protocol identifier")
	flag.StringVar(&caFile, "ca", "", "trusted certificate, e.g. ../cert.pem")
	flag.BoolVar(&insecure, "insecure", false, "skip certificate verification (dev only)")
	flag.StringVar(&logFile, "log", "client.log", "log file")
	flag.Parse()

	log := logging.NewLogger(logFile, false)
	defer log.Sync()

	tlsConf, err := transport.ClientTLSConfig(caFile, insecure, alpn)
	if err != nil {
		color.Red("tls: %v", err)
		os.Exit(1)
	}
	opts := transport.DefaultOptions()
	opts.ALPN = alpn

	color.Cyan("Connecting to %s...", addr)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	start := client.RandomPosition(rand.New(rand.NewSource(time.Now().UnixNano())))
	conn, done, err := client.Dial(ctx, addr, tlsConf, opts, start, log)
	cancel()
	if err != nil {
		color.Red("connect: %v", err)
		os.Exit(1)
	}
	color.Green("Connected!")
	log.Infof("connected to %s at %s", addr, start)

	if err := termbox.Init(); err != nil {
		_ = conn.Close()
		color.Red("termbox: %v", err)
		os.Exit(1)
	}
	reason := loop(conn, done)
	termbox.Close()

	if err := conn.Close(); err != nil {
		log.Warnf("close: %v", err)
	}
	color.Yellow("Bye (%s)", reason)
}

// loop 单线程主循环：采样输入 → 修改本地位置 → 渲染；网络收发都不在这里阻塞
func loop(conn *client.Conn, done <-chan error) string {
	events := make(chan termbox.Event, 32)
	go func() {
		for {
			events <- termbox.PollEvent()
		}
	}()

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	var dx, dy int
	for {
		select {
		case ev := <-events:
			if ev.Type != termbox.EventKey {
				continue
			}
			switch {
			case ev.Key == termbox.KeyEsc || ev.Key == termbox.KeyCtrlC || ev.Ch == 'q':
				return "quit"
			case ev.Ch == 'a':
				dx -= client.Step
			case ev.Ch == 'd':
				dx += client.Step
			case ev.Ch == 'w':
				dy -= client.Step
			case ev.Ch == 's':
				dy += client.Step
			}
		case err := <-done:
			if err != nil {
				return "connection lost: " + err.Error()
			}
			return "server closed the stream"
		case <-ticker.C:
			if dx != 0 || dy != 0 {
				_, _ = conn.Move(dx, dy)
				dx, dy = 0, 0
			}
			render(conn.Position(), conn.Others())
		}
	}
}
