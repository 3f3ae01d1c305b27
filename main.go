package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"

	"posrelay/logging"
	"posrelay/server"
	"posrelay/transport"
)

// posrelay 入口：启动 QUIC 中继、管理接口与 WebSocket 接入
func main() {
	var (
		addr         string
		alpn         string
		certFile     string
		keyFile      string
		httpAddr     string
		echo         bool
		queueSize    int
		writeTimeout time.Duration
		logFile      string
		debug        bool
		consulAddr   string
		service      string
	)
	flag.StringVar(&addr, "addr", transport.DefaultAddr, "QUIC listen address (udp)")
	flag.StringVar(&alpn, "alpn", transport.DefaultALPN, "application protocol identifier")
	flag.StringVar(&certFile, "cert", "", "TLS certificate (PEM); empty with -key empty generates a self-signed one")
	flag.StringVar(&keyFile, "key", "", "TLS private key (PEM)")
	flag.StringVar(&httpAddr, "http", ":8080", "admin + websocket listen address, empty disables")
	flag.BoolVar(&echo, "echo", false, "also send position updates back to the sender")
	flag.IntVar(&queueSize, "queue", transport.DefaultQueueSize, "per-session send queue size")
	flag.DurationVar(&writeTimeout, "write-timeout", transport.DefaultWriteTimeout, "per-message write timeout")
	flag.StringVar(&logFile, "log", "app.log", "log file, empty logs to stderr")
	flag.BoolVar(&debug, "debug", false, "debug logging")
	flag.StringVar(&consulAddr, "consul", "", "consul agent address; registers the relay when set")
	flag.StringVar(&service, "service", "posrelay", "service name used for consul registration")
	flag.Parse()

	log := logging.NewLogger(logFile, debug)
	defer log.Sync()

	opts := transport.DefaultOptions()
	opts.ALPN = alpn
	opts.QueueSize = queueSize
	opts.WriteTimeout = writeTimeout

	tlsConf, err := transport.ServerTLSConfig(certFile, keyFile, alpn)
	if err != nil {
		log.Fatalf("tls: %v", err)
	}

	hub := server.NewHub(server.Config{EchoToSender: echo}, log)

	ln, err := transport.ListenQUIC(addr, tlsConf, opts, log)
	if err != nil {
		log.Fatalf("listen quic: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := ln.Serve(ctx, hub); err != nil {
			log.Errorf("quic serve: %v", err)
			stop()
		}
	}()
	log.Infof("posrelay listening on udp %s (alpn %q)", ln.Addr(), alpn)
	color.Green("posrelay listening on udp %s (alpn %q)", ln.Addr(), alpn)

	var srv *http.Server
	if httpAddr != "" {
		router := server.NewAdminRouter(hub, transport.NewWSAcceptor(hub, opts, log))
		srv = &http.Server{Addr: httpAddr, Handler: router}
		go func() {
			log.Infof("admin + websocket on http://localhost%s/", httpAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("http: %v", err)
			}
		}()
	}

	if consulAddr != "" {
		deregister, err := server.RegisterService(registration(consulAddr, service, ln.Addr(), httpAddr, alpn), log)
		if err != nil {
			log.Errorf("consul: %v", err)
		} else {
			defer deregister()
		}
	}

	// 优雅退出（Ctrl+C）
	<-ctx.Done()
	log.Info("Shutting down...")
	hub.Shutdown()
	_ = ln.Close()
	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}
}

func registration(consulAddr, service string, quicAddr net.Addr, httpAddr, alpn string) server.Registration {
	r := server.Registration{ConsulAddr: consulAddr, Service: service, ALPN: alpn}
	if ua, ok := quicAddr.(*net.UDPAddr); ok {
		r.Port = ua.Port
	}
	if httpAddr != "" {
		host, port, err := net.SplitHostPort(httpAddr)
		if err == nil {
			if host == "" {
				host, _ = os.Hostname()
			}
			if _, err := strconv.Atoi(port); err == nil {
				r.HealthURL = fmt.Sprintf("http://%s/healthz", net.JoinHostPort(host, port))
			}
		}
	}
	return r
}
