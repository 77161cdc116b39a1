package serve

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paymenthub/payment-engine-backend/internal/log"
)

// Config carries everything needed to run one HTTP listener with graceful
// shutdown. Zero timeouts fall back to the defaults below.
type Config struct {
	ListenAddr          string
	Handler             http.Handler
	TCPKeepAlive        time.Duration
	ShutdownGracePeriod time.Duration
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
	OnStarting          func()
	OnStopping          func()
}

const (
	defaultShutdownGracePeriod = 10 * time.Second
	defaultReadTimeout         = 5 * time.Second
	defaultWriteTimeout        = 35 * time.Second
	defaultIdleTimeout         = 2 * time.Minute
)

type HTTPServerInterface interface {
	Run(conf Config)
}

type HTTPServer struct{}

func (h *HTTPServer) Run(conf Config) {
	Run(conf)
}

// Run serves conf.Handler until SIGINT/SIGTERM, then drains in-flight
// requests for the grace period before returning.
func Run(conf Config) {
	if conf.ReadTimeout == 0 {
		conf.ReadTimeout = defaultReadTimeout
	}
	if conf.WriteTimeout == 0 {
		conf.WriteTimeout = defaultWriteTimeout
	}
	if conf.IdleTimeout == 0 {
		conf.IdleTimeout = defaultIdleTimeout
	}
	if conf.ShutdownGracePeriod == 0 {
		conf.ShutdownGracePeriod = defaultShutdownGracePeriod
	}

	if conf.OnStarting != nil {
		conf.OnStarting()
	}

	server := &http.Server{
		Addr:         conf.ListenAddr,
		Handler:      conf.Handler,
		ReadTimeout:  conf.ReadTimeout,
		WriteTimeout: conf.WriteTimeout,
		IdleTimeout:  conf.IdleTimeout,
	}

	listener, err := net.Listen("tcp", conf.ListenAddr)
	if err != nil {
		log.Fatalf("listening on %s: %v", conf.ListenAddr, err)
	}
	if conf.TCPKeepAlive > 0 {
		listener = tcpKeepAliveListener{listener.(*net.TCPListener), conf.TCPKeepAlive}
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err = <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serving on %s: %v", conf.ListenAddr, err)
		}
		return
	case <-shutdown:
	}

	if conf.OnStopping != nil {
		conf.OnStopping()
	}

	ctx, cancel := context.WithTimeout(context.Background(), conf.ShutdownGracePeriod)
	defer cancel()
	if err = server.Shutdown(ctx); err != nil {
		log.Errorf("graceful shutdown on %s did not complete: %v", conf.ListenAddr, err)
	}
}

// tcpKeepAliveListener enables keep-alive probes on accepted connections so
// dead peers do not pin idle server resources.
type tcpKeepAliveListener struct {
	*net.TCPListener
	keepAlivePeriod time.Duration
}

func (ln tcpKeepAliveListener) Accept() (net.Conn, error) {
	conn, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	if err = conn.SetKeepAlive(true); err != nil {
		return nil, err
	}
	if err = conn.SetKeepAlivePeriod(ln.keepAlivePeriod); err != nil {
		return nil, err
	}
	return conn, nil
}
