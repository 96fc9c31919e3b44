package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
	"golang.org/x/sync/errgroup"
)

// Handler answers one request line.
type Handler interface {
	Handle(line string) string
}

// Server runs one connection handler per accepted connection. Every reply
// is written with a trailing terminator.
type Server struct {
	Handler   Handler
	ChunkSize int
	Logger    logrus.FieldLogger
}

func (s *Server) logger() logrus.FieldLogger {
	if s.Logger == nil {
		return logrus.StandardLogger()
	}
	return s.Logger
}

// ListenAndServe listens on addr and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger().Infof("listening on %v", ln.Addr())
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled, then closes the
// listener and every open connection and waits for their handlers.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	var conns sync.WaitGroup
	g.Go(func() error {
		<-ctx.Done()
		s.logger().Info("shutdown; closing listener")
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					s.logger().Errorf("failed to accept: %v", err)
					continue
				}
				return fmt.Errorf("accept: %w", err)
			}
			conns.Add(1)
			go func() {
				defer conns.Done()
				s.ServeConn(ctx, conn)
			}()
		}
	})
	err := g.Wait()
	conns.Wait()
	return err
}

// ServeSerial serves a single peer attached to a serial line.
func (s *Server) ServeSerial(ctx context.Context, port string, baud int) error {
	p, err := serial.OpenPort(&serial.Config{Name: port, Baud: baud})
	if err != nil {
		return fmt.Errorf("opening %q: %w", port, err)
	}
	s.logger().Infof("opened %q", port)
	s.ServeConn(ctx, p)
	return nil
}

type remoteAddresser interface {
	RemoteAddr() net.Addr
}

// ServeConn answers requests from conn until the peer goes away or ctx is
// canceled. It closes conn.
func (s *Server) ServeConn(ctx context.Context, conn io.ReadWriteCloser) {
	peer := "serial"
	if ra, ok := conn.(remoteAddresser); ok {
		peer = ra.RemoteAddr().String()
	}
	logger := s.logger().WithField("peer", peer)
	logger.Info("accepted connection")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	f := NewFramer(conn, s.ChunkSize)
	for {
		line, err := f.ReadLine()
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				logger.Errorf("reading: %v", err)
			}
			logger.Info("connection closed")
			return
		}
		logger.Debugf("client->srv: %s", line)
		resp := s.handle(logger, line)
		logger.Debugf("srv->client: %s", resp)
		if _, err := io.WriteString(conn, resp+string(Terminator)); err != nil {
			logger.Errorf("writing: %v", err)
			return
		}
	}
}

func (s *Server) handle(logger logrus.FieldLogger, line string) (resp string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("error processing request %q: %v", line, r)
			resp = Error
		}
	}()
	return s.Handler.Handle(line)
}
