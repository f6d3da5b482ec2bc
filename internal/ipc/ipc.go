// Package ipc is the local control channel: one JSON command per connection
// over a Unix socket, answered with one JSON reply.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"sync"
	"time"
)

const (
	CmdResume = "resume"
	CmdStop   = "stop"
)

const ioTimeout = 5 * time.Second

type ControlMessage struct {
	Cmd string `json:"cmd"`
}

type ControlReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type Handler func(ControlMessage) error

type Server struct {
	ln   net.Listener
	path string
	wg   sync.WaitGroup
	once sync.Once
}

// StartServer listens on path, replacing a stale socket file, and serves
// until ctx is done or Close is called.
func StartServer(ctx context.Context, path string, handler Handler) (*Server, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{ln: ln, path: path}
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer stop()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Warn("Control accept failed", "err", err)
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				handleConn(conn, handler)
			}()
		}
	}()

	return s, nil
}

// Close stops accepting. The listener unlinks the socket file.
func (s *Server) Close() error {
	var err error
	s.once.Do(func() { err = s.ln.Close() })
	return err
}

// Wait blocks until the accept loop and all handlers have returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func handleConn(conn net.Conn, handler Handler) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		log.Warn("Bad control message", "err", err)
		return
	}

	reply := ControlReply{OK: true}
	if err := handler(msg); err != nil {
		reply = ControlReply{Error: err.Error()}
	}
	_ = json.NewEncoder(conn).Encode(reply)
}

// SendCommand delivers cmd to the server at path and returns its verdict.
func SendCommand(ctx context.Context, path, cmd string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	if err := json.NewEncoder(conn).Encode(ControlMessage{Cmd: cmd}); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	var reply ControlReply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if !reply.OK {
		return errors.New(reply.Error)
	}
	return nil
}
