// Package server is the branch's TCP front door: accept a connection, read
// exactly one request frame, dispatch it to a handler, write exactly one
// response frame, close.
//
// A net.Listener accept loop bounding concurrent connection handlers with a
// buffered-channel semaphore; each connection carries exactly one
// request/response rather than a long-lived multiplexed session.
package server

import (
	"fmt"
	"net"

	"bankfed/internal/config"
	"bankfed/internal/wire"
)

// Handler answers one decoded request, returning the response to frame back.
type Handler func(params map[string]interface{}) wire.Response

// Server owns the listener and the action dispatch table for one branch.
type Server struct {
	branchName string
	listener   net.Listener
	handlers   map[string]Handler
	sem        chan struct{}
}

// New binds a TCP listener at address ("host:port") for branchName.
func New(branchName, address string) (*Server, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	return &Server{
		branchName: branchName,
		listener:   ln,
		handlers:   make(map[string]Handler),
		sem:        make(chan struct{}, config.MaxConnectionWorkers),
	}, nil
}

// Handle registers the handler for an action name.
func (s *Server) Handle(action string, h Handler) {
	s.handlers[action] = h
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Close stops accepting new connections.
func (s *Server) Close() error { return s.listener.Close() }

// Serve runs the accept loop until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		s.sem <- struct{}{}
		go func() {
			defer func() { <-s.sem }()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	resp := s.readAndDispatch(conn)
	body, err := wire.Marshal(resp)
	if err != nil {
		config.Warnf("branch %s: marshal response: %v", s.branchName, err)
		return
	}
	if err := wire.WriteFrame(conn, body); err != nil {
		config.Warnf("branch %s: write response: %v", s.branchName, err)
	}
}

func (s *Server) readAndDispatch(conn net.Conn) (resp wire.Response) {
	defer func() {
		if r := recover(); r != nil {
			config.Warnf("branch %s: handler panic: %v", s.branchName, r)
			resp = wire.Err(fmt.Sprintf("internal error: %v", r))
		}
	}()

	raw, err := wire.ReadFrame(conn, config.ReadDeadline)
	if err != nil {
		return wire.Err("no response")
	}
	var req wire.Request
	if err := wire.Unmarshal(raw, &req); err != nil {
		return wire.Err("malformed request")
	}
	config.Tracef("branch %s: dispatching action=%s", s.branchName, req.Action)

	h, ok := s.handlers[req.Action]
	if !ok {
		return wire.Err("unknown action " + req.Action)
	}
	return h(req.Params)
}
