// Copyright (c) 2024-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"net/netip"
	"strconv"
	"sync"
	"time"
)

// portToLocalHostAddr prepends a default host of 127.0.0.1 when the provided
// address is solely a port number.
func portToLocalHostAddr(addr string) string {
	if _, err := strconv.Atoi(addr); err == nil {
		addr = net.JoinHostPort("127.0.0.1", addr)
	}
	return addr
}

// validateProfileAddr ensures the provided address is of the form "host:port"
// and that the port is between 1024 and 65535.
func validateProfileAddr(addr string) error {
	// Ensure the address is valid host:port syntax.
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}

	// Ensure the port is in range.
	if port, _ := strconv.Atoi(portStr); port < 1024 || port > 65535 {
		str := "address %q: port must be between 1024 and 65535"
		return fmt.Errorf(str, addr)
	}

	return nil
}

// isLoopbackHost returns whether the host portion of the provided address is
// localhost or a loopback IP.
func isLoopbackHost(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip, err := netip.ParseAddr(host)
	return err == nil && ip.IsLoopback()
}

// profileServer provides facilities for starting and stopping an HTTP server
// that serves the pprof profiling endpoints while filters are scanned.
type profileServer struct {
	wg         sync.WaitGroup
	mtx        sync.Mutex
	registered bool
	server     *http.Server
	listener   string
}

// Start binds a listener to the provided address and launches an HTTP server
// that handles profiling endpoints in the background using that listener.  An
// error is returned when the listener fails to bind.
//
// Unless allowNonLoopback is set, an error is returned when the provided
// listen address is not localhost or a loopback IP.
//
// It has no effect when the server is already running.  It is the caller's
// responsibility to call the Stop method to shutdown the server.
func (s *profileServer) Start(listenAddr string, allowNonLoopback bool) error {
	defer s.mtx.Unlock()
	s.mtx.Lock()

	// Nothing to do when the server is already running.
	if s.server != nil {
		return nil
	}

	listenAddr = portToLocalHostAddr(listenAddr)
	if err := validateProfileAddr(listenAddr); err != nil {
		return err
	}
	if !allowNonLoopback && !isLoopbackHost(listenAddr) {
		return fmt.Errorf("not permitted to listen on non loopback address "+
			"%q without setting the flag to allow it", listenAddr)
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", listenAddr, err)
	}
	s.listener = listener.Addr().String()

	// Register a redirect to the profiling endpoints registered by the pprof
	// package when not already done.
	if !s.registered {
		redirect := http.RedirectHandler("/debug/pprof", http.StatusSeeOther)
		http.Handle("/", redirect)
		s.registered = true
	}

	s.server = &http.Server{
		Addr:              listenAddr,
		ReadHeaderTimeout: time.Second * 3,
	}
	cfmtLog.Infof("Profiling server listening on %s", s.listener)
	s.wg.Add(1)
	go func(httpServer *http.Server) {
		defer s.wg.Done()

		err := httpServer.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			cfmtLog.Errorf("Profiling server listening on %s exited with "+
				"unexpected error: %v", listener.Addr(), err)
		}
	}(s.server)

	return nil
}

// Stop immediately closes the active listener and any connections to the
// profile server.
//
// It has no effect when the server is not running, so it may be called multiple
// times without error.
func (s *profileServer) Stop() error {
	defer s.mtx.Unlock()
	s.mtx.Lock()

	if s.server == nil {
		return nil
	}

	err := s.server.Close()
	s.server = nil
	s.listener = ""
	s.wg.Wait()
	if err != nil {
		cfmtLog.Errorf("Profiling server stopped with unexpected error: %v",
			err)
		return err
	}

	cfmtLog.Info("Profiling server stopped")
	return nil
}

// Listener returns the address the profile server is listening on or an empty
// string when it is not running.
func (s *profileServer) Listener() string {
	defer s.mtx.Unlock()
	s.mtx.Lock()

	return s.listener
}
