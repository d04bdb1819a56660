// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package broker

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/novatechflow/kraftbroker/pkg/protocol"
)

func buildApiVersionsRequest(corr int32) []byte {
	w := protocol.NewWriter(16)
	w.Int16(protocol.APIKeyApiVersion)
	w.Int16(0)
	w.Int32(corr)
	w.NullableString(nil)
	return w.Bytes()
}

func readCorrelationID(t *testing.T, conn net.Conn) int32 {
	t.Helper()
	resp, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame client: %v", err)
	}
	if len(resp.Payload) < 4 {
		t.Fatalf("short response %x", resp.Payload)
	}
	return int32(binary.BigEndian.Uint32(resp.Payload))
}

func startConnection(s *Server, conn net.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.handleConnection(context.Background(), conn)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("server handleConnection did not exit")
	}
}

func TestServerHandleConnection_ApiVersions(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	s := &Server{Handler: newVersionsRouter()}
	done := startConnection(s, serverConn)

	for _, corr := range []int32{42, 43} {
		if err := protocol.WriteFrame(clientConn, buildApiVersionsRequest(corr)); err != nil {
			t.Fatalf("WriteFrame client: %v", err)
		}
		if got := readCorrelationID(t, clientConn); got != corr {
			t.Fatalf("expected correlation id %d got %d", corr, got)
		}
	}

	clientConn.Close()
	waitDone(t, done)
}

func TestServerHandleConnection_UnknownAPIKeepsConnection(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	s := &Server{Handler: newVersionsRouter()}
	done := startConnection(s, serverConn)

	w := protocol.NewWriter(16)
	w.Int16(999)
	w.Int16(0)
	w.Int32(5)
	w.NullableString(nil)
	if err := protocol.WriteFrame(clientConn, w.Bytes()); err != nil {
		t.Fatalf("WriteFrame client: %v", err)
	}
	if got := readCorrelationID(t, clientConn); got != 5 {
		t.Fatalf("expected correlation id 5 got %d", got)
	}
	if err := protocol.WriteFrame(clientConn, buildApiVersionsRequest(6)); err != nil {
		t.Fatalf("WriteFrame client: %v", err)
	}
	if got := readCorrelationID(t, clientConn); got != 6 {
		t.Fatalf("expected correlation id 6 got %d", got)
	}

	clientConn.Close()
	waitDone(t, done)
}

func TestServerHandleConnection_OversizedFrameCloses(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	s := &Server{Handler: newVersionsRouter(), MaxFrameBytes: 64}
	done := startConnection(s, serverConn)

	var size [4]byte
	binary.BigEndian.PutUint32(size[:], 65)
	if _, err := clientConn.Write(size[:]); err != nil {
		t.Fatalf("write size: %v", err)
	}
	waitDone(t, done)
	if _, err := clientConn.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("expected closed connection, got %v", err)
	}
}

func TestServerHandleConnection_BadHeaderCloses(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	s := &Server{Handler: newVersionsRouter()}
	done := startConnection(s, serverConn)

	if err := protocol.WriteFrame(clientConn, []byte{0, 18, 0}); err != nil {
		t.Fatalf("WriteFrame client: %v", err)
	}
	waitDone(t, done)
}

func TestServerHandleConnection_IdleTimeout(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	s := &Server{Handler: newVersionsRouter(), IdleTimeout: 50 * time.Millisecond}
	done := startConnection(s, serverConn)
	waitDone(t, done)
}

func listenOrSkip(t *testing.T, s *Server) {
	t.Helper()
	if err := s.Listen(); err != nil {
		if errors.Is(err, syscall.EPERM) {
			t.Skip("binding sockets not permitted in sandbox")
		}
		t.Fatalf("Listen: %v", err)
	}
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestServerPoolBoundsConnections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{
		Addr:    "127.0.0.1:0",
		Handler: newVersionsRouter(),
		Pool:    NewWorkerPool(2),
	}
	listenOrSkip(t, s)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx) }()

	first := dial(t, s.ListenAddress())
	second := dial(t, s.ListenAddress())
	third := dial(t, s.ListenAddress())
	defer second.Close()
	defer third.Close()

	for i, conn := range []net.Conn{first, second} {
		if err := protocol.WriteFrame(conn, buildApiVersionsRequest(int32(i))); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
		if got := readCorrelationID(t, conn); got != int32(i) {
			t.Fatalf("expected correlation id %d got %d", i, got)
		}
	}

	if err := protocol.WriteFrame(third, buildApiVersionsRequest(3)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	_ = third.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, err := protocol.ReadFrame(third); err == nil {
		t.Fatalf("third connection served while both workers were busy")
	}

	first.Close()
	_ = third.SetReadDeadline(time.Now().Add(2 * time.Second))
	if got := readCorrelationID(t, third); got != 3 {
		t.Fatalf("expected correlation id 3 got %d", got)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not exit after cancel")
	}
}

func TestServerListenAndServe_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{
		Addr:    "127.0.0.1:0",
		Handler: newVersionsRouter(),
	}
	listenOrSkip(t, s)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx) }()

	conn := dial(t, s.ListenAddress())
	defer conn.Close()
	if err := protocol.WriteFrame(conn, buildApiVersionsRequest(1)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	readCorrelationID(t, conn)

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not exit after cancel")
	}
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Fatalf("expected open connection to be closed on shutdown")
	}
}

func TestServerServeRequiresHandlerAndListener(t *testing.T) {
	if err := (&Server{}).Serve(context.Background()); err == nil {
		t.Fatalf("expected error without handler")
	}
	if err := (&Server{Handler: newVersionsRouter()}).Serve(context.Background()); err == nil {
		t.Fatalf("expected error without listener")
	}
}
