// Package web is the optional browser panel transport: a WebSocket
// endpoint at /ws where each text frame is one request and each answer is
// sent back as one frame.
package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"soundroidd/internal/transport"
)

// Transport implements transport.Transport over WebSocket.
type Transport struct {
	ln  net.Listener
	srv *http.Server

	// turn serialises panel clients onto the single-slot mailbox.
	turn sync.Mutex

	state *transport.RunState
	box   *transport.Mailbox
}

// New binds addr (host:port) and prepares the /ws handler. A bind failure
// wraps transport.ErrLifecycle.
func New(addr string) (*Transport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: ws listen %s: %v", transport.ErrLifecycle, addr, err)
	}

	t := &Transport{
		ln:    ln,
		state: transport.NewRunState(),
		box:   transport.NewMailbox(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", t.wsHandler)
	t.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: transport.ReplyTimeout,
	}
	return t, nil
}

func (t *Transport) Name() string { return "web" }

// Addr is the bound listen address.
func (t *Transport) Addr() string { return t.ln.Addr().String() }

// Run serves HTTP until Stop.
func (t *Transport) Run() {
	if !t.state.Running() {
		t.ln.Close()
		return
	}
	log.Printf("[web] listening on %s (/ws)", t.Addr())
	if err := t.srv.Serve(t.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("[web] serve: %v", err)
	}
	log.Printf("[web] stopped listening on %s", t.Addr())
}

func (t *Transport) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // allow any origin
	})
	if err != nil {
		log.Printf("[web] accept failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Hijacked connections outlive http.Server.Close; tie them to Stop.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-t.state.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if t.state.Running() && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				log.Printf("[web] read: %v", err)
			}
			return
		}

		line := transport.TrimLine(string(msg))
		if line == "" {
			continue
		}
		if line == transport.Sentinel {
			log.Printf("[web] %s closed the session", r.RemoteAddr)
			return
		}

		resp, ok := t.converse(line)
		if !ok {
			if !t.state.Running() {
				return
			}
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, []byte(resp)); err != nil {
			log.Printf("[web] send frame %q: %v", resp, err)
			return
		}
	}
}

// converse posts line and waits for the dispatcher's answer.
func (t *Transport) converse(line string) (string, bool) {
	t.turn.Lock()
	defer t.turn.Unlock()

	log.Printf("[web] received %q", line)
	seq := t.box.Post(line)
	resp, ok := t.box.Await(seq, t.state.Done(), transport.ReplyTimeout)
	if !ok {
		if t.state.Running() {
			log.Printf("[web] no answer for %q", line)
		}
		return "", false
	}
	return strings.TrimRight(resp, "\n"), true
}

// Stop closes the server and every open panel session.
func (t *Transport) Stop() {
	t.state.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), transport.PollGranularity)
	defer cancel()
	if err := t.srv.Shutdown(ctx); err != nil {
		t.srv.Close()
	}
	t.ln.Close()
}

func (t *Transport) Send(text string) {
	if text == "" {
		log.Printf("[web] WARNING: can't send an empty string")
		return
	}
	t.box.Reply(text + "\n")
}

func (t *Transport) Receive() string {
	return t.box.Take()
}
