package transport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	quic "github.com/quic-go/quic-go"
)

// QUIC is a Transport backed by a real QUIC connection per peer, for
// running the gravity solver across OS processes reachable only over
// the network rather than as goroutines in one binary. Each envelope
// is sent on its own (bidirectional) stream, length-prefixed so the
// receiver knows where one envelope ends and the next begins.
//
// Its lifecycle mirrors an HTTP/3-over-QUIC server wrapper: a
// constructor that builds a secure-by-default tls.Config, a
// background accept loop reporting failures on an error channel, and
// an explicit Stop that tears the listener down.
type QUIC struct {
	addr     string
	handler  Handler
	tlsConf  *tls.Config
	listener *quic.Listener
	packet   net.PacketConn
	errC     chan error

	mu    sync.Mutex
	conns map[string]*quic.Conn
}

// NewQUIC creates a QUIC transport. If tlsConf is nil, a self-signed
// config valid for hosts is generated.
func NewQUIC(hosts []string, tlsConf *tls.Config) (*QUIC, error) {
	if tlsConf == nil {
		var err error

		tlsConf, err = generateSelfSignedTLS(hosts, 24*time.Hour)
		if err != nil {
			return nil, err
		}
	}

	return &QUIC{
		tlsConf: tlsConf,
		errC:    make(chan error, 1),
		conns:   make(map[string]*quic.Conn),
	}, nil
}

// Start listens on addr (host:port, ":0" for an ephemeral port) and
// begins accepting connections in the background.
func (q *QUIC) Start(addr string, handler Handler) error {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return err
	}

	ln, err := quic.Listen(pc, q.tlsConf, &quic.Config{MaxIdleTimeout: 30 * time.Second})
	if err != nil {
		_ = pc.Close()
		return err
	}

	q.packet = pc
	q.listener = ln
	q.handler = handler
	q.addr = ln.Addr().String()

	go q.acceptLoop()

	return nil
}

func (q *QUIC) acceptLoop() {
	for {
		conn, err := q.listener.Accept(context.Background())
		if err != nil {
			select {
			case q.errC <- err:
			default:
			}

			return
		}

		go q.serveConn(conn)
	}
}

func (q *QUIC) serveConn(conn *quic.Conn) {
	for {
		stream, err := conn.AcceptStream(context.Background())
		if err != nil {
			return
		}

		go q.serveStream(stream)
	}
}

func (q *QUIC) serveStream(stream *quic.Stream) {
	defer stream.Close()

	var lenBuf [4]byte
	if _, err := io.ReadFull(stream, lenBuf[:]); err != nil {
		return
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)

	if _, err := io.ReadFull(stream, body); err != nil {
		return
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return
	}

	if q.handler != nil {
		_ = q.handler(env)
	}
}

// Stop closes the listener and every cached peer connection.
func (q *QUIC) Stop() error {
	q.mu.Lock()
	for addr, c := range q.conns {
		_ = c.CloseWithError(0, "stopping")
		delete(q.conns, addr)
	}
	q.mu.Unlock()

	if q.listener != nil {
		_ = q.listener.Close()
	}

	if q.packet != nil {
		return q.packet.Close()
	}

	return nil
}

// Address returns the address this transport is listening on.
func (q *QUIC) Address() string { return q.addr }

// Send opens a new stream to to (dialing and caching a connection on
// first use) and writes env as one length-prefixed JSON frame.
func (q *QUIC) Send(to string, env Envelope) error {
	conn, err := q.connFor(to)
	if err != nil {
		return err
	}

	stream, err := conn.OpenStreamSync(context.Background())
	if err != nil {
		return err
	}
	defer stream.Close()

	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))

	if _, err := stream.Write(lenBuf[:]); err != nil {
		return err
	}

	_, err = stream.Write(body)

	return err
}

func (q *QUIC) connFor(addr string) (*quic.Conn, error) {
	q.mu.Lock()
	if c, ok := q.conns[addr]; ok {
		q.mu.Unlock()
		return c, nil
	}
	q.mu.Unlock()

	dialTLS := q.tlsConf.Clone()
	dialTLS.InsecureSkipVerify = true

	conn, err := quic.DialAddr(context.Background(), addr, dialTLS, &quic.Config{MaxIdleTimeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	q.mu.Lock()
	q.conns[addr] = conn
	q.mu.Unlock()

	return conn, nil
}

// Errors returns the channel on which background accept failures are
// reported (non-blocking; only the first is retained).
func (q *QUIC) Errors() <-chan error { return q.errC }
