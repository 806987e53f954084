// Package transport implements the point-to-point messaging primitive
// the gravity solver's collectives are built on, plus two concrete
// Transports: an in-process one for single-binary simulation of P
// ranks, and a QUIC-based one for real distributed deployment.
//
// Wire framing is deliberately left to this package rather than fixed
// by the caller; it picks one so the four collective primitives
// (AllGather, AllToAll, SendRecv, AllReduceSum — see collective.go)
// have something concrete to run over.
package transport

import "time"

// Envelope is a transport-level message wrapper exchanged between ranks.
type Envelope struct {
	SenderRank    int
	Round         uint32
	Payload       []byte
	TimestampUnix int64
}

// Handler is invoked by a Transport upon message arrival.
type Handler func(Envelope) error

// Transport abstracts a bidirectional messaging channel between ranks,
// each addressed by an opaque string (an in-process rank id, or a
// network address). It is the sole crossing point between one rank's
// owned Tree/Pool and any other rank's.
type Transport interface {
	Start(address string, handler Handler) error
	Stop() error
	Address() string
	Send(to string, env Envelope) error
}

// Codec defines payload serialization for envelope bodies.
type Codec interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	ContentType() string
}

// NowUnix stamps an envelope with the current time.
func NowUnix() int64 { return time.Now().UnixNano() }
