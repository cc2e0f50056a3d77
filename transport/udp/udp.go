// Package udp sends messages as UDP datagrams through the network transport
// of hashicorp/memberlist. Only the packet layer is used; membership is
// handled by the failure detector.
package udp

import (
	"fmt"
	stdlog "log"
	"sync"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/memberlist"

	"github.com/maxpoletaev/ringkv/membership"
	"github.com/maxpoletaev/ringkv/transport"
)

// maxPayloadSize is the largest UDP payload over IPv4.
const maxPayloadSize = 65507

type Config struct {
	// BindAddr is the local address to listen on.
	BindAddr string

	// BindPort is the local port for both UDP and the TCP listener memberlist
	// opens next to it. Zero picks a free port.
	BindPort int

	// QueueSize bounds the number of payloads buffered between ticks.
	QueueSize int

	Logger log.Logger
}

func DefaultConfig() *Config {
	return &Config{
		BindAddr:  "0.0.0.0",
		BindPort:  7946,
		QueueSize: 10000,
		Logger:    log.NewNopLogger(),
	}
}

type Transport struct {
	net    *memberlist.NetTransport
	inbox  *transport.Queue
	logger log.Logger
	done   chan struct{}
	wg     sync.WaitGroup
	closed int32
}

var _ transport.Transport = (*Transport)(nil)

func New(conf *Config) (*Transport, error) {
	logger := conf.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	logger = log.With(logger, "component", "udp")

	nt, err := memberlist.NewNetTransport(&memberlist.NetTransportConfig{
		BindAddrs: []string{conf.BindAddr},
		BindPort:  conf.BindPort,
		Logger:    stdlog.New(log.NewStdlibAdapter(level.Debug(logger)), "", 0),
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create udp transport: %w", err)
	}

	t := &Transport{
		net:    nt,
		inbox:  transport.NewQueue(conf.QueueSize),
		logger: logger,
		done:   make(chan struct{}),
	}

	t.wg.Add(2)
	go t.consumePackets()
	go t.rejectStreams()

	return t, nil
}

// Port returns the port the transport is bound to.
func (t *Transport) Port() int {
	return t.net.GetAutoBindPort()
}

func (t *Transport) consumePackets() {
	defer t.wg.Done()

	for {
		select {
		case pkt := <-t.net.PacketCh():
			if len(pkt.Buf) == 0 {
				continue
			}

			if !t.inbox.Push(pkt.Buf) {
				level.Warn(t.logger).Log("msg", "inbound queue is full, packet dropped", "from", pkt.From)
			}

		case <-t.done:
			return
		}
	}
}

// rejectStreams closes the TCP connections memberlist accepts, as messages
// only travel over UDP.
func (t *Transport) rejectStreams() {
	defer t.wg.Done()

	for {
		select {
		case conn := <-t.net.StreamCh():
			_ = conn.Close()
		case <-t.done:
			return
		}
	}
}

func (t *Transport) Send(to membership.PeerID, payload []byte) error {
	if atomic.LoadInt32(&t.closed) == 1 {
		return transport.ErrClosed
	}

	if len(payload) > maxPayloadSize {
		return fmt.Errorf("payload of %d bytes exceeds udp limit", len(payload))
	}

	if _, err := t.net.WriteTo(payload, to.String()); err != nil {
		return fmt.Errorf("failed to send packet to %s: %w", to, err)
	}

	return nil
}

func (t *Transport) Receive() [][]byte {
	return t.inbox.Drain()
}

func (t *Transport) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return transport.ErrClosed
	}

	close(t.done)

	err := t.net.Shutdown()
	t.wg.Wait()

	return err
}
