package broadcast

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/maximewewer/gps-clock/internal/clock"
	"github.com/maximewewer/gps-clock/pkg/logger"
	"golang.org/x/time/rate"
)

// Broadcaster sends one text datagram per tick to a fixed destination
type Broadcaster struct {
	dest string
	conn *net.UDPConn
	bus  evbus.Bus

	sent   atomic.Uint64
	errors atomic.Uint64
	errLog rate.Sometimes
}

// NewBroadcaster dials the destination
func NewBroadcaster(dest string) (*Broadcaster, error) {
	addr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("broadcast: resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("broadcast: dial udp: %w", err)
	}

	return &Broadcaster{
		dest:   dest,
		conn:   conn,
		errLog: rate.Sometimes{Interval: 30 * time.Second},
	}, nil
}

// Send writes one datagram
func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_, err := b.conn.Write(payload)
	return err
}

// OnTick sends the tick line. Errors are counted and logged sparingly.
func (b *Broadcaster) OnTick(t clock.Tick) {
	if err := b.Send(FormatLine(t)); err != nil {
		b.errors.Add(1)
		b.errLog.Do(func() {
			logger.Errorf("broadcast", err, "UDP send to %s failed", b.dest)
		})
		return
	}
	b.sent.Add(1)
}

// Attach subscribes to the clock tick topic
func (b *Broadcaster) Attach(bus evbus.Bus) error {
	if err := bus.Subscribe(clock.TopicSecond, b.OnTick); err != nil {
		return err
	}
	b.bus = bus
	logger.Infof("broadcast", "UDP time broadcast to %s", b.dest)
	return nil
}

// Sent returns the number of datagrams sent
func (b *Broadcaster) Sent() uint64 {
	return b.sent.Load()
}

// Errors returns the number of failed sends
func (b *Broadcaster) Errors() uint64 {
	return b.errors.Load()
}

// Close unsubscribes and closes the socket
func (b *Broadcaster) Close() error {
	if b.bus != nil {
		_ = b.bus.Unsubscribe(clock.TopicSecond, b.OnTick)
		b.bus = nil
	}
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
