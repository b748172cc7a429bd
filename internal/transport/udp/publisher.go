// SPDX-License-Identifier: MIT
package udp

import (
	"binaural/internal/audio"
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"
)

// StatsSource provides pipeline snapshots.
type StatsSource interface {
	Stats() audio.Stats
}

/*
UDP Packet Structure (BigEndian)

+--------------------------------------------------------------------------+
| Field              | Data Type | Size (Bytes) | Description              |
|--------------------|-----------|--------------|--------------------------|
| Sequence Number    | uint32    | 4            | Monotonically increasing |
| Timestamp          | int64     | 8            | Nanoseconds since epoch  |
| Requested Elev     | float32   | 4            | Degrees, as set          |
| Requested Az       | float32   | 4            | Degrees, as set          |
| Left Elev, Left Az | float32   | 8            | Resolved measurement     |
| Right Elev, Rt Az  | float32   | 8            | Resolved measurement     |
| Underruns          | uint64    | 8            | Silent playback blocks   |
| Overflows          | uint64    | 8            | Dropped capture blocks   |
+--------------------------------------------------------------------------+

Direction fields are NaN until the first block has been rendered.
*/

// PacketSize is the encoded size of a Packet.
const PacketSize = 4 + 8 + 6*4 + 2*8

// Packet is one telemetry datagram.
type Packet struct {
	Sequence       uint32
	Timestamp      int64
	Elevation      float32
	Azimuth        float32
	LeftElevation  float32
	LeftAzimuth    float32
	RightElevation float32
	RightAzimuth   float32
	Underruns      uint64
	Overflows      uint64
}

// ErrShortPacket is returned by ParsePacket for truncated input.
var ErrShortPacket = errors.New("udp: short telemetry packet")

// ParsePacket decodes a datagram written by the publisher.
func ParsePacket(b []byte) (Packet, error) {
	var p Packet
	if len(b) < PacketSize {
		return p, ErrShortPacket
	}
	err := binary.Read(bytes.NewReader(b), binary.BigEndian, &p)
	return p, err
}

// NewPacket fills a packet from a snapshot.
func NewPacket(seq uint32, now time.Time, s audio.Stats) Packet {
	nan := float32(math.NaN())
	p := Packet{
		Sequence:       seq,
		Timestamp:      now.UnixNano(),
		Elevation:      nan,
		Azimuth:        nan,
		LeftElevation:  nan,
		LeftAzimuth:    nan,
		RightElevation: nan,
		RightAzimuth:   nan,
		Underruns:      s.Underruns,
		Overflows:      s.Overflows,
	}
	if r := s.Resolution; r != nil {
		p.Elevation = float32(r.Requested.Elevation)
		p.Azimuth = float32(r.Requested.Azimuth)
		p.LeftElevation = float32(r.LeftElevation)
		p.LeftAzimuth = float32(r.LeftAzimuth)
		p.RightElevation = float32(r.RightElevation)
		p.RightAzimuth = float32(r.RightAzimuth)
	}
	return p
}

// UDPPublisher periodically samples pipeline stats, packs them into the
// telemetry format and sends them over UDP. It runs in a separate goroutine
// managed by Start and Stop.
type UDPPublisher struct {
	sender   *UDPSender
	source   StatsSource
	interval time.Duration

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Signals the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects ticker and doneChan during Start/Stop.

	sequenceNum  uint32
	packetBuffer *bytes.Buffer // Reusable buffer for constructing the binary packet.
}

// NewUDPPublisher creates and initializes a new UDPPublisher.
// If the provided interval is invalid (<= 0), it defaults to 100ms.
func NewUDPPublisher(interval time.Duration, sender *UDPSender, source StatsSource) (*UDPPublisher, error) {
	if sender == nil {
		return nil, errors.New("udp: sender cannot be nil")
	}
	if source == nil {
		return nil, errors.New("udp: stats source cannot be nil")
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
		logger.Warnf("invalid interval provided, defaulting to %s", interval)
	}

	return &UDPPublisher{
		sender:       sender,
		source:       source,
		interval:     interval,
		packetBuffer: bytes.NewBuffer(make([]byte, 0, PacketSize)),
	}, nil
}

// Start begins the periodic publishing process. Subsequent calls are no-ops
// while running.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		logger.Warnf("publisher Start called but already running")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Captured for the goroutine to avoid races on p.ticker/p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		logger.Infof("publishing telemetry every %s", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	logger.Debugf("publisher stopped after %d packets", p.sequenceNum)
	return nil
}

// buildAndSendPacket runs on every tick.
func (p *UDPPublisher) buildAndSendPacket() {
	p.sequenceNum++
	pkt := NewPacket(p.sequenceNum, time.Now(), p.source.Stats())

	p.packetBuffer.Reset()
	if err := binary.Write(p.packetBuffer, binary.BigEndian, &pkt); err != nil {
		logger.Errorf("packing telemetry: %v", err)
		return
	}

	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		logger.Warnf("packet %d: %v", p.sequenceNum, err)
		return
	}
	logger.Debugf("sent packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
}

// Close implements the io.Closer interface. It stops the publisher goroutine.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

// Ensure UDPPublisher satisfies the io.Closer interface at compile time.
var _ interface{ Close() error } = (*UDPPublisher)(nil)
