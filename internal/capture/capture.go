// Package capture opens a network interface and delivers raw frames to a
// bounded queue from a dedicated OS thread (design component C2).
package capture

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/gopacket/pcap"

	"firestige.xyz/otus/internal/core"
	"firestige.xyz/otus/internal/log"
)

// anyDevice is the synthetic "any" interface name, which cannot be opened
// in promiscuous mode.
const anyDevice = "any"

// Config configures a Source.
type Config struct {
	Device     string
	SnapLen    int32
	BpfFilter  string
	ReadTimeout time.Duration
	QueueCapacity int

	// RestartBackoff is the initial delay before reopening the device
	// after a mid-run read failure; it doubles after each restart up to
	// RestartBackoffMax and is not reset once reads succeed again.
	RestartBackoff    time.Duration
	RestartBackoffMax time.Duration
}

func (c Config) withDefaults() Config {
	if c.SnapLen <= 0 {
		c.SnapLen = 65535
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 500 * time.Millisecond
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 1000
	}
	if c.RestartBackoff <= 0 {
		c.RestartBackoff = 500 * time.Millisecond
	}
	if c.RestartBackoffMax <= 0 {
		c.RestartBackoffMax = 30 * time.Second
	}
	return c
}

// Source opens a single interface and posts raw frames onto a bounded
// channel. The blocking read loop runs on a goroutine locked to its own
// OS thread, matching §4.2's "dedicated OS thread" contract.
type Source struct {
	cfg    Config
	queue  chan core.RawPacket
	handle *pcap.Handle
}

// Open opens the interface (promiscuous unless it is the synthetic "any"
// device) and compiles the BPF filter if one is configured. A failure here
// is fatal at start-up per §4.2.
func Open(cfg Config) (*Source, error) {
	cfg = cfg.withDefaults()

	promiscuous := cfg.Device != anyDevice
	handle, err := pcap.OpenLive(cfg.Device, cfg.SnapLen, promiscuous, cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCaptureOpenFailed, err)
	}

	if cfg.BpfFilter != "" {
		if err := handle.SetBPFFilter(cfg.BpfFilter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("%w: bpf filter: %v", core.ErrCaptureOpenFailed, err)
		}
	}

	return &Source{
		cfg:    cfg,
		queue:  make(chan core.RawPacket, cfg.QueueCapacity),
		handle: handle,
	}, nil
}

// Packets returns the bounded channel frames are posted to. The producer
// blocks on a full channel rather than dropping (B3).
func (s *Source) Packets() <-chan core.RawPacket {
	return s.queue
}

// Run starts the blocking read loop on a dedicated OS thread and restarts
// it with exponential backoff on read failures, until ctx is cancelled.
// It returns only when ctx is done or the device cannot be reopened.
func (s *Source) Run(ctx context.Context) error {
	backoff := s.cfg.RestartBackoff

	for {
		err := s.readLoop(ctx)
		if ctx.Err() != nil {
			close(s.queue)
			return ctx.Err()
		}
		if err == nil {
			continue
		}

		if logger := log.GetLogger(); logger != nil {
			logger.WithError(err).Warnf("capture: read loop ended, restarting in %s", backoff)
		}

		select {
		case <-ctx.Done():
			close(s.queue)
			return ctx.Err()
		case <-time.After(backoff):
		}

		if err := s.reopen(); err != nil {
			close(s.queue)
			return err
		}

		backoff *= 2
		if backoff > s.cfg.RestartBackoffMax {
			backoff = s.cfg.RestartBackoffMax
		}
	}
}

// readLoop locks the calling goroutine to its OS thread for the duration
// of the blocking capture primitive, per §4.2's "own OS thread" contract.
func (s *Source) readLoop(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		data, ci, err := s.handle.ReadPacketData()
		if err == pcap.NextErrorTimeoutExpired {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrCaptureRead, err)
		}

		pkt := core.RawPacket{
			Data:       data,
			Timestamp:  ci.Timestamp,
			CaptureLen: uint32(ci.CaptureLength),
			OrigLen:    uint32(ci.Length),
		}

		select {
		case s.queue <- pkt:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Source) reopen() error {
	s.handle.Close()
	promiscuous := s.cfg.Device != anyDevice
	handle, err := pcap.OpenLive(s.cfg.Device, s.cfg.SnapLen, promiscuous, s.cfg.ReadTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrCaptureOpenFailed, err)
	}
	if s.cfg.BpfFilter != "" {
		if err := handle.SetBPFFilter(s.cfg.BpfFilter); err != nil {
			handle.Close()
			return fmt.Errorf("%w: bpf filter: %v", core.ErrCaptureOpenFailed, err)
		}
	}
	s.handle = handle
	return nil
}

// Close releases the underlying capture handle.
func (s *Source) Close() {
	s.handle.Close()
}
