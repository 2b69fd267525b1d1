// Package core defines core types with zero external dependencies.
package core

import (
	"net/netip"
	"time"
)

// EthernetHeader represents L2 Ethernet frame header.
type EthernetHeader struct {
	SrcMAC    [6]byte
	DstMAC    [6]byte
	EtherType uint16   // 0x0800=IPv4, 0x86DD=IPv6, 0x8100=VLAN
	VLANs     []uint16 // 0~2 VLAN IDs (QinQ scenarios have 2)
}

// IPHeader represents L3 IP header (IPv4/IPv6).
type IPHeader struct {
	Version  uint8
	SrcIP    netip.Addr // Go stdlib value type, zero allocation
	DstIP    netip.Addr
	Protocol uint8 // TCP=6, UDP=17, others counted but not 5-tupled
	TTL      uint8
	TotalLen uint16
}

// TransportHeader represents L4 transport layer header (TCP/UDP).
type TransportHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8 // redundant copy of IPHeader.Protocol, for convenience
	TCPFlags uint8 // only populated for TCP
	SeqNum   uint32
	AckNum   uint32
}

// Protocol numbers used throughout the pipeline.
const (
	ProtocolTCP = 6
	ProtocolUDP = 17
)

// Connection5Tuple identifies a flow. It is an immutable value; equality
// treats it as an ordered tuple, so callers that want direction-agnostic
// matching must check both a tuple and its Reversed() form themselves.
type Connection5Tuple struct {
	SrcIP    netip.Addr
	DstIP    netip.Addr
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// Reversed swaps source and destination endpoints.
func (t Connection5Tuple) Reversed() Connection5Tuple {
	return Connection5Tuple{
		SrcIP:    t.DstIP,
		DstIP:    t.SrcIP,
		SrcPort:  t.DstPort,
		DstPort:  t.SrcPort,
		Protocol: t.Protocol,
	}
}

// SocketId is an opaque identifier assigned by the resolver: a process-table
// inode on Linux, or a synthesized monotonically increasing value where no
// native socket id exists. Unique only within the lifetime of one resolver
// snapshot.
type SocketId uint64

// ProcessIdentity is produced by the resolver and is stable for a process's
// lifetime; name/container tag/user name may be refreshed on each scan.
type ProcessIdentity struct {
	PID          int
	Name         string
	ContainerTag string // empty means host (no container)
	UserName     string
}

// TcpState is a closed sum type over the TCP connection state machine.
type TcpState int

const (
	TcpUnknown TcpState = iota
	TcpSynSent
	TcpSynReceived
	TcpEstablished
	TcpFinWait
	TcpClosed
	TcpReset
)

func (s TcpState) String() string {
	switch s {
	case TcpSynSent:
		return "SynSent"
	case TcpSynReceived:
		return "SynReceived"
	case TcpEstablished:
		return "Established"
	case TcpFinWait:
		return "FinWait"
	case TcpClosed:
		return "Closed"
	case TcpReset:
		return "Reset"
	default:
		return "Unknown"
	}
}

// PacketDirection is a closed sum type: a packet is either leaving the host
// (Outbound) or arriving at it (Inbound), relative to the attributed process.
type PacketDirection int

const (
	DirectionOutbound PacketDirection = iota
	DirectionInbound
)

func (d PacketDirection) String() string {
	if d == DirectionInbound {
		return "inbound"
	}
	return "outbound"
}

// PacketSample is one entry in a flow's bounded sample vector.
type PacketSample struct {
	Size      int
	Timestamp time.Time
}

// NetworkFlow is keyed by Connection5Tuple in the flow table.
type NetworkFlow struct {
	Tuple Connection5Tuple

	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64

	StartTime time.Time
	LastSeen  time.Time

	// Samples is a bounded ring of recent packet sizes, used to derive
	// avg_packet_size without retaining unbounded history.
	Samples []PacketSample

	// Gaps is a bounded ring of inter-arrival gaps between consecutive
	// packets of this flow, in seconds.
	Gaps []float64

	TCPState TcpState

	// Derived metrics, recomputed on every update.
	AvgPacketSize   float64
	PacketsPerSec   float64
	BytesPerSec     float64
}

// Duration returns LastSeen - StartTime.
func (f *NetworkFlow) Duration() time.Duration {
	return f.LastSeen.Sub(f.StartTime)
}

// ProcessPacketRecord is one entry in a process's bounded packet audit ring.
type ProcessPacketRecord struct {
	Direction PacketDirection
	Protocol  uint8
	Tuple     Connection5Tuple
	Size      int
	Timestamp time.Time
}

// RateSample is one entry in a process's sent/received rate history.
type RateSample struct {
	Timestamp time.Time
	BytesPerS float64
}

// ProcessStats is keyed by pid.
type ProcessStats struct {
	Identity ProcessIdentity

	BytesSent       uint64
	BytesReceived   uint64
	PacketsSent     uint64
	PacketsReceived uint64

	// RateWindow is the most recently computed moving bytes/s, over a
	// sliding wall-clock window.
	RateWindow float64

	SentHistory     []RateSample
	ReceivedHistory []RateSample

	PacketHistory []ProcessPacketRecord

	HasAlert         bool
	LastAlertFiredAt time.Time

	// bookkeeping for rate sampling and dead-process detection; not part
	// of the public data model but travels with the record.
	lastRateSampleAt     time.Time
	bytesAtLastSample    uint64
	sentAtLastSample     uint64
	receivedAtLastSample uint64
	missedRefreshStreak  int
}

// LastRateSampleAt returns the wall-clock time of the most recent 1Hz rate
// sample, zero if none has been taken yet.
func (p *ProcessStats) LastRateSampleAt() time.Time { return p.lastRateSampleAt }

// SetLastRateSample records the bookkeeping for the most recent rate sample:
// the combined cumulative total (for RateWindow) plus the per-direction
// cumulative counters (for sentRate/receivedRate).
func (p *ProcessStats) SetLastRateSample(at time.Time, bytes, sent, received uint64) {
	p.lastRateSampleAt = at
	p.bytesAtLastSample = bytes
	p.sentAtLastSample = sent
	p.receivedAtLastSample = received
}

// BytesAtLastSample returns the cumulative byte count observed at the last
// rate sample.
func (p *ProcessStats) BytesAtLastSample() uint64 { return p.bytesAtLastSample }

// SentAtLastSample returns the cumulative sent-byte count observed at the
// last rate sample.
func (p *ProcessStats) SentAtLastSample() uint64 { return p.sentAtLastSample }

// ReceivedAtLastSample returns the cumulative received-byte count observed
// at the last rate sample.
func (p *ProcessStats) ReceivedAtLastSample() uint64 { return p.receivedAtLastSample }

// MissedRefreshStreak counts consecutive dead-process prune passes in which
// this pid was absent from the resolver's latest refresh.
func (p *ProcessStats) MissedRefreshStreak() int { return p.missedRefreshStreak }

// BumpMissedRefresh increments the missed-refresh streak.
func (p *ProcessStats) BumpMissedRefresh() { p.missedRefreshStreak++ }

// ResetMissedRefresh clears the missed-refresh streak.
func (p *ProcessStats) ResetMissedRefresh() { p.missedRefreshStreak = 0 }

// AlertAction is a closed sum type over the actions an Alert can execute.
type AlertAction struct {
	Kind     AlertActionKind
	Template string // only used when Kind == AlertActionCustomCommand
}

type AlertActionKind int

const (
	AlertActionKill AlertActionKind = iota
	AlertActionCustomCommand
	AlertActionNotify
)

func (k AlertActionKind) String() string {
	switch k {
	case AlertActionKill:
		return "kill"
	case AlertActionCustomCommand:
		return "custom_command"
	case AlertActionNotify:
		return "notify"
	default:
		return "unknown"
	}
}

// Alert is keyed by pid.
type Alert struct {
	PID            int
	ThresholdBytes uint64
	Action         AlertAction
	Cooldown       time.Duration
}

// ProtocolTotals is one row of the protocol distribution table.
type ProtocolTotals struct {
	Protocol              uint8
	FlowsCount            int
	BytesTotal            uint64
	PacketsTotal           uint64
	PercentageOfFlows     float64
	PercentageOfBytes     float64
}

// SystemStats is aggregated from ProcessStats, per protocol.
type SystemStats struct {
	ProtocolTotals []ProtocolTotals
	TotalBytes     uint64
	TotalPackets   uint64

	// SystemQuotaBytes is the optional configured system-wide quota; zero
	// means unconfigured. SystemQuotaExceeded uses 80% hysteresis on
	// clearing, matching the original implementation it was ported from.
	SystemQuotaBytes    uint64
	SystemQuotaExceeded bool
}

// TopTalker is one row of top_talkers_by_bytes / top_talkers_by_packets.
type TopTalker struct {
	IP           string
	BytesTotal   uint64
	PacketsTotal uint64
	FlowsCount   int
	Protocols    []uint8
}

// BandwidthUsage summarizes flow rates over the whole table.
type BandwidthUsage struct {
	TotalBytesPerSec     float64
	TotalPacketsPerSec   float64
	PeakBandwidthInWindow float64
	AverageBandwidthInWindow float64
}

// SecurityAwareness is emitted on the wire but never populated; actual
// detection logic is a future extension.
type SecurityAwareness struct {
	SuspiciousActivityIndicators map[string]any `json:"suspicious_activity_indicators"`
	PerformanceImpactOfAttacks   map[string]any `json:"performance_impact_of_attacks"`
	NetworkHealthCorrelation     struct {
		HealthScore    float64 `json:"health_score"`
		StatusMessage  string  `json:"status_message"`
	} `json:"network_health_correlation"`
}

// FlowSummary is the periodic aggregation result, published to the
// downstream bus.
type FlowSummary struct {
	Timestamp            int64            `json:"timestamp"`
	TotalFlowsInWindow    int              `json:"total_flows_in_window"`
	ActiveFlowsCount      int              `json:"active_flows_count"`
	TopTalkersBytes       []TopTalker      `json:"top_talkers_bytes"`
	TopTalkersPackets     []TopTalker      `json:"top_talkers_packets"`
	ProtocolDistribution  []ProtocolTotals `json:"protocol_distribution"`
	BandwidthUsage        BandwidthUsage   `json:"bandwidth_usage"`
	SecurityAwareness     SecurityAwareness `json:"security_awareness"`
}

// DeviceRecord is an ARP-derived endpoint/MAC record published on the
// device discovery topic.
type DeviceRecord struct {
	IPAddr    string `json:"ip_addr"`
	MACAddr   string `json:"mac_addr"`
	LastSeen  int64  `json:"last_seen"`
	Timestamp int64  `json:"timestamp"`
}

// SnapshotView is an immutable point-in-time copy of core tables handed to
// consumers. SequenceNum increments once per aggregation period.
type SnapshotView struct {
	SequenceNum  uint64
	GeneratedAt  time.Time
	Processes    map[int]ProcessStats
	Alerts       map[int]Alert
	System       SystemStats
	RecentSummary FlowSummary
}
