// Package decoder implements L2-L4 protocol stack decoding.
package decoder

import "firestige.xyz/otus/internal/core"

// Decoder decodes raw packets into structured format.
type Decoder interface {
	Decode(raw core.RawPacket) (core.DecodedPacket, error)
}

// Config tunes decoding behavior. LinkLayerless marks a capture source that
// delivers bare IP datagrams instead of Ethernet frames (e.g. a tun device
// or the synthetic "any" interface on some platforms).
type Config struct {
	LinkLayerless bool
}

// StandardDecoder implements Decoder against the hand-rolled L2-L4 byte
// parsers in this package: no reflection, no external dependency.
type StandardDecoder struct {
	cfg Config
}

// NewStandardDecoder builds a StandardDecoder.
func NewStandardDecoder(cfg Config) *StandardDecoder {
	return &StandardDecoder{cfg: cfg}
}

// Decode implements the rules in the decoding design: try Ethernet framing
// first; fall back to IP-direct when the link layer is absent or framing
// fails. Malformed frames return core.ErrPacketTooShort /
// core.ErrUnsupportedProto; callers drop the packet and bump a counter
// rather than treat the error as fatal.
func (d *StandardDecoder) Decode(raw core.RawPacket) (core.DecodedPacket, error) {
	if len(raw.Data) == 0 {
		return core.DecodedPacket{Kind: core.DecodeUndecodable}, core.ErrPacketTooShort
	}

	wireLen := len(raw.Data)
	if raw.OrigLen > 0 {
		wireLen = int(raw.OrigLen)
	}
	payload := raw.Data
	var eth core.EthernetHeader

	if !d.cfg.LinkLayerless {
		var err error
		eth, payload, err = decodeEthernet(raw.Data)
		if err != nil {
			// Retry as a bare IP datagram: some sources mix framed and
			// link-layer-less feeds.
			payload = raw.Data
		} else if eth.EtherType != 0x0800 && eth.EtherType != 0x86DD {
			return core.DecodedPacket{Kind: core.DecodeOtherProtocol, Ethernet: eth, WireLen: wireLen}, nil
		}
	}

	ip, l4payload, err := decodeIP(payload)
	if err != nil {
		return core.DecodedPacket{Kind: core.DecodeUndecodable}, err
	}

	if ip.Protocol != core.ProtocolTCP && ip.Protocol != core.ProtocolUDP {
		return core.DecodedPacket{
			Kind:     core.DecodeOtherProtocol,
			Ethernet: eth,
			IP:       ip,
			WireLen:  wireLen,
		}, nil
	}

	transport, _, err := decodeTransport(l4payload, ip.Protocol)
	if err != nil {
		return core.DecodedPacket{Kind: core.DecodeUndecodable}, err
	}

	kind := core.DecodeUDP5Tuple
	if ip.Protocol == core.ProtocolTCP {
		kind = core.DecodeTCP5Tuple
	}

	return core.DecodedPacket{
		Kind:      kind,
		Ethernet:  eth,
		IP:        ip,
		Transport: transport,
		WireLen:   wireLen,
		TCPFlags:  transport.TCPFlags,
		Tuple: core.Connection5Tuple{
			SrcIP:    ip.SrcIP,
			DstIP:    ip.DstIP,
			SrcPort:  transport.SrcPort,
			DstPort:  transport.DstPort,
			Protocol: ip.Protocol,
		},
	}, nil
}
