package discovery

import (
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ParseARPReply extracts an ARPObservation from a raw frame, returning
// ok=false for anything that is not an ARP reply (gratuitous ARP requests
// are also accepted, since they carry the same sender IP/MAC pair).
func ParseARPReply(data []byte, timestamp time.Time) (ARPObservation, bool) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	arpLayer := packet.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return ARPObservation{}, false
	}
	arp, ok := arpLayer.(*layers.ARP)
	if !ok {
		return ARPObservation{}, false
	}
	if arp.Operation != layers.ARPReply && arp.Operation != layers.ARPRequest {
		return ARPObservation{}, false
	}

	return ARPObservation{
		IP:        net.IP(arp.SourceProtAddress),
		MAC:       net.HardwareAddr(arp.SourceHwAddress),
		Timestamp: timestamp,
	}, true
}
