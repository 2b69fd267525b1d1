// Package aggregator computes the periodic FlowSummary from the flow
// table's current state: top talkers, protocol distribution, and
// bandwidth stats (design component C6).
package aggregator

import (
	"sort"

	"firestige.xyz/otus/internal/core"
)

const topTalkersLimit = 10

// endpointAgg accumulates one IP's traffic across every flow where it
// appears as either source or destination.
type endpointAgg struct {
	bytes     uint64
	packets   uint64
	flows     int
	protocols map[uint8]struct{}
}

// Summarize computes a FlowSummary from the current flow table contents.
// totalFlowsSeen is the cumulative count of flows ever created (tracked by
// the caller, since the table itself only knows about currently-live
// flows); activeFlows is the snapshot passed in.
func Summarize(activeFlows []*core.NetworkFlow, totalFlowsSeen int, now int64) core.FlowSummary {
	byIPBytes := make(map[string]*endpointAgg)
	byIPPackets := make(map[string]*endpointAgg)
	byProtocol := make(map[uint8]*core.ProtocolTotals)

	var totalBytes, totalPackets uint64
	var sumByteRate, sumPacketRate, peakRate float64

	for _, f := range activeFlows {
		srcKey := f.Tuple.SrcIP.String()
		dstKey := f.Tuple.DstIP.String()

		addEndpoint(byIPBytes, srcKey, f.BytesSent, f.PacketsSent, f.Tuple.Protocol)
		addEndpoint(byIPBytes, dstKey, f.BytesReceived, f.PacketsReceived, f.Tuple.Protocol)
		addEndpoint(byIPPackets, srcKey, f.BytesSent, f.PacketsSent, f.Tuple.Protocol)
		addEndpoint(byIPPackets, dstKey, f.BytesReceived, f.PacketsReceived, f.Tuple.Protocol)

		flowBytes := f.BytesSent + f.BytesReceived
		flowPackets := f.PacketsSent + f.PacketsReceived
		totalBytes += flowBytes
		totalPackets += flowPackets

		pt, ok := byProtocol[f.Tuple.Protocol]
		if !ok {
			pt = &core.ProtocolTotals{Protocol: f.Tuple.Protocol}
			byProtocol[f.Tuple.Protocol] = pt
		}
		pt.FlowsCount++
		pt.BytesTotal += flowBytes
		pt.PacketsTotal += flowPackets

		sumByteRate += f.BytesPerSec
		sumPacketRate += f.PacketsPerSec
		if f.BytesPerSec > peakRate {
			peakRate = f.BytesPerSec
		}
	}

	summary := core.FlowSummary{
		Timestamp:           now,
		TotalFlowsInWindow:  totalFlowsSeen,
		ActiveFlowsCount:    len(activeFlows),
		TopTalkersBytes:     topTalkers(byIPBytes, topTalkersLimit, byBytes),
		TopTalkersPackets:   topTalkers(byIPPackets, topTalkersLimit, byPackets),
		ProtocolDistribution: protocolDistribution(byProtocol, len(activeFlows), totalBytes),
		BandwidthUsage:      bandwidthUsage(sumByteRate, sumPacketRate, peakRate, len(activeFlows)),
	}
	return summary
}

func addEndpoint(m map[string]*endpointAgg, ip string, bytes, packets uint64, protocol uint8) {
	agg, ok := m[ip]
	if !ok {
		agg = &endpointAgg{protocols: make(map[uint8]struct{})}
		m[ip] = agg
	}
	agg.bytes += bytes
	agg.packets += packets
	agg.flows++
	agg.protocols[protocol] = struct{}{}
}

type sortKey int

const (
	byBytes sortKey = iota
	byPackets
)

func topTalkers(m map[string]*endpointAgg, limit int, key sortKey) []core.TopTalker {
	talkers := make([]core.TopTalker, 0, len(m))
	for ip, agg := range m {
		protocols := make([]uint8, 0, len(agg.protocols))
		for p := range agg.protocols {
			protocols = append(protocols, p)
		}
		sort.Slice(protocols, func(i, j int) bool { return protocols[i] < protocols[j] })

		talkers = append(talkers, core.TopTalker{
			IP:           ip,
			BytesTotal:   agg.bytes,
			PacketsTotal: agg.packets,
			FlowsCount:   agg.flows,
			Protocols:    protocols,
		})
	}

	sort.Slice(talkers, func(i, j int) bool {
		if key == byBytes {
			return talkers[i].BytesTotal > talkers[j].BytesTotal
		}
		return talkers[i].PacketsTotal > talkers[j].PacketsTotal
	})

	if len(talkers) > limit {
		talkers = talkers[:limit]
	}
	return talkers
}

// protocolDistribution computes per-protocol totals and percentages,
// suppressing NaN when a denominator is zero (§4.6's percentage rule).
func protocolDistribution(byProtocol map[uint8]*core.ProtocolTotals, totalFlows int, totalBytes uint64) []core.ProtocolTotals {
	out := make([]core.ProtocolTotals, 0, len(byProtocol))
	for _, pt := range byProtocol {
		row := *pt
		row.PercentageOfFlows = safePercent(float64(pt.FlowsCount), float64(totalFlows))
		row.PercentageOfBytes = safePercent(float64(pt.BytesTotal), float64(totalBytes))
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Protocol < out[j].Protocol })
	return out
}

func safePercent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}

// bandwidthUsage implements B2: an empty flow table yields all-zero
// fields, never NaN from a 0/0 mean.
func bandwidthUsage(sumByteRate, sumPacketRate, peakRate float64, activeFlows int) core.BandwidthUsage {
	usage := core.BandwidthUsage{
		TotalBytesPerSec:      sumByteRate,
		TotalPacketsPerSec:    sumPacketRate,
		PeakBandwidthInWindow: peakRate,
	}
	if activeFlows > 0 {
		usage.AverageBandwidthInWindow = sumByteRate / float64(activeFlows)
	}
	return usage
}
