package resolver

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"firestige.xyz/otus/internal/core"
)

func TestParseSocketInode(t *testing.T) {
	inode, ok := parseSocketInode("socket:[12345]")
	require.True(t, ok)
	require.Equal(t, uint64(12345), inode)

	_, ok = parseSocketInode("anon_inode:[eventpoll]")
	require.False(t, ok)

	_, ok = parseSocketInode("/dev/null")
	require.False(t, ok)
}

func TestTagFromCgroupLineDocker(t *testing.T) {
	tag, ok := tagFromCgroupLine("0::/system.slice/docker-ab12cd34ef567890ab12cd34ef567890ab12cd34ef567890ab12cd34ef5678.scope")
	require.True(t, ok)
	require.Equal(t, "docker:ab12cd34ef56", tag)
}

func TestTagFromCgroupLinePodman(t *testing.T) {
	tag, ok := tagFromCgroupLine("0::/machine.slice/libpod-aa11bb22cc33dd44ee55ff6600112233aabbccddeeff00112233445566778899.scope")
	require.True(t, ok)
	require.Equal(t, "podman:aa11bb22cc33", tag)
}

func TestTagFromCgroupLineContainerd(t *testing.T) {
	tag, ok := tagFromCgroupLine("0::/system.slice/containerd.service")
	require.True(t, ok)
	require.Equal(t, "containerd", tag)
}

func TestTagFromCgroupLineNoMatch(t *testing.T) {
	_, ok := tagFromCgroupLine("0::/user.slice/user-1000.slice")
	require.False(t, ok)
}

func TestNextSyntheticIDMonotonic(t *testing.T) {
	r := &Resolver{}
	a := r.NextSyntheticID()
	b := r.NextSyntheticID()
	require.Less(t, uint64(a), uint64(b))
}

func TestLookupFindsForwardAndReverseTuple(t *testing.T) {
	r := &Resolver{
		m1: map[core.SocketId]core.ProcessIdentity{
			7: {PID: 42, Name: "curl"},
		},
		m2: map[core.Connection5Tuple]core.SocketId{},
	}

	tuple := core.Connection5Tuple{
		SrcIP:    netip.MustParseAddr("10.0.0.1"),
		DstIP:    netip.MustParseAddr("10.0.0.2"),
		SrcPort:  4000,
		DstPort:  443,
		Protocol: core.ProtocolTCP,
	}
	r.m2[tuple] = 7

	id, ok := r.Lookup(tuple)
	require.True(t, ok)
	require.Equal(t, 42, id.PID)

	id, ok = r.Lookup(tuple.Reversed())
	require.True(t, ok)
	require.Equal(t, 42, id.PID)

	_, ok = r.Lookup(core.Connection5Tuple{SrcPort: 1, DstPort: 2})
	require.False(t, ok)
}

func TestKnownPIDs(t *testing.T) {
	r := &Resolver{
		m1: map[core.SocketId]core.ProcessIdentity{
			1: {PID: 10},
			2: {PID: 20},
			3: {PID: 10},
		},
	}
	pids := r.KnownPIDs()
	require.Len(t, pids, 2)
	_, ok := pids[10]
	require.True(t, ok)
	_, ok = pids[20]
	require.True(t, ok)
}
