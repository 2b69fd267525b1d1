// Package resolver periodically rebuilds the socket-id→process and
// 5-tuple→socket-id maps from /proc, per the design's Socket Resolver (C3).
package resolver

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/user"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/procfs"

	"firestige.xyz/otus/internal/core"
)

// Resolver owns M1 (SocketId → ProcessIdentity) and M2 (Connection5Tuple →
// SocketId), swapped in atomically on every Refresh.
type Resolver struct {
	fs procfs.FS

	containerAware bool

	mu          sync.RWMutex
	m1          map[core.SocketId]core.ProcessIdentity
	m2          map[core.Connection5Tuple]core.SocketId
	lastRefresh time.Time

	synthCounter atomic.Uint64
}

// New opens the default /proc mount.
func New(containerAware bool) (*Resolver, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("resolver: open procfs: %w", err)
	}
	return &Resolver{
		fs:             fs,
		containerAware: containerAware,
		m1:             make(map[core.SocketId]core.ProcessIdentity),
		m2:             make(map[core.Connection5Tuple]core.SocketId),
	}, nil
}

// LastRefresh returns the wall-clock time of the last successful refresh.
func (r *Resolver) LastRefresh() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRefresh
}

// Lookup resolves a 5-tuple to a process identity, trying the tuple and
// then its reverse, per the per-process accumulator's matching rule.
func (r *Resolver) Lookup(tuple core.Connection5Tuple) (core.ProcessIdentity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if sid, ok := r.m2[tuple]; ok {
		if id, ok := r.m1[sid]; ok {
			return id, true
		}
	}
	if sid, ok := r.m2[tuple.Reversed()]; ok {
		if id, ok := r.m1[sid]; ok {
			return id, true
		}
	}
	return core.ProcessIdentity{}, false
}

// KnownPIDs returns the set of pids observed in the most recent refresh,
// used by the dead-process pruner.
func (r *Resolver) KnownPIDs() map[int]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pids := make(map[int]struct{}, len(r.m1))
	for _, id := range r.m1 {
		pids[id.PID] = struct{}{}
	}
	return pids
}

// Refresh rebuilds M1 and M2 from scratch and swaps them in atomically;
// readers never observe a half-built map because the swap is a single
// pointer-protected assignment under the write lock. A failure leaves the
// previous maps in place (core.ErrResolverUnavailable).
func (r *Resolver) Refresh(ctx context.Context) error {
	procs, err := r.fs.AllProcs()
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrResolverUnavailable, err)
	}

	m1 := make(map[core.SocketId]core.ProcessIdentity)
	inodeToIdentity := make(map[uint64]core.ProcessIdentity)

	for _, p := range procs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		identity, inodes, ok := r.describeProcess(p)
		if !ok {
			continue
		}
		for _, inode := range inodes {
			inodeToIdentity[inode] = identity
			m1[core.SocketId(inode)] = identity
		}
	}

	m2 := make(map[core.Connection5Tuple]core.SocketId)
	r.collectConnections(m2, inodeToIdentity)

	r.mu.Lock()
	r.m1 = m1
	r.m2 = m2
	r.lastRefresh = time.Now()
	r.mu.Unlock()

	return nil
}

// describeProcess reads name/user/container tag and the inode set of a
// process's open sockets. Returns ok=false for processes that exited
// between AllProcs() and the per-process read (a normal race, not an
// error).
func (r *Resolver) describeProcess(p procfs.Proc) (core.ProcessIdentity, []uint64, bool) {
	name, err := p.Comm()
	if err != nil || name == "" {
		exe, exeErr := p.Executable()
		if exeErr != nil {
			return core.ProcessIdentity{}, nil, false
		}
		name = exe
	}

	identity := core.ProcessIdentity{
		PID:  p.PID,
		Name: name,
	}

	if status, err := p.NewStatus(); err == nil && len(status.UIDs) > 0 {
		if u, err := user.LookupId(status.UIDs[0]); err == nil {
			identity.UserName = u.Username
		}
	}

	if r.containerAware {
		identity.ContainerTag = containerTag(p.PID)
	}

	fds, err := p.FileDescriptorTargets()
	if err != nil {
		return identity, nil, true
	}

	inodes := make([]uint64, 0, len(fds))
	for _, target := range fds {
		if inode, ok := parseSocketInode(target); ok {
			inodes = append(inodes, inode)
		}
	}
	return identity, inodes, true
}

// parseSocketInode extracts N from a "socket:[N]" fd symlink target.
func parseSocketInode(target string) (uint64, bool) {
	const prefix, suffix = "socket:[", "]"
	if !strings.HasPrefix(target, prefix) || !strings.HasSuffix(target, suffix) {
		return 0, false
	}
	var n uint64
	_, err := fmt.Sscanf(target[len(prefix):len(target)-len(suffix)], "%d", &n)
	if err != nil {
		return 0, false
	}
	return n, true
}

// collectConnections enumerates TCP/UDP (v4 and v6) connection tables and
// maps each resolvable inode to its 5-tuple. Inodes with no matching
// process are skipped; they surface later as SocketMapMiss.
func (r *Resolver) collectConnections(m2 map[core.Connection5Tuple]core.SocketId, inodeToIdentity map[uint64]core.ProcessIdentity) {
	addTCP := func(lines []procfs.NetTCPLine) {
		for _, l := range lines {
			if _, known := inodeToIdentity[l.Inode]; !known {
				continue
			}
			tuple, ok := tupleFromTCPLine(l)
			if !ok {
				continue
			}
			m2[tuple] = core.SocketId(l.Inode)
		}
	}
	addUDP := func(lines []procfs.NetUDPLine) {
		for _, l := range lines {
			if _, known := inodeToIdentity[l.Inode]; !known {
				continue
			}
			tuple, ok := tupleFromUDPLine(l)
			if !ok {
				continue
			}
			m2[tuple] = core.SocketId(l.Inode)
		}
	}

	if lines, err := r.fs.NetTCP(); err == nil {
		addTCP(lines)
	}
	if lines, err := r.fs.NetTCP6(); err == nil {
		addTCP(lines)
	}
	if lines, err := r.fs.NetUDP(); err == nil {
		addUDP(lines)
	}
	if lines, err := r.fs.NetUDP6(); err == nil {
		addUDP(lines)
	}
}

func tupleFromTCPLine(l procfs.NetTCPLine) (core.Connection5Tuple, bool) {
	src, ok := addrFromIP(l.LocalAddr)
	if !ok {
		return core.Connection5Tuple{}, false
	}
	dst, ok := addrFromIP(l.RemAddr)
	if !ok {
		return core.Connection5Tuple{}, false
	}
	return core.Connection5Tuple{
		SrcIP:    src,
		DstIP:    dst,
		SrcPort:  uint16(l.LocalPort),
		DstPort:  uint16(l.RemPort),
		Protocol: core.ProtocolTCP,
	}, true
}

func tupleFromUDPLine(l procfs.NetUDPLine) (core.Connection5Tuple, bool) {
	src, ok := addrFromIP(l.LocalAddr)
	if !ok {
		return core.Connection5Tuple{}, false
	}
	dst, ok := addrFromIP(l.RemAddr)
	if !ok {
		return core.Connection5Tuple{}, false
	}
	return core.Connection5Tuple{
		SrcIP:    src,
		DstIP:    dst,
		SrcPort:  uint16(l.LocalPort),
		DstPort:  uint16(l.RemPort),
		Protocol: core.ProtocolUDP,
	}, true
}

// NextSyntheticID produces a monotonically increasing id for platforms or
// connection kinds without a native socket identifier. Stable only within
// one refresh's lifetime, per the design's open question on cross-refresh
// attribution.
func (r *Resolver) NextSyntheticID() core.SocketId {
	return core.SocketId(r.synthCounter.Add(1))
}

// containerTag scans /proc/<pid>/cgroup and maps known prefixes to tags.
func containerTag(pid int) string {
	f, err := os.Open(fmt.Sprintf("/proc/%d/cgroup", pid))
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if tag, ok := tagFromCgroupLine(line); ok {
			return tag
		}
	}
	return ""
}

// tagFromCgroupLine implements the container-tag extraction rules: Docker
// and systemd-managed Docker scopes share a prefix; Podman, nspawn, LXC and
// containerd each get their own tag shape.
func tagFromCgroupLine(line string) (string, bool) {
	idx := strings.LastIndex(line, "/")
	tail := line
	if idx >= 0 {
		tail = line[idx+1:]
	}

	switch {
	case strings.Contains(line, "docker"):
		id := longestHexRun(tail)
		if id == "" {
			return "", false
		}
		return "docker:" + shorten(id, 12), true
	case strings.Contains(line, "podman") || strings.Contains(line, "libpod"):
		id := longestHexRun(tail)
		if id == "" {
			return "", false
		}
		return "podman:" + shorten(id, 12), true
	case strings.Contains(tail, "nspawn"):
		return "nspawn:" + strings.TrimSuffix(strings.TrimPrefix(tail, "machine-"), ".scope"), true
	case strings.Contains(line, "lxc"):
		return "lxc:" + strings.TrimSuffix(tail, ".scope"), true
	case strings.Contains(line, "containerd"):
		return "containerd", true
	default:
		return "", false
	}
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// longestHexRun finds the longest run of hex digits in s, which is how
// container ids show up embedded in cgroup path segments (e.g.
// "docker-<id>.scope" or a bare 64-char id).
func longestHexRun(s string) string {
	best, cur := "", ""
	isHex := func(b byte) bool {
		return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
	}
	for i := 0; i < len(s); i++ {
		if isHex(s[i]) {
			cur += string(s[i])
		} else {
			if len(cur) > len(best) {
				best = cur
			}
			cur = ""
		}
	}
	if len(cur) > len(best) {
		best = cur
	}
	return best
}

// addrFromIP converts a net.IP (as procfs hands it back from /proc/net
// parsing) to netip.Addr, normalizing 4-in-6 representations.
func addrFromIP(ip net.IP) (netip.Addr, bool) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
