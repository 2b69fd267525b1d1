package controlsocket

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"firestige.xyz/otus/internal/core"
)

type fakeSource struct {
	snap core.SnapshotView
}

func (f fakeSource) Snapshot() core.SnapshotView {
	return f.snap
}

func TestFetchSnapshotRoundTrips(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "netwatchd.sock")
	want := core.SnapshotView{
		SequenceNum: 7,
		Processes:   map[int]core.ProcessStats{},
		Alerts:      map[int]core.Alert{},
	}
	srv := NewServer(socketPath, fakeSource{snap: want})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Start(ctx)

	require.Eventually(t, func() bool {
		got, err := FetchSnapshot(context.Background(), socketPath)
		return err == nil && got.SequenceNum == want.SequenceNum
	}, 2*time.Second, 10*time.Millisecond)
}
