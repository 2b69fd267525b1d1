package controlsocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"firestige.xyz/otus/internal/core"
)

// FetchSnapshot dials socketPath and decodes the single JSON document the
// server writes before closing the connection.
func FetchSnapshot(ctx context.Context, socketPath string) (core.SnapshotView, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return core.SnapshotView{}, fmt.Errorf("controlsocket: dial %s: %w", socketPath, err)
	}
	defer conn.Close()

	var snap core.SnapshotView
	if err := json.NewDecoder(conn).Decode(&snap); err != nil {
		return core.SnapshotView{}, fmt.Errorf("controlsocket: decode snapshot: %w", err)
	}
	return snap, nil
}
