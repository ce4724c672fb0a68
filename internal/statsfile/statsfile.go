// Package statsfile persists a periodic snapshot of stack and heap
// occupancy to a local JSON file, the channel netstackctl reads live
// numbers through in place of an RPC client (there is no service exposed
// over the network to query).
package statsfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Snapshot is one point-in-time reading of netstackd's internal state.
type Snapshot struct {
	HeapTotalBytes        int    `json:"heap_total_bytes"`
	HeapUsedBytes         int    `json:"heap_used_bytes"`
	HeapFreeBytes         int    `json:"heap_free_bytes"`
	HeapFreeBlocks        int    `json:"heap_free_blocks"`
	HeapAllocationCount   uint64 `json:"heap_allocation_count"`
	ARPCacheEntries       int    `json:"arp_cache_entries"`
	PendingARPQueueLength int    `json:"pending_arp_queue_length"`
	TCPConnections        int    `json:"tcp_connections"`
	UDPBindings           int    `json:"udp_bindings"`
}

// Write marshals snap as indented JSON and writes it to path, via a
// temporary file in the same directory renamed into place so a concurrent
// reader never observes a partially written file.
func Write(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("statsfile: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".statsfile-*.tmp")
	if err != nil {
		return fmt.Errorf("statsfile: create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("statsfile: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("statsfile: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("statsfile: rename into place: %w", err)
	}

	return nil
}

// Read loads the most recently written Snapshot from path.
func Read(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("statsfile: read %s: %w", path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("statsfile: unmarshal %s: %w", path, err)
	}

	return snap, nil
}
