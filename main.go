/*
Copyright (C) 2026  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
/*
	kvdst: a sharded, in-memory, Redis-like key-value engine with
	CRDT-based replication and an object-store-backed persistence
	pipeline.

	This is a bring-up entry point, not the wire server: transport
	(RESP, TLS, ACL) and config-from-env glue are out of scope (see
	spec.md §1) and belong to an external collaborator. What this main
	does is wire up an Engine, its TTL manager, and its segment writer
	against a persistence backend chosen by KVDST_STORE, so the engine
	is ready for a transport layer to sit in front of it.
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/docker/go-units"

	"github.com/nerdsane/kvdst/kv"
	"github.com/nerdsane/kvdst/objectstore"
	"github.com/nerdsane/kvdst/persist"
	"github.com/nerdsane/kvdst/simclock"
)

func main() {
	fmt.Print(`kvdst Copyright (C) 2026   Carl-Philip Hänsch
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;
`)

	replicaID := envOr("KVDST_REPLICA_ID", "replica-0")
	shardCount := 16

	clock := simclock.Production{}
	rng := simclock.Production{}

	engineCfg := kv.DefaultEngineConfig(replicaID)
	engineCfg.ShardCount = shardCount
	engine := kv.NewEngine(engineCfg, clock, rng)

	ttl := kv.NewTTLManager(engine, kv.DefaultTTLManagerConfig())
	defer ttl.Shutdown()

	store, err := openStore(clock)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kvdst: opening object store: %v\n", err)
		os.Exit(1)
	}

	segBytes, err := units.RAMInBytes(envOr("KVDST_SEGMENT_SIZE", "64MB"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "kvdst: parsing KVDST_SEGMENT_SIZE: %v\n", err)
		os.Exit(1)
	}

	writerCfg := kv.SegmentWriterConfig{
		Prefix:      envOr("KVDST_PREFIX", "kvdst"),
		Compression: persist.CompressionLZ4,
		WriteBuffer: persist.WriteBufferConfig{
			MaxSizeBytes:               segBytes,
			BackpressureThresholdBytes: segBytes * 4,
		},
	}
	writer := kv.NewSegmentWriter(store, clock, writerCfg)
	defer writer.Shutdown(context.Background())
	engine.AddDeltaSink(writer.Sink())

	fmt.Printf("kvdst: replica %q ready, %d shards, store=%s\n", replicaID, shardCount, envOr("KVDST_STORE", "memory"))

	// A transport layer (out of scope) would call engine.Execute(cmd)
	// per inbound request here. Block so background workers keep
	// running under a supervisor.
	select {}
}

func openStore(clock simclock.Clock) (objectstore.Store, error) {
	switch envOr("KVDST_STORE", "memory") {
	case "memory":
		return objectstore.NewMemory(clock), nil
	case "localfs":
		return objectstore.NewLocalFS(envOr("KVDST_DATA_DIR", "./kvdst-data"))
	default:
		return nil, fmt.Errorf("unknown KVDST_STORE %q (want memory or localfs)", os.Getenv("KVDST_STORE"))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
