package kv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerdsane/kvdst/crdt"
	"github.com/nerdsane/kvdst/simclock"
)

func newTestEngine(clock simclock.Clock) *Engine {
	cfg := DefaultEngineConfig("r1")
	cfg.ShardCount = 4
	return NewEngine(cfg, clock, simclock.NewSeeded(1))
}

func TestEngineExecuteSetGet(t *testing.T) {
	clock := simclock.NewSimulated(0)
	e := newTestEngine(clock)

	_, err := e.Execute(Command{Op: OpSet, Key: "k", Value: []byte("v")})
	require.NoError(t, err)

	reply, err := e.Execute(Command{Op: OpGet, Key: "k"})
	require.NoError(t, err)
	require.True(t, reply.Exists)
	require.Equal(t, []byte("v"), reply.Value.(*Bytes).Data)
}

func TestEngineExecuteUnknownOp(t *testing.T) {
	clock := simclock.NewSimulated(0)
	e := newTestEngine(clock)

	_, err := e.Execute(Command{Op: "NOPE", Key: "k"})
	var unknown *UnknownOpError
	require.ErrorAs(t, err, &unknown)
}

func TestEngineShardPartitionIsExclusive(t *testing.T) {
	clock := simclock.NewSimulated(0)
	e := newTestEngine(clock)

	keys := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"}
	owner := map[string]int{}
	for _, k := range keys {
		for i, sh := range e.shards {
			if sh == e.shardFor(k) {
				owner[k] = i
			}
		}
	}
	// every key resolves to exactly one shard, and shardFor is stable.
	for _, k := range keys {
		require.Equal(t, e.shards[owner[k]], e.shardFor(k))
	}
}

func TestEngineDeltaSinksReceiveEveryMutation(t *testing.T) {
	clock := simclock.NewSimulated(0)
	e := newTestEngine(clock)

	var got []crdt.ReplicationDelta
	e.AddDeltaSink(func(d crdt.ReplicationDelta) {
		got = append(got, d)
	})

	_, err := e.Execute(Command{Op: OpSet, Key: "a", Value: []byte("1")})
	require.NoError(t, err)
	_, err = e.Execute(Command{Op: OpSet, Key: "b", Value: []byte("2")})
	require.NoError(t, err)

	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].Key)
	require.Equal(t, "b", got[1].Key)
}

func TestEngineApplyDeltaRoutesToOwningShard(t *testing.T) {
	clock := simclock.NewSimulated(0)
	e := newTestEngine(clock)

	delta := crdt.ReplicationDelta{
		Key:             "replicated-key",
		NewValue:        crdt.NewReplicatedValue(NewBytes([]byte("v")), crdt.LamportClock{Counter: 1, ReplicaID: "r2"}),
		SourceReplicaID: "r2",
		Causal:          crdt.LamportClock{Counter: 1, ReplicaID: "r2"},
	}
	require.NoError(t, e.ApplyDelta(delta))

	reply, err := e.Execute(Command{Op: OpGet, Key: "replicated-key"})
	require.NoError(t, err)
	require.True(t, reply.Exists)
}

func TestEngineHotKeysMergesAcrossShards(t *testing.T) {
	clock := simclock.NewSimulated(0)
	e := newTestEngine(clock)

	for i := 0; i < 20; i++ {
		_, err := e.Execute(Command{Op: OpGet, Key: "k1"})
		require.NoError(t, err)
	}
	_, err := e.Execute(Command{Op: OpGet, Key: "k2"})
	require.NoError(t, err)

	top := e.HotKeys(1)
	require.Len(t, top, 1)
	require.Equal(t, "k1", top[0].Key)
}

func TestEngineRecalculateReplicationMarksHotShards(t *testing.T) {
	clock := simclock.NewSimulated(0)
	e := newTestEngine(clock)

	for i := 0; i < 20; i++ {
		_, err := e.Execute(Command{Op: OpGet, Key: "k1"})
		require.NoError(t, err)
	}

	e.RecalculateReplication(DefaultHotKeyConfig().HotThreshold)

	hotShard := e.shardFor("k1")
	for i, sh := range e.shards {
		require.Equal(t, sh == hotShard, e.ShardIsHot(i))
	}
}

func TestEngineStatsReportsKeyCounts(t *testing.T) {
	clock := simclock.NewSimulated(0)
	e := newTestEngine(clock)

	for i := 0; i < 10; i++ {
		_, err := e.Execute(Command{Op: OpSet, Key: string(rune('a' + i)), Value: []byte("v")})
		require.NoError(t, err)
	}
	stats := e.Stats()
	require.Equal(t, 10, stats.TotalKeys)
	require.Len(t, stats.ShardKeyCounts, 4)
}

func TestEngineSweepExpiredAcrossShards(t *testing.T) {
	clock := simclock.NewSimulated(0)
	e := newTestEngine(clock)

	for i := 0; i < 8; i++ {
		_, err := e.Execute(Command{Op: OpSet, Key: string(rune('a' + i)), Value: []byte("v"), SetOpts: SetOptions{ExpireMs: 10}})
		require.NoError(t, err)
	}
	clock.Advance(50 * time.Millisecond)

	removed := e.SweepExpired(100)
	require.Equal(t, 8, removed)
}
