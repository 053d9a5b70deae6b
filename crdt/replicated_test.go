package crdt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplicatedValueTombstoneAbsorbsOlderValue(t *testing.T) {
	value := NewReplicatedValue(NewLWWRegister([]byte("v"), LamportClock{Counter: 1, ReplicaID: "r1"}), LamportClock{Counter: 1, ReplicaID: "r1"})
	tomb := NewTombstone(LamportClock{Counter: 2, ReplicaID: "r1"})

	merged, err := value.Merge(tomb, "r1", true)
	require.NoError(t, err)
	require.True(t, merged.Tombstone)
}

func TestReplicatedValueNewerValueSurvivesOlderTombstone(t *testing.T) {
	tomb := NewTombstone(LamportClock{Counter: 1, ReplicaID: "r1"})
	value := NewReplicatedValue(NewLWWRegister([]byte("v"), LamportClock{Counter: 2, ReplicaID: "r1"}), LamportClock{Counter: 2, ReplicaID: "r1"})

	merged, err := tomb.Merge(value, "r1", true)
	require.NoError(t, err)
	require.False(t, merged.Tombstone)
}

func TestReplicatedValueTypeMismatchErrors(t *testing.T) {
	counter := NewReplicatedValue(NewGCounter(), LamportClock{Counter: 1, ReplicaID: "r1"})
	set := NewReplicatedValue(NewORSet(), LamportClock{Counter: 1, ReplicaID: "r2"})

	_, err := counter.Merge(set, "r1", false)
	require.Error(t, err)
	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestReplicatedValueTypeMismatchFallsBackToLWWInRegisterMode(t *testing.T) {
	older := NewReplicatedValue(NewGCounter(), LamportClock{Counter: 1, ReplicaID: "r1"})
	newer := NewReplicatedValue(NewORSet(), LamportClock{Counter: 2, ReplicaID: "r1"})

	merged, err := older.Merge(newer, "r1", true)
	require.NoError(t, err)
	require.Equal(t, "ORSet", merged.Value.TypeName())
}

func TestReplicatedValueRegisterModeNeverJoinsEvenWithMatchingTypes(t *testing.T) {
	// two plain LWWRegister SETs of the same key: register mode must pick
	// the later write outright, not attempt any lattice join between the
	// two payloads.
	older := NewReplicatedValue(NewLWWRegister([]byte("first"), LamportClock{Counter: 1, ReplicaID: "r1"}), LamportClock{Counter: 1, ReplicaID: "r1"})
	newer := NewReplicatedValue(NewLWWRegister([]byte("second"), LamportClock{Counter: 2, ReplicaID: "r1"}), LamportClock{Counter: 2, ReplicaID: "r1"})

	merged, err := older.Merge(newer, "r1", true)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), merged.Value.(*LWWRegister).Payload)
}

func TestReplicatedValueSameTypeJoins(t *testing.T) {
	a := NewGCounter()
	a.Increment("r1", 3)
	b := NewGCounter()
	b.Increment("r2", 4)

	av := NewReplicatedValue(a, LamportClock{Counter: 1, ReplicaID: "r1"})
	bv := NewReplicatedValue(b, LamportClock{Counter: 1, ReplicaID: "r2"})

	merged, err := av.Merge(bv, "r1", false)
	require.NoError(t, err)
	require.EqualValues(t, 7, merged.Value.(*GCounter).Total())
}

func TestShardReplicaStateApplyIdempotent(t *testing.T) {
	s := NewShardReplicaState("r1", false)
	counter := NewGCounter()
	counter.Increment("r1", 5)
	delta := ReplicationDelta{
		Key:             "k",
		NewValue:        NewReplicatedValue(counter, LamportClock{Counter: 1, ReplicaID: "r1"}),
		SourceReplicaID: "r1",
		Causal:          LamportClock{Counter: 1, ReplicaID: "r1"},
	}

	require.NoError(t, s.Apply(delta))
	first, _ := s.Get("k")

	require.NoError(t, s.Apply(delta))
	second, _ := s.Get("k")

	require.Equal(t, first.Value.(*GCounter).Total(), second.Value.(*GCounter).Total())
}

func TestShardReplicaStateConvergesUnderAnyDeliveryOrder(t *testing.T) {
	// each delta carries the replica's counter state after its ctr-th
	// increment, so the deltas of one replica are cumulative.
	mkDelta := func(replica string, ctr uint64, delta uint64) ReplicationDelta {
		c := NewGCounter()
		c.Increment(replica, ctr*delta)
		return ReplicationDelta{
			Key:             "counter",
			NewValue:        NewReplicatedValue(c, LamportClock{Counter: ctr, ReplicaID: replica}),
			SourceReplicaID: replica,
			Causal:          LamportClock{Counter: ctr, ReplicaID: replica},
		}
	}

	r1Deltas := []ReplicationDelta{mkDelta("R1", 1, 1), mkDelta("R1", 2, 1), mkDelta("R1", 3, 1)}
	r2Deltas := []ReplicationDelta{mkDelta("R2", 1, 1), mkDelta("R2", 2, 1), mkDelta("R2", 3, 1)}

	order := []ReplicationDelta{r1Deltas[0], r2Deltas[0], r1Deltas[1], r2Deltas[2], r1Deltas[2], r2Deltas[1]}

	replicaA := NewShardReplicaState("A", false)
	for _, d := range order {
		require.NoError(t, replicaA.Apply(d))
	}

	reversed := make([]ReplicationDelta, len(order))
	copy(reversed, order)
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	replicaB := NewShardReplicaState("B", false)
	for _, d := range reversed {
		require.NoError(t, replicaB.Apply(d))
	}

	valueA, _ := replicaA.Get("counter")
	valueB, _ := replicaB.Get("counter")
	require.EqualValues(t, 6, valueA.Value.(*GCounter).Total())
	require.EqualValues(t, 6, valueB.Value.(*GCounter).Total())
}

func TestAdaptiveReplicationManagerPromoteDemote(t *testing.T) {
	m := NewAdaptiveReplicationManager(AdaptiveConfig{BaseReplicationFactor: 3, HotReplicationFactor: 5, RecalcInterval: 0})

	m.Recalculate(0, []string{"hot1"}, true)
	require.EqualValues(t, 5, m.ReplicationFactorFor("hot1"))
	require.EqualValues(t, 3, m.ReplicationFactorFor("cold"))

	m.Recalculate(1, nil, true)
	require.EqualValues(t, 3, m.ReplicationFactorFor("hot1"))

	promotions, demotions := m.Stats()
	require.EqualValues(t, 1, promotions)
	require.EqualValues(t, 1, demotions)
}
