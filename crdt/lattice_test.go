package crdt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGCounterLatticeLaws(t *testing.T) {
	a := NewGCounter()
	a.Increment("r1", 3)
	b := NewGCounter()
	b.Increment("r2", 4)
	c := NewGCounter()
	c.Increment("r1", 1)
	c.Increment("r3", 2)

	ab := a.Join(b)
	ba := b.Join(a)
	require.Equal(t, ab.(*GCounter).Total(), ba.(*GCounter).Total(), "join must commute")

	abc1 := ab.Join(c)
	bc := b.Join(c)
	abc2 := a.Join(bc)
	require.Equal(t, abc1.(*GCounter).Total(), abc2.(*GCounter).Total(), "join must associate")

	aa := a.Join(a)
	require.Equal(t, a.Total(), aa.(*GCounter).Total(), "join must be idempotent")
}

func TestPNCounterValue(t *testing.T) {
	c := NewPNCounter()
	c.Increment("r1", 10)
	c.Decrement("r1", 3)
	require.Equal(t, int64(7), c.Value())
}

func TestPNCounterConvergesAcrossReplicas(t *testing.T) {
	r1 := NewPNCounter()
	r1.Increment("r1", 3)
	r2 := NewPNCounter()
	r2.Increment("r2", 3)

	merged1 := r1.Join(r2)
	merged2 := r2.Join(r1)
	require.Equal(t, merged1.(*PNCounter).Value(), merged2.(*PNCounter).Value())
	require.EqualValues(t, 6, merged1.(*PNCounter).Value())
}

func TestORSetAddRemoveConverge(t *testing.T) {
	a := NewORSet()
	a.Add("x", "r1", 1)
	b := NewORSet()
	b.Add("y", "r2", 1)

	ab := a.Join(b).(*ORSet)
	require.ElementsMatch(t, []string{"x", "y"}, ab.Members())

	// concurrent add+remove of the same element: remove only tombstones
	// observed tags, so a concurrent re-add on another replica survives.
	c := ab.Clone().(*ORSet)
	c.Remove("x")
	d := ab.Clone().(*ORSet)
	d.Add("x", "r3", 2)

	merged := c.Join(d).(*ORSet)
	require.True(t, merged.Contains("x"), "concurrent re-add must survive a remove of the earlier tag")
}

func TestORSetLatticeIdempotent(t *testing.T) {
	a := NewORSet()
	a.Add("x", "r1", 1)
	aa := a.Join(a).(*ORSet)
	require.ElementsMatch(t, a.Members(), aa.Members())
}

func TestLWWRegisterPicksLaterClock(t *testing.T) {
	r1 := NewLWWRegister([]byte("old"), LamportClock{Counter: 1, ReplicaID: "a"})
	r2 := NewLWWRegister([]byte("new"), LamportClock{Counter: 2, ReplicaID: "b"})

	joined := r1.Join(r2).(*LWWRegister)
	require.Equal(t, "new", string(joined.Payload))

	joinedRev := r2.Join(r1).(*LWWRegister)
	require.Equal(t, "new", string(joinedRev.Payload), "join must commute regardless of call order")
}

func TestLWWRegisterTieBreaksOnReplicaID(t *testing.T) {
	fromB := NewLWWRegister([]byte("from-b"), LamportClock{Counter: 5, ReplicaID: "b"})
	fromA := NewLWWRegister([]byte("from-a"), LamportClock{Counter: 5, ReplicaID: "a"})

	joined := fromB.Join(fromA).(*LWWRegister)
	require.Equal(t, "from-b", string(joined.Payload), "lexicographically larger replica id wins on a tie")
}
