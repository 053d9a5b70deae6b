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
package kv

import "fmt"

// Op names one command the embedded engine.execute(cmd) → Reply
// interface accepts.
type Op string

const (
	OpGet      Op = "GET"
	OpSet      Op = "SET"
	OpDel      Op = "DEL"
	OpExpire   Op = "EXPIRE"
	OpIncrBy   Op = "INCRBY"
	OpLPush    Op = "LPUSH"
	OpRPush    Op = "RPUSH"
	OpLPop     Op = "LPOP"
	OpRPop     Op = "RPOP"
	OpLRange   Op = "LRANGE"
	OpHSet     Op = "HSET"
	OpHGet     Op = "HGET"
	OpHDel     Op = "HDEL"
	OpHGetAll  Op = "HGETALL"
	OpSAdd     Op = "SADD"
	OpSRem     Op = "SREM"
	OpSMembers Op = "SMEMBERS"
	OpZAdd     Op = "ZADD"
	OpZScore   Op = "ZSCORE"
	OpZRange   Op = "ZRANGE"
	OpZRank    Op = "ZRANK"
)

// Command is one unit of work handed to Engine.Execute: an opcode, the
// key it targets, and whichever of the generic argument slots that
// opcode uses. Unused slots are simply left zero.
type Command struct {
	Op       Op
	Key      string
	Field    string   // HSET/HGET/HDEL field name
	Member   string   // ZADD/ZSCORE/ZRANK member name
	Members  []string // SADD/SREM variadic members
	Value    []byte   // SET/HSET value payload
	Values   [][]byte // LPUSH/RPUSH variadic values
	IntArg   int64    // INCRBY delta
	Score    float64  // ZADD score
	Start    int64    // LRANGE/ZRANGE start index
	Stop     int64    // LRANGE/ZRANGE stop index
	SetOpts  SetOptions
}

// Reply is the generic result envelope Execute returns: callers type-
// assert Value against what their Op is known to produce.
type Reply struct {
	Value  interface{}
	OK     bool // whether the mutation/lookup "hit" (Redis's common boolean return)
	Exists bool // whether the key/field/member was present for a read
}

// UnknownOpError is returned for an Op Execute does not recognize.
type UnknownOpError struct{ Op Op }

func (e *UnknownOpError) Error() string { return fmt.Sprintf("kv: unknown op %q", e.Op) }

// Execute implements the embedded `engine.execute(cmd) → Reply`
// interface (§6), routing cmd to the shard that owns its key and
// translating that shard's typed return values into the generic Reply
// envelope.
func (e *Engine) Execute(cmd Command) (Reply, error) {
	sh := e.shardFor(cmd.Key)
	switch cmd.Op {
	case OpGet:
		v, ok, err := sh.Get(cmd.Key)
		return Reply{Value: v, Exists: ok}, err

	case OpSet:
		ok, err := sh.Set(cmd.Key, NewBytes(cmd.Value), cmd.SetOpts)
		return Reply{OK: ok}, err

	case OpDel:
		ok, err := sh.Del(cmd.Key)
		return Reply{OK: ok}, err

	case OpExpire:
		ok, err := sh.Expire(cmd.Key, uint64(cmd.IntArg))
		return Reply{OK: ok}, err

	case OpIncrBy:
		v, err := sh.IncrBy(cmd.Key, cmd.IntArg)
		return Reply{Value: v}, err

	case OpLPush:
		n, err := sh.ListPushLeft(cmd.Key, cmd.Values...)
		return Reply{Value: n}, err

	case OpRPush:
		n, err := sh.ListPushRight(cmd.Key, cmd.Values...)
		return Reply{Value: n}, err

	case OpLPop:
		v, ok, err := sh.ListPopLeft(cmd.Key)
		return Reply{Value: v, Exists: ok}, err

	case OpRPop:
		v, ok, err := sh.ListPopRight(cmd.Key)
		return Reply{Value: v, Exists: ok}, err

	case OpLRange:
		v, err := sh.ListRange(cmd.Key, cmd.Start, cmd.Stop)
		return Reply{Value: v}, err

	case OpHSet:
		created, err := sh.HashSet(cmd.Key, cmd.Field, cmd.Value)
		return Reply{OK: created}, err

	case OpHGet:
		v, ok, err := sh.HashGet(cmd.Key, cmd.Field)
		return Reply{Value: v, Exists: ok}, err

	case OpHDel:
		removed, err := sh.HashDel(cmd.Key, cmd.Field)
		return Reply{OK: removed}, err

	case OpHGetAll:
		v, err := sh.HashGetAll(cmd.Key)
		return Reply{Value: v}, err

	case OpSAdd:
		n, err := sh.SetAdd(cmd.Key, cmd.Members...)
		return Reply{Value: n}, err

	case OpSRem:
		n, err := sh.SetRemove(cmd.Key, cmd.Members...)
		return Reply{Value: n}, err

	case OpSMembers:
		v, err := sh.SetMembers(cmd.Key)
		return Reply{Value: v}, err

	case OpZAdd:
		created, err := sh.ZAdd(cmd.Key, cmd.Member, cmd.Score)
		return Reply{OK: created}, err

	case OpZScore:
		score, ok, err := sh.ZScore(cmd.Key, cmd.Member)
		return Reply{Value: score, Exists: ok}, err

	case OpZRange:
		v, err := sh.ZRangeByRank(cmd.Key, cmd.Start, cmd.Stop)
		return Reply{Value: v}, err

	case OpZRank:
		rank, ok, err := sh.ZRank(cmd.Key, cmd.Member)
		return Reply{Value: rank, Exists: ok}, err

	default:
		return Reply{}, &UnknownOpError{Op: cmd.Op}
	}
}
