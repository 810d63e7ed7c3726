package lrc

import "github.com/pkg/errors"

// ErrShardTooShort is returned when a wire-format shard is too short to
// hold even its one index byte.
var ErrShardTooShort = errors.New("lrc: shard shorter than index byte")

// shardIndex returns the on-wire index (the leading byte) of shard.
func shardIndex(shard []byte) (int, error) {
	if len(shard) < 1 {
		return 0, ErrShardTooShort
	}
	return int(shard[0]), nil
}

// shardPayload returns shard's payload, i.e. everything after the index
// byte.
func shardPayload(shard []byte) []byte {
	return shard[1:]
}

// putShard writes index into dst[0] and payload into dst[1:]: the wire
// format is one index byte, then BlockBytes of payload.
func putShard(dst []byte, index int, payload []byte) {
	dst[0] = byte(index)
	copy(dst[1:], payload)
}
