package dacs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtn7/bpv6engine/pkg/bpevent"
)

func TestPopulateAndReceiveAckRoundTrip(t *testing.T) {
	tree := NewSortedAckTree([][2]uint64{
		{10, 5},  // acks 10..14
		{20, 3},  // acks 20..22
		{100, 1}, // ack 100
	})

	buf := make([]byte, 64)
	n, flags := PopulateAck(buf, 10, tree)
	require.False(t, flags.Has(bpevent.SDNVIncomplete))
	require.Greater(t, n, 0)

	var acked []uint64
	remove := func(parm any, cid uint64) bpevent.Code {
		acked = append(acked, cid)
		return bpevent.Success
	}
	numAcked, rflags := ReceiveAck(buf[:n], remove, nil)
	require.False(t, rflags.Has(bpevent.SDNVIncomplete))
	assert.Equal(t, 9, numAcked)
	assert.Equal(t, []uint64{10, 11, 12, 13, 14, 20, 21, 22, 100}, acked)
}

func TestPopulateAckRespectsMaxFills(t *testing.T) {
	tree := NewSortedAckTree([][2]uint64{
		{0, 1}, {5, 1}, {10, 1}, {15, 1},
	})
	buf := make([]byte, 64)
	n, _ := PopulateAck(buf, 2, tree)

	var acked []uint64
	remove := func(parm any, cid uint64) bpevent.Code {
		acked = append(acked, cid)
		return bpevent.Success
	}
	_, _ = ReceiveAck(buf[:n], remove, nil)
	assert.Equal(t, []uint64{0, 5}, acked)
}

func TestReceiveAckSingleRun(t *testing.T) {
	tree := NewSortedAckTree([][2]uint64{{42, 1}})
	buf := make([]byte, 16)
	n, _ := PopulateAck(buf, 10, tree)

	var acked []uint64
	remove := func(parm any, cid uint64) bpevent.Code {
		acked = append(acked, cid)
		return bpevent.Success
	}
	numAcked, _ := ReceiveAck(buf[:n], remove, nil)
	assert.Equal(t, 1, numAcked)
	assert.Equal(t, []uint64{42}, acked)
}
