package fragment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestSplitEmptyYieldsNoFragments(t *testing.T) {
	assert.Nil(t, Split(1, nil, true, 100))
	assert.Nil(t, Split(1, []byte{}, true, 100))
}

func TestSplitSingleFragment(t *testing.T) {
	frags := Split(5, []byte{1, 2, 3}, true, 100)
	if assert.Len(t, frags, 1) {
		f := frags[0]
		assert.Equal(t, uint16(0), f.FragIdx)
		assert.Equal(t, uint16(1), f.FragCnt)
		assert.Equal(t, FlagAckReq|FlagLast, f.Flags)
		assert.Equal(t, []byte{1, 2, 3}, f.Data)
	}
}

func TestSplitMultiFragmentFlags(t *testing.T) {
	data := make([]byte, 600)
	for i := range data {
		data[i] = byte(i)
	}
	frags := Split(1, data, false, 255)
	if assert.Len(t, frags, 3) {
		for i, f := range frags {
			assert.Equal(t, uint16(i), f.FragIdx)
			assert.Equal(t, uint16(3), f.FragCnt)
			assert.NotZero(t, f.Flags&FlagFrag)
			assert.Zero(t, f.Flags&FlagAckReq)
			if i == len(frags)-1 {
				assert.NotZero(t, f.Flags&FlagLast)
			} else {
				assert.Zero(t, f.Flags&FlagLast)
			}
		}
	}
}

func TestSplitReassemblesToOriginal(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 2000).Draw(rt, "n")
		data := rapid.SliceOfN(rapid.Byte(), n, n).Draw(rt, "data")
		payloadMax := rapid.IntRange(1, 300).Draw(rt, "payloadMax")

		frags := Split(9, data, true, payloadMax)
		var reassembled []byte
		for _, f := range frags {
			reassembled = append(reassembled, f.Data...)
		}
		assert.Equal(t, data, reassembled)
		if len(frags) > 0 {
			assert.NotZero(t, frags[len(frags)-1].Flags&FlagLast)
		}
	})
}
