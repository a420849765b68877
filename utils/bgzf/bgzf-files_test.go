// elPrep: a high-performance tool for analyzing SAM/BAM files.
// Copyright (c) 2017-2020 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elprep/blob/master/LICENSE.txt>.

package bgzf

import (
	"bufio"
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compress(t *testing.T, data []byte, level int) []byte {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, level)
	require.NoError(t, err)
	// uneven chunk sizes exercise block boundaries
	for len(data) > 0 {
		n := 1 + rand.Intn(40000)
		if n > len(data) {
			n = len(data)
		}
		k, err := w.Write(data[:n])
		require.NoError(t, err)
		require.Equal(t, n, k)
		data = data[n:]
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	data := make([]byte, 5*maxBgzfBlockSize+123)
	for i := range data {
		data[i] = byte("ACGT\t\n"[rand.Intn(6)])
	}
	for _, level := range []int{-2, -1, 0, 1, 9} {
		compressed := compress(t, data, level)
		require.True(t, bytes.HasSuffix(compressed, bgzfEOF))

		r, err := NewReader(bufio.NewReader(bytes.NewReader(compressed)))
		require.NoError(t, err)
		result, err := io.ReadAll(r)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		assert.Equal(t, data, result, "level %v", level)
	}
}

func TestIncompressibleData(t *testing.T) {
	data := make([]byte, 3*maxBgzfBlockSize)
	rand.Read(data)
	compressed := compress(t, data, 9)
	r, err := NewReader(bufio.NewReader(bytes.NewReader(compressed)))
	require.NoError(t, err)
	result, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, data, result)
}

func TestEmptyStream(t *testing.T) {
	compressed := compress(t, nil, -1)
	assert.Equal(t, bgzfEOF, compressed)
	r, err := NewReader(bufio.NewReader(bytes.NewReader(compressed)))
	require.NoError(t, err)
	result, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, result)
	require.NoError(t, r.Close())
}

func TestIsGzip(t *testing.T) {
	ok, err := IsGzip(bufio.NewReader(bytes.NewReader(bgzfEOF)))
	require.NoError(t, err)
	assert.True(t, ok)

	buf := bufio.NewReader(bytes.NewReader([]byte("##fileformat=VCFv4.3\n")))
	ok, err = IsGzip(buf)
	require.NoError(t, err)
	assert.False(t, ok)
	b, err := buf.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('#'), b, "IsGzip must not consume input")
}

func TestInvalidLevel(t *testing.T) {
	_, err := NewWriter(io.Discard, 42)
	assert.Error(t, err)
}

func TestCorruptBlock(t *testing.T) {
	data := bytes.Repeat([]byte("chr1\t100\t.\tA\tC\n"), 5000)
	compressed := compress(t, data, -1)
	// the CRC-32 of the first block sits 8 bytes before its end
	bsize := int(compressed[16]) | int(compressed[17])<<8
	compressed[bsize-7] ^= 0xff

	r, err := NewReader(bufio.NewReader(bytes.NewReader(compressed)))
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.EqualError(t, err, "invalid CRC-32 value for a data block in a BGZF file")
	assert.Error(t, r.Close())
}

func TestMissingEOF(t *testing.T) {
	compressed := compress(t, []byte("##fileformat=VCFv4.3\n"), -1)
	compressed = compressed[:len(compressed)-len(bgzfEOF)]

	r, err := NewReader(bufio.NewReader(bytes.NewReader(compressed)))
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, ErrMissingEOF)
	_ = r.Close()
}
