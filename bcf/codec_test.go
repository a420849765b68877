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

package bcf

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntType(t *testing.T) {
	assert.Equal(t, typeInt8, intType(nil))
	assert.Equal(t, typeInt8, intType([]int32{0, 127, -120, MissingInt32}))
	assert.Equal(t, typeInt16, intType([]int32{1, -121}))
	assert.Equal(t, typeInt16, intType([]int32{128, 32767}))
	assert.Equal(t, typeInt32, intType([]int32{1, 32768}))
	assert.Equal(t, typeInt32, intType([]int32{-32761}))
}

func TestTypedValues(t *testing.T) {
	assert.Equal(t, []byte{0x11, 5}, appendTypedInt(nil, 5))
	assert.Equal(t, []byte{0x12, 0x2c, 0x01}, appendTypedInt(nil, 300))
	assert.Equal(t, []byte{0x00}, appendTypedInts(nil, nil))
	assert.Equal(t, []byte{0x21, 1, 0x80}, appendTypedInts(nil, []int32{1, MissingInt32}))
	assert.Equal(t, []byte{0x07}, appendTypedString(nil, ""))
	assert.Equal(t, []byte{0x27, 'A', 'C'}, appendTypedString(nil, "AC"))

	long := strings.Repeat("x", 20)
	out := appendTypedString(nil, long)
	assert.Equal(t, []byte{0xf7, 0x11, 20}, out[:3])
	d := bcfDecoder{data: out}
	assert.Equal(t, long, d.typedString())
	require.NoError(t, d.err)

	out = appendInts(nil, typeInt16, []int32{7}, 3)
	d = bcfDecoder{data: out}
	assert.Equal(t, []int32{7}, d.ints(typeInt16, 3))

	out = appendFloats(nil, []float32{1.5}, 2)
	assert.Equal(t, uint32(endOfVectorFloatBits), binary.LittleEndian.Uint32(out[4:]))
	d = bcfDecoder{data: out}
	assert.Equal(t, []float32{1.5}, d.floats(2))

	d = bcfDecoder{data: appendChars(nil, "ab", 4)}
	assert.Equal(t, "ab", d.chars(4))
	assert.Equal(t, 4, d.index)

	out, err := appendTypedValue(nil, Flag{})
	require.NoError(t, err)
	d = bcfDecoder{data: out}
	assert.Equal(t, Flag{}, d.typedValue())
	_, err = appendTypedValue(nil, 3)
	assert.Error(t, err)
}

func TestSampleValues(t *testing.T) {
	out, err := appendSampleValues(nil, []interface{}{[]int32{1, 2}, nil, []int32{300}})
	require.NoError(t, err)
	d := bcfDecoder{data: out}
	width, typ := d.typeDescriptor()
	assert.Equal(t, 2, width)
	assert.Equal(t, typeInt16, typ)
	assert.Equal(t, []int32{1, 2}, d.vector(width, typ))
	assert.Equal(t, []int32{MissingInt32}, d.vector(width, typ))
	assert.Equal(t, []int32{300}, d.vector(width, typ))
	assert.Equal(t, len(out), d.index)

	out, err = appendSampleValues(nil, []interface{}{"ab", nil})
	require.NoError(t, err)
	d = bcfDecoder{data: out}
	width, typ = d.typeDescriptor()
	assert.Equal(t, typeChar, typ)
	assert.Equal(t, "ab", d.vector(width, typ))
	assert.Equal(t, ".", d.vector(width, typ))

	out, err = appendSampleValues(nil, []interface{}{nil, nil})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x80, 0x80}, out)

	_, err = appendSampleValues(nil, []interface{}{"a", []int32{1}})
	assert.Error(t, err)
	_, err = appendSampleValues(nil, []interface{}{1})
	assert.Error(t, err)
}

func TestBcfRecordRoundTrip(t *testing.T) {
	hdr := parseTestHeader(t, testVcfHeader)
	rec := NewRecord(hdr.View())
	require.NoError(t, rec.SetContig("chr2"))
	rec.Pos = 41
	rec.ID = "rs7;rs8"
	rec.Qual = 12.25
	rec.Alleles = []string{"ACGT", "A", strings.Repeat("C", 30)}
	require.NoError(t, rec.SetFilters("q10"))
	require.NoError(t, rec.SetInfo("DP", []int32{100000}))
	require.NoError(t, rec.SetInfo("AF", []float32{0.5, 0.125}))
	require.NoError(t, rec.SetInfo("DB", Flag{}))
	require.NoError(t, rec.SetInfo("AA", "A"))
	require.NoError(t, rec.SetFormat("GT", []interface{}{[]int32{2, 5}, []int32{4, 4}, []int32{2}}))
	require.NoError(t, rec.SetFormat("AD", []interface{}{[]int32{1, 2, 3}, []int32{-5, 0, 1}, []int32{7, 8, 9}}))

	out, err := encodeBcfRecord(rec, 3, nil)
	require.NoError(t, err)
	lShared := int(binary.LittleEndian.Uint32(out[0:4]))
	lIndiv := int(binary.LittleEndian.Uint32(out[4:8]))
	assert.Equal(t, len(out), 8+lShared+lIndiv)
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(out[16:20]))

	decoded := NewRecord(hdr.View())
	require.NoError(t, decodeBcfRecord(out[8:], lShared, 3, decoded))
	assert.Equal(t, rec.Contig, decoded.Contig)
	assert.Equal(t, rec.Pos, decoded.Pos)
	assert.Equal(t, rec.ID, decoded.ID)
	assert.Equal(t, rec.Qual, decoded.Qual)
	assert.Equal(t, rec.Alleles, decoded.Alleles)
	assert.Equal(t, rec.Filters, decoded.Filters)
	assert.Equal(t, rec.Info, decoded.Info)
	assert.Equal(t, rec.Format, decoded.Format)
	assert.NoError(t, checkIDs(hdr.View(), decoded))

	assert.Error(t, decodeBcfRecord(out[8:], lShared, 2, decoded))
	assert.Error(t, decodeBcfRecord(out[8:len(out)-1], lShared, 3, decoded))
	assert.True(t, errors.Is(decodeBcfRecord(out[8:20], lShared, 3, decoded), errTruncated))
}

func TestBcfRecordMissingValues(t *testing.T) {
	hdr := parseTestHeader(t, testVcfHeader)
	rec := NewRecord(hdr.View())
	require.NoError(t, rec.SetContig("chr1"))
	rec.Alleles = []string{"A"}

	out, err := encodeBcfRecord(rec, 3, nil)
	require.NoError(t, err)
	lShared := int(binary.LittleEndian.Uint32(out[0:4]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(out[4:8]))

	decoded := NewRecord(hdr.View())
	require.NoError(t, decodeBcfRecord(out[8:], lShared, 3, decoded))
	assert.True(t, IsMissingFloat(decoded.Qual))
	assert.Equal(t, "", decoded.ID)
	assert.Nil(t, decoded.Filters)
	assert.Nil(t, decoded.Info)
	assert.Nil(t, decoded.Format)
	assert.Equal(t, int32(1), decoded.End()-decoded.Pos)
}

func TestCheckIDs(t *testing.T) {
	hdr := parseTestHeader(t, testVcfHeader)
	view := hdr.View()
	rec := NewRecord(view)
	assert.Error(t, checkIDs(view, rec))
	rec.Contig = 0
	assert.NoError(t, checkIDs(view, rec))
	rec.Filters = []int32{2}
	assert.Error(t, checkIDs(view, rec))
	rec.Filters = nil
	rec.Info = Fields{{Key: 6, Value: "x"}}
	assert.Error(t, checkIDs(view, rec))
	rec.Info = nil
	rec.Format = FormatFields{{Key: 42}}
	assert.Error(t, checkIDs(view, rec))
}

func TestVcfRecordCodec(t *testing.T) {
	reader, recs := readTestVcf(t)
	require.Len(t, recs, len(testVcfRecords))
	assert.Equal(t, testVcfRecords, formatTestRecords(t, recs))

	rec := recs[0]
	assert.Equal(t, int32(0), rec.Contig)
	assert.Equal(t, int32(99), rec.Pos)
	assert.Equal(t, float32(29.5), rec.Qual)
	assert.Equal(t, []string{"A", "C", "G"}, rec.Alleles)
	af, _ := rec.InfoValue("AF")
	assert.Equal(t, []float32{0.5, 0.25}, af)
	db, _ := rec.InfoValue("DB")
	assert.Equal(t, Flag{}, db)
	gt, _ := rec.FormatValues("GT")
	assert.Equal(t, []interface{}{[]int32{2, 4}, []int32{4, 5}, []int32{0, 0}}, gt)
	gq, _ := rec.FormatValues("GQ")
	assert.Equal(t, []interface{}{[]int32{48}, []int32{43}, []int32{MissingInt32}}, gq)

	rec = recs[2]
	assert.Equal(t, []string{"G"}, rec.Alleles)
	assert.True(t, IsMissingFloat(rec.Qual))
	assert.Nil(t, rec.Filters)
	assert.Nil(t, rec.Info)

	parser := reader.source.(*textSource).parser
	for _, line := range []string{
		"chr9\t1\t.\tA\t.\t.\t.\t.\tGT\t0\t0\t0",
		"chr1\t1\t.\tA\t.\t.\tbad\t.\tGT\t0\t0\t0",
		"chr1\t1\t.\tA\t.\t.\t.\tXX=1\tGT\t0\t0\t0",
		"chr1\t1\t.\tA\t.\t.\t.\t.\tGT:XX\t0:1\t0\t0",
		"chr1\t1\t.\tA\t.\t.\t.\tDP=x\tGT\t0\t0\t0",
		"chr1\t1\t.\tA\t.\t.\t.\t.\tGT\tx\t0\t0",
	} {
		rec := NewRecord(reader.Header())
		assert.Error(t, parseVcfRecord(reader.Header(), parser, []byte(line), rec), line)
	}
}

func TestVcfRecordNoFormat(t *testing.T) {
	reader, recs := readTestVcf(t)
	rec := recs[2]
	rec.Format = nil
	out, err := formatVcfRecord(rec, nil)
	require.NoError(t, err)
	assert.Equal(t, "chr2\t5\t.\tG\t.\t.\t.\t.\t.\t.\t.\t.\n", string(out))

	parser := reader.source.(*textSource).parser
	decoded := NewRecord(reader.Header())
	require.NoError(t, parseVcfRecord(reader.Header(), parser, out[:len(out)-1], decoded))
	assert.Empty(t, decoded.Format)
}

func TestFloatMissingInText(t *testing.T) {
	hdr := parseTestHeader(t, testVcfHeader)
	rec := NewRecord(hdr.View())
	require.NoError(t, rec.SetContig("chr1"))
	rec.Alleles = []string{"A", "C", "T"}
	require.NoError(t, rec.SetInfo("AF", []float32{MissingFloat, float32(math.Inf(1))}))
	out, err := formatVcfRecord(rec, nil)
	require.NoError(t, err)
	assert.Equal(t, "chr1\t1\t.\tA\tC,T\t.\t.\tAF=.,+Inf\t.\t.\t.\t.\n", string(out))
}
