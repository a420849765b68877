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
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadVcf(t *testing.T) {
	reader, err := NewReader(strings.NewReader(testVcf))
	require.NoError(t, err)
	defer reader.Close()
	assert.False(t, reader.Binary())
	assert.Equal(t, []string{"S1", "S2", "S3"}, reader.Header().Samples())

	for i := range testVcfRecords {
		rec, err := reader.Next()
		require.NoError(t, err, i)
		assert.True(t, rec.Header().Same(reader.Header()))
	}
	_, err = reader.Next()
	assert.Equal(t, ErrNoMoreRecords, err)
	_, err = reader.Next()
	assert.Equal(t, ErrNoMoreRecords, err)
}

func TestReadSkipsEmptyLines(t *testing.T) {
	input := testVcfHeader + testVcfRecords[0] + "\n\r\n" + strings.TrimSuffix(testVcfRecords[1], "\n")
	reader, err := NewReader(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, testVcfRecords[:2], formatTestRecords(t, readTestRecords(t, reader)))
}

func writeTestRecords(t *testing.T, mode Mode) []byte {
	t.Helper()
	reader, recs := readTestVcf(t)
	var out bytes.Buffer
	writer, err := NewWriter(&out, NewHeaderFromTemplate(reader.Header()), mode)
	require.NoError(t, err)
	for _, rec := range recs {
		require.NoError(t, writer.Translate(rec))
		require.NoError(t, writer.Write(rec))
	}
	require.NoError(t, writer.Close())
	return out.Bytes()
}

func TestWriteModes(t *testing.T) {
	for _, mode := range []Mode{ModeWriteVcf, ModeWriteVcfGz, ModeWriteUncompressedBcf, ModeWriteBcf} {
		t.Run(string(mode), func(t *testing.T) {
			data := writeTestRecords(t, mode)
			switch mode {
			case ModeWriteVcf:
				assert.Equal(t, testVcf, string(data))
			case ModeWriteUncompressedBcf:
				assert.Equal(t, bcfMagic, data[:len(bcfMagic)])
			default:
				assert.Equal(t, byte(0x1f), data[0])
			}

			reader, err := NewReader(bytes.NewReader(data))
			require.NoError(t, err)
			defer reader.Close()
			assert.Equal(t, mode.binary(), reader.Binary())
			assert.Equal(t, []string{"S1", "S2", "S3"}, reader.Header().Samples())
			assert.Equal(t, []string{"chr1", "chr2"}, reader.Header().Contigs())
			assert.Equal(t, testVcfRecords, formatTestRecords(t, readTestRecords(t, reader)))
		})
	}
}

func TestBcfPreservesFieldIDs(t *testing.T) {
	hdr := parseTestHeader(t, testVcfHeader)
	require.NoError(t, hdr.RemoveInfo("DB"))
	var out bytes.Buffer
	writer, err := NewWriter(&out, hdr, ModeWriteUncompressedBcf)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader, err := NewReader(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	id, found := reader.Header().FieldID(InfoField, "AA")
	require.True(t, found)
	assert.Equal(t, int32(5), id)
	_, found = reader.Header().FieldID(InfoField, "DB")
	assert.False(t, found)
	_, err = reader.Next()
	assert.Equal(t, ErrNoMoreRecords, err)
}

func TestReadFaults(t *testing.T) {
	var fault *ReadFault

	for _, input := range []string{"", "chr1\t1\n", "##fileformat=VCFv4.3\n##INFO=<ID=DP\n"} {
		_, err := NewReader(strings.NewReader(input))
		require.True(t, errors.As(err, &fault), input)
		assert.Equal(t, 0, fault.Record)
	}

	reader, err := NewReader(strings.NewReader(testVcfHeader + testVcfRecords[0] + "chr1\tx\n"))
	require.NoError(t, err)
	_, err = reader.Next()
	require.NoError(t, err)
	_, err = reader.Next()
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, 2, fault.Record)

	reader, err = NewReader(strings.NewReader(testVcfHeader + "chr9\t1\t.\tA\t.\t.\t.\t.\tGT\t0\t0\t0\n"))
	require.NoError(t, err)
	_, err = reader.Next()
	var unknown *UnknownContigError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "chr9", unknown.Name)
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, 1, fault.Record)
}

func TestReadTruncatedBcf(t *testing.T) {
	data := writeTestRecords(t, ModeWriteUncompressedBcf)

	reader, err := NewReader(bytes.NewReader(data[:len(data)-3]))
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = reader.Next()
		require.NoError(t, err)
	}
	_, err = reader.Next()
	var fault *ReadFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, 3, fault.Record)
	assert.True(t, errors.Is(err, errTruncated))
	_, err = reader.Next()
	assert.True(t, errors.Is(err, errTruncated))

	_, err = NewReader(bytes.NewReader(data[:20]))
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, 0, fault.Record)

	bad := append([]byte(nil), data...)
	bad[4] = 9
	_, err = NewReader(bytes.NewReader(bad))
	assert.Error(t, err)
}

func TestWriteErrors(t *testing.T) {
	reader, recs := readTestVcf(t)
	var out bytes.Buffer
	writer, err := NewWriter(&out, NewHeaderFromTemplate(reader.Header()), ModeWriteUncompressedBcf)
	require.NoError(t, err)
	var writeErr *WriteError

	err = writer.Write(recs[0])
	require.True(t, errors.As(err, &writeErr))
	assert.ErrorIs(t, err, ErrHeaderMismatch)

	rec := NewRecord(writer.Header())
	require.NoError(t, rec.SetContig("chr1"))
	assert.Error(t, writer.Write(rec))

	rec.Alleles = []string{"A"}
	rec.Format = FormatFields{{Key: 7, Value: []interface{}{[]int32{1}}}}
	err = writer.Write(rec)
	require.True(t, errors.As(err, &writeErr))

	rec.Format = nil
	rec.Filters = []int32{3}
	assert.Error(t, writer.Write(rec))

	rec.Filters = nil
	require.NoError(t, writer.Write(rec))
	require.NoError(t, writer.Close())
	require.NoError(t, writer.Close())
	assert.Error(t, writer.Write(rec))

	_, err = NewWriter(&out, NewHeader(), ModeRead)
	assert.Error(t, err)
}

func TestWriterSealsHeader(t *testing.T) {
	hdr := parseTestHeader(t, testVcfHeader)
	var out bytes.Buffer
	writer, err := NewWriter(&out, hdr, ModeWriteVcf)
	require.NoError(t, err)
	defer writer.Close()
	assert.True(t, hdr.Sealed())
	assert.True(t, writer.Header().Sealed())
	assert.False(t, writer.Header().Same(hdr.View()))
	assert.ErrorIs(t, hdr.AddSample("S4"), ErrHeaderSealed)
}

func TestCreateOpen(t *testing.T) {
	dir := t.TempDir()
	reader, recs := readTestVcf(t)
	for _, name := range []string{"out.vcf", "out.vcf.gz", "out.bcf"} {
		path := filepath.Join(dir, name)
		mode := ModeForFilename(path, true)
		writer, err := Create(path, NewHeaderFromTemplate(reader.Header()), mode)
		require.NoError(t, err)
		for _, rec := range recs {
			clone := rec.Clone()
			require.NoError(t, writer.Translate(clone))
			require.NoError(t, writer.Write(clone))
		}
		require.NoError(t, writer.Close())

		input, err := Open(path)
		require.NoError(t, err)
		assert.Equal(t, mode.binary(), input.Binary(), name)
		assert.Equal(t, testVcfRecords, formatTestRecords(t, readTestRecords(t, input)))
		require.NoError(t, input.Close())
	}

	_, err := Open(filepath.Join(dir, "missing.vcf"))
	var fault *ReadFault
	assert.True(t, errors.As(err, &fault))
	_, err = Create(filepath.Join(dir, "x.vcf"), NewHeader(), ModeRead)
	assert.Error(t, err)
}

func TestModes(t *testing.T) {
	assert.Equal(t, ModeWriteVcf, WriteMode(true, true))
	assert.Equal(t, ModeWriteVcfGz, WriteMode(false, true))
	assert.Equal(t, ModeWriteUncompressedBcf, WriteMode(true, false))
	assert.Equal(t, ModeWriteBcf, WriteMode(false, false))

	for s, mode := range map[string]Mode{
		"r": ModeRead, "w": ModeWriteVcf, "v": ModeWriteVcf, "wz": ModeWriteVcfGz, "z": ModeWriteVcfGz,
		"wu": ModeWriteUncompressedBcf, "u": ModeWriteUncompressedBcf, "wb": ModeWriteBcf, "b": ModeWriteBcf,
	} {
		parsed, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}
	_, err := ParseMode("x")
	assert.Error(t, err)

	assert.Equal(t, ModeWriteBcf, ModeForFilename("a.bcf", true))
	assert.Equal(t, ModeWriteUncompressedBcf, ModeForFilename("a.bcf", false))
	assert.Equal(t, ModeWriteVcfGz, ModeForFilename("a.vcf.gz", false))
	assert.Equal(t, ModeWriteVcf, ModeForFilename("a.vcf", false))
	assert.Equal(t, ModeWriteVcfGz, ModeForFilename("a.vcf", true))
}

// oneSampleVcf generates a stream of n records with a single sample.
func oneSampleVcf(n int) string {
	var buf strings.Builder
	buf.WriteString(strings.Replace(testVcfHeader, "S1\tS2\tS3", "S1", 1))
	genotypes := []string{"0/0", "0/1", "1|1", "./.", "1/2"}
	for i := 0; i < n; i++ {
		contig := "chr1"
		if i >= n/2 {
			contig = "chr2"
		}
		fmt.Fprintf(&buf, "%v\t%v\t.\tA\tC,G\t%v\tPASS\tDP=%v\tGT:GQ:AD\t%v:%v:%v,%v,%v\n",
			contig, 1000+i*10, 10+i, i*3, genotypes[i%len(genotypes)], i%99, i, i+1, i%7)
	}
	return buf.String()
}

func TestOneSampleSubsetRoundTrip(t *testing.T) {
	const n = 60
	source, err := NewReader(strings.NewReader(oneSampleVcf(n)))
	require.NoError(t, err)
	recs := readTestRecords(t, source)
	require.Len(t, recs, n)

	subset, err := SubsetTemplate(source.Header(), source.Header().Samples())
	require.NoError(t, err)
	var out bytes.Buffer
	writer, err := NewWriter(&out, subset, ModeWriteBcf)
	require.NoError(t, err)
	for _, rec := range recs {
		clone := rec.Clone()
		require.NoError(t, writer.Translate(clone))
		require.NoError(t, writer.Subset(clone))
		require.NoError(t, writer.Write(clone))
	}
	require.NoError(t, writer.Close())

	reader, err := NewReader(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []string{"S1"}, reader.Header().Samples())
	copies := readTestRecords(t, reader)
	require.Len(t, copies, n)
	for i, rec := range recs {
		cp := copies[i]
		assert.Equal(t, rec.Pos, cp.Pos, i)
		assert.Equal(t, rec.Alleles, cp.Alleles, i)
		assert.Equal(t, rec.Format, cp.Format, i)
		assert.Equal(t, rec.Info, cp.Info, i)
	}
	assert.Equal(t, formatTestRecords(t, recs), formatTestRecords(t, copies))
}
