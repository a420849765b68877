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
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/elbcf/internal/logging"
)

func trimTestHeader(t *testing.T, withGT bool) *Header {
	t.Helper()
	hdr := NewHeader()
	lines := []string{
		`##contig=<ID=chr1,length=1000>`,
		`##INFO=<ID=AF,Number=A,Type=Float,Description="Allele Frequency">`,
		`##INFO=<ID=RS,Number=R,Type=String,Description="Per allele names">`,
		`##INFO=<ID=DP,Number=1,Type=Integer,Description="Depth">`,
		`##FORMAT=<ID=AD,Number=R,Type=Integer,Description="Allelic depths">`,
		`##FORMAT=<ID=PL,Number=G,Type=Integer,Description="Phred-scaled likelihoods">`,
	}
	if withGT {
		lines = append(lines, `##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">`)
	}
	for _, line := range lines {
		require.NoError(t, hdr.AppendLine(line))
	}
	require.NoError(t, hdr.AddSample("S1"))
	require.NoError(t, hdr.AddSample("S2"))
	return hdr
}

func trimTestRecord(t *testing.T, hdr *Header, gt1, gt2 string) *Record {
	t.Helper()
	rec := NewRecord(hdr.View())
	require.NoError(t, rec.SetContig("chr1"))
	rec.Pos = 9
	rec.Alleles = []string{"A", "C", "G", "<X>"}
	require.NoError(t, rec.SetInfo("AF", []float32{0.1, 0.2, 0.3}))
	require.NoError(t, rec.SetInfo("RS", "a,b,c,d"))
	require.NoError(t, rec.SetInfo("DP", []int32{12}))
	require.NoError(t, rec.SetFormat("AD", []interface{}{[]int32{1, 2, 3, 4}, []int32{5, 6, 7, 8}}))
	require.NoError(t, rec.SetFormat("PL", []interface{}{
		[]int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		[]int32{10, 11, 12, 13},
	}))
	if gt1 != "" {
		s1, err := ParseGenotype(gt1)
		require.NoError(t, err)
		s2, err := ParseGenotype(gt2)
		require.NoError(t, err)
		require.NoError(t, rec.SetFormat("GT", []interface{}{s1, s2}))
	}
	return rec
}

func TestTrimAlleles(t *testing.T) {
	hdr := trimTestHeader(t, true)
	rec := trimTestRecord(t, hdr, "0/3", "0|1")
	removed, err := TrimAlleles(rec)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"A", "C", "<X>"}, rec.Alleles)

	gt, _ := rec.FormatValues("GT")
	assert.Equal(t, "0/2", string(FormatGenotype(nil, gt[0].([]int32))))
	assert.Equal(t, "0|1", string(FormatGenotype(nil, gt[1].([]int32))))

	af, _ := rec.InfoValue("AF")
	assert.Equal(t, []float32{0.1, 0.3}, af)
	rs, _ := rec.InfoValue("RS")
	assert.Equal(t, "a,b,d", rs)
	dp, _ := rec.InfoValue("DP")
	assert.Equal(t, []int32{12}, dp)

	ad, _ := rec.FormatValues("AD")
	assert.Equal(t, []interface{}{[]int32{1, 2, 4}, []int32{5, 6, 8}}, ad)
	pl, _ := rec.FormatValues("PL")
	assert.Equal(t, []interface{}{[]int32{0, 1, 2, 6, 7, 9}, []int32{10, 11, 13}}, pl)
}

func TestTrimAllelesDebugLog(t *testing.T) {
	var logs bytes.Buffer
	previous := *logging.L()
	logging.SetLogger(zerolog.New(&logs))
	level := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer func() {
		logging.SetLogger(previous)
		zerolog.SetGlobalLevel(level)
	}()

	rec := trimTestRecord(t, trimTestHeader(t, true), "0/3", "0|1")
	_, err := TrimAlleles(rec)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), `"component":"trim"`)
	assert.Contains(t, logs.String(), `"removed":1`)
	assert.Contains(t, logs.String(), `"pos":10`)
}

func TestTrimAllelesNothingToTrim(t *testing.T) {
	hdr := trimTestHeader(t, true)
	rec := trimTestRecord(t, hdr, "2/3", "0/1")
	removed, err := TrimAlleles(rec)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Len(t, rec.Alleles, 4)
	af, _ := rec.InfoValue("AF")
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, af)
}

func TestTrimAllelesMissingGenotypes(t *testing.T) {
	hdr := trimTestHeader(t, true)
	rec := trimTestRecord(t, hdr, "./.", ".")
	require.NoError(t, rec.SetFormat("AD", []interface{}{nil, []int32{MissingInt32}}))
	require.NoError(t, rec.SetFormat("PL", []interface{}{nil, nil}))
	removed, err := TrimAlleles(rec)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, []string{"A"}, rec.Alleles)
	af, _ := rec.InfoValue("AF")
	assert.Equal(t, []float32{}, af)
	rs, _ := rec.InfoValue("RS")
	assert.Equal(t, "a", rs)
	ad, _ := rec.FormatValues("AD")
	assert.Equal(t, []interface{}{nil, []int32{MissingInt32}}, ad)
}

func TestTrimAllelesNoGenotypeData(t *testing.T) {
	rec := trimTestRecord(t, trimTestHeader(t, false), "", "")
	_, err := TrimAlleles(rec)
	var noData *NoGenotypeDataError
	require.True(t, errors.As(err, &noData))
	assert.Equal(t, "chr1", noData.Contig)
	assert.Equal(t, int32(9), noData.Pos)

	rec = trimTestRecord(t, trimTestHeader(t, true), "", "")
	_, err = TrimAlleles(rec)
	assert.True(t, errors.As(err, &noData))
	assert.Len(t, rec.Alleles, 4)
}

func TestTrimAllelesFieldLength(t *testing.T) {
	hdr := trimTestHeader(t, true)
	rec := trimTestRecord(t, hdr, "0/1", "0/0")
	require.NoError(t, rec.SetInfo("AF", []float32{0.1, 0.2}))
	_, err := TrimAlleles(rec)
	assert.ErrorIs(t, err, ErrAlleleFieldLength)
	assert.Len(t, rec.Alleles, 4)
	ad, _ := rec.FormatValues("AD")
	assert.Equal(t, []int32{1, 2, 3, 4}, ad[0])

	rec = trimTestRecord(t, hdr, "0/1", "0/0")
	require.NoError(t, rec.SetFormat("PL", []interface{}{[]int32{1, 2, 3}, nil}))
	_, err = TrimAlleles(rec)
	assert.ErrorIs(t, err, ErrAlleleFieldLength)
}

func TestTrimAllelesInvalidGenotype(t *testing.T) {
	hdr := trimTestHeader(t, true)
	rec := trimTestRecord(t, hdr, "0/4", "0/0")
	_, err := TrimAlleles(rec)
	assert.Error(t, err)
	assert.Len(t, rec.Alleles, 4)
}
