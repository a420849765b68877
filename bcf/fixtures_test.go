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
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exascience/elbcf/vcf"
)

const testVcfHeader = `##fileformat=VCFv4.3
##FILTER=<ID=PASS,Description="All filters passed">
##FILTER=<ID=q10,Description="Quality below 10">
##INFO=<ID=DP,Number=1,Type=Integer,Description="Total Depth">
##INFO=<ID=AF,Number=A,Type=Float,Description="Allele Frequency">
##INFO=<ID=DB,Number=0,Type=Flag,Description="dbSNP membership">
##INFO=<ID=AA,Number=1,Type=String,Description="Ancestral Allele">
##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">
##FORMAT=<ID=GQ,Number=1,Type=Integer,Description="Genotype Quality">
##FORMAT=<ID=AD,Number=R,Type=Integer,Description="Allelic depths">
##FORMAT=<ID=HQ,Number=2,Type=Integer,Description="Haplotype Quality">
##contig=<ID=chr1,length=248956422>
##contig=<ID=chr2,length=242193529>
##source=elbcfTest
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	S1	S2	S3
`

var testVcfRecords = []string{
	"chr1\t100\trs1\tA\tC,G\t29.5\tPASS\tDP=14;AF=0.5,0.25;DB\tGT:GQ:AD\t0/1:48:10,4,0\t1|1:43:0,8,0\t./.:.:.\n",
	"chr1\t200\t.\tT\tTA\t.\tq10\tDP=3;AA=T\tGT:GQ:AD:HQ\t0/0:10:3,0:1,2\t0/1:.:1,1:.\t1/1:20:0,5:3,4\n",
	"chr2\t5\t.\tG\t.\t.\t.\t.\tGT\t0\t0\t.\n",
}

var testVcf = testVcfHeader + strings.Join(testVcfRecords, "")

// parseTestHeader builds a header from VCF header text.
func parseTestHeader(t *testing.T, text string) *Header {
	t.Helper()
	parsed, _, err := vcf.ParseHeader(bufio.NewReader(strings.NewReader(text)))
	require.NoError(t, err)
	hdr, err := newHeaderFromText(parsed)
	require.NoError(t, err)
	return hdr
}

// readTestRecords reads all records of a VCF or BCF stream.
func readTestRecords(t *testing.T, reader *Reader) []*Record {
	t.Helper()
	var recs []*Record
	for {
		rec, err := reader.Next()
		if err == ErrNoMoreRecords {
			return recs
		}
		require.NoError(t, err)
		recs = append(recs, rec)
	}
}

// formatTestRecords formats records as VCF lines.
func formatTestRecords(t *testing.T, recs []*Record) []string {
	t.Helper()
	lines := make([]string, len(recs))
	for i, rec := range recs {
		out, err := formatVcfRecord(rec, nil)
		require.NoError(t, err)
		lines[i] = string(out)
	}
	return lines
}
