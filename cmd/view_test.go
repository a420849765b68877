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

package cmd

import (
	"bytes"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/elbcf/bcf"
	"github.com/exascience/elbcf/vcf"
)

const viewTestHeader = `##fileformat=VCFv4.3
##FILTER=<ID=PASS,Description="All filters passed">
##INFO=<ID=DP,Number=1,Type=Integer,Description="Total Depth">
##INFO=<ID=AF,Number=A,Type=Float,Description="Allele Frequency">
##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">
##FORMAT=<ID=AD,Number=R,Type=Integer,Description="Allelic depths">
##contig=<ID=chr1,length=1000>
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	A	B
`

const viewTestRecords = "chr1\t10\t.\tA\tC,G\t50\tPASS\tDP=9;AF=0.25,0.5\tGT:AD\t0/0:5,0,0\t0/2:2,0,2\n" +
	"chr1\t20\t.\tC\tT\t.\t.\tDP=4\tGT:AD\t0/1:2,2\t0/0:4,0\n"

func writeTestInput(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0600))
	return path
}

func TestRunViewCopy(t *testing.T) {
	dir := t.TempDir()
	input := writeTestInput(t, dir, "in.vcf", viewTestHeader+viewTestRecords)
	output := filepath.Join(dir, "out.vcf")
	require.NoError(t, runView(viewOptions{input: input, output: output, mode: bcf.ModeWriteVcf, compressionLevel: -1}))
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, viewTestHeader+viewTestRecords, string(data))
}

func TestRunViewSubsetTrim(t *testing.T) {
	dir := t.TempDir()
	input := writeTestInput(t, dir, "in.vcf", viewTestHeader+viewTestRecords)
	output := filepath.Join(dir, "out.vcf")
	require.NoError(t, runView(viewOptions{
		input:            input,
		output:           output,
		samples:          []string{"B"},
		mode:             bcf.ModeWriteVcf,
		trim:             true,
		removeInfo:       []string{"DP"},
		compressionLevel: -1,
	}))
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	expected := strings.Replace(
		strings.Replace(viewTestHeader, "##INFO=<ID=DP,Number=1,Type=Integer,Description=\"Total Depth\">\n", "", 1),
		"FORMAT\tA\tB", "FORMAT\tB", 1) +
		"chr1\t10\t.\tA\tG\t50\tPASS\tAF=0.5\tGT:AD\t0/1:2,2\n" +
		"chr1\t20\t.\tC\t.\t.\t.\t.\tGT:AD\t0/0:4\n"
	assert.Equal(t, expected, string(data))
}

func TestRunViewBinary(t *testing.T) {
	dir := t.TempDir()
	input := writeTestInput(t, dir, "in.vcf", viewTestHeader+viewTestRecords)
	output := filepath.Join(dir, "out.bcf")
	require.NoError(t, runView(viewOptions{
		input:            input,
		output:           output,
		samples:          []string{"B", "A"},
		removeFormat:     []string{"AD"},
		compressionLevel: 1,
	}))

	var samples bytes.Buffer
	require.NoError(t, printSamples(&samples, output, false))
	assert.Equal(t, "B\nA\n", samples.String())
	samples.Reset()
	require.NoError(t, printSamples(&samples, output, true))
	assert.Equal(t, "2\n", samples.String())

	var header bytes.Buffer
	require.NoError(t, printHeader(&header, output, false))
	assert.NotContains(t, header.String(), "ID=AD")
	header.Reset()
	require.NoError(t, printHeader(&header, output, true))
	assert.Contains(t, header.String(), "##INFO=<ID=DP,Number=1,Type=Integer,Description=\"Total Depth\",IDX=1>\n")

	vcfCopy := filepath.Join(dir, "copy.vcf")
	require.NoError(t, runView(viewOptions{input: output, output: vcfCopy, mode: bcf.ModeWriteVcf, compressionLevel: -1}))
	data, err := os.ReadFile(vcfCopy)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data),
		"chr1\t10\t.\tA\tC,G\t50\tPASS\tDP=9;AF=0.25,0.5\tGT\t0/2\t0/0\n"+
			"chr1\t20\t.\tC\tT\t.\t.\tDP=4\tGT\t0/0\t0/1\n"), string(data))
}

func TestRunViewHeaderLines(t *testing.T) {
	dir := t.TempDir()
	input := writeTestInput(t, dir, "in.vcf", viewTestHeader+viewTestRecords)
	template := writeTestInput(t, dir, "template.vcf", `##fileformat=VCFv4.3
##INFO=<ID=MQ,Number=1,Type=Float,Description="Mapping Quality">
##contig=<ID=chr2,length=500>
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO
`)
	output := filepath.Join(dir, "out.vcf.gz")
	require.NoError(t, runView(viewOptions{
		input:            input,
		output:           output,
		headerLines:      []string{"##source=viewTest"},
		headerTemplate:   template,
		commandLine:      "elbcf view in.vcf out.vcf.gz",
		compressionLevel: -1,
	}))

	var header bytes.Buffer
	require.NoError(t, printHeader(&header, output, false))
	text := header.String()
	assert.Contains(t, text, "##INFO=<ID=MQ,Number=1,Type=Float,Description=\"Mapping Quality\">\n")
	assert.Contains(t, text, "##contig=<ID=chr2,length=500>\n")
	assert.Contains(t, text, "##source=viewTest\n")
	assert.Regexp(t, `##elbcfCommand=<ID=[0-9a-f-]{36},CommandLine="elbcf view in.vcf out.vcf.gz",Version=[^>]+>\n#CHROM`, text)
}

func TestRunViewErrors(t *testing.T) {
	dir := t.TempDir()
	input := writeTestInput(t, dir, "in.vcf", viewTestHeader+viewTestRecords)
	output := filepath.Join(dir, "out.vcf")

	err := runView(viewOptions{input: input, output: output, samples: []string{"C"}, compressionLevel: -1})
	var unknown *bcf.UnknownSampleError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "C", unknown.Name)

	err = runView(viewOptions{input: filepath.Join(dir, "missing.vcf"), output: output, compressionLevel: -1})
	var fault *bcf.ReadFault
	assert.True(t, errors.As(err, &fault))

	err = runView(viewOptions{input: input, output: output, headerLines: []string{"##INFO=<ID=X"}, compressionLevel: -1})
	var malformed *bcf.MalformedDefinitionError
	assert.True(t, errors.As(err, &malformed))

	bad := writeTestInput(t, dir, "bad.vcf", viewTestHeader+"chr2\t1\t.\tA\t.\t.\t.\t.\tGT\t0\t0\n")
	err = runView(viewOptions{input: bad, output: output, compressionLevel: -1})
	assert.True(t, errors.As(err, &fault))
}

func TestCommandLine(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	line, err := commandLine(id, `elbcf view "a b.vcf" c\d.vcf`)
	require.NoError(t, err)
	key, value, err := vcf.ParseHeaderLine(line)
	require.NoError(t, err)
	assert.Equal(t, CommandKey, key)
	meta := value.(*vcf.MetaInformation)
	assert.Equal(t, id.String(), *meta.ID)
	assert.Equal(t, `elbcf view "a b.vcf" c\d.vcf`, meta.Fields["CommandLine"])
}

func TestViewCommandLine(t *testing.T) {
	assert.Equal(t, ErrUsage, View(nil))
	assert.Equal(t, flag.ErrHelp, View([]string{"--help"}))
	assert.Equal(t, ErrUsage, View([]string{"in.vcf", "out.vcf", "--no-such-flag"}))
	assert.Equal(t, ErrUsage, View([]string{"in.vcf", "out.vcf", "extra"}))
	assert.Equal(t, ErrUsage, Samples(nil))
	assert.Equal(t, ErrUsage, Header([]string{filepath.Join(t.TempDir(), "missing.vcf")}))
}
