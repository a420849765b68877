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
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/exascience/elbcf/utils"
	"github.com/exascience/elbcf/vcf"
)

// Flag is the value of INFO fields of Type=Flag.
type Flag struct{}

// Missing values.
const (
	MissingInt32 int32 = math.MinInt32
	missingFloatBits   = 0x7F800001
)

// MissingFloat is the missing value for Float fields and QUAL. It is
// a NaN, so use IsMissingFloat to test for it.
var MissingFloat = math.Float32frombits(missingFloatBits)

// IsMissingFloat reports whether f is MissingFloat.
func IsMissingFloat(f float32) bool {
	return math.Float32bits(f) == missingFloatBits
}

// EncodeGenotype returns the GT value for an allele index, or for a
// missing allele if allele < 0.
func EncodeGenotype(allele int32, phased bool) int32 {
	var phase int32
	if phased {
		phase = 1
	}
	if allele < 0 {
		return phase
	}
	return (allele+1)<<1 | phase
}

// GenotypeAllele returns the allele index of a GT value, or -1 if missing.
func GenotypeAllele(gt int32) int32 {
	return gt>>1 - 1
}

// GenotypePhased reports whether a GT value is phased with respect to
// the previous allele of the same sample.
func GenotypePhased(gt int32) bool {
	return gt&1 == 1
}

// ParseGenotype parses a textual GT entry, like 0/1, 1|2 or ./.
func ParseGenotype(s string) ([]int32, error) {
	if s == "" {
		return nil, errors.New("empty genotype")
	}
	var result []int32
	phased := false
	for start := 0; start <= len(s); {
		end := start
		for end < len(s) && s[end] != '/' && s[end] != '|' {
			end++
		}
		allele := int32(-1)
		if entry := s[start:end]; entry != "." {
			a, err := strconv.ParseInt(entry, 10, 32)
			if err != nil || a < 0 {
				return nil, fmt.Errorf("invalid genotype %v", s)
			}
			allele = int32(a)
		}
		result = append(result, EncodeGenotype(allele, phased))
		if end == len(s) {
			break
		}
		phased = s[end] == '|'
		start = end + 1
	}
	return result, nil
}

// FormatGenotype appends the textual form of a GT entry.
func FormatGenotype(out []byte, gt []int32) []byte {
	if len(gt) == 0 {
		return append(out, '.')
	}
	for i, g := range gt {
		if i > 0 {
			if GenotypePhased(g) {
				out = append(out, '|')
			} else {
				out = append(out, '/')
			}
		}
		if allele := GenotypeAllele(g); allele < 0 {
			out = append(out, '.')
		} else {
			out = strconv.AppendInt(out, int64(allele), 10)
		}
	}
	return out
}

// Field is an INFO entry. Values are []int32, []float32, string, or Flag.
type Field = utils.SmallMapEntry[int32, interface{}]

// Fields maps INFO field ids to values, in record order.
type Fields = utils.SmallMap[int32, interface{}]

// FormatEntry is a FORMAT entry with one value per sample. Values are
// []int32, []float32 or string. GT values use the EncodeGenotype
// encoding.
type FormatEntry = utils.SmallMapEntry[int32, []interface{}]

// FormatFields maps FORMAT field ids to per-sample values, in record
// order.
type FormatFields = utils.SmallMap[int32, []interface{}]

// Record is a variant record. Its ids are valid against the header it
// is bound to; only Translate changes that binding.
type Record struct {
	header  *Header
	Contig  int32
	Pos     int32  // 0-based
	ID      string // "" if missing
	Qual    float32
	Alleles []string // reference allele first
	Filters []int32
	Info    Fields
	Format  FormatFields
}

// NewRecord creates an empty record bound to the given header.
func NewRecord(header HeaderView) *Record {
	return &Record{header: header.hdr, Contig: -1, Qual: MissingFloat}
}

func (rec *Record) reset(hdr *Header) {
	*rec = Record{header: hdr, Contig: -1, Qual: MissingFloat}
}

// Header returns the header the record is bound to.
func (rec *Record) Header() HeaderView {
	return HeaderView{hdr: rec.header}
}

// ContigName returns the name of the record's contig.
func (rec *Record) ContigName() (string, bool) {
	return rec.header.contigs.Name(rec.Contig)
}

// SetContig sets the contig by name.
func (rec *Record) SetContig(name string) error {
	id, found := rec.header.contigs.ID(name)
	if !found {
		return &UnknownContigError{Name: name}
	}
	rec.Contig = id
	return nil
}

// End returns the 0-based exclusive end position, from INFO END if
// present, otherwise from the length of the reference allele.
func (rec *Record) End() int32 {
	if id, found := rec.Header().FieldID(InfoField, *vcf.END); found {
		if value, ok := rec.Info.Get(id); ok {
			if end, ok := value.([]int32); ok && len(end) == 1 && end[0] != MissingInt32 {
				return end[0]
			}
		}
	}
	if len(rec.Alleles) == 0 {
		return rec.Pos
	}
	return rec.Pos + int32(len(rec.Alleles[0]))
}

// SampleCount returns the number of samples of the bound header.
func (rec *Record) SampleCount() int {
	return rec.header.samples.Count()
}

// FilterNames returns the names of the record's filters.
func (rec *Record) FilterNames() []string {
	names := make([]string, 0, len(rec.Filters))
	for _, id := range rec.Filters {
		if name, ok := rec.header.fields.Name(id); ok {
			names = append(names, name)
		}
	}
	return names
}

// SetFilters sets the record's filters by name.
func (rec *Record) SetFilters(names ...string) error {
	filters := make([]int32, 0, len(names))
	for _, name := range names {
		id, found := rec.Header().FieldID(FilterField, name)
		if !found {
			return fmt.Errorf("FILTER %v is not declared", name)
		}
		filters = append(filters, id)
	}
	rec.Filters = filters
	return nil
}

// InfoValue returns the value of the INFO field with the given name.
func (rec *Record) InfoValue(name string) (interface{}, bool) {
	id, found := rec.Header().FieldID(InfoField, name)
	if !found {
		return nil, false
	}
	return rec.Info.Get(id)
}

// SetInfo sets the value of a declared INFO field.
func (rec *Record) SetInfo(name string, value interface{}) error {
	id, found := rec.Header().FieldID(InfoField, name)
	if !found {
		return fmt.Errorf("INFO %v is not declared", name)
	}
	switch value.(type) {
	case []int32, []float32, string, Flag:
	default:
		return fmt.Errorf("invalid INFO value type %T for %v", value, name)
	}
	rec.Info.Set(id, value)
	return nil
}

// DeleteInfo removes the INFO field with the given name, if present.
func (rec *Record) DeleteInfo(name string) {
	if id, found := rec.header.fields.ID(name); found {
		rec.Info, _ = rec.Info.Delete(id)
	}
}

// FormatValues returns the per-sample values of the FORMAT field
// with the given name.
func (rec *Record) FormatValues(name string) ([]interface{}, bool) {
	id, found := rec.Header().FieldID(FormatField, name)
	if !found {
		return nil, false
	}
	return rec.Format.Get(id)
}

// SetFormat sets the per-sample values of a declared FORMAT field.
func (rec *Record) SetFormat(name string, values []interface{}) error {
	id, found := rec.Header().FieldID(FormatField, name)
	if !found {
		return fmt.Errorf("FORMAT %v is not declared", name)
	}
	if len(values) != rec.SampleCount() {
		return fmt.Errorf("FORMAT %v has %v values for %v samples", name, len(values), rec.SampleCount())
	}
	for _, value := range values {
		switch value.(type) {
		case nil, []int32, []float32, string:
		default:
			return fmt.Errorf("invalid FORMAT value type %T for %v", value, name)
		}
	}
	rec.Format.Set(id, values)
	return nil
}

func cloneValue(value interface{}) interface{} {
	switch v := value.(type) {
	case []int32:
		return append([]int32(nil), v...)
	case []float32:
		return append([]float32(nil), v...)
	default:
		return value
	}
}

// Clone returns a deep copy bound to the same header.
func (rec *Record) Clone() *Record {
	result := *rec
	result.Alleles = append([]string(nil), rec.Alleles...)
	result.Filters = append([]int32(nil), rec.Filters...)
	if rec.Info != nil {
		result.Info = make(Fields, len(rec.Info))
		for i, field := range rec.Info {
			result.Info[i] = Field{Key: field.Key, Value: cloneValue(field.Value)}
		}
	}
	if rec.Format != nil {
		result.Format = make(FormatFields, len(rec.Format))
		for i, field := range rec.Format {
			values := make([]interface{}, len(field.Value))
			for j, value := range field.Value {
				values[j] = cloneValue(value)
			}
			result.Format[i] = FormatEntry{Key: field.Key, Value: values}
		}
	}
	return &result
}
