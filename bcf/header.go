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
	"strconv"

	"github.com/exascience/elbcf/internal/logging"
	"github.com/exascience/elbcf/utils"
	"github.com/exascience/elbcf/vcf"
)

// FieldKind distinguishes the three uses of an entry in the field
// dictionary.
type FieldKind int

// The field kinds.
const (
	FilterField FieldKind = iota
	InfoField
	FormatField
)

var fieldKinds = [...]FieldKind{FilterField, InfoField, FormatField}

func (kind FieldKind) String() string {
	switch kind {
	case FilterField:
		return vcf.FilterKey
	case InfoField:
		return vcf.InfoKey
	case FormatField:
		return vcf.FormatKey
	default:
		return fmt.Sprintf("FieldKind(%d)", int(kind))
	}
}

// FieldDefinition holds the FILTER, INFO and FORMAT definitions that
// share a name, and therefore an id. Nil entries are undefined.
type FieldDefinition struct {
	Filter *vcf.MetaInformation
	Info   *vcf.FormatInformation
	Format *vcf.FormatInformation
}

// Defines reports whether the definition has an entry for the given kind.
func (def *FieldDefinition) Defines(kind FieldKind) bool {
	switch kind {
	case FilterField:
		return def.Filter != nil
	case InfoField:
		return def.Info != nil
	case FormatField:
		return def.Format != nil
	}
	return false
}

func (def *FieldDefinition) line(kind FieldKind) interface{} {
	switch kind {
	case FilterField:
		if def.Filter != nil {
			return def.Filter
		}
	case InfoField:
		if def.Info != nil {
			return def.Info
		}
	case FormatField:
		if def.Format != nil {
			return def.Format
		}
	}
	return nil
}

func (def *FieldDefinition) clear(kind FieldKind) {
	switch kind {
	case FilterField:
		def.Filter = nil
	case InfoField:
		def.Info = nil
	case FormatField:
		def.Format = nil
	}
}

func (def *FieldDefinition) empty() bool {
	return def.Filter == nil && def.Info == nil && def.Format == nil
}

func cloneFieldDefinition(value interface{}) interface{} {
	def := value.(*FieldDefinition)
	result := &FieldDefinition{}
	if def.Filter != nil {
		result.Filter = def.Filter.Clone()
	}
	if def.Info != nil {
		result.Info = def.Info.Clone()
	}
	if def.Format != nil {
		result.Format = def.Format.Clone()
	}
	return result
}

func cloneContig(value interface{}) interface{} {
	return value.(*vcf.MetaInformation).Clone()
}

// SampleSubset maps each sample position of a subset header to the
// position the sample occupied in the header it was derived from.
type SampleSubset []int32

// Header owns the contig, sample and field dictionaries that records
// refer to, the remaining meta-information lines, and an optional
// SampleSubset.
//
// A Header is mutable until it is used to write a stream prologue.
// It is not safe for concurrent mutation.
type Header struct {
	fileFormat string
	contigs    *Dictionary // values are *vcf.MetaInformation
	samples    *Dictionary
	fields     *Dictionary // values are *FieldDefinition
	meta       []vcf.HeaderLine
	subset     SampleSubset
	sealed     bool
}

// NewHeader creates a header with three empty dictionaries.
func NewHeader() *Header {
	return &Header{
		fileFormat: vcf.FileFormatVersion,
		contigs:    NewDictionary(ContigDomain),
		samples:    NewDictionary(SampleDomain),
		fields:     NewDictionary(FieldDomain),
	}
}

func cloneMetaLines(lines []vcf.HeaderLine) []vcf.HeaderLine {
	if lines == nil {
		return nil
	}
	result := make([]vcf.HeaderLine, len(lines))
	for i, line := range lines {
		result[i].Key = line.Key
		if meta, ok := line.Value.(*vcf.MetaInformation); ok {
			result[i].Value = meta.Clone()
		} else {
			result[i].Value = line.Value
		}
	}
	return result
}

// NewHeaderFromTemplate creates a deep copy of the template's
// dictionaries, with the same ids. The copy has no SampleSubset and is
// not sealed.
func NewHeaderFromTemplate(template HeaderView) *Header {
	hdr := template.hdr
	return &Header{
		fileFormat: hdr.fileFormat,
		contigs:    hdr.contigs.Clone(cloneContig),
		samples:    hdr.samples.Clone(nil),
		fields:     hdr.fields.Clone(cloneFieldDefinition),
		meta:       cloneMetaLines(hdr.meta),
	}
}

// SubsetTemplate creates a copy of the template that only contains
// the given samples, in the given order, together with the
// SampleSubset from the new sample positions to the template's.
func SubsetTemplate(template HeaderView, samples []string) (*Header, error) {
	subset := make(SampleSubset, len(samples))
	for i, name := range samples {
		id, found := template.hdr.samples.ID(name)
		if !found {
			return nil, &UnknownSampleError{Name: name}
		}
		subset[i] = id
	}
	dict, err := BuildDictionary(SampleDomain, samples)
	if err != nil {
		return nil, &SubsetConstructionError{Err: err}
	}
	hdr := NewHeaderFromTemplate(template)
	hdr.samples = dict
	hdr.subset = subset
	return hdr, nil
}

// View returns a read-only view of the header.
func (hdr *Header) View() HeaderView {
	return HeaderView{hdr: hdr}
}

// Sealed reports whether the header was used to write a stream prologue.
func (hdr *Header) Sealed() bool {
	return hdr.sealed
}

func (hdr *Header) seal() {
	hdr.sealed = true
}

// AddSample appends a sample with the next dense id. Headers derived
// with SubsetTemplate reject new samples with ErrSubsetSamples.
func (hdr *Header) AddSample(name string) error {
	if hdr.sealed {
		return ErrHeaderSealed
	}
	if hdr.subset != nil {
		return ErrSubsetSamples
	}
	_, err := hdr.samples.Add(name, nil)
	return err
}

// AppendLine parses a meta-information line, with or without its
// leading ##, and adds its definition to the header.
func (hdr *Header) AppendLine(text string) error {
	if hdr.sealed {
		return ErrHeaderSealed
	}
	key, value, err := vcf.ParseHeaderLine(text)
	if err == nil {
		err = hdr.addLine(key, value)
	}
	if err != nil {
		return &MalformedDefinitionError{Line: text, Err: err}
	}
	return nil
}

func takeIDX(fields utils.StringMap) (int32, error) {
	value, found := fields["IDX"]
	if !found {
		return -1, nil
	}
	delete(fields, "IDX")
	idx, err := strconv.ParseInt(value, 10, 32)
	if err != nil || idx < 0 {
		return -1, fmt.Errorf("invalid IDX %v", value)
	}
	return int32(idx), nil
}

func (hdr *Header) addLine(key string, value interface{}) error {
	switch key {
	case vcf.FileFormatKey:
		hdr.fileFormat = value.(string)
		return nil
	case vcf.InfoKey, vcf.FormatKey:
		format := value.(*vcf.FormatInformation)
		idx, err := takeIDX(format.Fields)
		if err != nil {
			return err
		}
		if key == vcf.InfoKey {
			if _, err := vcf.CreateInfoParser(format); err != nil {
				return err
			}
			return hdr.addField(InfoField, *format.ID, format, idx)
		}
		if _, err := vcf.CreateFormatParser(format); err != nil {
			return err
		}
		return hdr.addField(FormatField, *format.ID, format, idx)
	case vcf.FilterKey, vcf.ContigKey:
		meta, ok := value.(*vcf.MetaInformation)
		if !ok {
			return fmt.Errorf("%v line without structured definition", key)
		}
		idx, err := takeIDX(meta.Fields)
		if err != nil {
			return err
		}
		if key == vcf.FilterKey {
			return hdr.addField(FilterField, *meta.ID, meta, idx)
		}
		return hdr.addContig(meta, idx)
	default:
		if meta, ok := value.(*vcf.MetaInformation); ok {
			delete(meta.Fields, "IDX")
		}
		hdr.meta = append(hdr.meta, vcf.HeaderLine{Key: key, Value: value})
		return nil
	}
}

func (hdr *Header) addContig(meta *vcf.MetaInformation, idx int32) error {
	name := *meta.ID
	if id, found := hdr.contigs.ID(name); found {
		existing, _ := hdr.contigs.Value(id)
		if existing.(*vcf.MetaInformation).Fields["length"] != meta.Fields["length"] {
			return &DuplicateNameError{Domain: ContigDomain, Name: name}
		}
		if idx >= 0 && idx != id {
			return fmt.Errorf("inconsistent IDX %v for contig %v", idx, name)
		}
		return nil
	}
	if idx >= 0 {
		return hdr.contigs.insert(idx, name, meta)
	}
	_, err := hdr.contigs.Add(name, meta)
	return err
}

func conflicting(existing, format *vcf.FormatInformation) bool {
	return existing.Number != format.Number || existing.Type != format.Type
}

func (hdr *Header) addField(kind FieldKind, name string, line interface{}, idx int32) error {
	id, found := hdr.fields.ID(name)
	if !found {
		def := &FieldDefinition{}
		def.set(kind, line)
		if idx >= 0 {
			return hdr.fields.insert(idx, name, def)
		}
		_, err := hdr.fields.Add(name, def)
		return err
	}
	if idx >= 0 && idx != id {
		return fmt.Errorf("inconsistent IDX %v for %v %v, already at %v", idx, kind, name, id)
	}
	value, _ := hdr.fields.Value(id)
	def := value.(*FieldDefinition)
	switch kind {
	case InfoField:
		if def.Info != nil && conflicting(def.Info, line.(*vcf.FormatInformation)) {
			return &DuplicateNameError{Domain: FieldDomain, Name: name}
		}
	case FormatField:
		if def.Format != nil && conflicting(def.Format, line.(*vcf.FormatInformation)) {
			return &DuplicateNameError{Domain: FieldDomain, Name: name}
		}
	}
	def.set(kind, line)
	return nil
}

func (def *FieldDefinition) set(kind FieldKind, line interface{}) {
	switch kind {
	case FilterField:
		def.Filter = line.(*vcf.MetaInformation)
	case InfoField:
		def.Info = line.(*vcf.FormatInformation)
	case FormatField:
		def.Format = line.(*vcf.FormatInformation)
	}
}

// RemoveFieldDefinition removes the definition of the given kind for
// tag. The id of tag stays reserved. Removing an absent definition is
// a no-op.
func (hdr *Header) RemoveFieldDefinition(kind FieldKind, tag string) error {
	if hdr.sealed {
		return ErrHeaderSealed
	}
	id, found := hdr.fields.ID(tag)
	if !found {
		return nil
	}
	value, _ := hdr.fields.Value(id)
	value.(*FieldDefinition).clear(kind)
	return nil
}

// RemoveInfo removes an INFO definition.
func (hdr *Header) RemoveInfo(tag string) error {
	return hdr.RemoveFieldDefinition(InfoField, tag)
}

// RemoveFormat removes a FORMAT definition.
func (hdr *Header) RemoveFormat(tag string) error {
	return hdr.RemoveFieldDefinition(FormatField, tag)
}

// RemoveFilter removes a FILTER definition.
func (hdr *Header) RemoveFilter(tag string) error {
	return hdr.RemoveFieldDefinition(FilterField, tag)
}

// MergeFrom adds the contigs, field definitions and generic
// meta-information lines of other that the header lacks. Samples are
// not merged. Conflicting INFO/FORMAT declarations keep the header's
// own definition and are logged.
func (hdr *Header) MergeFrom(other HeaderView) error {
	if hdr.sealed {
		return ErrHeaderSealed
	}
	src := other.hdr
	if src == hdr {
		return nil
	}
	for _, name := range src.contigs.Names() {
		if _, found := hdr.contigs.ID(name); found {
			continue
		}
		id, _ := src.contigs.ID(name)
		meta, _ := src.contigs.Value(id)
		if _, err := hdr.contigs.Add(name, cloneContig(meta)); err != nil {
			return err
		}
	}
	for _, name := range src.fields.Names() {
		id, _ := src.fields.ID(name)
		value, _ := src.fields.Value(id)
		def := cloneFieldDefinition(value).(*FieldDefinition)
		for _, kind := range fieldKinds {
			line := def.line(kind)
			if line == nil {
				continue
			}
			err := hdr.addField(kind, name, line, -1)
			var dup *DuplicateNameError
			if errors.As(err, &dup) {
				logging.L().Warn().Str("field", name).Stringer("kind", kind).
					Msg("conflicting field definitions while merging headers, keeping the first")
				continue
			}
			if err != nil {
				return err
			}
		}
	}
	seen := make(map[string]bool, len(hdr.meta))
	for _, line := range hdr.meta {
		if text, err := vcf.FormatHeaderLine(nil, line.Key, line.Value, -1); err == nil {
			seen[string(text)] = true
		}
	}
	for _, line := range cloneMetaLines(src.meta) {
		text, err := vcf.FormatHeaderLine(nil, line.Key, line.Value, -1)
		if err != nil {
			return err
		}
		if !seen[string(text)] {
			seen[string(text)] = true
			hdr.meta = append(hdr.meta, line)
		}
	}
	return nil
}

// newHeaderFromText builds a header from a parsed header section.
// Lines with an IDX field keep that id. Without any IDX field, PASS
// is defined first, as the container format requires.
func newHeaderFromText(text *vcf.Header) (*Header, error) {
	hdr := NewHeader()
	hdr.fileFormat = text.FileFormat
	withIDX := false
	for _, line := range text.Lines {
		switch value := line.Value.(type) {
		case *vcf.MetaInformation:
			_, withIDX = value.Fields["IDX"]
		case *vcf.FormatInformation:
			_, withIDX = value.Fields["IDX"]
		}
		if withIDX {
			break
		}
	}
	if !withIDX {
		pass := vcf.NewMetaInformation()
		pass.ID = vcf.PASS
		pass.Description = "All filters passed"
		if err := hdr.addField(FilterField, *vcf.PASS, pass, -1); err != nil {
			return nil, err
		}
	}
	for _, line := range text.Lines {
		if err := hdr.addLine(line.Key, line.Value); err != nil {
			return nil, &MalformedDefinitionError{Line: line.Key, Err: err}
		}
	}
	for _, sample := range text.Samples() {
		if err := hdr.AddSample(sample); err != nil {
			return nil, err
		}
	}
	return hdr, nil
}

// formatText outputs the complete header section. withIDX adds the
// IDX fields that binary streams need to preserve ids.
func (hdr *Header) formatText(out []byte, withIDX bool) (_ []byte, err error) {
	out = append(append(append(out, "##fileformat="...), hdr.fileFormat...), '\n')
	idx := func(id int) int32 {
		if withIDX {
			return int32(id)
		}
		return -1
	}
	for _, kind := range fieldKinds {
		for id := 0; id < hdr.fields.Len(); id++ {
			value, ok := hdr.fields.Value(int32(id))
			if !ok {
				continue
			}
			line := value.(*FieldDefinition).line(kind)
			if line == nil {
				continue
			}
			if out, err = vcf.FormatHeaderLine(out, kind.String(), line, idx(id)); err != nil {
				return nil, err
			}
		}
	}
	for id := 0; id < hdr.contigs.Len(); id++ {
		value, ok := hdr.contigs.Value(int32(id))
		if !ok {
			continue
		}
		if out, err = vcf.FormatHeaderLine(out, vcf.ContigKey, value, idx(id)); err != nil {
			return nil, err
		}
	}
	for _, line := range hdr.meta {
		if out, err = vcf.FormatHeaderLine(out, line.Key, line.Value, -1); err != nil {
			return nil, err
		}
	}
	return vcf.FormatColumns(out, hdr.samples.Names()), nil
}
