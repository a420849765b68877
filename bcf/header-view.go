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

import "github.com/exascience/elbcf/vcf"

// HeaderView is a read-only view of a Header, for readers, writers
// and records that do not own the header.
type HeaderView struct {
	hdr *Header
}

// Same reports whether both views refer to the same Header.
func (view HeaderView) Same(other HeaderView) bool {
	return view.hdr == other.hdr
}

// Valid reports whether the view refers to a Header.
func (view HeaderView) Valid() bool {
	return view.hdr != nil
}

// FileFormat returns the VCF version of the header.
func (view HeaderView) FileFormat() string {
	return view.hdr.fileFormat
}

// SampleCount returns the number of samples.
func (view HeaderView) SampleCount() int {
	return view.hdr.samples.Count()
}

// Samples returns the sample names in order.
func (view HeaderView) Samples() []string {
	return view.hdr.samples.Names()
}

// SampleID returns the position of the given sample.
func (view HeaderView) SampleID(name string) (int32, bool) {
	return view.hdr.samples.ID(name)
}

// ContigCount returns the number of contigs.
func (view HeaderView) ContigCount() int {
	return view.hdr.contigs.Count()
}

// Contigs returns the contig names in id order.
func (view HeaderView) Contigs() []string {
	return view.hdr.contigs.Names()
}

// ContigID returns the id of the given contig.
func (view HeaderView) ContigID(name string) (int32, bool) {
	return view.hdr.contigs.ID(name)
}

// ContigName returns the name of the given contig id.
func (view HeaderView) ContigName(id int32) (string, bool) {
	return view.hdr.contigs.Name(id)
}

// Contig returns the definition of the given contig.
func (view HeaderView) Contig(name string) *vcf.MetaInformation {
	id, found := view.hdr.contigs.ID(name)
	if !found {
		return nil
	}
	value, _ := view.hdr.contigs.Value(id)
	return value.(*vcf.MetaInformation)
}

func (view HeaderView) definition(id int32) *FieldDefinition {
	value, ok := view.hdr.fields.Value(id)
	if !ok {
		return nil
	}
	return value.(*FieldDefinition)
}

// FieldID returns the id of a field that has a definition of the given kind.
func (view HeaderView) FieldID(kind FieldKind, name string) (int32, bool) {
	id, found := view.hdr.fields.ID(name)
	if !found || !view.definition(id).Defines(kind) {
		return -1, false
	}
	return id, true
}

// FieldName returns the name for a field id, even if all its
// definitions were removed.
func (view HeaderView) FieldName(id int32) (string, bool) {
	return view.hdr.fields.Name(id)
}

// Field returns the definitions for a field id.
func (view HeaderView) Field(id int32) *FieldDefinition {
	return view.definition(id)
}

// Fields returns the names of all fields with at least one definition.
func (view HeaderView) Fields() []string {
	var names []string
	for id := 0; id < view.hdr.fields.Len(); id++ {
		if def := view.definition(int32(id)); def != nil && !def.empty() {
			name, _ := view.hdr.fields.Name(int32(id))
			names = append(names, name)
		}
	}
	return names
}

// Filter returns the FILTER definition for name, or nil.
func (view HeaderView) Filter(name string) *vcf.MetaInformation {
	if id, found := view.hdr.fields.ID(name); found {
		return view.definition(id).Filter
	}
	return nil
}

// Info returns the INFO definition for name, or nil.
func (view HeaderView) Info(name string) *vcf.FormatInformation {
	if id, found := view.hdr.fields.ID(name); found {
		return view.definition(id).Info
	}
	return nil
}

// Format returns the FORMAT definition for name, or nil.
func (view HeaderView) Format(name string) *vcf.FormatInformation {
	if id, found := view.hdr.fields.ID(name); found {
		return view.definition(id).Format
	}
	return nil
}

// Lines returns the meta-information lines without a dedicated
// dictionary.
func (view HeaderView) Lines() []vcf.HeaderLine {
	return view.hdr.meta
}

// Subset returns the SampleSubset the header was derived with, or nil.
func (view HeaderView) Subset() SampleSubset {
	return view.hdr.subset
}

// Sealed reports whether the header was used to write a stream prologue.
func (view HeaderView) Sealed() bool {
	return view.hdr.sealed
}

// FormatText outputs the header section in VCF text form. withIDX
// adds IDX fields for the field and contig ids.
func (view HeaderView) FormatText(out []byte, withIDX bool) ([]byte, error) {
	return view.hdr.formatText(out, withIDX)
}

func (view HeaderView) infoDefinitions() (infos []*vcf.FormatInformation) {
	for id := 0; id < view.hdr.fields.Len(); id++ {
		if def := view.definition(int32(id)); def != nil && def.Info != nil {
			infos = append(infos, def.Info)
		}
	}
	return infos
}

func (view HeaderView) formatDefinitions() (formats []*vcf.FormatInformation) {
	for id := 0; id < view.hdr.fields.Len(); id++ {
		if def := view.definition(int32(id)); def != nil && def.Format != nil {
			formats = append(formats, def.Format)
		}
	}
	return formats
}
