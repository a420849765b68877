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

import "fmt"

// Translate rebinds rec to dst, remapping its contig, FILTER, INFO and
// FORMAT ids by name. FILTER, INFO and FORMAT entries that dst does
// not define are dropped. A contig that dst does not define is an
// UnknownContigError, in which case rec is left untouched.
//
// Translating to the header rec is already bound to is a no-op.
func Translate(rec *Record, dst HeaderView) error {
	src := rec.Header()
	if src.Same(dst) {
		return nil
	}
	name, ok := src.ContigName(rec.Contig)
	if !ok {
		return &UnknownContigError{Name: fmt.Sprintf("#%d", rec.Contig)}
	}
	contig, found := dst.ContigID(name)
	if !found {
		return &UnknownContigError{Name: name}
	}

	translateID := func(kind FieldKind, id int32) (int32, bool) {
		name, ok := src.FieldName(id)
		if !ok {
			return -1, false
		}
		return dst.FieldID(kind, name)
	}

	var filters []int32
	if rec.Filters != nil {
		filters = make([]int32, 0, len(rec.Filters))
		for _, id := range rec.Filters {
			if newID, ok := translateID(FilterField, id); ok {
				filters = append(filters, newID)
			}
		}
	}
	var info Fields
	if rec.Info != nil {
		info = make(Fields, 0, len(rec.Info))
		for _, field := range rec.Info {
			if newID, ok := translateID(InfoField, field.Key); ok {
				info = append(info, Field{Key: newID, Value: field.Value})
			}
		}
	}
	var format FormatFields
	if rec.Format != nil {
		format = make(FormatFields, 0, len(rec.Format))
		for _, field := range rec.Format {
			if newID, ok := translateID(FormatField, field.Key); ok {
				format = append(format, FormatEntry{Key: newID, Value: field.Value})
			}
		}
	}

	rec.Contig = contig
	rec.Filters = filters
	rec.Info = info
	rec.Format = format
	rec.header = dst.hdr
	return nil
}

// SubsetSamples replaces the per-sample values of every FORMAT field
// of rec, so that sample i gets the values of sample subset[i]. INFO
// fields are not touched.
func SubsetSamples(rec *Record, subset SampleSubset) error {
	if len(rec.Format) == 0 {
		return nil
	}
	if len(subset) == 0 {
		rec.Format = rec.Format[:0]
		return nil
	}
	format := make(FormatFields, 0, len(rec.Format))
	for _, field := range rec.Format {
		values := make([]interface{}, len(subset))
		for i, old := range subset {
			if old < 0 || int(old) >= len(field.Value) {
				return &IndexOutOfRangeError{Index: old, Len: len(field.Value)}
			}
			values[i] = field.Value[old]
		}
		format = append(format, FormatEntry{Key: field.Key, Value: values})
	}
	rec.Format = format
	return nil
}
