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
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/exascience/elbcf/utils"
	"github.com/exascience/elbcf/vcf"
)

func toInt32s(value interface{}) ([]int32, error) {
	switch v := value.(type) {
	case nil:
		return []int32{MissingInt32}, nil
	case int:
		return []int32{int32(v)}, nil
	case []interface{}:
		result := make([]int32, len(v))
		for i, entry := range v {
			switch e := entry.(type) {
			case nil:
				result[i] = MissingInt32
			case int:
				result[i] = int32(e)
			default:
				return nil, fmt.Errorf("invalid Integer value %v", entry)
			}
		}
		return result, nil
	default:
		return nil, fmt.Errorf("invalid Integer value %v", value)
	}
}

func toFloat32s(value interface{}) ([]float32, error) {
	switch v := value.(type) {
	case nil:
		return []float32{MissingFloat}, nil
	case float64:
		return []float32{float32(v)}, nil
	case []interface{}:
		result := make([]float32, len(v))
		for i, entry := range v {
			switch e := entry.(type) {
			case nil:
				result[i] = MissingFloat
			case float64:
				result[i] = float32(e)
			default:
				return nil, fmt.Errorf("invalid Float value %v", entry)
			}
		}
		return result, nil
	default:
		return nil, fmt.Errorf("invalid Float value %v", value)
	}
}

func toText(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return ".", nil
	case string:
		return v, nil
	case []interface{}:
		parts := make([]string, len(v))
		for i, entry := range v {
			s, err := toText(entry)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("invalid String value %v", value)
	}
}

func fromText(format *vcf.FormatInformation, value interface{}) (interface{}, error) {
	switch format.Type {
	case vcf.Integer:
		return toInt32s(value)
	case vcf.Float:
		return toFloat32s(value)
	case vcf.Flag:
		return Flag{}, nil
	default:
		return toText(value)
	}
}

// recordFromVariant fills rec, which is bound to view, from a parsed
// text line. Every FILTER, INFO and FORMAT key must be declared.
func recordFromVariant(view HeaderView, variant *vcf.Variant, rec *Record) error {
	contig, found := view.ContigID(variant.Chrom)
	if !found {
		return &UnknownContigError{Name: variant.Chrom}
	}
	rec.Contig = contig
	rec.Pos = variant.Pos - 1
	rec.ID = strings.Join(variant.ID, ";")
	rec.Alleles = append(make([]string, 0, 1+len(variant.Alt)), variant.Ref)
	rec.Alleles = append(rec.Alleles, variant.Alt...)
	if qual, ok := variant.Qual.(float64); ok {
		rec.Qual = float32(qual)
	} else {
		rec.Qual = MissingFloat
	}
	if variant.Filter != nil {
		rec.Filters = make([]int32, len(variant.Filter))
		for i, filter := range variant.Filter {
			id, found := view.FieldID(FilterField, *filter)
			if !found {
				return fmt.Errorf("FILTER %v is not declared in the header", *filter)
			}
			rec.Filters[i] = id
		}
	}
	if variant.Info != nil {
		rec.Info = make(Fields, len(variant.Info))
		for i, entry := range variant.Info {
			id, found := view.FieldID(InfoField, *entry.Key)
			if !found {
				return fmt.Errorf("INFO %v is not declared in the header", *entry.Key)
			}
			value, err := fromText(view.definition(id).Info, entry.Value)
			if err != nil {
				return fmt.Errorf("%w in INFO %v", err, *entry.Key)
			}
			rec.Info[i] = Field{Key: id, Value: value}
		}
	}
	if len(variant.GenotypeData) > 0 {
		rec.Format = make(FormatFields, 0, len(variant.GenotypeFormat))
		for _, key := range variant.GenotypeFormat {
			if *key == "." {
				continue
			}
			id, found := view.FieldID(FormatField, *key)
			if !found {
				return fmt.Errorf("FORMAT %v is not declared in the header", *key)
			}
			format := view.definition(id).Format
			values := make([]interface{}, len(variant.GenotypeData))
			for j, sample := range variant.GenotypeData {
				value, _ := sample.Get(key)
				var err error
				if key == vcf.GT {
					var gt string
					if gt, err = toText(value); err == nil {
						values[j], err = ParseGenotype(gt)
					}
				} else {
					values[j], err = fromText(format, value)
				}
				if err != nil {
					return fmt.Errorf("%w in FORMAT %v", err, *key)
				}
			}
			rec.Format = append(rec.Format, FormatEntry{Key: id, Value: values})
		}
	}
	return nil
}

func int32sToText(v []int32) interface{} {
	if len(v) == 1 {
		if v[0] == MissingInt32 {
			return nil
		}
		return v[0]
	}
	result := make([]interface{}, len(v))
	for i, e := range v {
		if e != MissingInt32 {
			result[i] = e
		}
	}
	return result
}

func float32sToText(v []float32) interface{} {
	if len(v) == 1 {
		if IsMissingFloat(v[0]) {
			return nil
		}
		return v[0]
	}
	result := make([]interface{}, len(v))
	for i, e := range v {
		if !IsMissingFloat(e) {
			result[i] = e
		}
	}
	return result
}

func valueToText(value interface{}) interface{} {
	switch v := value.(type) {
	case Flag:
		return true
	case []int32:
		return int32sToText(v)
	case []float32:
		return float32sToText(v)
	case string:
		if v == "" {
			return nil
		}
		return v
	default:
		return nil
	}
}

func fieldSymbol(view HeaderView, id int32) (utils.Symbol, error) {
	name, ok := view.FieldName(id)
	if !ok {
		return nil, fmt.Errorf("undefined field id %v", id)
	}
	return utils.Intern(name), nil
}

// variantFromRecord converts rec into the text representation of a
// variant line.
func variantFromRecord(rec *Record) (*vcf.Variant, error) {
	view := rec.Header()
	chrom, ok := rec.ContigName()
	if !ok {
		return nil, fmt.Errorf("undefined contig id %v", rec.Contig)
	}
	variant := &vcf.Variant{Chrom: chrom, Pos: rec.Pos + 1}
	if rec.ID != "" {
		variant.ID = strings.Split(rec.ID, ";")
	}
	if len(rec.Alleles) > 0 {
		variant.Ref = rec.Alleles[0]
		variant.Alt = rec.Alleles[1:]
	}
	if !IsMissingFloat(rec.Qual) {
		variant.Qual = rec.Qual
	}
	for _, id := range rec.Filters {
		sym, err := fieldSymbol(view, id)
		if err != nil {
			return nil, err
		}
		variant.Filter = append(variant.Filter, sym)
	}
	for _, field := range rec.Info {
		sym, err := fieldSymbol(view, field.Key)
		if err != nil {
			return nil, err
		}
		variant.Info = append(variant.Info, vcf.SymbolEntry{Key: sym, Value: valueToText(field.Value)})
	}
	nSamples := rec.SampleCount()
	if nSamples == 0 {
		return variant, nil
	}
	variant.GenotypeData = make([]vcf.SymbolMap, nSamples)
	if len(rec.Format) == 0 {
		return variant, nil
	}
	variant.GenotypeFormat = make([]utils.Symbol, len(rec.Format))
	for i := range variant.GenotypeData {
		variant.GenotypeData[i] = make(vcf.SymbolMap, 0, len(rec.Format))
	}
	for i, field := range rec.Format {
		sym, err := fieldSymbol(view, field.Key)
		if err != nil {
			return nil, err
		}
		variant.GenotypeFormat[i] = sym
		for j, value := range field.Value {
			var text interface{}
			if sym == vcf.GT {
				gt, _ := value.([]int32)
				text = string(FormatGenotype(nil, gt))
			} else {
				text = valueToText(value)
			}
			variant.GenotypeData[j] = append(variant.GenotypeData[j], vcf.SymbolEntry{Key: sym, Value: text})
		}
	}
	return variant, nil
}

// formatVcfRecord appends rec as a VCF text line.
func formatVcfRecord(rec *Record, out []byte) ([]byte, error) {
	variant, err := variantFromRecord(rec)
	if err != nil {
		return nil, err
	}
	return variant.Format(out)
}

// parseVcfRecord parses a VCF text line into rec.
func parseVcfRecord(view HeaderView, parser *vcf.VariantParser, line []byte, rec *Record) error {
	if !utf8.Valid(line) {
		return fmt.Errorf("invalid UTF-8 in VCF line")
	}
	var sc vcf.StringScanner
	sc.Reset(strings.TrimSuffix(string(line), "\r"))
	variant := sc.ParseVariant(parser)
	if err := sc.Err(); err != nil {
		return err
	}
	return recordFromVariant(view, variant, rec)
}
