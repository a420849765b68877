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

	"github.com/willf/bitset"

	"github.com/exascience/elbcf/internal/logging"
	"github.com/exascience/elbcf/vcf"
)

func valueLen(value interface{}) int {
	switch v := value.(type) {
	case []int32:
		return len(v)
	case []float32:
		return len(v)
	case string:
		return strings.Count(v, ",") + 1
	default:
		return 0
	}
}

func singleMissing(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case []int32:
		return len(v) == 0 || (len(v) == 1 && v[0] == MissingInt32)
	case []float32:
		return len(v) == 0 || (len(v) == 1 && IsMissingFloat(v[0]))
	case string:
		return v == "."
	default:
		return false
	}
}

func selectValues(value interface{}, keep []int) interface{} {
	switch v := value.(type) {
	case []int32:
		result := make([]int32, len(keep))
		for i, k := range keep {
			result[i] = v[k]
		}
		return result
	case []float32:
		result := make([]float32, len(keep))
		for i, k := range keep {
			result[i] = v[k]
		}
		return result
	case string:
		parts := strings.Split(v, ",")
		result := make([]string, len(keep))
		for i, k := range keep {
			result[i] = parts[k]
		}
		return strings.Join(result, ",")
	default:
		return value
	}
}

// alleleIndices returns the vector indices to keep for a field with
// the given Number and length, where mapping[i] < 0 for removed
// alleles.
func alleleIndices(number int32, length int, mapping []int32) ([]int, bool) {
	n := len(mapping)
	var keep []int
	switch {
	case number == vcf.NumberA && length == n-1:
		for i := 1; i < n; i++ {
			if mapping[i] >= 0 {
				keep = append(keep, i-1)
			}
		}
	case (number == vcf.NumberR || number == vcf.NumberG) && length == n:
		for i := 0; i < n; i++ {
			if mapping[i] >= 0 {
				keep = append(keep, i)
			}
		}
	case number == vcf.NumberG && length == n*(n+1)/2:
		for j := 0; j < n; j++ {
			for i := 0; i <= j; i++ {
				if mapping[i] >= 0 && mapping[j] >= 0 {
					keep = append(keep, j*(j+1)/2+i)
				}
			}
		}
	default:
		return nil, false
	}
	return keep, true
}

func alleleDependent(number int32) bool {
	return number == vcf.NumberA || number == vcf.NumberR || number == vcf.NumberG
}

func trimValue(kind FieldKind, name string, number int32, value interface{}, mapping []int32) (interface{}, error) {
	if singleMissing(value) {
		return value, nil
	}
	keep, ok := alleleIndices(number, valueLen(value), mapping)
	if !ok {
		return nil, fmt.Errorf("%w: %v %v has %v values for %v alleles", ErrAlleleFieldLength, kind, name, valueLen(value), len(mapping))
	}
	return selectValues(value, keep), nil
}

// TrimAlleles removes the alternate alleles that no GT entry of rec
// refers to, renumbers the GT entries, and shrinks the INFO and
// FORMAT fields declared with Number=A, R or G accordingly. It
// returns the number of removed alleles. On error, rec is left
// untouched.
//
// Trimming is based on the samples rec currently has, so subset a
// record before trimming it.
func TrimAlleles(rec *Record) (int, error) {
	view := rec.Header()
	contig, _ := rec.ContigName()
	gtID, found := view.FieldID(FormatField, *vcf.GT)
	if !found {
		return 0, &NoGenotypeDataError{Contig: contig, Pos: rec.Pos}
	}
	gts, found := rec.Format.Get(gtID)
	if !found {
		return 0, &NoGenotypeDataError{Contig: contig, Pos: rec.Pos}
	}

	n := len(rec.Alleles)
	observed := bitset.New(uint(n))
	if n > 0 {
		observed.Set(0)
	}
	for _, value := range gts {
		gt, _ := value.([]int32)
		for _, g := range gt {
			allele := GenotypeAllele(g)
			if allele < 0 {
				continue
			}
			if int(allele) >= n {
				return 0, fmt.Errorf("genotype refers to allele %v of %v at %v:%v", allele, n, contig, rec.Pos+1)
			}
			observed.Set(uint(allele))
		}
	}
	if observed.Count() == uint(n) {
		return 0, nil
	}

	mapping := make([]int32, n)
	alleles := make([]string, 0, observed.Count())
	for i := range mapping {
		if observed.Test(uint(i)) {
			mapping[i] = int32(len(alleles))
			alleles = append(alleles, rec.Alleles[i])
		} else {
			mapping[i] = -1
		}
	}

	var info Fields
	if rec.Info != nil {
		info = make(Fields, len(rec.Info))
		for i, field := range rec.Info {
			info[i] = field
			def := view.Field(field.Key)
			if def == nil || def.Info == nil || !alleleDependent(def.Info.Number) {
				continue
			}
			value, err := trimValue(InfoField, *def.Info.ID, def.Info.Number, field.Value, mapping)
			if err != nil {
				return 0, err
			}
			info[i].Value = value
		}
	}

	format := make(FormatFields, len(rec.Format))
	for i, field := range rec.Format {
		values := make([]interface{}, len(field.Value))
		format[i] = FormatEntry{Key: field.Key, Value: values}
		if field.Key == gtID {
			for j, value := range field.Value {
				gt, _ := value.([]int32)
				if gt == nil {
					values[j] = value
					continue
				}
				remapped := make([]int32, len(gt))
				for k, g := range gt {
					if allele := GenotypeAllele(g); allele >= 0 {
						remapped[k] = EncodeGenotype(mapping[allele], GenotypePhased(g))
					} else {
						remapped[k] = g
					}
				}
				values[j] = remapped
			}
			continue
		}
		def := view.Field(field.Key)
		if def == nil || def.Format == nil || !alleleDependent(def.Format.Number) {
			copy(values, field.Value)
			continue
		}
		for j, value := range field.Value {
			trimmed, err := trimValue(FormatField, *def.Format.ID, def.Format.Number, value, mapping)
			if err != nil {
				return 0, err
			}
			values[j] = trimmed
		}
	}

	removed := n - len(alleles)
	rec.Alleles = alleles
	rec.Info = info
	rec.Format = format
	logging.WithComponent("trim").Debug().Str("contig", contig).Int32("pos", rec.Pos+1).Int("removed", removed).Msg("trimmed unobserved alleles")
	return removed, nil
}
