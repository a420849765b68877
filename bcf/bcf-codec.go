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
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Typed value types of the BCF2 encoding.
const (
	typeMissing byte = 0
	typeInt8    byte = 1
	typeInt16   byte = 2
	typeInt32   byte = 3
	typeFloat   byte = 5
	typeChar    byte = 7
)

const (
	missingInt8      = -128
	endOfVectorInt8  = -127
	minInt8          = -120
	missingInt16     = -32768
	endOfVectorInt16 = -32767
	minInt16         = -32760
	endOfVectorInt32 = math.MinInt32 + 1

	endOfVectorFloatBits = 0x7F800002
)

var errTruncated = errors.New("truncated BCF record")

func enlarge(out []byte, by int) (int, []byte) {
	index := len(out)
	length := index + by
	for cap(out) < length {
		out = append(out[:cap(out)], 0)
	}
	out = out[:length]
	return index, out
}

func appendUint32(out []byte, v uint32) []byte {
	index, out := enlarge(out, 4)
	binary.LittleEndian.PutUint32(out[index:], v)
	return out
}

func appendTypeDescriptor(out []byte, count int, typ byte) []byte {
	if count < 15 {
		return append(out, byte(count<<4)|typ)
	}
	out = append(out, 15<<4|typ)
	return appendTypedInt(out, int32(count))
}

// intType returns the smallest integer type that holds all
// non-missing values.
func intType(values []int32) byte {
	typ := typeInt8
	for _, v := range values {
		if v == MissingInt32 || v == endOfVectorInt32 {
			continue
		}
		switch {
		case v < minInt16 || v > math.MaxInt16:
			return typeInt32
		case v < minInt8 || v > math.MaxInt8:
			typ = typeInt16
		}
	}
	return typ
}

func typeSize(typ byte) int {
	switch typ {
	case typeInt8, typeChar:
		return 1
	case typeInt16:
		return 2
	default:
		return 4
	}
}

// appendInts appends values in the given type, padded to width with
// end-of-vector values. An empty vector is written as a single
// missing value.
func appendInts(out []byte, typ byte, values []int32, width int) []byte {
	if len(values) == 0 && width > 0 {
		values = []int32{MissingInt32}
	}
	index, out := enlarge(out, width*typeSize(typ))
	for i := 0; i < width; i++ {
		v := int32(endOfVectorInt32)
		if i < len(values) {
			v = values[i]
		}
		switch typ {
		case typeInt8:
			switch v {
			case MissingInt32:
				v = missingInt8
			case endOfVectorInt32:
				v = endOfVectorInt8
			}
			out[index] = byte(int8(v))
			index++
		case typeInt16:
			switch v {
			case MissingInt32:
				v = missingInt16
			case endOfVectorInt32:
				v = endOfVectorInt16
			}
			binary.LittleEndian.PutUint16(out[index:], uint16(int16(v)))
			index += 2
		default:
			binary.LittleEndian.PutUint32(out[index:], uint32(v))
			index += 4
		}
	}
	return out
}

func appendFloats(out []byte, values []float32, width int) []byte {
	if len(values) == 0 && width > 0 {
		values = []float32{MissingFloat}
	}
	index, out := enlarge(out, 4*width)
	for i := 0; i < width; i++ {
		bits := uint32(endOfVectorFloatBits)
		if i < len(values) {
			bits = math.Float32bits(values[i])
		}
		binary.LittleEndian.PutUint32(out[index:], bits)
		index += 4
	}
	return out
}

func appendChars(out []byte, s string, width int) []byte {
	index, out := enlarge(out, width)
	n := copy(out[index:], s)
	for i := index + n; i < index+width; i++ {
		out[i] = 0
	}
	return out
}

func appendTypedInt(out []byte, v int32) []byte {
	values := [1]int32{v}
	typ := intType(values[:])
	return appendInts(append(out, 1<<4|typ), typ, values[:], 1)
}

func appendTypedInts(out []byte, values []int32) []byte {
	if len(values) == 0 {
		return append(out, typeMissing)
	}
	typ := intType(values)
	return appendInts(appendTypeDescriptor(out, len(values), typ), typ, values, len(values))
}

func appendTypedString(out []byte, s string) []byte {
	return appendChars(appendTypeDescriptor(out, len(s), typeChar), s, len(s))
}

func appendTypedValue(out []byte, value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case Flag:
		return append(out, typeMissing), nil
	case []int32:
		return appendTypedInts(out, v), nil
	case []float32:
		return appendFloats(appendTypeDescriptor(out, len(v), typeFloat), v, len(v)), nil
	case string:
		return appendTypedString(out, v), nil
	default:
		return nil, fmt.Errorf("invalid INFO value type %T", value)
	}
}

// appendSampleValues appends a FORMAT field, all samples padded to
// the same width.
func appendSampleValues(out []byte, values []interface{}) ([]byte, error) {
	var (
		width           int
		ints            []int32
		hasInts, floats bool
		chars           bool
	)
	for _, value := range values {
		switch v := value.(type) {
		case nil:
			if width == 0 {
				width = 1
			}
			continue
		case []int32:
			hasInts = true
			ints = append(ints, v...)
			if len(v) > width {
				width = len(v)
			}
		case []float32:
			floats = true
			if len(v) > width {
				width = len(v)
			}
		case string:
			chars = true
			if len(v) > width {
				width = len(v)
			}
		default:
			return nil, fmt.Errorf("invalid FORMAT value type %T", value)
		}
	}
	switch {
	case hasInts && !floats && !chars:
		typ := intType(ints)
		out = appendTypeDescriptor(out, width, typ)
		for _, value := range values {
			v, _ := value.([]int32)
			out = appendInts(out, typ, v, width)
		}
	case floats && !hasInts && !chars:
		out = appendTypeDescriptor(out, width, typeFloat)
		for _, value := range values {
			v, _ := value.([]float32)
			out = appendFloats(out, v, width)
		}
	case chars && !hasInts && !floats:
		out = appendTypeDescriptor(out, width, typeChar)
		for _, value := range values {
			v, _ := value.(string)
			if value == nil {
				v = "."
			}
			out = appendChars(out, v, width)
		}
	case !hasInts && !floats && !chars:
		out = appendTypeDescriptor(out, width, typeInt8)
		for range values {
			out = appendInts(out, typeInt8, nil, width)
		}
	default:
		return nil, errors.New("FORMAT field mixes value types")
	}
	return out, nil
}

// encodeBcfRecord appends a complete record, including its
// l_shared and l_indiv lengths.
func encodeBcfRecord(rec *Record, nSamples int, out []byte) ([]byte, error) {
	if len(rec.Alleles) > math.MaxUint16 || len(rec.Info) > math.MaxUint16 {
		return nil, fmt.Errorf("too many alleles or INFO fields in record at %v", rec.Pos+1)
	}
	if len(rec.Format) > math.MaxUint8 || nSamples >= 1<<24 {
		return nil, fmt.Errorf("too many FORMAT fields or samples in record at %v", rec.Pos+1)
	}
	lengths, out := enlarge(out, 8)
	shared := len(out)
	out = appendUint32(out, uint32(rec.Contig))
	out = appendUint32(out, uint32(rec.Pos))
	out = appendUint32(out, uint32(rec.End()-rec.Pos))
	out = appendUint32(out, math.Float32bits(rec.Qual))
	out = appendUint32(out, uint32(len(rec.Alleles))<<16|uint32(len(rec.Info)))
	nFmt := len(rec.Format)
	if nSamples == 0 {
		nFmt = 0
	}
	out = appendUint32(out, uint32(nFmt)<<24|uint32(nSamples))
	out = appendTypedString(out, rec.ID)
	for _, allele := range rec.Alleles {
		out = appendTypedString(out, allele)
	}
	out = appendTypedInts(out, rec.Filters)
	var err error
	for _, field := range rec.Info {
		out = appendTypedInt(out, field.Key)
		if out, err = appendTypedValue(out, field.Value); err != nil {
			return nil, err
		}
	}
	indiv := len(out)
	if nFmt > 0 {
		for _, field := range rec.Format {
			if len(field.Value) != nSamples {
				return nil, fmt.Errorf("FORMAT field with %v values for %v samples", len(field.Value), nSamples)
			}
			out = appendTypedInt(out, field.Key)
			if out, err = appendSampleValues(out, field.Value); err != nil {
				return nil, err
			}
		}
	}
	binary.LittleEndian.PutUint32(out[lengths:], uint32(indiv-shared))
	binary.LittleEndian.PutUint32(out[lengths+4:], uint32(len(out)-indiv))
	return out, nil
}

// bcfDecoder reads typed values from a record body.
type bcfDecoder struct {
	data  []byte
	index int
	err   error
}

func (d *bcfDecoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || d.index+n > len(d.data) {
		d.err = errTruncated
		return false
	}
	return true
}

func (d *bcfDecoder) uint32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(d.data[d.index:])
	d.index += 4
	return v
}

func (d *bcfDecoder) typeDescriptor() (count int, typ byte) {
	if !d.need(1) {
		return 0, 0
	}
	b := d.data[d.index]
	d.index++
	count, typ = int(b>>4), b&0x0f
	if count == 15 {
		count = int(d.typedInt())
		if count < 0 && d.err == nil {
			d.err = fmt.Errorf("negative vector length %v in BCF record", count)
		}
	}
	return count, typ
}

// ints decodes count integers, mapping missing values to
// MissingInt32 and dropping end-of-vector padding.
func (d *bcfDecoder) ints(typ byte, count int) []int32 {
	size := typeSize(typ)
	if !d.need(count * size) {
		return nil
	}
	result := make([]int32, 0, count)
	end := false
	for i := 0; i < count; i++ {
		var v int32
		switch typ {
		case typeInt8:
			switch v = int32(int8(d.data[d.index])); v {
			case missingInt8:
				v = MissingInt32
			case endOfVectorInt8:
				end = true
			}
		case typeInt16:
			switch v = int32(int16(binary.LittleEndian.Uint16(d.data[d.index:]))); v {
			case missingInt16:
				v = MissingInt32
			case endOfVectorInt16:
				end = true
			}
		default:
			if v = int32(binary.LittleEndian.Uint32(d.data[d.index:])); v == endOfVectorInt32 {
				end = true
			}
		}
		d.index += size
		if !end {
			result = append(result, v)
		}
	}
	return result
}

func (d *bcfDecoder) floats(count int) []float32 {
	if !d.need(4 * count) {
		return nil
	}
	result := make([]float32, 0, count)
	end := false
	for i := 0; i < count; i++ {
		bits := binary.LittleEndian.Uint32(d.data[d.index:])
		d.index += 4
		if bits == endOfVectorFloatBits {
			end = true
		}
		if !end {
			result = append(result, math.Float32frombits(bits))
		}
	}
	return result
}

func (d *bcfDecoder) chars(count int) string {
	if !d.need(count) {
		return ""
	}
	s := d.data[d.index : d.index+count]
	d.index += count
	for i, c := range s {
		if c == 0 {
			return string(s[:i])
		}
	}
	return string(s)
}

func (d *bcfDecoder) typedInt() int32 {
	count, typ := d.typeDescriptor()
	if d.err != nil {
		return 0
	}
	if count != 1 || (typ != typeInt8 && typ != typeInt16 && typ != typeInt32) {
		d.err = fmt.Errorf("expected a typed integer in BCF record, got type %v of length %v", typ, count)
		return 0
	}
	values := d.ints(typ, 1)
	if len(values) != 1 {
		if d.err == nil {
			d.err = errors.New("missing typed integer in BCF record")
		}
		return 0
	}
	return values[0]
}

func (d *bcfDecoder) typedString() string {
	count, typ := d.typeDescriptor()
	if d.err != nil {
		return ""
	}
	if typ != typeChar && !(typ == typeMissing && count == 0) {
		d.err = fmt.Errorf("expected a typed string in BCF record, got type %v", typ)
		return ""
	}
	return d.chars(count)
}

func (d *bcfDecoder) vector(count int, typ byte) interface{} {
	switch typ {
	case typeInt8, typeInt16, typeInt32:
		return d.ints(typ, count)
	case typeFloat:
		return d.floats(count)
	case typeChar:
		return d.chars(count)
	default:
		if d.err == nil {
			d.err = fmt.Errorf("unsupported type %v in BCF record", typ)
		}
		return nil
	}
}

func (d *bcfDecoder) typedValue() interface{} {
	count, typ := d.typeDescriptor()
	if d.err != nil {
		return nil
	}
	if typ == typeMissing {
		return Flag{}
	}
	return d.vector(count, typ)
}

// decodeBcfRecord decodes a record body, without its l_shared and
// l_indiv lengths, into rec. lShared is the length of the shared part.
func decodeBcfRecord(data []byte, lShared int, nSamples int, rec *Record) error {
	if lShared > len(data) {
		return errTruncated
	}
	d := bcfDecoder{data: data[:lShared]}
	rec.Contig = int32(d.uint32())
	rec.Pos = int32(d.uint32())
	d.uint32() // rlen
	rec.Qual = math.Float32frombits(d.uint32())
	nAlleleInfo := d.uint32()
	nFmtSample := d.uint32()
	nAllele, nInfo := int(nAlleleInfo>>16), int(nAlleleInfo&0xffff)
	nFmt, nSample := int(nFmtSample>>24), int(nFmtSample&0xffffff)
	if d.err == nil && nSample != nSamples {
		return fmt.Errorf("record has %v samples, header has %v", nSample, nSamples)
	}
	rec.ID = d.typedString()
	if nAllele > 0 {
		rec.Alleles = make([]string, nAllele)
		for i := range rec.Alleles {
			rec.Alleles[i] = d.typedString()
		}
	}
	if count, typ := d.typeDescriptor(); count > 0 {
		filters, ok := d.vector(count, typ).([]int32)
		if !ok && d.err == nil {
			d.err = fmt.Errorf("FILTER of type %v in BCF record", typ)
		}
		rec.Filters = filters
	}
	if nInfo > 0 {
		rec.Info = make(Fields, nInfo)
		for i := range rec.Info {
			rec.Info[i].Key = d.typedInt()
			rec.Info[i].Value = d.typedValue()
		}
	}
	if d.err != nil {
		return d.err
	}
	if d.index != lShared {
		return fmt.Errorf("%v unexpected bytes in shared part of BCF record", lShared-d.index)
	}
	d = bcfDecoder{data: data[lShared:]}
	if nFmt > 0 {
		rec.Format = make(FormatFields, nFmt)
		for i := range rec.Format {
			rec.Format[i].Key = d.typedInt()
			width, typ := d.typeDescriptor()
			values := make([]interface{}, nSample)
			for j := range values {
				values[j] = d.vector(width, typ)
			}
			rec.Format[i].Value = values
			if d.err != nil {
				return d.err
			}
		}
	}
	if d.err != nil {
		return d.err
	}
	if d.index != len(d.data) {
		return fmt.Errorf("%v unexpected bytes in per-sample part of BCF record", len(d.data)-d.index)
	}
	return nil
}
