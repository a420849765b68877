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

package vcf

import (
	"fmt"
	"strconv"

	"github.com/exascience/elbcf/utils"
)

// The supported VCF file format version.
const (
	FileFormatVersion           = "VCFv4.3"
	FileFormatVersionLine       = "##fileformat=VCFv4.3"
	fileFormatVersionLinePrefix = "##fileformat=VCFv4."
)

// DefaultHeaderColumns for VCF files.
var DefaultHeaderColumns = []string{"CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO"}

// FormatColumn separates the default header columns from the sample names.
const FormatColumn = "FORMAT"

// Type is an enumeration type for different VCF field types
type Type uint

// The different VCF field types
const (
	InvalidType Type = iota
	Integer          // represented as int
	Float            // represented as float64
	Flag             // represented as bool with fixed value true
	Character        // represented as a single-rune string
	String           // represented as string
)

var typeNames = [...]string{"", "Integer", "Float", "Flag", "Character", "String"}

func (t Type) String() string {
	if t < Type(len(typeNames)) && t != InvalidType {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint(t))
}

// ParseType returns the Type for the given Type= entry of a meta-information line.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if t > 0 && name == s {
			return Type(t), nil
		}
	}
	return InvalidType, fmt.Errorf("unknown type %v in a VCF INFO/FORMAT meta-information line", s)
}

// Constants for format information Number entries.
const (
	NumberA int32 = -1 * (1 + iota)
	NumberR
	NumberG
	NumberDot
	InvalidNumber
)

// ParseNumber returns the value for the given Number= entry of a meta-information line.
func ParseNumber(s string) (int32, error) {
	switch s {
	case "a", "A":
		return NumberA, nil
	case "r", "R":
		return NumberR, nil
	case "g", "G":
		return NumberG, nil
	case ".":
		return NumberDot, nil
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return InvalidNumber, err
	}
	if n < 0 {
		return InvalidNumber, fmt.Errorf("negative Number entry %v in a VCF INFO/FORMAT meta-information line", s)
	}
	return int32(n), nil
}

// FormatNumber returns the textual representation of a Number entry.
func FormatNumber(n int32) (string, error) {
	if n >= 0 {
		return strconv.FormatInt(int64(n), 10), nil
	}
	switch n {
	case NumberA:
		return "A", nil
	case NumberR:
		return "R", nil
	case NumberG:
		return "G", nil
	case NumberDot:
		return ".", nil
	default:
		return "", fmt.Errorf("unknown Number kind %v in a VCF meta-information line", n)
	}
}

// Commonly used VCF entries.
var (
	END  = utils.Intern("END")
	GT   = utils.Intern("GT")
	PASS = utils.Intern("PASS")
)

type (
	// SymbolMap maps INFO keys or FORMAT keys to parsed values.
	SymbolMap = utils.SmallMap[utils.Symbol, interface{}]

	// SymbolEntry is an entry in a SymbolMap.
	SymbolEntry = utils.SmallMapEntry[utils.Symbol, interface{}]

	// MetaInformation in VCF files.
	MetaInformation struct {
		ID          utils.Symbol
		Description string // "" if not present
		Fields      utils.StringMap
	}

	// FormatInformation in VCF files.
	FormatInformation struct {
		ID          utils.Symbol
		Description string // "" if not present
		Number      int32  // > InvalidNumber
		Type        Type
		Fields      utils.StringMap
	}

	// HeaderLine is a single ## line of a VCF header. Value is a
	// string, *MetaInformation, or *FormatInformation.
	HeaderLine struct {
		Key   string
		Value interface{}
	}

	// Header section of a VCF file, with meta-information lines in
	// file order.
	Header struct {
		FileFormat string
		Lines      []HeaderLine
		Columns    []string
	}

	// Variant line in a VCF file.
	Variant struct {
		Chrom          string
		Pos            int32          // 1-based, < 0 if unknown
		ID             []string       // nil/empty if missing
		Ref            string
		Alt            []string       // nil/empty if missing
		Qual           interface{}    // float64 or float32, or nil if missing
		Filter         []utils.Symbol // nil/empty if missing
		Info           SymbolMap      // values are nil, bool, int, int32, float64, float32, string, or []interface{}
		GenotypeFormat []utils.Symbol
		GenotypeData   []SymbolMap    // one entry per sample, keyed by GenotypeFormat
	}
)

// NewMetaInformation creates an empty instance.
func NewMetaInformation() *MetaInformation {
	return &MetaInformation{Fields: make(utils.StringMap)}
}

// NewFormatInformation creates an empty instance.
func NewFormatInformation() *FormatInformation {
	return &FormatInformation{Number: InvalidNumber, Fields: make(utils.StringMap)}
}

// Clone returns a deep copy.
func (meta *MetaInformation) Clone() *MetaInformation {
	return &MetaInformation{ID: meta.ID, Description: meta.Description, Fields: meta.Fields.Clone()}
}

// Clone returns a deep copy.
func (format *FormatInformation) Clone() *FormatInformation {
	return &FormatInformation{
		ID:          format.ID,
		Description: format.Description,
		Number:      format.Number,
		Type:        format.Type,
		Fields:      format.Fields.Clone(),
	}
}

// NewHeader creates an empty instance.
func NewHeader() *Header {
	return &Header{
		FileFormat: FileFormatVersion,
		Columns:    DefaultHeaderColumns,
	}
}

// Samples returns the sample names in the column header line.
func (header *Header) Samples() []string {
	if len(header.Columns) <= len(DefaultHeaderColumns)+1 {
		return nil
	}
	return header.Columns[len(DefaultHeaderColumns)+1:]
}

// Start returns the start position of a VCF line in the reference.
func (v Variant) Start() int32 {
	return v.Pos
}

// End returns the end position of a VCF line in the reference, determined either by the END field or len(v.Ref)
func (v *Variant) End() int32 {
	if end, ok := v.Info.Get(END); ok {
		switch e := end.(type) {
		case int:
			return int32(e)
		case int32:
			return e
		case string:
			if i, err := strconv.ParseInt(e, 10, 32); err == nil {
				v.Info.Set(END, int(i))
				return int32(i)
			}
		}
	}
	return v.Pos - 1 + int32(len(v.Ref))
}

// SetEnd sets the end position of a VCF line in the reference by setting the END field.
// If the end position can be calculated from the start position and the length of Ref,
// delete the END field.
func (v *Variant) SetEnd(value int32) {
	if value == v.Pos-1+int32(len(v.Ref)) {
		v.Info, _ = v.Info.Delete(END)
	} else {
		v.Info.Set(END, int(value))
	}
}

// Pass determines whether the variant passed all filters.
func (v Variant) Pass() bool {
	return len(v.Filter) == 1 && v.Filter[0] == PASS
}
