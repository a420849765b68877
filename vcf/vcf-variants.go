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
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/exascience/elbcf/utils"
)

// FieldParser is an abstraction for parsing VCF fields
type FieldParser func(*StringScanner) interface{}

var (
	endOfInfoEntry    = []byte{',', ';', '\t'}
	endOfInfoValue    = []byte{';', '\t'}
	endOfInfoKey      = []byte{'=', ';', '\t'}
	endOfFormatEntry  = []byte{',', ':', '\t'}
	endOfFormatValue  = []byte{':', '\t'}
	endOfFormatKey    = []byte{':', '\t'}
	idSeparator       = []byte{';', '\t'}
	altSeparator      = []byte{',', '\t'}
	filterSeparator   = []byte{';', '\t'}
	errMissingTab     = errors.New("missing tabulator in VCF data line")
	errUnexpectedFlag = errors.New("unexpected value for a Flag entry in a VCF INFO field")
)

func containsByte(b byte, bytes []byte) bool {
	for _, bb := range bytes {
		if b == bb {
			return true
		}
	}
	return false
}

// missingValue consumes a lone '.' followed by one of the given
// terminators.
func (sc *StringScanner) missingValue(ends []byte) bool {
	if sc.index < len(sc.data) && sc.data[sc.index] == '.' {
		next := sc.index + 1
		if next >= len(sc.data) || containsByte(sc.data[next], ends) {
			sc.index = next
			return true
		}
	}
	return false
}

func integerParser(ends []byte) FieldParser {
	return func(sc *StringScanner) interface{} {
		if sc.err != nil || sc.missingValue(ends) {
			return nil
		}
		i, err := strconv.ParseInt(sc.readUntilBytes(ends), 10, 32)
		if err != nil {
			sc.setErr(err)
			return nil
		}
		return int(i)
	}
}

func floatParser(ends []byte) FieldParser {
	return func(sc *StringScanner) interface{} {
		if sc.err != nil || sc.missingValue(ends) {
			return nil
		}
		f, err := strconv.ParseFloat(sc.readUntilBytes(ends), 64)
		if err != nil {
			sc.setErr(err)
			return nil
		}
		return f
	}
}

func characterParser(ends []byte) FieldParser {
	return func(sc *StringScanner) interface{} {
		if sc.err != nil || sc.missingValue(ends) {
			return nil
		}
		s := sc.readUntilBytes(ends)
		if s == "" {
			sc.setErr(errors.New("missing Character entry in a VCF data line"))
			return nil
		}
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError || size != len(s) {
			sc.setErr(fmt.Errorf("invalid Character entry %v in a VCF data line", s))
			return nil
		}
		return s
	}
}

func stringParser(ends []byte) FieldParser {
	return func(sc *StringScanner) interface{} {
		if sc.err != nil || sc.missingValue(ends) {
			return nil
		}
		return sc.readUntilBytes(ends)
	}
}

func listParser(entryParser FieldParser) FieldParser {
	return func(sc *StringScanner) interface{} {
		var result []interface{}
		for sc.err == nil {
			result = append(result, entryParser(sc))
			if c, ok := sc.peek(); !ok || c != ',' {
				break
			}
			sc.index++
		}
		return result
	}
}

func createParser(format *FormatInformation, entryEnds, valueEnds []byte) (FieldParser, error) {
	var entryParser func([]byte) FieldParser
	switch format.Type {
	case Integer:
		entryParser = integerParser
	case Float:
		entryParser = floatParser
	case Character:
		entryParser = characterParser
	case String:
		if format.Number == 1 {
			return stringParser(valueEnds), nil
		}
		entryParser = stringParser
	default:
		return nil, fmt.Errorf("invalid Type %v for %v", format.Type, *format.ID)
	}
	if format.Number == 1 {
		return entryParser(entryEnds), nil
	}
	return listParser(entryParser(entryEnds)), nil
}

// CreateInfoParser creates a specific VCF info section parser for the
// given format information. Flags have a nil parser.
func CreateInfoParser(format *FormatInformation) (FieldParser, error) {
	if format.Type == Flag {
		if format.Number != 0 {
			return nil, errors.New("INFO Type Flag with Number != 0")
		}
		return nil, nil
	}
	return createParser(format, endOfInfoEntry, endOfInfoValue)
}

// CreateFormatParser creates a specific VCF format section parser for
// the given format information
func CreateFormatParser(format *FormatInformation) (FieldParser, error) {
	if format.Type == Flag {
		return nil, errors.New("FORMAT Type Flag is not allowed")
	}
	return createParser(format, endOfFormatEntry, endOfFormatValue)
}

var (
	parseGenericInfo   = listParser(stringParser(endOfInfoEntry))
	parseGenericFormat = listParser(stringParser(endOfFormatEntry))
)

// VariantParser is an optimized parser for VCF variant lines.
//
// NSamples can be decreased as necessary to parse fewer samples, including down to zero.
type VariantParser struct {
	InfoParsers, FormatParsers utils.SmallMap[utils.Symbol, FieldParser]
	NSamples                   int
}

// NewVariantParser creates a VariantParser for the given INFO and
// FORMAT definitions and number of samples.
func NewVariantParser(infos, formats []*FormatInformation, nSamples int) (*VariantParser, error) {
	vp := VariantParser{NSamples: nSamples}
	for _, format := range infos {
		parser, err := CreateInfoParser(format)
		if err != nil {
			return nil, err
		}
		vp.InfoParsers.Set(format.ID, parser)
	}
	for _, format := range formats {
		parser, err := CreateFormatParser(format)
		if err != nil {
			return nil, err
		}
		vp.FormatParsers.Set(format.ID, parser)
	}
	return &vp, nil
}

// NewVariantParser creates a VariantParser for the given VCF header.
func (header *Header) NewVariantParser() (*VariantParser, error) {
	var infos, formats []*FormatInformation
	for _, line := range header.Lines {
		if format, ok := line.Value.(*FormatInformation); ok {
			switch line.Key {
			case InfoKey:
				infos = append(infos, format)
			case FormatKey:
				formats = append(formats, format)
			}
		}
	}
	return NewVariantParser(infos, formats, len(header.Samples()))
}

// missingEntry consumes a lone '.' column including its tabulator.
func (sc *StringScanner) missingEntry() bool {
	if (sc.err != nil) || (sc.index >= len(sc.data)) {
		return true
	}
	if sc.data[sc.index] == '.' {
		next := sc.index + 1
		if (next >= len(sc.data)) || (sc.data[next] == '\t') {
			sc.index = next + 1
			return true
		}
	}
	return false
}

func (sc *StringScanner) scanChar(ch byte) {
	if sc.err != nil {
		return
	}
	if (sc.index >= len(sc.data)) || (sc.data[sc.index] != ch) {
		sc.err = errMissingTab
	}
	sc.index++
}

func (sc *StringScanner) doString() string {
	if sc.missingEntry() {
		return "."
	}
	value, ok := sc.readUntilByte('\t')
	if !ok {
		sc.setErr(errMissingTab)
		return ""
	}
	return value
}

func (sc *StringScanner) doInt32() int32 {
	if sc.missingEntry() {
		return -1
	}
	value, ok := sc.readUntilByte('\t')
	if !ok {
		sc.setErr(errMissingTab)
		return -1
	}
	i, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		sc.setErr(err)
	}
	return int32(i)
}

func (sc *StringScanner) doFloat() interface{} {
	if sc.missingEntry() {
		return nil
	}
	value, ok := sc.readUntilByte('\t')
	if !ok {
		sc.setErr(errMissingTab)
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		sc.setErr(err)
	}
	return f
}

func (sc *StringScanner) doStringList(separator []byte) (result []string) {
	if sc.missingEntry() {
		return nil
	}
	for sc.err == nil {
		result = append(result, sc.readUntilBytes(separator))
		if (sc.index >= len(sc.data)) || (sc.data[sc.index] != separator[0]) {
			break
		}
		sc.index++
	}
	sc.scanChar('\t')
	return result
}

var passList = []utils.Symbol{PASS}

func (sc *StringScanner) doFilter() []utils.Symbol {
	if sc.missingEntry() {
		return nil
	}
	str := sc.readUntilBytes(filterSeparator)
	if str == "PASS" && sc.index < len(sc.data) && sc.data[sc.index] == '\t' {
		sc.scanChar('\t')
		return passList
	}
	result := []utils.Symbol{utils.Intern(str)}
	for (sc.err == nil) && (sc.index < len(sc.data)) && (sc.data[sc.index] == ';') {
		sc.index++
		result = append(result, utils.Intern(sc.readUntilBytes(filterSeparator)))
	}
	sc.scanChar('\t')
	return result
}

func (sc *StringScanner) doInfo(infoParsers utils.SmallMap[utils.Symbol, FieldParser]) (result SymbolMap) {
	if sc.missingValue(endOfInfoValue) {
		return nil
	}
	for sc.err == nil {
		key := utils.Intern(sc.readUntilBytes(endOfInfoKey))
		parser, declared := infoParsers.Get(key)
		var value interface{}
		if c, ok := sc.peek(); ok && c == '=' {
			sc.index++
			switch {
			case !declared:
				value = parseGenericInfo(sc)
			case parser == nil:
				sc.setErr(errUnexpectedFlag)
			default:
				value = parser(sc)
			}
		} else if declared && parser != nil {
			sc.setErr(fmt.Errorf("missing value for INFO entry %v in a VCF data line", *key))
		} else {
			value = true
		}
		if sc.err != nil {
			return nil
		}
		result = append(result, SymbolEntry{Key: key, Value: value})
		if c, ok := sc.peek(); !ok || c != ';' {
			return result
		}
		sc.index++
	}
	return nil
}

func (sc *StringScanner) doSymbolList() (result []utils.Symbol) {
	for {
		str := sc.readUntilBytes(endOfFormatKey)
		if sc.err != nil {
			return nil
		}
		result = append(result, utils.Intern(str))
		if (sc.index >= len(sc.data)) || (sc.data[sc.index] != ':') {
			return result
		}
		sc.index++
	}
}

// ParseVariant parses a VCF variant line. Check Err for failures.
func (sc *StringScanner) ParseVariant(vp *VariantParser) *Variant {
	var variant Variant
	variant.Chrom = sc.doString()
	variant.Pos = sc.doInt32()
	variant.ID = sc.doStringList(idSeparator)
	variant.Ref = sc.doString()
	variant.Alt = sc.doStringList(altSeparator)
	variant.Qual = sc.doFloat()
	variant.Filter = sc.doFilter()
	variant.Info = sc.doInfo(vp.InfoParsers)
	if vp.NSamples > 0 {
		sc.scanChar('\t')
		variant.GenotypeFormat = sc.doSymbolList()
		parsers := make([]FieldParser, len(variant.GenotypeFormat))
		for p, format := range variant.GenotypeFormat {
			if parser, ok := vp.FormatParsers.Get(format); ok {
				parsers[p] = parser
			} else {
				parsers[p] = parseGenericFormat
			}
		}
		variant.GenotypeData = make([]SymbolMap, 0, vp.NSamples)
		for i := 0; i < vp.NSamples; i++ {
			sample := make(SymbolMap, len(parsers))
			for j, key := range variant.GenotypeFormat {
				sample[j].Key = key
			}
			sc.scanChar('\t')
			for j := 0; j < len(parsers); j++ {
				sample[j].Value = parsers[j](sc)
				if sc.err != nil {
					return nil
				}
				if (sc.index >= len(sc.data)) || (sc.data[sc.index] != ':') {
					break
				}
				sc.index++
			}
			variant.GenotypeData = append(variant.GenotypeData, sample)
		}
	}
	if sc.err != nil {
		return nil
	}
	return &variant
}

func formatStringList(out []byte, list []string, separator byte) []byte {
	if len(list) == 0 {
		return append(out, '.', '\t')
	}
	out = append(out, list[0]...)
	for _, entry := range list[1:] {
		out = append(out, separator)
		out = append(out, entry...)
	}
	return append(out, '\t')
}

func formatSymbolList(out []byte, list []utils.Symbol, separator byte) []byte {
	if len(list) == 0 {
		return append(out, '.')
	}
	out = append(out, (*list[0])...)
	for _, sym := range list[1:] {
		out = append(out, separator)
		out = append(out, (*sym)...)
	}
	return out
}

func formatValue(out []byte, value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return append(out, '.'), nil
	case int:
		return strconv.AppendInt(out, int64(v), 10), nil
	case int32:
		return strconv.AppendInt(out, int64(v), 10), nil
	case float64:
		return strconv.AppendFloat(out, v, 'f', -1, 64), nil
	case float32:
		return strconv.AppendFloat(out, float64(v), 'g', -1, 32), nil
	case string:
		return append(out, v...), nil
	default:
		return nil, fmt.Errorf("invalid value type %T", value)
	}
}

func formatValues(out []byte, value interface{}) ([]byte, error) {
	list, ok := value.([]interface{})
	if !ok {
		return formatValue(out, value)
	}
	if len(list) == 0 {
		return append(out, '.'), nil
	}
	var err error
	for i, v := range list {
		if i > 0 {
			out = append(out, ',')
		}
		if out, err = formatValue(out, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func formatInfoEntry(out []byte, entry SymbolEntry) ([]byte, error) {
	out = append(out, (*entry.Key)...)
	if b, ok := entry.Value.(bool); ok {
		if !b {
			return nil, errors.New("unexpected boolean value")
		}
		return out, nil
	}
	return formatValues(append(out, '='), entry.Value)
}

func formatInfo(out []byte, info SymbolMap) ([]byte, error) {
	if len(info) == 0 {
		return append(out, '.'), nil
	}
	var err error
	for i, entry := range info {
		if i > 0 {
			out = append(out, ';')
		}
		if out, err = formatInfoEntry(out, entry); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func formatGenotypeData(out []byte, format []utils.Symbol, data SymbolMap) ([]byte, error) {
	if len(format) == 0 {
		return append(out, '.'), nil
	}
	var err error
	for i, f := range format {
		if i > 0 {
			out = append(out, ':')
		}
		value, _ := data.Get(f)
		if out, err = formatValues(out, value); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Format outputs a VCF variant line
func (variant *Variant) Format(out []byte) ([]byte, error) {
	out = append(append(out, variant.Chrom...), '\t')
	if variant.Pos < 0 {
		out = append(out, '.', '\t')
	} else {
		out = append(strconv.AppendInt(out, int64(variant.Pos), 10), '\t')
	}
	out = formatStringList(out, variant.ID, ';')
	out = append(append(out, variant.Ref...), '\t')
	out = formatStringList(out, variant.Alt, ',')
	switch value := variant.Qual.(type) {
	case float64:
		out = append(strconv.AppendFloat(out, value, 'f', -1, 64), '\t')
	case float32:
		out = append(strconv.AppendFloat(out, float64(value), 'g', -1, 32), '\t')
	default:
		out = append(out, '.', '\t')
	}
	out = append(formatSymbolList(out, variant.Filter, ';'), '\t')
	var err error
	out, err = formatInfo(out, variant.Info)
	if err != nil {
		return nil, err
	}
	if len(variant.GenotypeData) > 0 {
		out = append(out, '\t')
		out = formatSymbolList(out, variant.GenotypeFormat, ':')
		for _, data := range variant.GenotypeData {
			out = append(out, '\t')
			out, err = formatGenotypeData(out, variant.GenotypeFormat, data)
			if err != nil {
				return nil, err
			}
		}
	}
	return append(out, '\n'), nil
}
