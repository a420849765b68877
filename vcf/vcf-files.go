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
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/exascience/elbcf/utils"
)

const (
	descriptionKey = "Description"
	idKey          = "ID"
	numberKey      = "Number"
	typeKey        = "Type"
)

// Keys of meta-information lines with a dedicated representation.
const (
	FileFormatKey = "fileformat"
	InfoKey       = "INFO"
	FormatKey     = "FORMAT"
	FilterKey     = "FILTER"
	ContigKey     = "contig"
)

// ParseMetaField parses a VCF meta field
func (sc *StringScanner) ParseMetaField() (key, value string) {
	if sc.err != nil {
		return
	}
	sc.SkipSpace()
	start := sc.index
	for ; sc.index < len(sc.data); sc.index++ {
		if c := sc.data[sc.index]; (c == ' ') || (c == '=') || (c == ',') || (c == '>') {
			break
		}
	}
	key = sc.data[start:sc.index]
	sc.SkipSpace()
	if c, ok := sc.peek(); !ok || c != '=' || key == "" {
		sc.setErr(fmt.Errorf("invalid key=value pair in a VCF meta-information line: %v", sc.data))
		return
	}
	sc.index++
	if c, ok := sc.peek(); ok && c == '"' {
		sc.index++
		var buf strings.Builder
		for ; sc.index < len(sc.data); sc.index++ {
			switch sc.data[sc.index] {
			case '"':
				sc.index++
				return key, buf.String()
			case '\\':
				if sc.index+1 < len(sc.data) {
					sc.index++
				}
			}
			_ = buf.WriteByte(sc.data[sc.index])
		}
		sc.setErr(fmt.Errorf("missing closing \" in a VCF meta-information line: %v", sc.data))
		return key, buf.String()
	}
	start = sc.index
	for ; sc.index < len(sc.data); sc.index++ {
		if c := sc.data[sc.index]; (c == ' ') || (c == ',') || (c == '>') {
			return key, sc.data[start:sc.index]
		}
	}
	sc.setErr(fmt.Errorf("missing closing > in a VCF meta-information line: %v", sc.data))
	return key, sc.data[start:]
}

func (sc *StringScanner) parseMetaFields(set func(key, value string) error) {
	if c, ok := sc.peek(); !ok || c != '<' {
		sc.setErr(fmt.Errorf("missing open angle bracket in a VCF meta-information line: %v", sc.data))
		return
	}
	sc.index++
	for sc.err == nil {
		key, value := sc.ParseMetaField()
		if sc.err != nil {
			return
		}
		if err := set(key, value); err != nil {
			sc.setErr(fmt.Errorf("%w in a VCF meta-information line: %v", err, sc.data))
			return
		}
		sc.SkipSpace()
		c, ok := sc.peek()
		if ok && c == ',' {
			sc.index++
			continue
		}
		if ok && c == '>' {
			sc.index++
			return
		}
		sc.setErr(fmt.Errorf("invalid syntax in a VCF meta-information line: %v", sc.data))
	}
}

// ParseMetaInformation parses VCF meta information. The result is
// either a string for unstructured lines, or a *MetaInformation.
func (sc *StringScanner) ParseMetaInformation() interface{} {
	if sc.err != nil {
		return nil
	}
	if c, ok := sc.peek(); !ok || c != '<' {
		start := sc.index
		sc.index = len(sc.data)
		return sc.data[start:]
	}
	meta := NewMetaInformation()
	sc.parseMetaFields(func(key, value string) error {
		switch key {
		case idKey:
			if meta.ID != nil {
				return errors.New("multiple IDs")
			}
			meta.ID = utils.Intern(value)
		case descriptionKey:
			if meta.Description != "" {
				return errors.New("multiple Descriptions")
			}
			meta.Description = value
		default:
			if !meta.Fields.SetUniqueEntry(key, value) {
				return fmt.Errorf("duplicate field key %v", key)
			}
		}
		return nil
	})
	if sc.err == nil && meta.ID == nil {
		sc.setErr(fmt.Errorf("missing ID in a VCF meta-information line: %v", sc.data))
	}
	return meta
}

// ParseFormatInformation parses VCF format information
func (sc *StringScanner) ParseFormatInformation() *FormatInformation {
	if sc.err != nil {
		return nil
	}
	format := NewFormatInformation()
	sc.parseMetaFields(func(key, value string) (err error) {
		switch key {
		case idKey:
			if format.ID != nil {
				return errors.New("multiple IDs")
			}
			format.ID = utils.Intern(value)
		case descriptionKey:
			if format.Description != "" {
				return errors.New("multiple Descriptions")
			}
			format.Description = value
		case numberKey:
			if format.Number > InvalidNumber {
				return errors.New("multiple Number entries")
			}
			format.Number, err = ParseNumber(value)
		case typeKey:
			if format.Type != InvalidType {
				return errors.New("multiple types")
			}
			format.Type, err = ParseType(value)
		default:
			if !format.Fields.SetUniqueEntry(key, value) {
				return fmt.Errorf("duplicate field key %v", key)
			}
		}
		return err
	})
	if sc.err != nil {
		return nil
	}
	switch {
	case format.ID == nil:
		sc.setErr(fmt.Errorf("missing ID in a VCF INFO/FORMAT meta-information line: %v", sc.data))
	case format.Number <= InvalidNumber:
		sc.setErr(fmt.Errorf("missing number entry in a VCF INFO/FORMAT meta-information line: %v", sc.data))
	case format.Type == InvalidType:
		sc.setErr(fmt.Errorf("missing type in a VCF INFO/FORMAT meta-information line: %v", sc.data))
	}
	return format
}

// ParseHeaderLine parses a single meta-information line, with or
// without its leading ##. The value is a *FormatInformation for INFO
// and FORMAT lines, and otherwise a *MetaInformation or a string.
func ParseHeaderLine(line string) (key string, value interface{}, err error) {
	line = strings.TrimSuffix(strings.TrimPrefix(line, "##"), "\r")
	var sc StringScanner
	sc.Reset(line)
	key, found := sc.readUntilByte('=')
	if !found || key == "" {
		return "", nil, fmt.Errorf("invalid syntax in a VCF header line: %v", line)
	}
	switch key {
	case InfoKey, FormatKey:
		value = sc.ParseFormatInformation()
	case FileFormatKey:
		value = sc.data[sc.index:]
	default:
		value = sc.ParseMetaInformation()
	}
	if sc.err != nil {
		return "", nil, sc.err
	}
	return key, value, nil
}

func getLine(reader *bufio.Reader) (line string, err error) {
	line, err = reader.ReadString('\n')
	switch {
	case err == nil:
		line = line[:len(line)-1]
	case err == io.EOF && line != "":
		err = nil
	}
	return strings.TrimSuffix(line, "\r"), err
}

// ParseHeader parses a VCF header up to and including the column
// header line.
func ParseHeader(reader *bufio.Reader) (hdr *Header, lines int, err error) {
	line, err := getLine(reader)
	if err != nil {
		return nil, 0, err
	}
	lines++
	if !strings.HasPrefix(line, fileFormatVersionLinePrefix) {
		return nil, 0, errors.New("invalid first line in a VCF file")
	}
	hdr = NewHeader()
	hdr.FileFormat = line[len("##fileformat="):]
	for {
		line, err = getLine(reader)
		if err == io.EOF {
			return nil, 0, errors.New("unexpected end of VCF header")
		} else if err != nil {
			return nil, 0, err
		}
		lines++
		if !strings.HasPrefix(line, "#") {
			return nil, 0, errors.New("missing column header line in a VCF file")
		}
		if !strings.HasPrefix(line, "##") {
			break
		}
		key, value, err := ParseHeaderLine(line)
		if err != nil {
			return nil, 0, err
		}
		if key == FileFormatKey {
			return nil, 0, errors.New("multiple file format meta-information lines in a VCF file")
		}
		hdr.Lines = append(hdr.Lines, HeaderLine{Key: key, Value: value})
	}
	columns, err := ParseColumns(line)
	if err != nil {
		return nil, 0, err
	}
	hdr.Columns = columns
	return hdr, lines, nil
}

// ParseColumns parses and checks the #CHROM column header line.
func ParseColumns(line string) ([]string, error) {
	columns := strings.Split(strings.TrimPrefix(line, "#"), "\t")
	if len(columns) < len(DefaultHeaderColumns) {
		return nil, fmt.Errorf("too few columns in a VCF column header line: %v", line)
	}
	for i, column := range DefaultHeaderColumns {
		if columns[i] != column {
			return nil, fmt.Errorf("unexpected column %v in a VCF column header line", columns[i])
		}
	}
	if len(columns) > len(DefaultHeaderColumns) && columns[len(DefaultHeaderColumns)] != FormatColumn {
		return nil, fmt.Errorf("missing FORMAT column in a VCF column header line: %v", line)
	}
	return columns, nil
}

// FormatString outputs a string to a VCF file, adding necessary double quotes and escapes
func FormatString(out []byte, str string) []byte {
	out = append(out, '"')
	for i := 0; i < len(str); i++ {
		b := str[i]
		if b == '"' || b == '\\' {
			out = append(out, '\\')
		}
		out = append(out, b)
	}
	return append(out, '"')
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"', ' ', ',', '<', '>', '=':
			return true
		}
	}
	return false
}

func formatFields(out []byte, fields utils.StringMap, quoted func(key string) bool) []byte {
	for _, key := range fields.SortedKeys() {
		value := fields[key]
		out = append(append(append(out, ','), key...), '=')
		if quoted(key) || needsQuotes(value) {
			out = FormatString(out, value)
		} else {
			out = append(out, value...)
		}
	}
	return out
}

func noQuotes(string) bool { return false }

func formatIDX(out []byte, idx int32) []byte {
	if idx < 0 {
		return out
	}
	return strconv.AppendInt(append(out, ",IDX="...), int64(idx), 10)
}

// FormatMetaInformation outputs VCF meta information, which can be
// just a string or *MetaInformation. A non-negative idx is written
// as an IDX field.
func FormatMetaInformation(out []byte, meta interface{}, idx int32) ([]byte, error) {
	switch m := meta.(type) {
	case string:
		return append(out, m...), nil
	case *MetaInformation:
		out = append(append(out, "<ID="...), (*m.ID)...)
		out = formatFields(out, m.Fields, noQuotes)
		if m.Description != "" {
			out = FormatString(append(out, ",Description="...), m.Description)
		}
		return append(formatIDX(out, idx), '>'), nil
	default:
		return nil, errors.New("invalid MetaInformation type")
	}
}

// FormatFormatInformation outputs VCF info or format information
func FormatFormatInformation(out []byte, format *FormatInformation, infoNotFormat bool, idx int32) ([]byte, error) {
	out = append(append(out, "<ID="...), (*format.ID)...)
	number, err := FormatNumber(format.Number)
	if err != nil {
		return nil, err
	}
	out = append(append(out, ",Number="...), number...)
	if format.Type == InvalidType || format.Type > String {
		return nil, errors.New("invalid Type in a VCF meta-information line")
	}
	out = append(append(out, ",Type="...), format.Type.String()...)
	if format.Description != "" {
		out = FormatString(append(out, ",Description="...), format.Description)
	}
	out = formatFields(out, format.Fields, func(key string) bool {
		return infoNotFormat && (key == "Source" || key == "Version")
	})
	return append(formatIDX(out, idx), '>'), nil
}

// FormatHeaderLine outputs a complete ## line including the
// terminating newline.
func FormatHeaderLine(out []byte, key string, value interface{}, idx int32) ([]byte, error) {
	out = append(append(append(out, "##"...), key...), '=')
	var err error
	switch v := value.(type) {
	case *FormatInformation:
		out, err = FormatFormatInformation(out, v, key == InfoKey, idx)
	default:
		out, err = FormatMetaInformation(out, value, idx)
	}
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// FormatColumns outputs the #CHROM column header line for the given
// sample names.
func FormatColumns(out []byte, samples []string) []byte {
	out = append(out, '#')
	for i, col := range DefaultHeaderColumns {
		if i > 0 {
			out = append(out, '\t')
		}
		out = append(out, col...)
	}
	if len(samples) > 0 {
		out = append(append(out, '\t'), FormatColumn...)
		for _, sample := range samples {
			out = append(append(out, '\t'), sample...)
		}
	}
	return append(out, '\n')
}

// Format outputs a VCF header
func (header *Header) Format(out []byte) (_ []byte, err error) {
	out = append(append(append(out, "##"...), FileFormatKey...), '=')
	out = append(append(out, header.FileFormat...), '\n')
	for _, line := range header.Lines {
		if out, err = FormatHeaderLine(out, line.Key, line.Value, -1); err != nil {
			return nil, err
		}
	}
	return FormatColumns(out, header.Samples()), nil
}
