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
)

// Sentinel errors.
var (
	// ErrNoMoreRecords signals a clean end of a record stream. It is
	// not a ReadFault.
	ErrNoMoreRecords = errors.New("no more records")

	// ErrHeaderSealed is returned by every mutation of a Header that
	// was used to write a stream prologue.
	ErrHeaderSealed = errors.New("header is sealed after writing a stream prologue")

	// ErrHeaderMismatch is returned when a record is not bound to the
	// header an operation requires.
	ErrHeaderMismatch = errors.New("record is not bound to the expected header")

	// ErrAlleleFieldLength is returned when a Number=A, R or G field
	// does not match the number of alleles of its record.
	ErrAlleleFieldLength = errors.New("allele-dependent field has unexpected length")

	// ErrSubsetSamples is returned by AddSample on a header derived
	// with SubsetTemplate, whose samples are fixed by its SampleSubset.
	ErrSubsetSamples = errors.New("cannot add samples to a sample subset header")
)

// UnknownSampleError is returned when a requested sample is not
// present in a header.
type UnknownSampleError struct {
	Name string
}

func (e *UnknownSampleError) Error() string {
	return fmt.Sprintf("unknown sample %q", e.Name)
}

// DuplicateNameError is returned when a name is added twice to the
// same dictionary.
type DuplicateNameError struct {
	Domain Domain
	Name   string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate %v name %q", e.Domain, e.Name)
}

// UnknownContigError is returned when a record's contig is absent
// from a destination header.
type UnknownContigError struct {
	Name string
}

func (e *UnknownContigError) Error() string {
	return fmt.Sprintf("contig %q is not declared in the destination header", e.Name)
}

// MalformedDefinitionError is returned when a header line cannot be
// parsed or is inconsistent with existing definitions.
type MalformedDefinitionError struct {
	Line string
	Err  error
}

func (e *MalformedDefinitionError) Error() string {
	return fmt.Sprintf("malformed header definition %q: %v", e.Line, e.Err)
}

func (e *MalformedDefinitionError) Unwrap() error {
	return e.Err
}

// SubsetConstructionError is returned when the sample dictionary of a
// subset header cannot be built.
type SubsetConstructionError struct {
	Err error
}

func (e *SubsetConstructionError) Error() string {
	return fmt.Sprintf("cannot construct subset header: %v", e.Err)
}

func (e *SubsetConstructionError) Unwrap() error {
	return e.Err
}

// IndexOutOfRangeError is returned when a sample subset refers to a
// sample a record does not have.
type IndexOutOfRangeError struct {
	Index int32
	Len   int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("sample index %v out of range for %v samples", e.Index, e.Len)
}

// NoGenotypeDataError is returned when alleles are trimmed from a
// record without GT data.
type NoGenotypeDataError struct {
	Contig string
	Pos    int32
}

func (e *NoGenotypeDataError) Error() string {
	return fmt.Sprintf("no genotype data for record at %v:%v", e.Contig, e.Pos+1)
}

// ReadFault is returned for every read failure other than a clean
// end of stream.
type ReadFault struct {
	Record int // 1-based ordinal of the record being read, 0 for the prologue
	Err    error
}

func (e *ReadFault) Error() string {
	if e.Record == 0 {
		return fmt.Sprintf("read fault in stream prologue: %v", e.Err)
	}
	return fmt.Sprintf("read fault in record %v: %v", e.Record, e.Err)
}

func (e *ReadFault) Unwrap() error {
	return e.Err
}

// WriteError is returned when a record or prologue cannot be written.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write error: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
