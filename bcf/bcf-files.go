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
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/exascience/elbcf/internal/logging"
	"github.com/exascience/elbcf/utils"
	"github.com/exascience/elbcf/utils/bgzf"
	"github.com/exascience/elbcf/vcf"
)

// Mode is a storage mode for opening record streams.
type Mode string

// Storage modes.
const (
	ModeRead                 Mode = "r"
	ModeWriteVcf             Mode = "w"
	ModeWriteVcfGz           Mode = "wz"
	ModeWriteUncompressedBcf Mode = "wu"
	ModeWriteBcf             Mode = "wb"
)

// DefaultCompressionLevel selects the default deflate level for BGZF
// output.
const DefaultCompressionLevel = -1

// File extensions.
const (
	VcfExt = ".vcf"
	BcfExt = ".bcf"
	GzExt  = ".gz"
)

var bcfMagic = []byte("BCF\x02\x02")

// maxRecordSize bounds the l_shared+l_indiv length of a single
// binary record.
const maxRecordSize = 1 << 30

// WriteMode returns the write mode for the given combination of
// compression and format.
func WriteMode(uncompressed, vcf bool) Mode {
	switch {
	case vcf && uncompressed:
		return ModeWriteVcf
	case vcf:
		return ModeWriteVcfGz
	case uncompressed:
		return ModeWriteUncompressedBcf
	default:
		return ModeWriteBcf
	}
}

// ParseMode parses a mode string. Besides the mode strings, it
// accepts the single-letter output types v, z, u and b.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "r":
		return ModeRead, nil
	case "w", "v":
		return ModeWriteVcf, nil
	case "wz", "z":
		return ModeWriteVcfGz, nil
	case "wu", "u":
		return ModeWriteUncompressedBcf, nil
	case "wb", "b":
		return ModeWriteBcf, nil
	default:
		return "", fmt.Errorf("unknown storage mode %q", s)
	}
}

// ModeForFilename determines a write mode from a file name
// extension. compressed selects BGZF output for files that are not
// explicitly .gz.
func ModeForFilename(name string, compressed bool) Mode {
	switch filepath.Ext(name) {
	case BcfExt:
		return WriteMode(!compressed, false)
	case GzExt:
		return ModeWriteVcfGz
	default:
		return WriteMode(!compressed, true)
	}
}

func (mode Mode) writable() bool {
	switch mode {
	case ModeWriteVcf, ModeWriteVcfGz, ModeWriteUncompressedBcf, ModeWriteBcf:
		return true
	default:
		return false
	}
}

func (mode Mode) binary() bool {
	return mode == ModeWriteUncompressedBcf || mode == ModeWriteBcf
}

func (mode Mode) compressed() bool {
	return mode == ModeWriteVcfGz || mode == ModeWriteBcf
}

type (
	// recordSource splits a stream into raw records and decodes them.
	// decode must be safe for concurrent use.
	recordSource interface {
		next() ([]byte, error)
		decode(view HeaderView, block []byte, rec *Record) error
	}

	textSource struct {
		input  *bufio.Reader
		parser *vcf.VariantParser
	}

	binarySource struct {
		input   io.Reader
		lengths [8]byte
	}
)

func (src *textSource) next() ([]byte, error) {
	for {
		line, err := src.input.ReadBytes('\n')
		if err == io.EOF {
			if len(line) == 0 {
				return nil, io.EOF
			}
		} else if err != nil {
			return nil, err
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) > 0 {
			return line, nil
		}
		if err == io.EOF {
			return nil, io.EOF
		}
	}
}

func (src *textSource) decode(view HeaderView, block []byte, rec *Record) error {
	return parseVcfRecord(view, src.parser, block, rec)
}

func (src *binarySource) next() ([]byte, error) {
	if _, err := io.ReadFull(src.input, src.lengths[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, errTruncated
		}
		return nil, err
	}
	lShared := binary.LittleEndian.Uint32(src.lengths[0:4])
	lIndiv := binary.LittleEndian.Uint32(src.lengths[4:8])
	size := uint64(lShared) + uint64(lIndiv)
	if size > maxRecordSize {
		return nil, fmt.Errorf("BCF record of %v bytes exceeds the maximum record size", size)
	}
	block := make([]byte, 8+size)
	copy(block, src.lengths[:])
	if _, err := io.ReadFull(src.input, block[8:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errTruncated
		}
		return nil, err
	}
	return block, nil
}

func (src *binarySource) decode(view HeaderView, block []byte, rec *Record) error {
	lShared := int(binary.LittleEndian.Uint32(block[0:4]))
	if err := decodeBcfRecord(block[8:], lShared, view.SampleCount(), rec); err != nil {
		return err
	}
	return checkIDs(view, rec)
}

// checkIDs verifies that all ids of a record refer to definitions of
// the right kind in its header.
func checkIDs(view HeaderView, rec *Record) error {
	if _, ok := view.ContigName(rec.Contig); !ok {
		return fmt.Errorf("undefined contig id %v", rec.Contig)
	}
	check := func(kind FieldKind, id int32) error {
		if def := view.Field(id); def == nil || !def.Defines(kind) {
			return fmt.Errorf("undefined %v id %v", kind, id)
		}
		return nil
	}
	for _, id := range rec.Filters {
		if err := check(FilterField, id); err != nil {
			return err
		}
	}
	for _, field := range rec.Info {
		if err := check(InfoField, field.Key); err != nil {
			return err
		}
	}
	for _, field := range rec.Format {
		if err := check(FormatField, field.Key); err != nil {
			return err
		}
	}
	return nil
}

// Reader reads records from a VCF or BCF stream, plain or BGZF
// compressed. All records it produces are bound to its header.
//
// Reader implements pipeline.Source, producing batches of raw
// records that BytesToRecord decodes.
type Reader struct {
	rc     io.Closer
	bgzf   io.Closer
	source recordSource
	header *Header
	count  int
	err    error
	data   interface{}
}

// Open a VCF or BCF file for input. The format is determined from the
// content, not from the file name.
//
// If the name is "/dev/stdin", then the input is read from os.Stdin.
func Open(name string) (*Reader, error) {
	if name == "/dev/stdin" {
		return newReader(nil, os.Stdin)
	}
	file, err := os.Open(name)
	if err != nil {
		return nil, &ReadFault{Err: err}
	}
	reader, err := newReader(file, file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return reader, nil
}

// NewReader reads a VCF or BCF stream from r. Close does not close r.
func NewReader(r io.Reader) (*Reader, error) {
	return newReader(nil, r)
}

func newReader(rc io.Closer, r io.Reader) (*Reader, error) {
	buf := bufio.NewReader(r)
	input, bgzfCloser, err := utils.HandleBGZF(buf)
	if err != nil {
		return nil, &ReadFault{Err: err}
	}
	reader := &Reader{rc: rc, bgzf: bgzfCloser}
	if input != io.Reader(buf) {
		buf = bufio.NewReader(input)
	}
	if magic, _ := buf.Peek(len(bcfMagic) - 1); bytes.Equal(magic, bcfMagic[:len(bcfMagic)-1]) {
		err = reader.readBinaryPrologue(buf)
	} else {
		err = reader.readTextPrologue(buf)
	}
	if err != nil {
		if bgzfCloser != nil {
			_ = bgzfCloser.Close()
		}
		return nil, &ReadFault{Err: err}
	}
	logging.WithComponent("reader").Debug().
		Bool("binary", reader.Binary()).
		Int("samples", reader.header.samples.Count()).
		Int("contigs", reader.header.contigs.Count()).
		Msg("opened variant input")
	return reader, nil
}

func (reader *Reader) readTextPrologue(input *bufio.Reader) error {
	text, _, err := vcf.ParseHeader(input)
	if err != nil {
		return err
	}
	if reader.header, err = newHeaderFromText(text); err != nil {
		return err
	}
	view := reader.header.View()
	parser, err := vcf.NewVariantParser(view.infoDefinitions(), view.formatDefinitions(), view.SampleCount())
	if err != nil {
		return err
	}
	reader.source = &textSource{input: input, parser: parser}
	return nil
}

func (reader *Reader) readBinaryPrologue(input *bufio.Reader) error {
	var prologue [9]byte
	if _, err := io.ReadFull(input, prologue[:]); err != nil {
		return fmt.Errorf("%w, while reading the BCF magic", err)
	}
	if minor := prologue[4]; minor != 1 && minor != 2 {
		return fmt.Errorf("unsupported BCF version 2.%v", minor)
	}
	lText := binary.LittleEndian.Uint32(prologue[5:])
	if lText > maxRecordSize {
		return fmt.Errorf("BCF header text of %v bytes is too large", lText)
	}
	text := make([]byte, lText)
	if _, err := io.ReadFull(input, text); err != nil {
		return fmt.Errorf("%w, while reading the BCF header text", err)
	}
	text = bytes.TrimRight(text, "\x00")
	header, _, err := vcf.ParseHeader(bufio.NewReader(bytes.NewReader(text)))
	if err != nil {
		return err
	}
	if reader.header, err = newHeaderFromText(header); err != nil {
		return err
	}
	reader.source = &binarySource{input: input}
	return nil
}

// Header returns the header shared by all records of the reader.
func (reader *Reader) Header() HeaderView {
	return reader.header.View()
}

// Binary reports whether the input is a BCF stream.
func (reader *Reader) Binary() bool {
	_, ok := reader.source.(*binarySource)
	return ok
}

// Read reads the next record into rec, rebinding it to the reader's
// header. It returns ErrNoMoreRecords at the clean end of the stream,
// and a *ReadFault for every other failure.
func (reader *Reader) Read(rec *Record) error {
	if reader.err != nil {
		return reader.err
	}
	block, err := reader.source.next()
	if err == io.EOF {
		return ErrNoMoreRecords
	}
	reader.count++
	if err != nil {
		reader.err = &ReadFault{Record: reader.count, Err: err}
		return reader.err
	}
	rec.reset(reader.header)
	if err := reader.source.decode(reader.header.View(), block, rec); err != nil {
		return &ReadFault{Record: reader.count, Err: err}
	}
	return nil
}

// Next returns a freshly allocated record.
func (reader *Reader) Next() (*Record, error) {
	rec := NewRecord(reader.Header())
	if err := reader.Read(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Close releases the input. It closes the underlying file only if the
// reader opened it.
func (reader *Reader) Close() error {
	var err error
	if reader.bgzf != nil {
		err = reader.bgzf.Close()
		reader.bgzf = nil
	}
	if reader.rc != nil {
		if cerr := reader.rc.Close(); err == nil {
			err = cerr
		}
		reader.rc = nil
	}
	return err
}

// rawBatch is a batch of undecoded records, with the ordinal of its
// first record.
type rawBatch struct {
	first  int
	blocks [][]byte
}

// Err implements the method of the pipeline.Source interface.
func (reader *Reader) Err() error {
	return reader.err
}

// Prepare implements the method of the pipeline.Source interface.
func (*Reader) Prepare(_ context.Context) (size int) {
	return -1
}

// Fetch implements the method of the pipeline.Source interface.
func (reader *Reader) Fetch(size int) (fetched int) {
	batch := rawBatch{first: reader.count + 1}
	for fetched = 0; fetched < size && reader.err == nil; fetched++ {
		block, err := reader.source.next()
		if err == io.EOF {
			break
		}
		reader.count++
		if err != nil {
			reader.err = &ReadFault{Record: reader.count, Err: err}
			break
		}
		batch.blocks = append(batch.blocks, block)
	}
	reader.data = batch
	return fetched
}

// Data implements the method of the pipeline.Source interface.
func (reader *Reader) Data() interface{} {
	return reader.data
}

// decodeBatch decodes a raw batch into records bound to the reader's
// header.
func (reader *Reader) decodeBatch(batch rawBatch) ([]*Record, error) {
	view := reader.header.View()
	recs := make([]*Record, 0, len(batch.blocks))
	for i, block := range batch.blocks {
		rec := NewRecord(view)
		if err := reader.source.decode(view, block, rec); err != nil {
			return recs, &ReadFault{Record: batch.first + i, Err: err}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Writer writes records to a VCF or BCF stream. It owns a private
// sealed duplicate of the header it was created with, together with
// that header's SampleSubset, if any.
type Writer struct {
	wc     io.Closer
	bgzf   io.Closer
	out    *bufio.Writer
	header *Header
	subset SampleSubset
	binary bool
	buf    []byte
	closed bool
}

// Create a VCF or BCF file for output with the default compression
// level.
//
// If the name is "/dev/stdout", then the output is written to
// os.Stdout.
func Create(name string, hdr *Header, mode Mode) (*Writer, error) {
	return CreateLevel(name, hdr, mode, DefaultCompressionLevel)
}

// CreateLevel creates a VCF or BCF file for output with the given
// compression level.
func CreateLevel(name string, hdr *Header, mode Mode, level int) (*Writer, error) {
	if name == "/dev/stdout" {
		return newWriter(nil, os.Stdout, hdr, mode, level)
	}
	if !mode.writable() {
		return nil, &WriteError{Err: fmt.Errorf("storage mode %q is not a write mode", mode)}
	}
	file, err := os.Create(name)
	if err != nil {
		return nil, &WriteError{Err: err}
	}
	writer, err := newWriter(file, file, hdr, mode, level)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return writer, nil
}

// NewWriter writes a stream with the default compression level to w.
// Close does not close w.
func NewWriter(w io.Writer, hdr *Header, mode Mode) (*Writer, error) {
	return newWriter(nil, w, hdr, mode, DefaultCompressionLevel)
}

// NewWriterLevel writes a stream with the given compression level to
// w. Close does not close w.
func NewWriterLevel(w io.Writer, hdr *Header, mode Mode, level int) (*Writer, error) {
	return newWriter(nil, w, hdr, mode, level)
}

func newWriter(wc io.Closer, w io.Writer, hdr *Header, mode Mode, level int) (*Writer, error) {
	if !mode.writable() {
		return nil, &WriteError{Err: fmt.Errorf("storage mode %q is not a write mode", mode)}
	}
	writer := &Writer{wc: wc, binary: mode.binary()}
	sink := w
	if mode.compressed() {
		bgzfWriter, err := bgzf.NewWriter(w, level)
		if err != nil {
			return nil, &WriteError{Err: err}
		}
		writer.bgzf = bgzfWriter
		sink = bgzfWriter
	}
	writer.out = bufio.NewWriter(sink)
	writer.header = NewHeaderFromTemplate(hdr.View())
	if hdr.subset != nil {
		writer.header.subset = make(SampleSubset, len(hdr.subset))
		copy(writer.header.subset, hdr.subset)
	}
	writer.subset = writer.header.subset
	if err := writer.writePrologue(); err != nil {
		if writer.bgzf != nil {
			_ = writer.bgzf.Close()
		}
		return nil, &WriteError{Err: err}
	}
	hdr.seal()
	writer.header.seal()
	logging.WithComponent("writer").Debug().
		Str("mode", string(mode)).
		Int("samples", writer.header.samples.Count()).
		Bool("subset", writer.subset != nil).
		Msg("opened variant output")
	return writer, nil
}

func (writer *Writer) writePrologue() error {
	text, err := writer.header.formatText(nil, writer.binary)
	if err != nil {
		return err
	}
	if writer.binary {
		prologue := append([]byte(nil), bcfMagic...)
		prologue = appendUint32(prologue, uint32(len(text)+1))
		if _, err := writer.out.Write(prologue); err != nil {
			return err
		}
		text = append(text, 0)
	}
	_, err = writer.out.Write(text)
	return err
}

// Header returns the writer's private header. Records must be bound
// to it before they are written.
func (writer *Writer) Header() HeaderView {
	return writer.header.View()
}

// Translate rebinds rec to the writer's header.
func (writer *Writer) Translate(rec *Record) error {
	return Translate(rec, writer.Header())
}

// Subset restricts the samples of rec to the writer's SampleSubset.
// It is a no-op if the writer has no SampleSubset.
func (writer *Writer) Subset(rec *Record) error {
	if rec.header != writer.header {
		return ErrHeaderMismatch
	}
	if writer.subset == nil {
		return nil
	}
	return SubsetSamples(rec, writer.subset)
}

func (writer *Writer) validate(rec *Record) error {
	if rec.header != writer.header {
		return ErrHeaderMismatch
	}
	if len(rec.Alleles) == 0 {
		return fmt.Errorf("record at %v has no reference allele", rec.Pos+1)
	}
	if err := checkIDs(writer.Header(), rec); err != nil {
		return err
	}
	nSamples := writer.header.samples.Count()
	for _, field := range rec.Format {
		if len(field.Value) != nSamples {
			name, _ := writer.header.fields.Name(field.Key)
			return fmt.Errorf("FORMAT %v has %v values for %v samples", name, len(field.Value), nSamples)
		}
	}
	return nil
}

// formatRecord appends the encoding of rec to out. It is safe for
// concurrent use.
func (writer *Writer) formatRecord(rec *Record, out []byte) ([]byte, error) {
	if err := writer.validate(rec); err != nil {
		return nil, err
	}
	if writer.binary {
		return encodeBcfRecord(rec, writer.header.samples.Count(), out)
	}
	return formatVcfRecord(rec, out)
}

var errClosed = errors.New("writer is closed")

// Write writes rec, which must be bound to the writer's header.
// Failures are reported as *WriteError.
func (writer *Writer) Write(rec *Record) error {
	if writer.closed {
		return &WriteError{Err: errClosed}
	}
	buf, err := writer.formatRecord(rec, writer.buf[:0])
	if err != nil {
		return &WriteError{Err: err}
	}
	writer.buf = buf
	if _, err := writer.out.Write(buf); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

func (writer *Writer) writeBytes(p []byte) error {
	if writer.closed {
		return &WriteError{Err: errClosed}
	}
	if _, err := writer.out.Write(p); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

// Close flushes all output and releases every resource, also when one
// of the steps fails. It closes the underlying file only if the writer
// created it.
func (writer *Writer) Close() error {
	if writer.closed {
		return nil
	}
	writer.closed = true
	err := writer.out.Flush()
	if writer.bgzf != nil {
		if cerr := writer.bgzf.Close(); err == nil {
			err = cerr
		}
	}
	if writer.wc != nil {
		if cerr := writer.wc.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return &WriteError{Err: err}
	}
	return nil
}
