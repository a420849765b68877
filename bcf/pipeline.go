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

	"github.com/exascience/pargo/pipeline"

	"github.com/exascience/elbcf/internal"
)

// A Transform receives a Record which it can modify in place.
type Transform func(*Record) error

// Transforms returns the transforms that prepare records of another
// header for w: translation to w's header, sample subsetting, and
// optionally trimming of unobserved alternate alleles.
func Transforms(w *Writer, trim bool) []Transform {
	transforms := []Transform{w.Translate, w.Subset}
	if trim {
		transforms = append(transforms, func(rec *Record) error {
			_, err := TrimAlleles(rec)
			return err
		})
	}
	return transforms
}

const (
	minBatchSize = 4096
	maxBatchSize = 262144
)

// BytesToRecord returns a pargo pipeline.Filter that decodes the raw
// batches fetched from reader into slices of Record pointers.
func BytesToRecord(reader *Reader) pipeline.Filter {
	return func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			recs, err := reader.decodeBatch(data.(rawBatch))
			if err != nil {
				p.SetErr(err)
			}
			return recs
		}
		return
	}
}

// ApplyTransforms returns a pargo pipeline.Filter that applies the
// transforms in order to the slices of Record pointers it receives.
func ApplyTransforms(transforms []Transform) pipeline.Filter {
	return func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			recs := data.([]*Record)
			for _, rec := range recs {
				for _, transform := range transforms {
					if err := transform(rec); err != nil {
						contig, _ := rec.ContigName()
						p.SetErr(fmt.Errorf("%w, in record at %v:%v", err, contig, rec.Pos+1))
						return recs
					}
				}
			}
			return recs
		}
		return
	}
}

// RecordToBytes returns a pargo pipeline.Filter that encodes slices of
// Record pointers for writer.
func RecordToBytes(writer *Writer) pipeline.Filter {
	return func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			recs := data.([]*Record)
			out := internal.ReserveByteBuffer()
			for _, rec := range recs {
				formatted, err := writer.formatRecord(rec, out)
				if err != nil {
					internal.ReleaseByteBuffer(out)
					p.SetErr(&WriteError{Err: err})
					return []byte(nil)
				}
				out = formatted
			}
			return out
		}
		return
	}
}

// RunPipeline reads all remaining records, applies the transforms in
// parallel, and writes the results to writer in input order.
func (reader *Reader) RunPipeline(writer *Writer, transforms ...Transform) error {
	var p pipeline.Pipeline
	p.Source(reader)
	p.SetVariableBatchSize(minBatchSize, maxBatchSize)
	p.Add(pipeline.LimitedPar(0, BytesToRecord(reader)))
	if len(transforms) > 0 {
		p.Add(pipeline.LimitedPar(0, ApplyTransforms(transforms)))
	}
	p.Add(
		pipeline.LimitedPar(0, RecordToBytes(writer)),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			buf := data.([]byte)
			if err := writer.writeBytes(buf); err != nil {
				p.SetErr(err)
			}
			internal.ReleaseByteBuffer(buf)
			return nil
		})),
	)
	p.Run()
	return p.Err()
}
