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

package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/exascience/elbcf/bcf"
	"github.com/exascience/elbcf/internal/logging"
)

// SamplesHelp is the help string for the samples command.
const SamplesHelp = "samples parameters:\n" +
	"elbcf samples vcf-or-bcf-input\n" +
	"[--count]\n" +
	"[--config file]\n"

// HeaderHelp is the help string for the header command.
const HeaderHelp = "header parameters:\n" +
	"elbcf header vcf-or-bcf-input\n" +
	"[--with-idx]\n" +
	"[--config file]\n"

func withInput(input string, f func(bcf.HeaderView) error) (err error) {
	reader, err := bcf.Open(input)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := reader.Close(); err == nil {
			err = nerr
		}
	}()
	return f(reader.Header())
}

func printSamples(out io.Writer, input string, count bool) error {
	return withInput(input, func(hdr bcf.HeaderView) error {
		if count {
			_, err := fmt.Fprintln(out, hdr.SampleCount())
			return err
		}
		for _, sample := range hdr.Samples() {
			if _, err := fmt.Fprintln(out, sample); err != nil {
				return err
			}
		}
		return nil
	})
}

func printHeader(out io.Writer, input string, withIDX bool) error {
	return withInput(input, func(hdr bcf.HeaderView) error {
		text, err := hdr.FormatText(nil, withIDX)
		if err != nil {
			return err
		}
		_, err = out.Write(text)
		return err
	})
}

// parseInputCommand parses the command line of a command that only
// takes an input file, and initializes logging to stderr.
func parseInputCommand(flags *flag.FlagSet, args []string, help string) (string, error) {
	var configPath string
	addConfigFlags(flags, &configPath)
	if err := parseFlags(flags, args, 1, help); err != nil {
		return "", err
	}
	input, err := getFilename(args[0], help)
	if err != nil {
		return "", err
	}
	cfg, err := resolveConfig(flags, configPath)
	if err != nil {
		return "", err
	}
	logging.Init(os.Stderr, cfg.Debug, cfg.HumanLogs)
	if !checkExist("", input) {
		fmt.Fprint(os.Stderr, help)
		return "", ErrUsage
	}
	return input, nil
}

// Samples implements the elbcf samples command.
func Samples(args []string) error {
	var count bool
	flags := flag.NewFlagSet("samples", flag.ContinueOnError)
	flags.BoolVar(&count, "count", false, "print the number of samples instead of their names")
	input, err := parseInputCommand(flags, args, SamplesHelp)
	if err != nil {
		return err
	}
	return printSamples(os.Stdout, input, count)
}

// Header implements the elbcf header command.
func Header(args []string) error {
	var withIDX bool
	flags := flag.NewFlagSet("header", flag.ContinueOnError)
	flags.BoolVar(&withIDX, "with-idx", false, "print the IDX fields of the dictionary ids")
	input, err := parseInputCommand(flags, args, HeaderHelp)
	if err != nil {
		return err
	}
	return printHeader(os.Stdout, input, withIDX)
}
