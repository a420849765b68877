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

// elbcf reads, writes and rewrites VCF and BCF variant files: it
// subsets and reorders samples, trims unobserved alternate alleles,
// edits header definitions, and converts between the text and binary
// container formats.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/exascience/elbcf/cmd"
	"github.com/exascience/elbcf/internal/logging"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: view, samples, header")
	fmt.Fprint(os.Stderr, "\n", cmd.ViewHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.SamplesHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.HeaderHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "view":
		err = cmd.View(args)
	case "samples":
		err = cmd.Samples(args)
	case "header":
		err = cmd.Header(args)
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		fmt.Fprintln(os.Stderr, "Unknown command", os.Args[1])
		printHelp()
		os.Exit(1)
	}
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
	case errors.Is(err, cmd.ErrUsage):
		os.Exit(1)
	default:
		logging.L().Fatal().Err(err).Msg("command failed")
	}
}
