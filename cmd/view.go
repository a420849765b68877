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
	"bytes"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/exascience/elbcf/bcf"
	"github.com/exascience/elbcf/internal/logging"
	"github.com/exascience/elbcf/utils"
	"github.com/exascience/elbcf/vcf"
)

// ViewHelp is the help string for this command.
const ViewHelp = "view parameters:\n" +
	"elbcf view vcf-or-bcf-input vcf-or-bcf-output\n" +
	"[--samples name,name,...]\n" +
	"[--samples-file file]\n" +
	"[--output-type v|z|u|b]\n" +
	"[--trim-alt-alleles]\n" +
	"[--remove-info tag,tag,...]\n" +
	"[--remove-format tag,tag,...]\n" +
	"[--header-line line]\n" +
	"[--header-template vcf-or-bcf-file]\n" +
	"[--compression-level n]\n" +
	"[--nr-of-threads n]\n" +
	"[--timed]\n" +
	"[--log-path path]\n" +
	"[--config file]\n"

// CommandKey is the key of the header line that records an elbcf
// invocation.
const CommandKey = "elbcfCommand"

type viewOptions struct {
	input, output    string
	samples          []string
	mode             bcf.Mode
	trim             bool
	removeInfo       []string
	removeFormat     []string
	headerLines      []string
	headerTemplate   string
	compressionLevel int
	commandLine      string
}

// commandLine returns the header line recording an invocation.
func commandLine(id uuid.UUID, command string) (string, error) {
	meta := vcf.NewMetaInformation()
	meta.ID = utils.Intern(id.String())
	meta.Fields["Version"] = utils.ProgramVersion
	meta.Fields["CommandLine"] = command
	line, err := vcf.FormatHeaderLine(nil, CommandKey, meta, -1)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(line), "\n"), nil
}

// outputHeader builds the header of the output stream from the header
// of the input stream.
func outputHeader(input bcf.HeaderView, opts viewOptions) (*bcf.Header, error) {
	var hdr *bcf.Header
	if opts.samples != nil {
		var err error
		if hdr, err = bcf.SubsetTemplate(input, opts.samples); err != nil {
			return nil, err
		}
	} else {
		hdr = bcf.NewHeaderFromTemplate(input)
	}
	if opts.headerTemplate != "" {
		template, err := bcf.Open(opts.headerTemplate)
		if err != nil {
			return nil, err
		}
		err = hdr.MergeFrom(template.Header())
		if cerr := template.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, err
		}
	}
	for _, tag := range opts.removeInfo {
		if err := hdr.RemoveInfo(tag); err != nil {
			return nil, err
		}
	}
	for _, tag := range opts.removeFormat {
		if err := hdr.RemoveFormat(tag); err != nil {
			return nil, err
		}
	}
	for _, line := range opts.headerLines {
		if err := hdr.AppendLine(line); err != nil {
			return nil, err
		}
	}
	if opts.commandLine != "" {
		line, err := commandLine(uuid.New(), opts.commandLine)
		if err != nil {
			return nil, err
		}
		if err := hdr.AppendLine(line); err != nil {
			return nil, err
		}
	}
	return hdr, nil
}

func runView(opts viewOptions) (err error) {
	reader, err := bcf.Open(opts.input)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := reader.Close(); err == nil {
			err = nerr
		}
	}()
	hdr, err := outputHeader(reader.Header(), opts)
	if err != nil {
		return err
	}
	mode := opts.mode
	if mode == "" {
		mode = bcf.ModeForFilename(opts.output, true)
	}
	writer, err := bcf.CreateLevel(opts.output, hdr, mode, opts.compressionLevel)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := writer.Close(); err == nil {
			err = nerr
		}
	}()
	logging.L().Debug().
		Int("samples", writer.Header().SampleCount()).
		Bool("trim", opts.trim).
		Str("mode", string(mode)).
		Msg("writing variant records")
	return reader.RunPipeline(writer, bcf.Transforms(writer, opts.trim)...)
}

// View implements the elbcf view command. args are the command line
// arguments following the command name.
func View(args []string) error {
	var (
		samples, samplesFile, outputType string
		removeInfo, removeFormat         string
		headerTemplate                   string
		headerLines                      stringList
		trim, timed                      bool
		profile, configPath              string
	)

	flags := flag.NewFlagSet("view", flag.ContinueOnError)
	flags.StringVar(&samples, "samples", "", "comma-separated list of samples to output, in the given order")
	flags.StringVar(&samplesFile, "samples-file", "", "file with one sample to output per line")
	flags.StringVar(&outputType, "output-type", "", "v: VCF, z: compressed VCF, u: uncompressed BCF, b: compressed BCF")
	flags.BoolVar(&trim, "trim-alt-alleles", false, "remove alternate alleles that no output sample carries")
	flags.StringVar(&removeInfo, "remove-info", "", "comma-separated list of INFO fields to remove")
	flags.StringVar(&removeFormat, "remove-format", "", "comma-separated list of FORMAT fields to remove")
	flags.Var(&headerLines, "header-line", "add a meta-information line to the output header (repeatable)")
	flags.StringVar(&headerTemplate, "header-template", "", "merge the definitions of the header of the specified file into the output header")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	addConfigFlags(flags, &configPath)

	if err := parseFlags(flags, args, 2, ViewHelp); err != nil {
		return err
	}
	input, err := getFilename(args[0], ViewHelp)
	if err != nil {
		return err
	}
	output, err := getFilename(args[1], ViewHelp)
	if err != nil {
		return err
	}

	cfg, err := resolveConfig(flags, configPath)
	if err != nil {
		return err
	}
	if err := setLogOutput(cfg); err != nil {
		return err
	}

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", input) {
		sanityChecksFailed = true
	}
	if !checkCreate("", output) {
		sanityChecksFailed = true
	}
	if headerTemplate != "" && !checkExist("--header-template", headerTemplate) {
		sanityChecksFailed = true
	}
	if profile != "" && !checkCreate("--profile", profile) {
		sanityChecksFailed = true
	}
	if err := cfg.check(); err != nil {
		logging.L().Error().Err(err).Msg("invalid settings")
		sanityChecksFailed = true
	}

	opts := viewOptions{
		input:            input,
		output:           output,
		trim:             trim,
		removeInfo:       splitList(removeInfo),
		removeFormat:     splitList(removeFormat),
		headerLines:      headerLines,
		headerTemplate:   headerTemplate,
		compressionLevel: cfg.CompressionLevel,
	}

	switch {
	case samples != "" && samplesFile != "":
		logging.L().Error().Msg("the --samples and --samples-file options cannot be combined")
		sanityChecksFailed = true
	case samples != "":
		opts.samples = splitList(samples)
	case samplesFile != "":
		if !checkExist("--samples-file", samplesFile) {
			sanityChecksFailed = true
		} else if opts.samples, err = readSampleFile(samplesFile); err != nil {
			logging.L().Error().Err(err).Str("file", samplesFile).Msg("cannot read samples file")
			sanityChecksFailed = true
		}
	}

	if outputType != "" {
		if opts.mode, err = bcf.ParseMode(outputType); err != nil || opts.mode == bcf.ModeRead {
			logging.L().Error().Str("output-type", outputType).Msg("invalid output type")
			sanityChecksFailed = true
		}
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, ViewHelp)
		return ErrUsage
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " view ", input, " ", output)
	if samples != "" {
		fmt.Fprint(&command, " --samples ", samples)
	}
	if samplesFile != "" {
		fmt.Fprint(&command, " --samples-file ", samplesFile)
	}
	if outputType != "" {
		fmt.Fprint(&command, " --output-type ", outputType)
	}
	if trim {
		fmt.Fprint(&command, " --trim-alt-alleles")
	}
	if removeInfo != "" {
		fmt.Fprint(&command, " --remove-info ", removeInfo)
	}
	if removeFormat != "" {
		fmt.Fprint(&command, " --remove-format ", removeFormat)
	}
	for _, line := range headerLines {
		fmt.Fprintf(&command, " --header-line %q", line)
	}
	if headerTemplate != "" {
		fmt.Fprint(&command, " --header-template ", headerTemplate)
	}
	if cfg.CompressionLevel != -1 {
		fmt.Fprint(&command, " --compression-level ", cfg.CompressionLevel)
	}
	if cfg.NrOfThreads > 0 {
		runtime.GOMAXPROCS(cfg.NrOfThreads)
		fmt.Fprint(&command, " --nr-of-threads ", cfg.NrOfThreads)
	}
	if timed {
		fmt.Fprint(&command, " --timed")
	}
	if cfg.LogPath != "" {
		fmt.Fprint(&command, " --log-path ", cfg.LogPath)
	}
	opts.commandLine = command.String()

	// executing command

	logging.L().Info().Str("command", opts.commandLine).Msg("executing command")

	return timedRun(timed, profile, "Processing variant records.", 1, func() error {
		return runView(opts)
	})
}
