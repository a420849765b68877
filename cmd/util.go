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
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/exascience/elbcf/internal/logging"
	"github.com/exascience/elbcf/utils"
)

// ProgramMessage is the first line printed when the elbcf binary is
// called.
var ProgramMessage string

func init() {
	ProgramMessage = fmt.Sprint(
		"\n", utils.ProgramName, " version ", utils.ProgramVersion,
		" compiled with ", runtime.Version(),
		" - see ", utils.ProgramURL, " for more information.\n",
	)
}

// HelpMessage is printed to show the --help flag
const HelpMessage = "Print command details:\n" +
	"[--help]\n"

// ErrUsage is returned when a command line cannot be used. The
// command has already printed its help text.
var ErrUsage = errors.New("incorrect command line")

func getFilename(s, help string) (string, error) {
	switch s {
	case "-h", "--h", "-help", "--help":
		fmt.Fprint(os.Stderr, help)
		return "", flag.ErrHelp
	default:
		if strings.HasPrefix(s, "-") {
			fmt.Fprintln(os.Stderr, "Filename(s) in command line missing.")
			fmt.Fprint(os.Stderr, help)
			return "", ErrUsage
		}
	}
	return s, nil
}

// parseFlags parses the flags following requiredArgs positional
// arguments.
func parseFlags(flags *flag.FlagSet, args []string, requiredArgs int, help string) error {
	if len(args) < requiredArgs {
		if len(args) > 0 {
			if _, err := getFilename(args[0], help); err != nil {
				return err
			}
		}
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, help)
		return ErrUsage
	}
	flags.SetOutput(io.Discard)
	if err := flags.Parse(args[requiredArgs:]); err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			err = ErrUsage
		}
		fmt.Fprint(os.Stderr, help)
		return err
	}
	if flags.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Cannot parse remaining parameters:", flags.Args())
		fmt.Fprint(os.Stderr, help)
		return ErrUsage
	}
	return nil
}

// splitList splits a comma-separated flag value.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	for _, entry := range strings.Split(s, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			result = append(result, entry)
		}
	}
	return result
}

// stringList collects the values of a repeatable flag.
type stringList []string

func (list *stringList) String() string {
	return strings.Join(*list, ",")
}

func (list *stringList) Set(value string) error {
	*list = append(*list, value)
	return nil
}

// readSampleFile reads one sample name per line, ignoring empty
// lines.
func readSampleFile(name string) (samples []string, err error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if nerr := f.Close(); err == nil {
			err = nerr
		}
	}()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			samples = append(samples, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if samples == nil {
		samples = []string{}
	}
	return samples, nil
}

func logCheckFile(parameter, msg string, filename string, err error) {
	event := logging.L().Error().Str("file", filename)
	if parameter != "" {
		event = event.Str("parameter", parameter)
	}
	if err != nil {
		event = event.Err(err)
	}
	event.Msg(msg)
}

func checkExist(parameter, filename string) bool {
	if len(filename) == 0 {
		logCheckFile(parameter, "missing filename", filename, nil)
		return false
	}
	if filename[0] == '-' {
		logCheckFile(parameter, "missing filename before flag", filename, nil)
		return false
	}
	if filename == "/dev/stdin" {
		return true
	}
	if _, err := os.Stat(filename); err == nil {
		return true
	} else if os.IsNotExist(err) {
		logCheckFile(parameter, "file does not exist", filename, nil)
	} else if os.IsPermission(err) {
		logCheckFile(parameter, "no permission to read file", filename, nil)
	} else {
		logCheckFile(parameter, "cannot access file", filename, err)
	}
	return false
}

func checkCreate(parameter, filename string) bool {
	if len(filename) == 0 {
		logCheckFile(parameter, "missing filename", filename, nil)
		return false
	}
	if filename[0] == '-' {
		logCheckFile(parameter, "missing filename before flag", filename, nil)
		return false
	}
	if filename == "/dev/stdout" {
		return true
	}
	if _, err := os.Stat(filename); err == nil {
		// Assume that the file has been written by previous elbcf runs, and can be overwritten.
		return true
	}
	err := os.MkdirAll(filepath.Dir(filename), 0700)
	if err == nil {
		err = os.WriteFile(filename, nil, 0666)
	}
	if err != nil {
		if os.IsPermission(err) {
			logCheckFile(parameter, "no permission to create file", filename, nil)
		} else {
			logCheckFile(parameter, "cannot create file", filename, err)
		}
		return false
	}
	_ = os.Remove(filename)
	return true
}

func createLogFilename() string {
	t := time.Now()
	zone, _ := t.Zone()
	return fmt.Sprintf("logs/elbcf/elbcf-%d-%02d-%02d-%02d-%02d-%02d-%09d-%v.log", t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone)
}

// setLogOutput creates a log file below the configured log path, or
// below $HOME, and sends both log messages and stderr to it as well as
// to the original stderr.
func setLogOutput(cfg Config) error {
	logPath := createLogFilename()
	var fullPath string
	if cfg.LogPath == "" {
		fullPath = filepath.Join(os.Getenv("HOME"), logPath)
	} else {
		base, err := filepath.Abs(cfg.LogPath)
		if err != nil {
			return err
		}
		fullPath = filepath.Join(base, logPath)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0700); err != nil {
		return err
	}
	f, err := os.Create(fullPath)
	if err != nil {
		return err
	}
	fmt.Fprintln(f, ProgramMessage)

	orgStderr, err := unix.Dup(2)
	if err != nil {
		return err
	}
	ferr := os.NewFile(uintptr(orgStderr), "/dev/stderr")
	if err := unix.Dup2(int(f.Fd()), 2); err != nil {
		return err
	}

	logging.Init(io.MultiWriter(f, ferr), cfg.Debug, cfg.HumanLogs)
	logging.L().Info().Str("path", fullPath).Msg("created log file")
	logging.L().Info().Strs("args", os.Args).Msg("command line")
	return nil
}

func timedRun(timed bool, profile, msg string, phase int64, f func() error) error {
	if profile != "" {
		filename := profile + strconv.FormatInt(phase, 10) + ".prof"
		file, err := os.Create(filename)
		if err != nil {
			return err
		}
		defer file.Close()
		if err := pprof.StartCPUProfile(file); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}
	if timed {
		logging.L().Info().Int64("phase", phase).Msg(msg)
		start := time.Now()
		defer func() {
			logging.L().Info().Int64("phase", phase).Dur("elapsed", time.Since(start)).Msg("phase done")
		}()
	}
	return f()
}
