/* SPDX-License-Identifier: LGPL-2.1-or-later */

/*
 * journalzap loads a journal file, removes entries matching caller-supplied
 * field-name/field-value criteria, and writes the rebuilt survivors to a new
 * file. Flag handling follows main.cpp's read_yn/confirm loop; file I/O maps
 * the input read-only with mmap-go and buffers the rebuilt output in memory
 * before a single Write, so a failed rebuild never leaves a partial file on
 * disk.
 */
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/edsrzf/mmap-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/appgate/journalzap/internal/journal"
)

type options struct {
	inputFile    string
	outputFile   string
	fieldNames   []string
	fieldValues  []string
	printAll     bool
	printMatches bool
	confirm      bool
	yes          bool
	debug        bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var opts options
	root := &cobra.Command{
		Use:           "journalzap",
		Short:         "Remove matching entries from a journal file and rebuild it",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, opts)
		},
	}
	flags := root.Flags()
	flags.StringVarP(&opts.inputFile, "input-file", "f", "", "input journal file (required)")
	flags.StringVarP(&opts.outputFile, "output-file", "o", "", "output journal file (required)")
	flags.StringArrayVarP(&opts.fieldNames, "field-name", "F", nil, "match entries carrying this field name (repeatable)")
	flags.StringArrayVarP(&opts.fieldValues, "field-value", "V", nil, "match entries carrying this field value (repeatable)")
	flags.BoolVarP(&opts.printAll, "print-all", "p", false, "retain every entry; matches are not removed and entries are not printed")
	flags.BoolVarP(&opts.printMatches, "print-matches", "P", false, "retain only matching entries")
	flags.BoolVarP(&opts.confirm, "confirm-matches", "c", false, "ask before dropping each matching entry")
	flags.BoolVarP(&opts.yes, "yes", "y", false, "under --confirm-matches, answer keep to every prompt without asking")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "enable debug logging")
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func execute(cmd *cobra.Command, opts options) error {
	if opts.inputFile == "" || opts.outputFile == "" {
		fmt.Fprintln(os.Stderr, cmd.UsageString())
		return fmt.Errorf("both -f/--input-file and -o/--output-file are required")
	}

	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	if opts.debug {
		log.SetLevel(logrus.DebugLevel)
	}
	sink := newLogSink(log)

	data, closeFile, err := mapInputFile(opts.inputFile)
	if err != nil {
		sink.Errorf("opening %s: %v", opts.inputFile, err)
		return err
	}
	defer closeFile()

	parsed, err := journal.Parse(data, sink)
	if err != nil {
		sink.Errorf("parsing %s: %v", opts.inputFile, err)
		return err
	}
	sink.Infof("parsed %s: %d entries, %d data objects, %d fields", opts.inputFile, len(parsed.Entries), len(parsed.Data), len(parsed.Fields))

	for _, name := range opts.fieldNames {
		if err := journal.LookupField(parsed, name); err != nil {
			sink.Errorf("%v", err)
			return err
		}
	}
	for _, value := range opts.fieldValues {
		if err := journal.LookupFieldValue(parsed, value); err != nil {
			sink.Errorf("%v", err)
			return err
		}
	}

	spec := journal.FilterSpec{
		FieldNames:  opts.fieldNames,
		FieldValues: opts.fieldValues,
		Policy:      resolvePolicy(opts),
	}
	if spec.Policy == journal.ConfirmEach {
		spec.ConfirmCallback = confirmCallback(opts.yes, sink)
	}

	filtered, err := journal.Filter(parsed, spec, sink)
	if err != nil {
		sink.Errorf("filtering: %v", err)
		return err
	}
	sink.Infof("retained %d of %d entries", len(filtered.Entries), len(parsed.Entries))

	out, err := journal.Rebuild(filtered, sink)
	if err != nil {
		sink.Errorf("rebuilding: %v", err)
		return err
	}

	if _, err := journal.Parse(out, sink); err != nil {
		sink.Errorf("rebuilt output failed self-check: %v", err)
		return err
	}

	if err := os.WriteFile(opts.outputFile, out, 0o644); err != nil {
		sink.Errorf("writing %s: %v", opts.outputFile, err)
		return err
	}
	sink.Infof("wrote %s (%d bytes)", opts.outputFile, len(out))
	return nil
}

// resolvePolicy maps the mutually-exclusive print/confirm flags onto a
// journal.Policy, defaulting to DropAll (remove matches outright) when none
// of -p/-P/-c is given.
func resolvePolicy(opts options) journal.Policy {
	switch {
	case opts.confirm:
		return journal.ConfirmEach
	case opts.printMatches:
		return journal.PrintMatches
	case opts.printAll:
		return journal.PrintAll
	default:
		return journal.DropAll
	}
}

// confirmCallback mirrors the reference's read_yn: -y answers every prompt
// with Keep, otherwise it reads a y/n line from stdin per matching entry.
func confirmCallback(autoYes bool, sink journal.Sink) func(journal.EntryObject) journal.ConfirmResult {
	reader := bufio.NewReader(os.Stdin)
	return func(e journal.EntryObject) journal.ConfirmResult {
		if autoYes {
			return journal.Keep
		}
		fmt.Printf("keep entry seqnum=%d realtime=%d? [y/N] ", e.Seqnum, e.Realtime)
		line, err := reader.ReadString('\n')
		if err != nil {
			sink.Warnf("reading confirmation: %v", err)
			return journal.Drop
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		if answer == "y" || answer == "yes" {
			return journal.Keep
		}
		return journal.Drop
	}
}

// mapInputFile memory-maps path read-only and returns its bytes alongside a
// closer that unmaps and closes the file handle.
func mapInputFile(path string) ([]byte, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	closer := func() {
		m.Unmap()
		f.Close()
	}
	return []byte(m), closer, nil
}
