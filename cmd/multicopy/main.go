package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/edvin/backup/internal/logging"
	"github.com/edvin/backup/internal/multicopy"
)

func main() {
	fs := flag.NewFlagSet("multicopy", flag.ExitOnError)
	numCopies := fs.Int("num-copies", 5, "Number of copies to maintain, including the new one")
	fs.IntVar(numCopies, "n", 5, "Shorthand for -num-copies")
	minPeriodDays := fs.Int("min-period-days", 0, "Minimum days since the last copy; 0 always copies")
	fs.IntVar(minPeriodDays, "d", 0, "Shorthand for -min-period-days")
	baseName := fs.String("target-base-name", "", "Base of the target name; default is the source name")
	fs.StringVar(baseName, "b", "", "Shorthand for -target-base-name")
	noTime := fs.Bool("no-time", false, "Omit the time segment, keeping at most one copy per day")
	fs.BoolVar(noTime, "T", false, "Shorthand for -no-time")
	ignoreErrors := fs.Bool("ignore-errors", false, "Log copy errors instead of aborting")
	fs.BoolVar(ignoreErrors, "E", false, "Shorthand for -ignore-errors")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: multicopy [flags] SRC_FILE_OR_DIR TARGET_DIR")
		fmt.Fprintln(os.Stderr, "Copies the source into the target directory under a timestamped name and")
		fmt.Fprintln(os.Stderr, "deletes old copies beyond -num-copies.")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	if fs.NArg() != 2 {
		fs.Usage()
		os.Exit(1)
	}

	logger := logging.NewLogger("info")
	err := multicopy.New(logger).Replicate(fs.Arg(0), fs.Arg(1), multicopy.Options{
		NumCopies:      *numCopies,
		MinPeriodDays:  *minPeriodDays,
		TargetBaseName: *baseName,
		AppendTime:     !*noTime,
		IgnoreErrors:   *ignoreErrors,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
