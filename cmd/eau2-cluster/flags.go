package main

import (
	"flag"
	"fmt"
	"strconv"
)

// flagSet wraps flag.FlagSet to add the typed accessors SPEC_FULL.md §6's
// CLI surface needs beyond what the stdlib flag package supports, in the
// style of the teacher's cmd/eth2030/flags.go (which adds a uint64 flag the
// same way). Here the addition is a bounded byte-count flag for "-l".
type flagSet struct {
	*flag.FlagSet
}

// newFlagSet creates a flagSet with ContinueOnError behavior.
func newFlagSet(name string) *flagSet {
	return &flagSet{FlagSet: flag.NewFlagSet(name, flag.ContinueOnError)}
}

// BytesVar defines a "-l" style flag: a non-negative byte count bounding
// how much of an input file a driver reads.
func (fs *flagSet) BytesVar(p *int, name string, value int, usage string) {
	fs.FlagSet.Var(&byteCountValue{p: p}, name, usage)
	*p = value
}

// byteCountValue implements flag.Value, rejecting negative byte counts.
type byteCountValue struct {
	p *int
}

func (v *byteCountValue) String() string {
	if v.p == nil {
		return "0"
	}
	return strconv.Itoa(*v.p)
}

func (v *byteCountValue) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid byte count %q", s)
	}
	if n < 0 {
		return fmt.Errorf("byte count must be non-negative, got %d", n)
	}
	*v.p = n
	return nil
}

// driverFlags is the common CLI surface of every example driver
// (SPEC_FULL.md §6): node index, cluster size, an optional input file, a
// bound on how much of it to read, and a "-v" switch to a smaller workload
// for quick leak-check runs.
type driverFlags struct {
	Index     int
	N         int
	File      string
	ReadLimit int
	Small     bool
}

func parseDriverFlags(progName string, defaultN int, args []string) (driverFlags, error) {
	var f driverFlags
	fs := newFlagSet(progName)
	fs.IntVar(&f.Index, "i", 0, "this node's index in the cluster")
	fs.IntVar(&f.N, "n", defaultN, "number of nodes in the cluster")
	fs.StringVar(&f.File, "f", "", "optional input file")
	fs.BytesVar(&f.ReadLimit, "l", 1<<20, "maximum bytes to read from -f")
	fs.BoolVar(&f.Small, "v", false, "use a smaller workload for leak-check runs")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	return f, nil
}
