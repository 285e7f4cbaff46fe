// byztime is a one-shot CLI, analogous to the teacher's tk-seed/
// tk-bench tools: it opens a BYZTIME data file, prints the current
// projected offset or global time, and exits. Useful for shell
// scripts and health checks that don't want to link the consumer
// package directly.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/byztime/byztime/consumer"
	"github.com/byztime/byztime/stamp"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut *os.File) int {
	flags := flag.NewFlagSet("byztime", flag.ContinueOnError)
	flags.SetOutput(errOut)

	flagPath := flags.StringP("path", "p", "/run/byztime/byztime.dat", "path to the shared byztime data file")
	flagGlobal := flags.Bool("global", false, "print global time instead of the local/global offset")
	flagDriftPPB := flags.Int64("drift-ppb", 0, "override the assumed local clock drift, parts per billion")

	if err := flags.Parse(args); err != nil {
		return 2
	}

	r, err := consumer.OpenReader(*flagPath)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)

		return 1
	}

	defer r.Close()

	if *flagDriftPPB != 0 {
		r.SetDrift(*flagDriftPPB)
	}

	var minVal, est, maxVal stamp.Stamp

	if *flagGlobal {
		minVal, est, maxVal, err = r.GlobalTime()
	} else {
		minVal, est, maxVal, err = r.Offset()
	}

	if err != nil {
		fmt.Fprintln(errOut, "error:", err)

		return 1
	}

	fmt.Fprintf(out, "min=%s est=%s max=%s\n", stamp.Format(minVal), stamp.Format(est), stamp.Format(maxVal))

	return 0
}
