package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/fastqueue/fastqueue/internal/config"
	"github.com/fastqueue/fastqueue/pkg/fastqueue"
)

var errMissingArgs = errors.New("missing required arguments")

func cmdInit(out, errOut io.Writer, args []string) int {
	flagSet := flag.NewFlagSet("init", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	dataPageSize := flagSet.Int("data-page-size", 0, "data page size in bytes (default from config.Default)")
	metaPageSize := flagSet.Int("meta-page-size", 0, "metadata page size in bytes (default from config.Default)")

	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	rest, err := requireArgs(flagSet.Args(), 2)
	if err != nil {
		fmt.Fprintln(errOut, "usage: fastqueue init <dir> <name>")
		return 1
	}

	dir, name := rest[0], rest[1]
	qDir := queueDir(dir, name)

	if err := os.MkdirAll(qDir, 0o755); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	cfg := config.Default(qDir)
	if *dataPageSize != 0 {
		cfg.DataPageSize = *dataPageSize
	}

	if *metaPageSize != 0 {
		cfg.MetaPageSize = *metaPageSize
	}

	cfgPath := filepath.Join(qDir, config.FileName)
	if err := config.Write(cfgPath, cfg); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	q, err := fastqueue.Open(fastqueue.Options{
		Dir:          qDir,
		DataPageSize: cfg.DataPageSize,
		MetaPageSize: cfg.MetaPageSize,
	})
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	if err := q.Close(); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	fmt.Fprintln(out, qDir)

	return 0
}
