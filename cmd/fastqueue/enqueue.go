package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
)

func cmdEnqueue(out, errOut io.Writer, args []string) int {
	flagSet := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	fromStdin := flagSet.Bool("stdin", false, "read the record body from stdin")

	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	rest := flagSet.Args()
	if len(rest) < 2 {
		fmt.Fprintln(errOut, "usage: fastqueue enqueue <dir> <name> [--stdin | text...]")
		return 1
	}

	dir, name := rest[0], rest[1]

	var body []byte

	if *fromStdin {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}

		body = data
	} else {
		if len(rest) < 3 {
			fmt.Fprintln(errOut, "error: provide text or --stdin")
			return 1
		}

		body = []byte(strings.Join(rest[2:], " "))
	}

	q, err := openQueue(dir, name)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer q.Close()

	if err := q.Enqueue(body); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	fmt.Fprintln(out, "ok")

	return 0
}
