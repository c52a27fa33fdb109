package main

import (
	"fmt"
	"io"
)

func cmdDequeue(out, errOut io.Writer, args []string) int {
	rest, err := requireArgs(args, 2)
	if err != nil {
		fmt.Fprintln(errOut, "usage: fastqueue dequeue <dir> <name>")
		return 1
	}

	q, err := openQueue(rest[0], rest[1])
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer q.Close()

	b, ok, err := q.Dequeue()
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	if !ok {
		fmt.Fprintln(errOut, "queue is empty")
		return 1
	}

	out.Write(b) //nolint:errcheck // best-effort write to stdout

	return 0
}
