package main

import (
	"fmt"
	"io"
)

func cmdGc(out, errOut io.Writer, args []string) int {
	rest, err := requireArgs(args, 2)
	if err != nil {
		fmt.Fprintln(errOut, "usage: fastqueue gc <dir> <name>")
		return 1
	}

	q, err := openQueue(rest[0], rest[1])
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer q.Close()

	if err := q.Gc(); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	fmt.Fprintln(out, "ok")

	return 0
}
