package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

func cmdStat(out, errOut io.Writer, args []string) int {
	rest, err := requireArgs(args, 2)
	if err != nil {
		fmt.Fprintln(errOut, "usage: fastqueue stat <dir> <name>")
		return 1
	}

	q, err := openQueue(rest[0], rest[1])
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer q.Close()

	qDir := queueDir(rest[0], rest[1])

	fmt.Fprintf(out, "size:  %d\n", q.Size())
	fmt.Fprintf(out, "front: %d\n", q.FrontIndex())
	fmt.Fprintf(out, "head:  %d\n", q.HeadIndex())
	fmt.Fprintf(out, "tail:  %d\n", q.TailIndex())

	for _, stream := range []string{"index", "meta", "data", "front_index"} {
		n := countPageFiles(filepath.Join(qDir, stream))
		fmt.Fprintf(out, "%s pages: %d\n", stream, n)
	}

	return 0
}

func countPageFiles(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	return len(entries)
}
