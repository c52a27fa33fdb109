// Command fastqueue is a CLI for creating, inspecting, and driving a
// fastqueue directory by hand.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run(os.Stdin, os.Stdout, os.Stderr, os.Args))
}

type command struct {
	name string
	help string
	fn   func(out, errOut io.Writer, args []string) int
}

func commands() []command {
	return []command{
		{"init", "init <dir> <name>          create a queue's directory layout and default config", cmdInit},
		{"enqueue", "enqueue <dir> <name> [text...] append one record (reads stdin with --stdin)", cmdEnqueue},
		{"dequeue", "dequeue <dir> <name>        pop and print the front record", cmdDequeue},
		{"peek", "peek <dir> <name>           print the front record without popping", cmdPeek},
		{"stat", "stat <dir> <name>           print size, head/tail/front indices, page counts", cmdStat},
		{"gc", "gc <dir> <name>             reclaim fully-dequeued pages", cmdGc},
		{"flush", "flush <dir> <name>          force durability", cmdFlush},
	}
}

func run(_ io.Reader, out, errOut io.Writer, args []string) int {
	if len(args) < 2 {
		printUsage(errOut)
		return 1
	}

	name := args[1]

	for _, cmd := range commands() {
		if cmd.name != name {
			continue
		}

		code := cmd.fn(out, errOut, args[2:])
		if code != 0 {
			logrus.WithField("command", name).Error("fastqueue: command failed")
		}

		return code
	}

	fmt.Fprintf(errOut, "error: unknown command: %s\n", name)
	printUsage(errOut)

	return 1
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: fastqueue <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")

	for _, cmd := range commands() {
		fmt.Fprintln(w, "  "+cmd.help)
	}
}
