// fastqueue-shell is an interactive REPL for a queue directory.
//
// Usage:
//
//	fastqueue-shell <dir> <name>
//
// Commands:
//
//	enqueue <text>   Append one record
//	dequeue          Pop and print the front record
//	peek             Print the front record without popping
//	size             Print the queue size
//	gc               Reclaim fully-dequeued pages
//	stat             Print head/tail/front indices
//	apply            Print every retrievable record in order
//	help             Show this help
//	exit / quit / q  Exit
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/fastqueue/fastqueue/internal/config"
	"github.com/fastqueue/fastqueue/pkg/fastqueue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 3 {
		return errors.New("usage: fastqueue-shell <dir> <name>")
	}

	dir, name := os.Args[1], os.Args[2]
	qDir := filepath.Join(dir, name)

	cfgPath := filepath.Join(qDir, config.FileName)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Default(qDir)
	}

	q, err := fastqueue.Open(fastqueue.Options{
		Dir:          qDir,
		DataPageSize: cfg.DataPageSize,
		MetaPageSize: cfg.MetaPageSize,
	})
	if err != nil {
		return fmt.Errorf("opening queue: %w", err)
	}
	defer q.Close()

	repl := &REPL{queue: q, dirName: name}

	return repl.Run()
}

// REPL is the interactive command loop.
type REPL struct {
	queue   *fastqueue.Queue
	dirName string
	liner   *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".fastqueue_shell_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("fastqueue-shell - queue %q (size=%d)\n", r.dirName, r.queue.Size())
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("fastqueue> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "enqueue":
			r.cmdEnqueue(args)

		case "dequeue":
			r.cmdDequeue()

		case "peek":
			r.cmdPeek()

		case "size":
			r.cmdSize()

		case "gc":
			r.cmdGc()

		case "stat":
			r.cmdStat()

		case "apply":
			r.cmdApply()

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"enqueue", "dequeue", "peek", "size", "gc", "stat", "apply",
		"help", "exit", "quit", "q",
	}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  enqueue <text>   Append one record")
	fmt.Println("  dequeue          Pop and print the front record")
	fmt.Println("  peek             Print the front record without popping")
	fmt.Println("  size             Print the queue size")
	fmt.Println("  gc               Reclaim fully-dequeued pages")
	fmt.Println("  stat             Print head/tail/front indices")
	fmt.Println("  apply            Print every retrievable record in order")
	fmt.Println("  help             Show this help")
	fmt.Println("  exit / quit / q  Exit")
}

func (r *REPL) cmdEnqueue(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: enqueue <text>")

		return
	}

	text := strings.Join(args, " ")

	if err := r.queue.Enqueue([]byte(text)); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println("OK")
}

func (r *REPL) cmdDequeue() {
	b, ok, err := r.queue.Dequeue()
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	if !ok {
		fmt.Println("(empty)")

		return
	}

	fmt.Printf("%s\n", b)
}

func (r *REPL) cmdPeek() {
	b, ok, err := r.queue.Peek()
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	if !ok {
		fmt.Println("(empty)")

		return
	}

	fmt.Printf("%s\n", b)
}

func (r *REPL) cmdSize() {
	fmt.Printf("size: %d\n", r.queue.Size())
}

func (r *REPL) cmdGc() {
	if err := r.queue.Gc(); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println("OK")
}

func (r *REPL) cmdStat() {
	fmt.Printf("front: %d\n", r.queue.FrontIndex())
	fmt.Printf("head:  %d\n", r.queue.HeadIndex())
	fmt.Printf("tail:  %d\n", r.queue.TailIndex())
	fmt.Printf("size:  %d\n", r.queue.Size())
}

func (r *REPL) cmdApply() {
	i := 0

	err := r.queue.ApplyForEach(func(b []byte) error {
		i++
		fmt.Printf("%3d. %s\n", i, b)

		return nil
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	if i == 0 {
		fmt.Println("(empty)")
	}
}
