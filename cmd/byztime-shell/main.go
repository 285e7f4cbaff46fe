// byztime-shell is a tiny interactive REPL for operators to inspect a
// running provider's data file, following the teacher's sloty tool:
// line-editing and history via peterh/liner, one command per line.
//
// Commands:
//
//	offset                     Show (min, est, max) offset
//	global                     Show (min, est, max) global time
//	drift [ppb]                Show or set the drift rate
//	slew <min-ppb> <max-ppb>   Enter slew mode
//	step                       Return to step mode
//	info                       Show the data file path and drift rate
//	help                       Show this help
//	exit / quit / q            Exit
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/byztime/byztime/consumer"
	"github.com/byztime/byztime/stamp"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: byztime-shell <data-file>")
		os.Exit(1)
	}

	if err := run(os.Args[1]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// shell holds the REPL's state, mirroring sloty's REPL struct.
type shell struct {
	path  string
	r     *consumer.Reader
	liner *liner.State
}

func run(path string) error {
	r, err := consumer.OpenReader(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}

	defer r.Close()

	s := &shell{path: path, r: r}

	return s.run()
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".byztime_shell_history")
}

func (s *shell) run() error {
	s.liner = liner.NewLiner()
	defer s.liner.Close()

	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.completer)

	if f, err := os.Open(historyFile()); err == nil {
		s.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("byztime-shell - inspecting %s\n", s.path)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := s.liner.Prompt("byztime> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		s.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			s.saveHistory()

			return nil
		case "help", "?":
			s.printHelp()
		case "offset":
			s.cmdOffset()
		case "global":
			s.cmdGlobal()
		case "drift":
			s.cmdDrift(args)
		case "slew":
			s.cmdSlew(args)
		case "step":
			s.r.Step()
			fmt.Println("OK: step mode")
		case "info":
			s.cmdInfo()
		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	s.saveHistory()

	return nil
}

func (s *shell) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			s.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (s *shell) completer(line string) []string {
	commands := []string{"offset", "global", "drift", "slew", "step", "info", "help", "exit", "quit", "q"}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (s *shell) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  offset                     Show (min, est, max) offset")
	fmt.Println("  global                     Show (min, est, max) global time")
	fmt.Println("  drift [ppb]                Show or set the drift rate")
	fmt.Println("  slew <min-ppb> <max-ppb>   Enter slew mode")
	fmt.Println("  step                       Return to step mode")
	fmt.Println("  info                       Show the data file path and drift rate")
	fmt.Println("  help                       Show this help")
	fmt.Println("  exit / quit / q            Exit")
}

func (s *shell) cmdOffset() {
	minVal, est, maxVal, err := s.r.Offset()
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("min=%s est=%s max=%s\n", stamp.Format(minVal), stamp.Format(est), stamp.Format(maxVal))
}

func (s *shell) cmdGlobal() {
	minVal, est, maxVal, err := s.r.GlobalTime()
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("min=%s est=%s max=%s\n", stamp.Format(minVal), stamp.Format(est), stamp.Format(maxVal))
}

func (s *shell) cmdDrift(args []string) {
	if len(args) == 0 {
		fmt.Printf("drift_ppb=%d\n", s.r.Drift())

		return
	}

	ppb, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Println("Usage: drift [ppb]")

		return
	}

	s.r.SetDrift(ppb)
	fmt.Printf("OK: drift_ppb=%d\n", ppb)
}

func (s *shell) cmdSlew(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: slew <min-ppb> <max-ppb>")

		return
	}

	minPPB, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Println("Error parsing min-ppb:", err)

		return
	}

	maxPPB, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Println("Error parsing max-ppb:", err)

		return
	}

	if err := s.r.Slew(minPPB, maxPPB, nil); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: slew mode, rate in [%d, %d] ppb\n", minPPB, maxPPB)
}

func (s *shell) cmdInfo() {
	fmt.Printf("path=%s\n", s.path)
	fmt.Printf("drift_ppb=%d\n", s.r.Drift())
}
