// Package shell implements the observable external shell behavior
// (spec.md §6): print `$ `, read a line from stdin until LF or CR, fork
// and exec non-empty lines, "exit" terminates. It is grounded on
// original_source/kernel-lib/src/bin/shell.rs, which this distilled
// spec.md only gestures at ("Backspace/DEL erase one character") — the
// full line editor, including backspace/DEL handling, is supplemented
// here per SPEC_FULL.md.
//
// The real shell compiles to a "user" ELF outside the kernel's scope
// (spec.md §1's OUT OF SCOPE boundary); this package models its logic in
// Go so it is exercisable by integration tests against a scripted Runner
// and console, the same "depend on the shim" shape as platform.Platform.
package shell

import (
	"fmt"
	"io"

	"golang.org/x/text/width"
)

const (
	lf = 0x0a
	cr = 0x0d
	dl = 0x7f
	bs = 0x08

	maxLine = 256 // original_source's shell has no explicit bound; this caps runaway input
)

// Runner is the process-level operations the shell drives: fork, exec,
// waitpid, and its own exit (spec.md §6).
type Runner interface {
	Fork() int
	Exec(line string) int
	Waitpid(pid int) int
	Exit(code int)
}

const prompt = "$ "

// Run drives the shell loop until the user types "exit". getchar returns
// ok=false when no byte is currently available; Run busy-polls it,
// mirroring how the real read syscall spins on yield_now until a byte
// arrives (spec.md §5) — here the caller's getchar is expected to block or
// yield itself if needed. Run has no end-of-input case: a getchar that
// keeps returning ok=false keeps Run polling. Each input byte is taken as
// one rune; input is not UTF-8-decoded.
func Run(out io.Writer, getchar func() (byte, bool), r Runner) {
	var line []rune
	fmt.Fprint(out, prompt)

	for {
		c, ok := getchar()
		if !ok {
			continue
		}

		switch c {
		case lf, cr:
			fmt.Fprintln(out)
			if len(line) == 0 {
				fmt.Fprint(out, prompt)
				continue
			}
			cmd := string(line)
			line = line[:0]
			if cmd == "exit" {
				r.Exit(0)
				return
			}
			runCommand(out, r, cmd)
			fmt.Fprint(out, prompt)

		case bs, dl:
			if len(line) == 0 {
				continue
			}
			erased := line[len(line)-1]
			line = line[:len(line)-1]
			eraseRune(out, erased)

		default:
			if len(line) >= maxLine {
				continue
			}
			line = append(line, rune(c))
			fmt.Fprintf(out, "%c", rune(c))
		}
	}
}

func runCommand(out io.Writer, r Runner, cmd string) {
	pid := r.Fork()
	if pid == 0 {
		if r.Exec(cmd) == -1 {
			fmt.Fprintf(out, "exec failed: %s\n", cmd)
		}
		return
	}
	code := r.Waitpid(pid)
	fmt.Fprintf(out, "[shell] exited (pid: %d, exit_code: %d)\n", pid, code)
}

// eraseRune backs over one previously echoed rune, accounting for
// east-asian-wide runes occupying two display columns (golang.org/x/text/
// width, per SPEC_FULL.md's direct port of the teacher's text-handling
// dependency).
func eraseRune(out io.Writer, r rune) {
	for i := 0; i < runeCols(r); i++ {
		fmt.Fprint(out, "\b \b")
	}
}

func runeCols(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}
