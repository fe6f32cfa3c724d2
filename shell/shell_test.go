package shell

import (
	"bytes"
	"testing"
)

type scriptedRunner struct {
	forkReturns int
	execReturn  int
	waitCode    int
	exitCode    int
	exited      bool

	forkCalls []struct{}
	execCalls []string
	waitCalls []int
}

func (r *scriptedRunner) Fork() int {
	r.forkCalls = append(r.forkCalls, struct{}{})
	return r.forkReturns
}

func (r *scriptedRunner) Exec(line string) int {
	r.execCalls = append(r.execCalls, line)
	return r.execReturn
}

func (r *scriptedRunner) Waitpid(pid int) int {
	r.waitCalls = append(r.waitCalls, pid)
	return r.waitCode
}

func (r *scriptedRunner) Exit(code int) {
	r.exited = true
	r.exitCode = code
}

// feeder turns a byte slice into the (byte, bool) getchar shape Run wants.
func feeder(b []byte) func() (byte, bool) {
	i := 0
	return func() (byte, bool) {
		if i >= len(b) {
			return 0, false
		}
		c := b[i]
		i++
		return c, true
	}
}

func TestEmptyLineReprompts(t *testing.T) {
	var out bytes.Buffer
	r := &scriptedRunner{}
	Run(&out, feeder([]byte("\nexit\n")), r)

	if !r.exited {
		t.Fatal("expected shell to exit")
	}
	if len(r.forkCalls) != 0 {
		t.Fatal("expected an empty line to reprompt without forking")
	}
}

func TestNonEmptyLineForksAndWaits(t *testing.T) {
	var out bytes.Buffer
	r := &scriptedRunner{forkReturns: 42, waitCode: 7}
	Run(&out, feeder([]byte("hello\nexit\n")), r)

	if len(r.forkCalls) != 1 {
		t.Fatalf("expected exactly one fork, got %d", len(r.forkCalls))
	}
	if len(r.waitCalls) != 1 || r.waitCalls[0] != 42 {
		t.Fatalf("expected waitpid(42), got %v", r.waitCalls)
	}
	if !bytes.Contains(out.Bytes(), []byte("exited (pid: 42, exit_code: 7)")) {
		t.Fatalf("expected exit summary line, got %q", out.String())
	}
}

func TestChildPathExecsAndReturnsWithoutWaiting(t *testing.T) {
	var out bytes.Buffer
	r := &scriptedRunner{forkReturns: 0, execReturn: 0}
	Run(&out, feeder([]byte("hello\nexit\n")), r)

	if len(r.execCalls) != 1 || r.execCalls[0] != "hello" {
		t.Fatalf("expected Exec(\"hello\"), got %v", r.execCalls)
	}
	if len(r.waitCalls) != 0 {
		t.Fatal("expected the child path not to call Waitpid")
	}
}

func TestBackspaceErasesLastCharacter(t *testing.T) {
	var out bytes.Buffer
	r := &scriptedRunner{forkReturns: 1}
	// "hellp" + backspace + "o" + LF == "hello"
	Run(&out, feeder([]byte("hellp\bo\nexit\n")), r)

	if len(r.forkCalls) != 1 {
		t.Fatalf("expected exactly one command to run after the correction, got %d forks", len(r.forkCalls))
	}
}

func TestExitCommandCallsRunnerExit(t *testing.T) {
	var out bytes.Buffer
	r := &scriptedRunner{}
	Run(&out, feeder([]byte("exit\n")), r)

	if !r.exited || r.exitCode != 0 {
		t.Fatalf("expected Exit(0), got exited=%v code=%d", r.exited, r.exitCode)
	}
}
