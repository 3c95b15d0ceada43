package lvmcmd

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/faults"
)

// The lvm shell prompt embeds the previous command's exit code, e.g.
// "[0] lvm> ". Older builds print a bare "lvm> "; then the exit code is
// inferred from stderr.
var promptRe = regexp.MustCompile(`(?s).*(\[(-?[0-9]+)\] lvm> )$`)

const shellPrompt = "lvm> "

// reportFD is the file descriptor lvm writes report output to inside the
// shell. The child is started with the report pipe dup'ed onto it.
const reportFD = 32

// shellProxy drives one long-lived `lvm` shell. Commands are written to
// its stdin and responses read back framed by the prompt; structured
// output arrives on a dedicated report descriptor.
type shellProxy struct {
	rt  *config.Runtime
	log zerolog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout chan []byte
	stderr chan []byte
	report chan []byte

	// carry-over bytes received after a prompt, owned by the caller
	// goroutine (the executor serializes shell use).
	stdoutBuf string
}

func streamReader(r io.Reader) chan []byte {
	ch := make(chan []byte, 16)
	go func() {
		defer close(ch)
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				ch <- chunk
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}

// newShellProxy starts the shell and waits for the first prompt.
func newShellProxy(rt *config.Runtime, logger zerolog.Logger) (*shellProxy, error) {
	reportR, reportW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create report pipe: %w", err)
	}

	// ExtraFiles places the write end at fd 3 in the child; the shell
	// moves it to the descriptor lvm reports on.
	shellCmd := fmt.Sprintf("exec %q %d>&3", rt.Cfg.LvmBinary, reportFD)
	cmd := exec.Command("/bin/sh", "-c", shellCmd)
	cmd.ExtraFiles = []*os.File{reportW}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		reportR.Close()
		reportW.Close()
		return nil, fmt.Errorf("failed to open shell stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		reportR.Close()
		reportW.Close()
		return nil, fmt.Errorf("failed to open shell stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		reportR.Close()
		reportW.Close()
		return nil, fmt.Errorf("failed to open shell stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		reportR.Close()
		reportW.Close()
		return nil, fmt.Errorf("failed to start lvm shell: %w", err)
	}
	// Parent side of the write end is the child's now.
	reportW.Close()

	p := &shellProxy{
		rt:     rt,
		log:    logger,
		cmd:    cmd,
		stdin:  stdin,
		stdout: streamReader(stdout),
		stderr: streamReader(stderr),
		report: streamReader(reportR),
	}

	if _, _, err := p.readUntilPrompt(30 * time.Second); err != nil {
		p.exit()
		return nil, fmt.Errorf("lvm shell did not produce a prompt: %w", err)
	}
	return p, nil
}

// readUntilPrompt accumulates stdout until the prompt appears. It returns
// the text before the prompt and the exit code embedded in it (-1 when
// the prompt carried none).
func (p *shellProxy) readUntilPrompt(timeout time.Duration) (string, int, error) {
	text := p.stdoutBuf
	p.stdoutBuf = ""
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for !strings.HasSuffix(text, shellPrompt) {
		select {
		case chunk, ok := <-p.stdout:
			if !ok {
				return "", 0, faults.NewToolBug("lvm shell closed stdout while awaiting prompt")
			}
			text += string(chunk)
		case <-deadline.C:
			return "", 0, faults.NewToolBug("lvm shell prompt not seen within %s", timeout)
		case <-p.rt.Done():
			return "", 0, faults.ErrShutdown
		}
	}

	if m := promptRe.FindStringSubmatch(text); m != nil {
		ec, _ := strconv.Atoi(m[2])
		return text[:len(text)-len(m[1])], ec, nil
	}
	return strings.TrimSuffix(text, shellPrompt), -1, nil
}

// drain collects whatever is buffered on a stream without blocking past
// the settle window.
func drain(ch chan []byte, settle time.Duration) string {
	var sb strings.Builder
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return sb.String()
			}
			sb.Write(chunk)
		case <-time.After(settle):
			return sb.String()
		}
	}
}

func quoteArg(arg string) string {
	if strings.ContainsAny(arg, " \t") {
		return `"` + arg + `"`
	}
	return arg
}

// call runs one command in the shell. The caller (the executor) holds the
// command lock, so at most one command is ever in flight.
func (p *shellProxy) call(args []string) (Response, error) {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = quoteArg(a)
	}
	cmdLine := strings.Join(quoted, " ") + "\n"

	if _, err := p.stdin.Write([]byte(cmdLine)); err != nil {
		return Response{}, faults.NewTransient("failed to write to lvm shell: %s", err)
	}

	stdoutText, promptEC, err := p.readUntilPrompt(5 * time.Minute)
	if err != nil {
		return Response{}, err
	}

	// The report descriptor carries the structured output; stderr is
	// complete once the prompt has been printed.
	reportText := drain(p.report, 100*time.Millisecond)
	stderrText := drain(p.stderr, 10*time.Millisecond)

	ec := promptEC
	if ec == -1 {
		// Without an exit code in the prompt we can only guess from
		// stderr; lvm writes there even on success, so this path is for
		// old shells only.
		if stderrText != "" {
			ec = 1
		} else {
			ec = 0
		}
	}

	resp := Response{ExitCode: ec, Stdout: stdoutText, Stderr: stderrText}
	if reportText != "" {
		root, ok := parseReport(reportText)
		if !ok {
			return Response{}, faults.NewToolBug(
				"lvm shell report output is not valid JSON: %.200s", reportText)
		}
		resp.Stdout = reportText
		resp.Report = root
		if msg := errorMessage(root); msg != "" {
			resp.Stderr += msg
		}
	}
	return resp, nil
}

// exit tears the shell down.
func (p *shellProxy) exit() {
	_, _ = p.stdin.Write([]byte("exit\n"))
	_ = p.stdin.Close()

	done := make(chan struct{})
	go func() {
		_ = p.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = p.cmd.Process.Kill()
		<-done
	}
}
