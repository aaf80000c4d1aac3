package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cfmmcdl/pkg/batch"
)

const (
	progressBar   = "█"
	progressEmpty = "░"
	barWidth      = 30
)

// Console consumes a batch event stream and renders it for an operator
// sitting at a terminal: a progress bar for downloads, red lines for
// failures, and an interactive prompt when a CAPTCHA needs a human.
type Console struct {
	out   io.Writer
	in    *bufio.Reader
	quiet bool
}

// NewConsole renders to stdout and reads CAPTCHA answers from stdin. Quiet
// mode suppresses everything except failures and the final summary.
func NewConsole(quiet bool) *Console {
	return &Console{out: os.Stdout, in: bufio.NewReader(os.Stdin), quiet: quiet}
}

// Consume drains the event stream until it closes. answer relays the
// operator's CAPTCHA input back to the runner. Returns the final event.
func (c *Console) Consume(events <-chan batch.Event, answer func(string) bool) batch.DoneEvent {
	var done batch.DoneEvent
	for e := range events {
		switch ev := e.(type) {
		case batch.ProgressEvent:
			c.renderProgress(ev)
		case batch.TaskErrorEvent:
			c.endLine()
			fmt.Fprintln(c.out, Red(fmt.Sprintf("[FAILED] %s %s %s %s: %v",
				ev.Account, ev.Task.Kind.Label(), ev.Task.QueryType.Label(), ev.Task.PeriodLabel(), ev.Err)))
		case batch.LoginFailedEvent:
			c.endLine()
			label := "[LOGIN FAILED]"
			if ev.Terminal {
				label = "[BAD CREDENTIALS]"
			}
			fmt.Fprintln(c.out, Red(fmt.Sprintf("%s %s: %v", label, ev.Account, ev.Err)))
		case batch.CaptchaRequiredEvent:
			c.endLine()
			text, err := c.PromptCaptcha(ev.Account, ev.Image)
			if err != nil {
				PrintError("failed to read captcha answer", err)
				continue
			}
			if !answer(text) {
				PrintWarning("runner is no longer waiting for an answer")
			}
		case batch.DoneEvent:
			done = ev
			c.endLine()
			c.renderSummary(ev)
		}
	}
	return done
}

func (c *Console) renderProgress(ev batch.ProgressEvent) {
	if c.quiet {
		return
	}
	filled := int(ev.Percent / 100 * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat(progressBar, filled) + strings.Repeat(progressEmpty, barWidth-filled)
	fmt.Fprintf(c.out, "\r[%s] %5.1f%% %s %s %s",
		bar, ev.Percent, ev.Account, ev.Task.QueryType.Label(), ev.Task.PeriodLabel())
}

// PromptCaptcha writes the CAPTCHA image to a temp file, tells the operator
// where it is, and blocks on stdin for the answer. label distinguishes
// concurrent temp files, typically the account number.
func (c *Console) PromptCaptcha(label string, image []byte) (string, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("cfmmcdl-captcha-%s.jpg", label))
	if err := os.WriteFile(path, image, 0o600); err != nil {
		return "", fmt.Errorf("failed to save captcha image: %w", err)
	}

	PrintHighlight(fmt.Sprintf("[CAPTCHA] %s needs a human", label))
	PrintInfo("image saved to", path)
	fmt.Fprint(c.out, Cyan("enter captcha text: "))

	line, err := c.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *Console) renderSummary(ev batch.DoneEvent) {
	if ev.Cancelled {
		PrintWarning(fmt.Sprintf("cancelled: %d downloaded, %d failed", ev.Downloaded, ev.Failed))
		return
	}
	if ev.Failed > 0 {
		PrintWarning(fmt.Sprintf("finished: %d downloaded, %d failed", ev.Downloaded, ev.Failed))
		return
	}
	PrintSuccess(fmt.Sprintf("finished: %d downloaded", ev.Downloaded))
}

// endLine terminates an in-place progress line before printing a full one.
func (c *Console) endLine() {
	if !c.quiet {
		fmt.Fprintln(c.out)
	}
}
