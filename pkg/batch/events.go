// Package batch runs the unattended download loop: one account at a time,
// one session per account, tasks in deterministic order, with CAPTCHA
// escalation to a human when automated solving keeps failing.
package batch

// Event is anything the runner reports to its consumer. Events arrive on a
// single channel in the order they happened; the channel closes after
// DoneEvent.
type Event interface {
	isEvent()
}

// ProgressEvent reports one completed download. Percent is global across the
// whole batch and never decreases.
type ProgressEvent struct {
	Account      string
	AccountIndex int
	AccountCount int
	TaskIndex    int
	TaskCount    int
	Task         Task
	Path         string
	Percent      float64
}

// TaskErrorEvent reports one failed download. The account's remaining tasks
// still run.
type TaskErrorEvent struct {
	Account string
	Task    Task
	Err     error
}

// LoginFailedEvent reports that an account could not be logged in and its
// tasks were skipped. Terminal is true for credential rejections, false when
// retries were exhausted or the operator declined to answer a CAPTCHA.
type LoginFailedEvent struct {
	Account  string
	Err      error
	Terminal bool
}

// CaptchaRequiredEvent asks the operator to read the CAPTCHA image and call
// AnswerCaptcha. The runner is suspended until an answer arrives or the run
// is cancelled.
type CaptchaRequiredEvent struct {
	Account string
	Image   []byte
}

// DoneEvent is the final event of a run.
type DoneEvent struct {
	Cancelled  bool
	Downloaded int
	Failed     int
}

func (ProgressEvent) isEvent()        {}
func (TaskErrorEvent) isEvent()       {}
func (LoginFailedEvent) isEvent()     {}
func (CaptchaRequiredEvent) isEvent() {}
func (DoneEvent) isEvent()            {}
