package auth

import (
	"fmt"
	"io"
)

// Notifier reports authentication progress to the user.
type Notifier interface {
	ShowCode(code DeviceCode)
	Authenticated()
	Expired()
	Aborted(reason error)
}

// ConsoleNotifier prints progress as plain lines, typically to stderr.
type ConsoleNotifier struct {
	w io.Writer
}

// NewConsoleNotifier creates a ConsoleNotifier writing to w.
func NewConsoleNotifier(w io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{w: w}
}

func (n *ConsoleNotifier) ShowCode(code DeviceCode) {
	fmt.Fprintf(n.w, "Starting Trakt device authorization...\n")
	fmt.Fprintf(n.w, "Visit:      %s\n", code.VerificationURL)
	fmt.Fprintf(n.w, "Enter code: %s\n", code.UserCode)
	fmt.Fprintf(n.w, "Waiting for authorization...\n")
}

func (n *ConsoleNotifier) Authenticated() {
	fmt.Fprintf(n.w, "Authenticated.\n")
}

func (n *ConsoleNotifier) Expired() {
	fmt.Fprintf(n.w, "The code expired before it was entered. Run again to get a new one.\n")
}

func (n *ConsoleNotifier) Aborted(reason error) {
	fmt.Fprintf(n.w, "Authentication aborted: %v\n", reason)
}

type nopNotifier struct{}

func (nopNotifier) ShowCode(DeviceCode) {}
func (nopNotifier) Authenticated()      {}
func (nopNotifier) Expired()            {}
func (nopNotifier) Aborted(error)       {}
