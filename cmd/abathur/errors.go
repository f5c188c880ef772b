package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// FatalError writes an error message to stderr and exits with code 1.
func FatalError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// FatalErrorRespectJSON writes an error message and exits with code 1. If
// --json was requested, the error is emitted as structured JSON on
// stdout instead of plain text on stderr.
func FatalErrorRespectJSON(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if jsonOutput {
		data, _ := json.MarshalIndent(map[string]string{"error": msg}, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}

// FatalErrorWithHint writes an error message plus an actionable next step
// to stderr and exits with code 1.
func FatalErrorWithHint(message, hint string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	os.Exit(1)
}

// WarnError writes a warning to stderr without exiting, for auxiliary
// failures that shouldn't abort the command.
func WarnError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

// CheckReadonly exits with an error if --readonly was set. Write commands
// (submit, update, cancel, retry, prune) call this first so agent
// sandboxes can run with a read-only view of the queue.
func CheckReadonly(operation string) {
	if readonlyMode {
		FatalError("operation %q is not allowed with --readonly", operation)
	}
}
