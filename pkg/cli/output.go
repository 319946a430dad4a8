// Package cli holds terminal output helpers shared across minotaur's
// command-line subcommands.
package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/minotaur-dev/minotaur/pkg/types"
)

var (
	statusOK   = color.New(color.FgGreen)
	statusWarn = color.New(color.FgYellow)
	statusErr  = color.New(color.FgRed)
	dim        = color.New(color.Faint)
)

// PrintSessionStatus prints a single colored status line for a session.
func PrintSessionStatus(s types.Session) {
	switch s.Status {
	case types.SessionRunning:
		statusOK.Printf("● %s", s.Name)
	case types.SessionStarting:
		statusWarn.Printf("◐ %s", s.Name)
	case types.SessionStopped:
		dim.Printf("○ %s", s.Name)
	case types.SessionFailed:
		statusErr.Printf("✗ %s", s.Name)
	default:
		fmt.Printf("  %s", s.Name)
	}
	fmt.Printf("  %s  %s\n", s.Status, s.ProjectDir)
}

// PrintSessionTable renders a table of sessions, newest first.
func PrintSessionTable(sessions []types.Session) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tPROJECT\tCREATED\tCONTAINER")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.Name, s.Status, s.ProjectDir, s.CreatedAt.Format(time.RFC3339), shortID(s.ContainerID))
	}
	w.Flush()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// Warnf prints a yellow warning line to stderr.
func Warnf(format string, args ...interface{}) {
	statusWarn.Fprintf(os.Stderr, format+"\n", args...)
}

// Errorf prints a red error line to stderr.
func Errorf(format string, args ...interface{}) {
	statusErr.Fprintf(os.Stderr, format+"\n", args...)
}

// Successf prints a green success line to stdout.
func Successf(format string, args ...interface{}) {
	statusOK.Printf(format+"\n", args...)
}
