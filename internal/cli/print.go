package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fafa-a/runtty/internal/projects"
	"github.com/fafa-a/runtty/internal/runstate"
)

func printProjects(w io.Writer, list []projects.Project, running runstate.Snapshot) {
	nameW, pathW := 7, 4
	for _, p := range list {
		nameW = max(nameW, len(p.Name))
		pathW = max(pathW, len(p.Path))
	}
	stateW := 7

	sep := fmt.Sprintf("+-%s-+-%s-+-%s-+\n", strings.Repeat("-", nameW), strings.Repeat("-", stateW), strings.Repeat("-", pathW))
	fmt.Fprint(w, sep)
	fmt.Fprintf(w, "| %s | %s | %s |\n", pad("PROJECT", nameW), pad("STATE", stateW), pad("PATH", pathW))
	fmt.Fprint(w, sep)
	for _, p := range list {
		fmt.Fprintf(w, "| %s | %s | %s |\n", pad(p.Name, nameW), pad(stateName(running.Has(p.Path)), stateW), pad(p.Path, pathW))
	}
	fmt.Fprint(w, sep)
}

func printRunning(w io.Writer, running runstate.Snapshot) {
	if running.Len() == 0 {
		fmt.Fprintln(w, "No running projects.")
		return
	}
	for _, p := range running.Paths() {
		fmt.Fprintf(w, "running  %s\n", p)
	}
}

func printChanges(w io.Writer, prev, cur runstate.Snapshot) {
	for _, p := range cur.Paths() {
		if !prev.Has(p) {
			fmt.Fprintf(w, "started  %s\n", p)
		}
	}
	for _, p := range prev.Paths() {
		if !cur.Has(p) {
			fmt.Fprintf(w, "stopped  %s\n", p)
		}
	}
}

func stateName(running bool) string {
	if running {
		return "Running"
	}
	return "Stopped"
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}
