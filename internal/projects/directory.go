// Package projects derives the selectable projects of a workspace and owns
// the project list shown to the user.
package projects

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/fafa-a/runtty/internal/bridge"
	"github.com/fafa-a/runtty/internal/protocol/wire"
	"github.com/fafa-a/runtty/pkg/logger"
)

// Project is one immediate subdirectory of the workspace.
type Project struct {
	// Name is the directory name, unique within a listing.
	Name string
	// Path is the workspace root joined with Name; it identifies the project.
	Path string
}

// Reason classifies a DirectoryError.
type Reason int

const (
	// ReasonCancelled means the user aborted the folder dialog.
	ReasonCancelled Reason = iota
	// ReasonEmpty means the selection has no subdirectories.
	ReasonEmpty
	// ReasonBackend covers every other failure.
	ReasonBackend
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case ReasonCancelled:
		return "cancelled"
	case ReasonEmpty:
		return "empty"
	case ReasonBackend:
		return "backend"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// DirectoryError is returned by ListProjects.
type DirectoryError struct {
	Reason  Reason
	Message string
	Err     error
}

// Error implements error.
func (e *DirectoryError) Error() string {
	switch e.Reason {
	case ReasonCancelled:
		return "folder selection cancelled"
	case ReasonEmpty:
		return "No subdirectories found"
	default:
		return e.Message
	}
}

// Unwrap returns the underlying cause.
func (e *DirectoryError) Unwrap() error { return e.Err }

// IsCancelled reports whether err is a cancelled folder selection.
func IsCancelled(err error) bool {
	var de *DirectoryError
	return errors.As(err, &de) && de.Reason == ReasonCancelled
}

// MessageInvalidListing is shown when folder.pick answers with a body that is
// not a folder listing.
const MessageInvalidListing = "Invalid folder listing from backend"

// Directory lists projects through the bridge and holds the list currently
// on display together with the workspace error message.
type Directory struct {
	transport bridge.Transport

	mu       sync.RWMutex
	root     string
	projects []Project
	message  string
}

// NewDirectory creates a Directory with an empty listing.
func NewDirectory(t bridge.Transport) *Directory {
	return &Directory{transport: t}
}

// ListProjects asks the backend for a workspace and derives its projects.
// It does not touch the displayed state.
func (d *Directory) ListProjects(ctx context.Context) ([]Project, error) {
	_, list, err := d.pick(ctx)
	return list, err
}

func (d *Directory) pick(ctx context.Context) (string, []Project, error) {
	var resp wire.FolderPickResponse
	err := bridge.CallJSON(ctx, d.transport, wire.CallFolderPick, nil, &resp)
	if err != nil {
		if msg, ok := bridge.RemoteMessage(err); ok {
			if msg == wire.ErrorUserCancelled {
				return "", nil, &DirectoryError{Reason: ReasonCancelled, Err: err}
			}
			return "", nil, &DirectoryError{Reason: ReasonBackend, Message: msg, Err: err}
		}
		if bridge.IsUnavailable(err) {
			return "", nil, &DirectoryError{
				Reason:  ReasonBackend,
				Message: fmt.Sprintf("Backend unavailable: %v", err),
				Err:     err,
			}
		}
		return "", nil, &DirectoryError{Reason: ReasonBackend, Message: MessageInvalidListing, Err: err}
	}

	list := FromListing(resp.Path, resp.Folders)
	if len(list) == 0 {
		return resp.Path, nil, &DirectoryError{Reason: ReasonEmpty}
	}
	return resp.Path, list, nil
}

// FromListing turns a root and its child directory names into a sorted,
// de-duplicated project list. Names that are not a single path element are
// dropped.
func FromListing(root string, folders []string) []Project {
	seen := make(map[string]struct{}, len(folders))
	names := make([]string, 0, len(folders))
	for _, name := range folders {
		if !validName(name) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Project, 0, len(names))
	for _, name := range names {
		out = append(out, Project{Name: name, Path: joinPath(root, name)})
	}
	return out
}

// Open lists projects and updates the displayed state: a cancelled selection
// changes nothing, other failures clear the list and set the message, and a
// successful listing replaces the list and clears the message.
func (d *Directory) Open(ctx context.Context) error {
	root, list, err := d.pick(ctx)

	if IsCancelled(err) {
		logger.Debugf("projects: folder selection cancelled")
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err != nil {
		logger.Infof("projects: %v", err)
		d.root = root
		d.projects = nil
		d.message = err.Error()
		return err
	}

	logger.Infof("projects: opened %s with %d projects", root, len(list))
	d.root = root
	d.projects = list
	d.message = ""
	return nil
}

// Projects returns a copy of the displayed project list.
func (d *Directory) Projects() []Project {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Project, len(d.projects))
	copy(out, d.projects)
	return out
}

// Root returns the displayed workspace root.
func (d *Directory) Root() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.root
}

// Error returns the workspace error message, empty when there is none.
func (d *Directory) Error() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.message
}

// Lookup finds a displayed project by name or path.
func (d *Directory) Lookup(nameOrPath string) (Project, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.projects {
		if p.Name == nameOrPath || p.Path == nameOrPath {
			return p, true
		}
	}
	return Project{}, false
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// joinPath joins the backend root and a child name. Backends report paths in
// their own OS form, so the separator already used by root is kept.
func joinPath(root, name string) string {
	if root == "" {
		return name
	}
	if strings.Contains(root, `\`) && !strings.Contains(root, "/") {
		return strings.TrimRight(root, `\`) + `\` + name
	}
	return path.Join(root, name)
}
