// Package wire defines the JSON payloads exchanged over the bridge.
package wire

// Bridge call names (client -> backend, request/response).
const (
	// CallFolderPick opens the native folder dialog on the backend.
	CallFolderPick = "folder.pick"
	// CallProjectStart starts the run command for a project.
	CallProjectStart = "project.start"
	// CallProjectStop stops the process of a project.
	CallProjectStop = "project.stop"
	// CallProjectRunning lists the project paths the backend considers running.
	CallProjectRunning = "project.running"
)

// Push channel names (backend -> client, no request correlation).
const (
	// ChannelProjectStatus carries process lifecycle transitions.
	ChannelProjectStatus = "project.status"
)

// Process status values used by responses and push events.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// ErrorUserCancelled is the folder.pick error value for an aborted dialog.
const ErrorUserCancelled = "user_cancelled"

// ErrorResponse is the envelope a backend returns for a failed call.
type ErrorResponse struct {
	// Error is a human-readable failure description or a well-known code.
	Error string `json:"error"`
}

// FolderPickResponse is the success body of folder.pick.
type FolderPickResponse struct {
	// Folders lists the immediate child directory names of Path.
	Folders []string `json:"folders"`
	// Path is the absolute path of the selected workspace root.
	Path string `json:"path"`
}

// StartRequest is the body of project.start.
type StartRequest struct {
	// Path identifies the project.
	Path string `json:"path"`
	// Command selects a backend-defined run command by index.
	Command int `json:"command"`
}

// StopRequest is the body of project.stop.
type StopRequest struct {
	// Path identifies the project.
	Path string `json:"path"`
}

// StatusResponse is the success body of project.start and project.stop.
type StatusResponse struct {
	// Status is StatusRunning or StatusStopped.
	Status string `json:"status"`
}

// RunningResponse is the success body of project.running.
type RunningResponse struct {
	// Running lists the project paths with a live process.
	Running []string `json:"running"`
}

// StatusEvent is a project.status push.
type StatusEvent struct {
	// Status is StatusRunning or StatusStopped.
	Status string `json:"status"`
	// Path identifies the project.
	Path string `json:"path"`
}

// Valid reports whether the event names a path and a known status.
func (e StatusEvent) Valid() bool {
	if e.Path == "" {
		return false
	}
	return e.Status == StatusRunning || e.Status == StatusStopped
}
