// Package sandbox is the typed client for the remote sandbox executor. The
// wire protocol is the go-judge REST surface: POST /run executes a batch of
// commands, DELETE /file/<id> releases a cached artifact.
package sandbox

// Cmd is one command inside a /run request.
type Cmd struct {
	Args          []string           `json:"args"`
	Env           []string           `json:"env,omitempty"`
	Files         []*CmdFile         `json:"files,omitempty"`
	CPULimit      int64              `json:"cpuLimit,omitempty"`
	ClockLimit    int64              `json:"clockLimit,omitempty"`
	MemoryLimit   int64              `json:"memoryLimit,omitempty"`
	ProcLimit     int64              `json:"procLimit,omitempty"`
	CopyIn        map[string]CmdFile `json:"copyIn,omitempty"`
	CopyOut       []string           `json:"copyOut,omitempty"`
	CopyOutCached []string           `json:"copyOutCached,omitempty"`
}

// CmdFile selects exactly one source: inline content, a cached file id, or a
// named collector with a size cap (for stdout/stderr).
type CmdFile struct {
	Src     *string `json:"src,omitempty"`
	Content *string `json:"content,omitempty"`
	FileID  *string `json:"fileId,omitempty"`
	Name    *string `json:"name,omitempty"`
	Max     *int64  `json:"max,omitempty"`
}

// MemoryFile builds an inline content file.
func MemoryFile(content string) CmdFile {
	return CmdFile{Content: &content}
}

// CachedFile references a file already in the sandbox cache.
func CachedFile(id string) CmdFile {
	return CmdFile{FileID: &id}
}

// Collector builds a capped output collector for stdio slots.
func Collector(name string, max int64) *CmdFile {
	return &CmdFile{Name: &name, Max: &max}
}

// PipeIndex addresses one file descriptor of one command in a batch.
type PipeIndex struct {
	Index int `json:"index"`
	Fd    int `json:"fd"`
}

// PipeMap connects an output descriptor of one command to an input descriptor
// of another within the same dispatch.
type PipeMap struct {
	In  PipeIndex `json:"in"`
	Out PipeIndex `json:"out"`
}

type runRequest struct {
	Cmd         []Cmd     `json:"cmd"`
	PipeMapping []PipeMap `json:"pipeMapping,omitempty"`
}

// Result is the per-command outcome of a /run call. Time is CPU time in
// nanoseconds, Memory is in bytes.
type Result struct {
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	ExitStatus int               `json:"exitStatus"`
	Time       int64             `json:"time"`
	RunTime    int64             `json:"runTime"`
	Memory     int64             `json:"memory"`
	Files      map[string]string `json:"files"`
	FileIDs    map[string]string `json:"fileIds"`
}

// Sandbox run status values, as spelled on the wire.
const (
	StatusAccepted            = "Accepted"
	StatusMemoryLimitExceeded = "MemoryLimitExceeded"
	StatusTimeLimitExceeded   = "TimeLimitExceeded"
	StatusOutputLimitExceeded = "OutputLimitExceeded"
	StatusFileError           = "FileError"
	StatusNonzeroExitStatus   = "NonzeroExitStatus"
	StatusSignalled           = "Signalled"
	StatusInternalError       = "InternalError"
)
