package options

import (
	"path/filepath"
	"strings"
)

// RemotePrefixes mark a toplevel that points at a remote spec source
var RemotePrefixes = []string{"github:", "https://", "http://"}

// IsRemote returns true if ref carries a remote-reference prefix
func IsRemote(ref string) bool {
	for _, prefix := range RemotePrefixes {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return false
}

// Resolved holds operational options with every path made absolute under
// the workspace root
type Resolved struct {
	WorkspaceRoot string                 `json:"workspace_root"`
	Toplevel      string                 `json:"toplevel"`
	InitDir       string                 `json:"initdir"`
	InitFiles     []string               `json:"initfiles"`
	AcceptMetadir bool                   `json:"accept_metadir"`
	Passthrough   map[string]interface{} `json:"passthrough,omitempty"`
}

// Resolve maps workspace-relative option paths to absolute paths under
// workspaceRoot. It only composes strings and never touches the filesystem.
func Resolve(workspaceRoot string, opts *OperationalOptions) *Resolved {
	if opts == nil {
		opts = &OperationalOptions{}
	}

	toplevel := opts.Toplevel
	if !IsRemote(toplevel) {
		toplevel = JoinWorkspace(workspaceRoot, toplevel)
	}

	initFiles := make([]string, 0, len(opts.InitFiles))
	for _, f := range opts.InitFiles {
		initFiles = append(initFiles, JoinWorkspace(workspaceRoot, f))
	}

	passthrough := make(map[string]interface{}, len(opts.Passthrough))
	for k, v := range opts.Passthrough {
		passthrough[k] = v
	}

	return &Resolved{
		WorkspaceRoot: workspaceRoot,
		Toplevel:      toplevel,
		InitDir:       JoinWorkspace(workspaceRoot, opts.InitDir),
		InitFiles:     initFiles,
		AcceptMetadir: opts.AcceptMetadir,
		Passthrough:   passthrough,
	}
}

// Options converts a Resolved set back to its typed form, so resolving it
// again is a no-op
func (r *Resolved) Options() *OperationalOptions {
	return &OperationalOptions{
		Toplevel:      r.Toplevel,
		InitDir:       r.InitDir,
		InitFiles:     append([]string(nil), r.InitFiles...),
		AcceptMetadir: r.AcceptMetadir,
		Passthrough:   r.Passthrough,
	}
}

// JoinWorkspace places p under root. Absolute paths already inside root are
// returned cleaned; anything else, including ".." segments and absolute
// paths outside root, is re-rooted so the result never leaves root.
func JoinWorkspace(root, p string) string {
	root = filepath.Clean(root)
	if filepath.IsAbs(p) && within(root, filepath.Clean(p)) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, filepath.Clean(string(filepath.Separator)+p))
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
