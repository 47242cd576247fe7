package dispatch

// Tool enumerates the named operations the dispatcher can execute. Adding a
// tool is an explicit enumeration change, not an open-ended lookup.
type Tool int

const (
	ToolUnknown Tool = iota
	ToolReadFile
	ToolListFiles
	ToolCreateBranch
	ToolUpdateFile
	ToolCreatePullRequest
	ToolGetIssue
	ToolPostComment
)

var toolNames = map[Tool]string{
	ToolReadFile:          "read_file",
	ToolListFiles:         "list_files",
	ToolCreateBranch:      "create_branch",
	ToolUpdateFile:        "update_file",
	ToolCreatePullRequest: "create_pull_request",
	ToolGetIssue:          "get_issue",
	ToolPostComment:       "post_comment",
}

var toolsByName = func() map[string]Tool {
	m := make(map[string]Tool, len(toolNames))
	for tool, name := range toolNames {
		m[name] = tool
	}
	return m
}()

// ParseTool resolves a tool name. Returns (ToolUnknown, false) for names
// outside the enumeration.
func ParseTool(name string) (Tool, bool) {
	tool, ok := toolsByName[name]
	return tool, ok
}

func (t Tool) String() string {
	if name, ok := toolNames[t]; ok {
		return name
	}
	return "unknown"
}

// Action is the permission-rule action string for this tool. It equals the
// tool name.
func (t Tool) Action() string {
	return t.String()
}

// Mutates reports whether the tool has side effects on the forge.
func (t Tool) Mutates() bool {
	switch t {
	case ToolCreateBranch, ToolUpdateFile, ToolCreatePullRequest, ToolPostComment:
		return true
	default:
		return false
	}
}
