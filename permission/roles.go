package permission

// Predefined agent roles and their action sets. These mirror the common
// grant tiers for code-forge agents; custom rule files are free to ignore
// them.
const (
	RoleReader      = "reader"
	RoleContributor = "contributor"
	RoleMaintainer  = "maintainer"
)

var roleActions = map[string][]string{
	RoleReader: {
		"read_file",
		"list_files",
		"get_issue",
	},
	RoleContributor: {
		"read_file",
		"list_files",
		"get_issue",
		"create_branch",
		"update_file",
		"create_pull_request",
	},
	RoleMaintainer: {
		"read_file",
		"list_files",
		"get_issue",
		"create_branch",
		"update_file",
		"create_pull_request",
		"post_comment",
	},
}

// RoleActions returns the action set for a predefined role, or nil for an
// unknown role.
func RoleActions(role string) []string {
	actions, ok := roleActions[role]
	if !ok {
		return nil
	}
	out := make([]string, len(actions))
	copy(out, actions)
	return out
}

// RoleRule builds a rule granting a predefined role's actions to subject
// over resource. Returns a zero Rule for an unknown role.
func RoleRule(role, subject, resource string) Rule {
	actions := RoleActions(role)
	if actions == nil {
		return Rule{}
	}
	return Rule{Subject: subject, Resource: resource, Actions: actions}
}
