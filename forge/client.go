package forge

import "context"

// Client is the set of hosting-API operations the dispatcher can execute.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Credentials: the token parameter is used for the one call and not held.
// - Errors: business outcomes map to the package sentinels (ErrNotFound,
//   ErrRefExists, ErrPullExists, ErrIsDirectory); other failures are
//   *APIError or transport errors.
type Client interface {
	// ReadFile fetches and decodes one file at a ref.
	ReadFile(ctx context.Context, token, repo, path, ref string) (*FileContent, error)

	// ListFiles lists the entries of a directory at a ref.
	ListFiles(ctx context.Context, token, repo, path, ref string) ([]DirEntry, error)

	// CreateBranch creates a branch pointing at fromRef's head commit.
	// Returns ErrRefExists if the branch already exists.
	CreateBranch(ctx context.Context, token, repo, branch, fromRef string) (*BranchRef, error)

	// UpdateFile creates or updates a file on a branch with a commit
	// message. The current blob SHA is re-fetched on every call, so a retry
	// never clobbers a concurrent write with a stale revision.
	UpdateFile(ctx context.Context, token, repo, path string, content []byte, message, branch string) (*CommitResult, error)

	// FindPullRequest returns the open pull request for head onto base, or
	// (nil, nil) when none exists.
	FindPullRequest(ctx context.Context, token, repo, head, base string) (*PullRequest, error)

	// CreatePullRequest opens a pull request. Returns ErrPullExists if an
	// open one already exists for the same head and base.
	CreatePullRequest(ctx context.Context, token, repo, title, body, head, base string) (*PullRequest, error)

	// GetIssue fetches issue metadata.
	GetIssue(ctx context.Context, token, repo string, number int) (*Issue, error)

	// PostComment adds a comment to an issue.
	PostComment(ctx context.Context, token, repo string, number int, body string) (*Comment, error)
}
