package forge

import "time"

// FileContent is the decoded content of one file at a ref.
type FileContent struct {
	Path    string
	Ref     string
	SHA     string
	Content []byte
}

// DirEntry is one entry of a directory listing.
type DirEntry struct {
	Name string
	Path string
	Type string // "file" or "dir"
	Size int64
	SHA  string
}

// BranchRef is a created branch reference.
type BranchRef struct {
	Name string
	SHA  string
}

// CommitResult is the outcome of a file create/update.
type CommitResult struct {
	Path      string
	Branch    string
	CommitSHA string
	Created   bool // true when the file did not exist before
}

// PullRequest is an open or created pull request.
type PullRequest struct {
	Number int
	URL    string
	Title  string
	State  string
	Head   string
	Base   string
}

// Issue is issue metadata.
type Issue struct {
	Number    int
	Title     string
	Body      string
	State     string
	Labels    []string
	Author    string
	CreatedAt time.Time
	URL       string
}

// Comment is a created issue comment.
type Comment struct {
	ID  int64
	URL string
}
