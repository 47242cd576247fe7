package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Job is the validated unit of work delivered by the upstream queue. The
// gateway does not parse webhook payloads or verify signatures; it trusts
// that the producer already did.
type Job struct {
	InstallationID int64  `json:"installation_id"`
	Repository     string `json:"repository"`
	IssueNumber    int    `json:"issue_number"`
	Command        string `json:"command"`
	ActingUser     string `json:"acting_user"`
}

// Validate rejects jobs that cannot name an installation, repository, and
// issue.
func (j Job) Validate() error {
	var errs []error
	if j.InstallationID <= 0 {
		errs = append(errs, errors.New("installation_id must be positive"))
	}
	if j.Repository == "" || !strings.Contains(j.Repository, "/") {
		errs = append(errs, fmt.Errorf("repository %q must be owner/name", j.Repository))
	}
	if j.IssueNumber <= 0 {
		errs = append(errs, errors.New("issue_number must be positive"))
	}
	if j.Command == "" {
		errs = append(errs, errors.New("command is empty"))
	}
	return errors.Join(errs...)
}

// HandleJob accepts a job, fetches the issue it targets, and returns the
// issue context as a response. Planning what tool calls follow is the
// agent's concern, not the gateway's.
func (g *Gateway) HandleJob(ctx context.Context, agent string, job Job) (Response, error) {
	if err := job.Validate(); err != nil {
		return Response{}, fmt.Errorf("gateway: invalid job: %w", err)
	}
	resp := g.Handle(ctx, Request{
		Tool: "get_issue",
		Arguments: map[string]any{
			"repo":   job.Repository,
			"number": job.IssueNumber,
		},
		Identity: Identity{
			InstallationID: job.InstallationID,
			ActingUser:     job.ActingUser,
			Agent:          agent,
		},
	})
	return resp, nil
}
