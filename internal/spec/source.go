package spec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/psantana5/wfrunner/internal/options"
)

const githubPrefix = "github:"

// GitHubRef is a parsed github:<owner>/<repo>[:<subdir>][@<ref>] toplevel
type GitHubRef struct {
	Owner  string
	Repo   string
	Subdir string
	Ref    string
}

// ParseGitHubRef parses a github: toplevel. The ref defaults to "main".
func ParseGitHubRef(toplevel string) (*GitHubRef, error) {
	if !strings.HasPrefix(toplevel, githubPrefix) {
		return nil, fmt.Errorf("not a github reference: %q", toplevel)
	}
	rest := strings.TrimPrefix(toplevel, githubPrefix)

	ref := "main"
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		ref = rest[i+1:]
		rest = rest[:i]
	}

	repoPart, subdir, _ := strings.Cut(rest, ":")
	owner, repo, ok := strings.Cut(repoPart, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") || ref == "" {
		return nil, fmt.Errorf("malformed github reference %q, expected github:<owner>/<repo>[:<subdir>][@<ref>]", toplevel)
	}

	return &GitHubRef{
		Owner:  owner,
		Repo:   repo,
		Subdir: strings.Trim(subdir, "/"),
		Ref:    ref,
	}, nil
}

// BaseURL returns the directory URL the spec is fetched relative to
func (g *GitHubRef) BaseURL(remoteBase string) string {
	parts := []string{strings.TrimRight(remoteBase, "/"), g.Owner, g.Repo, g.Ref}
	if g.Subdir != "" {
		parts = append(parts, g.Subdir)
	}
	return strings.Join(parts, "/") + "/"
}

// Locate returns where the spec named specPath lives for the given toplevel.
// A remote specPath is used as-is and the toplevel is ignored; a github:
// specPath names the file in its subdir part.
func Locate(toplevel, specPath, remoteBase string) (string, error) {
	switch {
	case strings.HasPrefix(specPath, githubPrefix):
		gh, err := ParseGitHubRef(specPath)
		if err != nil {
			return "", err
		}
		if gh.Subdir == "" {
			return "", fmt.Errorf("github spec reference %q does not name a file", specPath)
		}
		return strings.TrimSuffix(gh.BaseURL(remoteBase), "/"), nil
	case options.IsRemote(specPath):
		return specPath, nil
	case strings.HasPrefix(toplevel, githubPrefix):
		gh, err := ParseGitHubRef(toplevel)
		if err != nil {
			return "", err
		}
		return resolveURL(gh.BaseURL(remoteBase), specPath)
	case options.IsRemote(toplevel):
		base := toplevel
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		return resolveURL(base, specPath)
	case filepath.IsAbs(specPath):
		return filepath.Clean(specPath), nil
	default:
		return filepath.Join(toplevel, specPath), nil
	}
}

// relative resolves ref against the document at base
func relative(base, ref string) (string, error) {
	if isURL(base) {
		return resolveURL(base, ref)
	}
	if filepath.IsAbs(ref) {
		return filepath.Clean(ref), nil
	}
	return filepath.Join(filepath.Dir(base), ref), nil
}

func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// read fetches the raw bytes at location from disk or over HTTP
func (l *Loader) read(ctx context.Context, location string) ([]byte, error) {
	if !isURL(location) {
		data, err := os.ReadFile(location)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, &NotFoundError{Location: location, Err: err}
			}
			return nil, fmt.Errorf("failed to read %s: %w", location, err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{Location: location, Err: errors.New(resp.Status)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch %s: unexpected status %s", location, resp.Status)
	}

	return io.ReadAll(resp.Body)
}
