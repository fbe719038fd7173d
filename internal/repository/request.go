// Package repository turns request targets into validated repository requests.
package repository

import (
	"net/url"
	"strings"
)

// RepoRequest is the parsed intent of a single HTTP request.
// A request without a file name addresses the whole repository.
type RepoRequest struct {
	RepoName string
	FileName string
}

// HasFile reports whether the request addresses a single artifact
func (r RepoRequest) HasFile() bool {
	return r.FileName != ""
}

// ParseRequestURI parses a raw request-target as received on the wire.
// Only origin-form targets ("/repo", "/repo/file.rpm") are accepted.
func ParseRequestURI(requestURI string) (RepoRequest, error) {
	if !strings.HasPrefix(requestURI, "/") || strings.HasPrefix(requestURI, "//") {
		return RepoRequest{}, BadRequest("invalid URI")
	}

	u, err := url.ParseRequestURI(requestURI)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Opaque != "" {
		return RepoRequest{}, BadRequest("invalid URI")
	}

	return ParsePath(u.Path)
}

// ParsePath maps an already decoded path to a RepoRequest.
// Empty, "." and ".." segments are dropped before counting. A NUL byte
// can never be part of a file name and rejects the whole path.
func ParsePath(p string) (RepoRequest, error) {
	if strings.IndexByte(p, 0) >= 0 {
		return RepoRequest{}, BadRequest("invalid path: name contains a NUL byte")
	}
	segments := nameSegments(p)

	switch len(segments) {
	case 1:
		return RepoRequest{RepoName: segments[0]}, nil
	case 2:
		return RepoRequest{RepoName: segments[0], FileName: segments[1]}, nil
	default:
		return RepoRequest{}, BadRequest("invalid path")
	}
}

func nameSegments(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if isPlainName(s) {
			out = append(out, s)
		}
	}
	return out
}

// isPlainName drops root markers, "." and "..". Any other segment is a
// legal name on the server, backslashes included.
func isPlainName(s string) bool {
	return s != "" && s != "." && s != ".."
}
