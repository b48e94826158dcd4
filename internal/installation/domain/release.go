package domain

import (
	"regexp"
	"strings"
)

// ReleaseAsset is a downloadable file attached to a release.
type ReleaseAsset struct {
	Name        string `json:"name" yaml:"name" toml:"name"`
	DownloadURL string `json:"browser_download_url" yaml:"download_url" toml:"download_url"`
}

// GitHubRelease is a tagged release of a repository.
type GitHubRelease struct {
	Tag    string         `json:"tag_name" yaml:"tag" toml:"tag"`
	Assets []ReleaseAsset `json:"assets" yaml:"assets" toml:"assets"`
}

// Asset returns the asset with the given name.
func (r GitHubRelease) Asset(name string) (ReleaseAsset, bool) {
	for _, a := range r.Assets {
		if a.Name == name {
			return a, true
		}
	}
	return ReleaseAsset{}, false
}

// ReleaseTags returns the tags of releases in order.
func ReleaseTags(releases []GitHubRelease) []string {
	tags := make([]string, 0, len(releases))
	for _, r := range releases {
		tags = append(tags, r.Tag)
	}
	return tags
}

// FindRelease returns the release with the given tag.
func FindRelease(releases []GitHubRelease, tag string) (GitHubRelease, bool) {
	for _, r := range releases {
		if r.Tag == tag {
			return r, true
		}
	}
	return GitHubRelease{}, false
}

// RepoRef names a GitHub repository.
type RepoRef struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// String returns owner/repo.
func (r RepoRef) String() string {
	return r.Owner + "/" + r.Repo
}

// URL returns the repository's web address.
func (r RepoRef) URL() string {
	return RepoURL(r.String())
}

var githubURLPattern = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)/?$`)

// ParseGitHubURL extracts owner and repository from a repository URL.
// Only https://github.com/<owner>/<repo> with an optional trailing slash is
// accepted.
func ParseGitHubURL(raw string) (RepoRef, bool) {
	m := githubURLPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return RepoRef{}, false
	}
	return RepoRef{Owner: m[1], Repo: m[2]}, true
}

// ParseRepoRef parses "owner/repo".
func ParseRepoRef(ownerRepo string) (RepoRef, bool) {
	owner, repo, ok := strings.Cut(strings.Trim(ownerRepo, "/"), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return RepoRef{}, false
	}
	return RepoRef{Owner: owner, Repo: repo}, true
}

// RepoURL converts "owner/repo" to its GitHub address. Empty input stays empty.
func RepoURL(ownerRepo string) string {
	if ownerRepo == "" {
		return ""
	}
	return "https://github.com/" + ownerRepo
}
