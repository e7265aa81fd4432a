package issue

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Ref identifies one issue (or pull request) as a unit of work.
type Ref struct {
	Owner  string
	Repo   string
	Number int
}

var (
	shorthandRe = regexp.MustCompile(`^([^/\s#]+)/([^/\s#]+)#(\d+)$`)
	issueURLRe  = regexp.MustCompile(`^https?://github\.com/([^/\s]+)/([^/\s]+)/(?:issues|pull)/(\d+)(?:[/?#].*)?$`)

	repoHTTPSRe = regexp.MustCompile(`^https?://github\.com/([^/\s]+)/([^/\s]+?)(?:\.git)?/?$`)
	repoSSHRe   = regexp.MustCompile(`^git@github\.com:([^/\s]+)/([^/\s]+?)(?:\.git)?$`)
)

// ParseRef parses either the owner/repo#number shorthand or a full
// issue/pull URL. Both forms normalize to the same Ref.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	for _, re := range []*regexp.Regexp{shorthandRe, issueURLRe} {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[3])
		if err != nil {
			return Ref{}, fmt.Errorf("parse issue number %q: %w", m[3], err)
		}
		return Ref{Owner: m[1], Repo: m[2], Number: n}, nil
	}
	return Ref{}, fmt.Errorf("invalid issue reference %q (want owner/repo#number or an issue URL)", s)
}

// ParseRepoURL extracts owner and repo from an HTTPS or SSH remote URL.
func ParseRepoURL(url string) (owner, repo string, err error) {
	url = strings.TrimSpace(url)
	for _, re := range []*regexp.Regexp{repoHTTPSRe, repoSSHRe} {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1], m[2], nil
		}
	}
	return "", "", fmt.Errorf("invalid GitHub repository URL %q", url)
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// RepoURL returns the HTTPS clone URL for the referenced repository.
func (r Ref) RepoURL() string {
	return fmt.Sprintf("https://github.com/%s/%s.git", r.Owner, r.Repo)
}

// IssueURL returns the web URL of the referenced issue.
func (r Ref) IssueURL() string {
	return fmt.Sprintf("https://github.com/%s/%s/issues/%d", r.Owner, r.Repo, r.Number)
}
