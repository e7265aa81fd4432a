package issue

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// CodeReference is a code block lifted out of an issue body, with the
// file/line location mentioned next to it when one was found.
type CodeReference struct {
	Language  string
	Content   string
	Path      string
	StartLine int
	EndLine   int
}

// Problem is the normalized, agent-consumable description of an issue.
// Built once per processing attempt and passed around by value.
type Problem struct {
	Ref             Ref
	Title           string
	Body            string
	Labels          []string
	CodeReferences  []CodeReference
	SuccessCriteria []string
	Context         map[string]string
}

var (
	codeBlockRe = regexp.MustCompile("(?s)```(\\w+)?\\n(.*?)\\n```")
	fileRefRe   = regexp.MustCompile("(?:in|at|file)[:\\s]+`?([^`\\n]+?)`?:(?:lines?\\s+)?(\\d+)(?:-(\\d+))?")
)

var successMarkers = []string{
	"success criteria",
	"definition of done",
	"acceptance criteria",
	"expected outcome",
	"expected result",
}

var contextMarkers = []string{"additional context", "more details", "to clarify"}

// IssueContent is the minimal slice of issue data the builder consumes.
type IssueContent struct {
	Title  string
	Body   string
	Labels []string
}

// BuildProblem converts a raw issue plus its comments into a Problem.
func BuildProblem(ref Ref, iss IssueContent, comments []string) Problem {
	body := iss.Body
	return Problem{
		Ref:             ref,
		Title:           iss.Title,
		Body:            body,
		Labels:          iss.Labels,
		CodeReferences:  extractCodeBlocks(body),
		SuccessCriteria: extractSuccessCriteria(body),
		Context:         extractContext(body, comments),
	}
}

func extractCodeBlocks(content string) []CodeReference {
	var refs []CodeReference
	for _, loc := range codeBlockRe.FindAllStringSubmatchIndex(content, -1) {
		lang := submatch(content, loc, 1)
		if lang == "" {
			lang = "text"
		}
		ref := CodeReference{
			Language: lang,
			Content:  strings.TrimSpace(submatch(content, loc, 2)),
		}

		// Look for a file reference in the last few lines before the block.
		before := strings.Split(content[:loc[0]], "\n")
		start := len(before) - 3
		if start < 0 {
			start = 0
		}
		for _, line := range before[start:] {
			m := fileRefRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			ref.Path = strings.TrimSpace(m[1])
			ref.StartLine, _ = strconv.Atoi(m[2])
			if m[3] != "" {
				ref.EndLine, _ = strconv.Atoi(m[3])
			}
			break
		}

		refs = append(refs, ref)
	}
	return refs
}

func extractSuccessCriteria(content string) []string {
	var criteria []string
	lines := strings.Split(strings.ToLower(content), "\n")

	for i, line := range lines {
		if !containsAny(line, successMarkers) {
			continue
		}
		for _, next := range lines[i+1:] {
			next = strings.TrimSpace(next)
			if next == "" {
				continue
			}
			if strings.HasPrefix(next, "- ") || strings.HasPrefix(next, "* ") || strings.HasPrefix(next, "• ") {
				criteria = append(criteria, strings.TrimSpace(next[2:]))
			} else if len(criteria) > 0 {
				break
			}
		}
		break
	}
	return criteria
}

func extractContext(content string, comments []string) map[string]string {
	ctx := make(map[string]string)

	for _, section := range strings.Split(content, "\n\n") {
		lower := strings.ToLower(section)
		for _, prefix := range []string{"context:", "background:", "current behavior:"} {
			if !strings.HasPrefix(lower, prefix) {
				continue
			}
			key := strings.TrimSuffix(prefix, ":")
			ctx[key] = strings.TrimSpace(section[len(prefix):])
		}
	}

	for _, body := range comments {
		if containsAny(strings.ToLower(body), contextMarkers) {
			if prev, ok := ctx["additional_info"]; ok {
				ctx["additional_info"] = prev + "\n" + body
			} else {
				ctx["additional_info"] = body
			}
		}
	}

	return ctx
}

// Files returns the unique referenced file paths in sorted order.
func (p Problem) Files() []string {
	seen := make(map[string]bool)
	for _, ref := range p.CodeReferences {
		if ref.Path != "" {
			seen[ref.Path] = true
		}
	}
	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Instructions renders the prompt handed to the code agent.
func (p Problem) Instructions() string {
	var b strings.Builder

	b.WriteString(p.Title)
	b.WriteString("\n\n")
	if p.Body != "" {
		b.WriteString(p.Body)
		b.WriteString("\n\n")
	}

	for _, key := range []string{"context", "background"} {
		if v, ok := p.Context[key]; ok {
			fmt.Fprintf(&b, "\nBackground:\n%s\n", v)
		}
	}
	if v, ok := p.Context["current behavior"]; ok {
		fmt.Fprintf(&b, "\nCurrent Behavior:\n%s\n", v)
	}
	if v, ok := p.Context["additional_info"]; ok {
		fmt.Fprintf(&b, "\nAdditional Information:\n%s\n", v)
	}

	if files := p.Files(); len(files) > 0 {
		b.WriteString("\nRelevant Files:\n")
		for _, f := range files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	if len(p.SuccessCriteria) > 0 {
		b.WriteString("\nSuccess Criteria:\n")
		for _, c := range p.SuccessCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}

	fmt.Fprintf(&b, "\nRepository: %s/%s", p.Ref.Owner, p.Ref.Repo)
	return b.String()
}

func submatch(s string, loc []int, n int) string {
	if loc[2*n] < 0 {
		return ""
	}
	return s[loc[2*n]:loc[2*n+1]]
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
