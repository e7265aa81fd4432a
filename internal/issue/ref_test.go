package issue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	want := Ref{Owner: "acme", Repo: "widgets", Number: 42}

	tests := []struct {
		name  string
		input string
	}{
		{"shorthand", "acme/widgets#42"},
		{"issue URL", "https://github.com/acme/widgets/issues/42"},
		{"pull URL", "https://github.com/acme/widgets/pull/42"},
		{"issue URL with fragment", "https://github.com/acme/widgets/issues/42#issuecomment-1"},
		{"surrounding whitespace", "  acme/widgets#42\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRef(tt.input)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseRefBothSyntaxesNormalize(t *testing.T) {
	a, err := ParseRef("acme/widgets#7")
	require.NoError(t, err)
	b, err := ParseRef("https://github.com/acme/widgets/issues/7")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseRefInvalid(t *testing.T) {
	for _, input := range []string{
		"",
		"acme/widgets",
		"acme#42",
		"acme/widgets#",
		"https://github.com/acme/widgets",
		"https://example.com/acme/widgets/issues/42",
	} {
		_, err := ParseRef(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		input string
		owner string
		repo  string
	}{
		{"https://github.com/acme/widgets", "acme", "widgets"},
		{"https://github.com/acme/widgets.git", "acme", "widgets"},
		{"git@github.com:acme/widgets.git", "acme", "widgets"},
	}
	for _, tt := range tests {
		owner, repo, err := ParseRepoURL(tt.input)
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.owner, owner)
		assert.Equal(t, tt.repo, repo)
	}

	_, _, err := ParseRepoURL("ftp://github.com/acme/widgets")
	assert.Error(t, err)
}

func TestRefString(t *testing.T) {
	r := Ref{Owner: "acme", Repo: "widgets", Number: 42}
	assert.Equal(t, "acme/widgets#42", r.String())
	assert.Equal(t, "https://github.com/acme/widgets.git", r.RepoURL())
	assert.Equal(t, "https://github.com/acme/widgets/issues/42", r.IssueURL())
}
