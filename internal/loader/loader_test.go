package loader_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekowasabi/digrag/internal/loader"
)

func TestLoadJSONL_ParsesValidRecords(t *testing.T) {
	input := `{"id":"","metadata":{"title":"Alpha","date":"2026-01-01T00:00:00Z","tags":["memo"]},"text":"body one"}
{"id":"","metadata":{"title":"Beta","date":"2026-01-02T00:00:00Z","tags":[]},"text":"body two"}
`
	report := loader.LoadJSONL(strings.NewReader(input))
	require.Empty(t, report.Errors)
	require.Len(t, report.Documents, 2)
	require.Equal(t, "Alpha", report.Documents[0].Title)
	require.NotEmpty(t, report.Documents[0].ID)
}

func TestLoadJSONL_SkipsMalformedLinesAndReports(t *testing.T) {
	input := `not json at all
{"id":"","metadata":{"title":"Ok","date":"2026-01-01T00:00:00Z","tags":[]},"text":"fine"}
{"id":"","metadata":{"title":"BadDate","date":"not-a-date","tags":[]},"text":"x"}
`
	report := loader.LoadJSONL(strings.NewReader(input))
	require.Len(t, report.Documents, 1)
	require.Len(t, report.Errors, 2)
	require.Equal(t, 1, report.Errors[0].Line)
	require.Equal(t, 3, report.Errors[1].Line)
}

func TestLoadJSONL_SkipsBlankLines(t *testing.T) {
	input := "\n\n{\"id\":\"\",\"metadata\":{\"title\":\"A\",\"date\":\"2026-01-01T00:00:00Z\",\"tags\":[]},\"text\":\"x\"}\n\n"
	report := loader.LoadJSONL(strings.NewReader(input))
	require.Len(t, report.Documents, 1)
	require.Empty(t, report.Errors)
}

func TestLoadChangelog_ParsesEntriesWithTags(t *testing.T) {
	input := "* Initial release 2025-01-01 00:00:00 [vim]: [release]:\n" +
		"Added basic scaffolding.\n" +
		"* VimConf2025 keynote 2025-06-02 09:30:00 [vim]:\n" +
		"Announced the new engine.\n" +
		"Second line of the entry.\n"

	report := loader.LoadChangelog(strings.NewReader(input))
	require.Empty(t, report.Errors)
	require.Len(t, report.Documents, 2)

	require.Equal(t, "Initial release", report.Documents[0].Title)
	require.Equal(t, []string{"vim", "release"}, report.Documents[0].Tags)
	require.Equal(t, "Added basic scaffolding.", report.Documents[0].Text)

	require.Equal(t, "VimConf2025 keynote", report.Documents[1].Title)
	require.Equal(t, "Announced the new engine.\nSecond line of the entry.", report.Documents[1].Text)
}

func TestLoadChangelog_LastEntrySpansToEOF(t *testing.T) {
	input := "* Only entry 2025-01-01 00:00:00\nbody line one\nbody line two\n"
	report := loader.LoadChangelog(strings.NewReader(input))
	require.Len(t, report.Documents, 1)
	require.Equal(t, "body line one\nbody line two", report.Documents[0].Text)
}

func TestLoadChangelog_NoHeadersProducesNoDocuments(t *testing.T) {
	report := loader.LoadChangelog(strings.NewReader("just some text\nwith no headers\n"))
	require.Empty(t, report.Documents)
	require.Empty(t, report.Errors)
}

func TestLoadChangelog_IDsComputedFromContent(t *testing.T) {
	input := "* A 2025-01-01 00:00:00\nbody\n"
	report := loader.LoadChangelog(strings.NewReader(input))
	require.Len(t, report.Documents, 1)
	require.Len(t, report.Documents[0].ID, 16)
}
