package services

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func reportFixture(t *testing.T) *ParsedFile {
	t.Helper()
	file, err := Parse([]byte("email,lastname,firstname\na@x.io,Doe,Jane\nb@x.io,\"Roe, Jr\",Rick\n"), ParseOptions{Delimiter: "comma"})
	require.NoError(t, err)
	return file
}

func TestBuildReport_KeepsDelimiterAndDefaultsToNotProcessed(t *testing.T) {
	t.Parallel()

	file := reportFixture(t)
	out, err := BuildReport(file, []ReportLine{{Line: 2, Outcome: "Created"}})
	require.NoError(t, err)

	want := "\uFEFF" +
		"email,lastname,firstname,Result\r\n" +
		"a@x.io,Doe,Jane,Created\r\n" +
		"b@x.io,\"Roe, Jr\",Rick,NotProcessed\r\n"
	require.Equal(t, want, string(out))
}

func TestReportLines_CoversEveryDataRow(t *testing.T) {
	t.Parallel()

	lines := reportLines(reportFixture(t), map[int]string{3: "invalid email: b@x"})
	require.Equal(t, []ReportLine{
		{Line: 2, Outcome: "NotProcessed"},
		{Line: 3, Outcome: "invalid email: b@x"},
	}, lines)
}

func TestBuildXLSXReport(t *testing.T) {
	t.Parallel()

	out, err := BuildXLSXReport(reportFixture(t), []ReportLine{{Line: 2, Outcome: "Created"}, {Line: 3, Outcome: "AlreadyExists"}})
	require.NoError(t, err)

	wb, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()

	rows, err := wb.GetRows("Report")
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"email", "lastname", "firstname", "Result"},
		{"a@x.io", "Doe", "Jane", "Created"},
		{"b@x.io", "Roe, Jr", "Rick", "AlreadyExists"},
	}, rows)
}

func TestReportFileName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"users.csv":           "Rapport_users.csv",
		"/tmp/upload/s1.txt":  "Rapport_s1.csv",
		"noext":               "Rapport_noext.csv",
		"":                    "Rapport_import.csv",
		"  spaced name.csv  ": "Rapport_spaced name.csv",
	}
	for in, want := range cases {
		require.Equal(t, want, ReportFileName(in), in)
	}
}
