package vdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitRecordsStrict(t *testing.T) {
	out := "docs" + fieldSep + "a b" + recordSep + "docs" + fieldSep + "c"
	rows := splitRecords(out)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"docs", "a b"}, rows[0])
	require.Equal(t, []string{"docs", "c"}, rows[1])
}

func TestSplitRecordsEmpty(t *testing.T) {
	require.Nil(t, splitRecords(""))
	require.Nil(t, splitRecords("\n"))
}

func TestParseCollectionListProgrammatic(t *testing.T) {
	out := "alpha" + recordSep + "beta" + recordSep + "gamma"
	names := parseCollectionList(out)
	require.Equal(t, []string{"alpha", "beta", "gamma"}, names)
}

func TestParseCollectionListHumanReadable(t *testing.T) {
	out := "* alpha\nbeta\n\ngamma\n"
	names := parseCollectionList(out)
	require.Equal(t, []string{"alpha", "beta", "gamma"}, names)
}
