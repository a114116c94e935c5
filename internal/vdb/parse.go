package vdb

import "strings"

// Strict record/field separators for programmatic CLI output. Rows are
// separated by ASCII Record Separator, fields within a row by ASCII Unit
// Separator. Never whitespace-tolerant: a doc_id or title containing a
// space must round-trip correctly.
const (
	recordSep = "\x1e"
	fieldSep  = "\x1f"
)

// splitRecords splits strict RS-delimited CLI output into rows of fields.
func splitRecords(output string) [][]string {
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return nil
	}
	rows := strings.Split(output, recordSep)
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		row = strings.Trim(row, "\n")
		if row == "" {
			continue
		}
		out = append(out, strings.Split(row, fieldSep))
	}
	return out
}

// parseCollectionList handles the CLI's two output modes for `list
// collections` (§9 open item): a newer programmatic mode using RS-separated
// rows, and an older human-readable mode that prints one name per line,
// optionally prefixed with "* " for the current selection. We detect which
// mode we're in by checking for the RS byte; plain-line mode never uses RS.
func parseCollectionList(output string) []string {
	if strings.Contains(output, recordSep) {
		var names []string
		for _, row := range splitRecords(output) {
			if len(row) > 0 && row[0] != "" {
				names = append(names, row[0])
			}
		}
		return names
	}

	var names []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "* ")
		if line != "" {
			names = append(names, line)
		}
	}
	return names
}

// parseFieldMap turns a row's fields, each shaped "key=value", into a map.
// Used for conflict snapshot rows, where a document's field set is not
// known in advance and so can't be addressed by fixed column position.
func parseFieldMap(fields []string) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}
