package content

import (
	"fmt"
	"sort"
	"strings"
)

// ExtractBlockText flattens a block into plain text for chunking and
// embedding. Unknown kinds fall back to whatever text property exists so
// new block types degrade gracefully instead of vanishing from the index.
func ExtractBlockText(b Block) string {
	switch b.Kind {
	case KindParagraph, KindQuote, KindCallout, KindToggle:
		return propString(b.Properties, "text")
	case KindHeading:
		return propString(b.Properties, "text")
	case KindList:
		items := propStrings(b.Properties, "items")
		if len(items) == 0 {
			return propString(b.Properties, "text")
		}
		var sb strings.Builder
		for _, item := range items {
			sb.WriteString("- ")
			sb.WriteString(item)
			sb.WriteString("\n")
		}
		return strings.TrimRight(sb.String(), "\n")
	case KindCode:
		code := propString(b.Properties, "text")
		if code == "" {
			return ""
		}
		lang := propString(b.Properties, "language")
		return "```" + lang + "\n" + code + "\n```"
	case KindTable:
		return flattenRows(propRows(b.Properties, "rows"))
	case KindDatabase:
		// database blocks are indexed through their own pipeline, the
		// block itself contributes only its title
		return propString(b.Properties, "title")
	default:
		return propString(b.Properties, "text")
	}
}

// DescribeSchema renders a database schema as one text document section.
func DescribeSchema(db Database) string {
	var sb strings.Builder
	title := db.Title
	if title == "" {
		title = db.ID
	}
	sb.WriteString("Database: ")
	sb.WriteString(title)
	sb.WriteString("\n")
	for _, col := range db.Columns {
		sb.WriteString(fmt.Sprintf("- %s (%s)\n", col.Name, col.Type))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// DescribeRow renders one database row as a single line of
// "column: value" pairs in schema column order. Columns absent from the
// row are skipped; columns not in the schema are appended alphabetically.
func DescribeRow(db Database, row map[string]any) string {
	var parts []string
	seen := make(map[string]bool, len(db.Columns))
	for _, col := range db.Columns {
		seen[col.Name] = true
		if v, ok := row[col.Name]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", col.Name, cellString(v)))
		}
	}
	var extra []string
	for name := range row {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		parts = append(parts, fmt.Sprintf("%s: %s", name, cellString(row[name])))
	}
	return strings.Join(parts, " | ")
}

func flattenRows(rows [][]string) string {
	var sb strings.Builder
	for _, row := range rows {
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func cellString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = cellString(e)
		}
		return strings.Join(parts, ", ")
	case float64:
		// JSON numbers decode as float64, print integers without a fraction
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func propString(props map[string]any, key string) string {
	if props == nil {
		return ""
	}
	s, _ := props[key].(string)
	return s
}

func propStrings(props map[string]any, key string) []string {
	if props == nil {
		return nil
	}
	raw, ok := props[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func propRows(props map[string]any, key string) [][]string {
	if props == nil {
		return nil
	}
	raw, ok := props[key].([]any)
	if !ok {
		return nil
	}
	var rows [][]string
	for _, r := range raw {
		cells, ok := r.([]any)
		if !ok {
			continue
		}
		row := make([]string, 0, len(cells))
		for _, c := range cells {
			row = append(row, cellString(c))
		}
		rows = append(rows, row)
	}
	return rows
}
