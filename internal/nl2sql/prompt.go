package nl2sql

import (
	"fmt"
	"strings"
)

const (
	translateSystemPrompt = "You convert text into SQL queries."
	explainSystemPrompt   = "You are an SQL teacher."
	chatSystemPrompt      = "You are a helpful AI assistant."
)

// UploadedTable is the table a CSV or parquet upload is loaded into.
const UploadedTable = "uploaded_table"

// BuildPrompt embeds the question and schema description in the fixed rule
// set. Any question is accepted, including an empty one.
func BuildPrompt(question, schema string) string {
	var b strings.Builder
	b.WriteString("You are an expert SQL generator.\n")
	b.WriteString("Convert the following natural language query into a valid SQLite SQL query.\n")
	fmt.Fprintf(&b, "Query: %q\n\n", question)
	b.WriteString("Database schema:\n")
	b.WriteString(schema)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Only use tables and columns from the schema.\n")
	fmt.Fprintf(&b, "- If CSV uploaded, use table name: %s.\n", UploadedTable)
	b.WriteString("- IMPORTANT: If a column name contains spaces, wrap it in backticks like `column name`.\n")
	b.WriteString("- Return ONLY the SQL query, no explanations.\n")
	b.WriteString("- Do NOT include ```sql or ``` in your response.\n")
	return b.String()
}

func BuildExplainPrompt(sqlText string) string {
	return "Explain in simple English what this SQL query does:\n" + sqlText
}

// StripCodeFences returns the body of the first fenced block in value, or
// the trimmed value when it has no fence. Text around the block is dropped,
// as is the language tag on the opening fence line. The block ends at the
// last fence, so fences quoted inside the SQL survive.
func StripCodeFences(value string) string {
	trimmed := strings.TrimSpace(value)
	open := strings.Index(trimmed, codeFence)
	if open < 0 {
		return trimmed
	}
	body := trimmed[open+len(codeFence):]
	if newline := strings.IndexByte(body, '\n'); newline >= 0 && isLanguageTag(body[:newline]) {
		body = body[newline+1:]
	} else {
		body = strings.TrimPrefix(body, "sql")
	}
	if closing := strings.LastIndex(body, codeFence); closing >= 0 {
		body = body[:closing]
	}
	return strings.TrimSpace(body)
}

const codeFence = "```"

// isLanguageTag reports whether the rest of an opening fence line is empty
// or a single word such as "sql".
func isLanguageTag(line string) bool {
	line = strings.TrimSpace(line)
	return !strings.ContainsAny(line, " \t")
}
