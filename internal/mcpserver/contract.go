package mcpserver

// DocumentFormat describes the data file layout that LLM consumers see in
// the tasklet://document resource and the export_document tool.
const DocumentFormat = `# Tasklet Document Format

The whole application state is one UTF-8 JSON document, pretty-printed with
two-space indentation.

` + "```" + `json
{
  "version": 1,
  "prefs": {
    "theme": "dark",
    "bgImageDataUrl": "",
    "filter": "all",
    "lastUndo": null,
    "lastLongtermReset": "2025-01-20"
  },
  "items": [
    {
      "id": "todo-3f2a…",
      "text": "Water the plants",
      "section": "inProgress",
      "createdAt": 1737360000000,
      "updatedAt": 1737360000000,
      "doneToday": false
    }
  ]
}
` + "```" + `

## Sections

- ` + "`" + `inProgress` + "`" + `: open items. Toggling moves them to ` + "`" + `done` + "`" + `.
- ` + "`" + `done` + "`" + `: finished items. Toggling moves them back.
- ` + "`" + `longterm` + "`" + `: recurring items. Toggling flips ` + "`" + `doneToday` + "`" + `, which is cleared once per day.
- ` + "`" + `trash` + "`" + `: removed items. ` + "`" + `trashedFrom` + "`" + ` records where they came from.

## Rules

1. Timestamps are Unix milliseconds.
2. IDs are opaque strings, unique within the document.
3. Unknown ` + "`" + `prefs` + "`" + ` keys are preserved.
4. Use the tools to change items; they keep timestamps and undo state consistent.
`
