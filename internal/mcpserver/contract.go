package mcpserver

// MarkupContract describes the markup dialect Ansuz exports and accepts,
// for LLM consumers that read or create notes through the MCP tools.
const MarkupContract = `# Ansuz Markup Contract

Notes live as block trees; the markup form is a projection of that tree.
Tools that accept markup (create_note) parse it back into blocks, so stick
to the constructs below.

## Supported constructs

` + "```" + `markdown
# Heading (levels 1-6)

Plain paragraph text with **bold**, *italic*, ` + "`" + `code` + "`" + ` and ~~strike~~ spans.

- list item
- nested items indent by two spaces

> block quote

` + "```" + `go
fenced code, info string preserved
` + "```" + `

[standalone link](https://example.com)
` + "```" + `

## Rules

1. **List bullets normalize to "- "** on export regardless of how they were
   authored. Any of -, *, + is accepted on import.
2. **A paragraph whose only content is a link** becomes a link block.
3. **Audio anchors are lossy in markup.** Exports render them as bracketed
   stand-ins like ` + "`" + `[audio <recording-id> @1m33s]` + "`" + `; importing that text
   produces a plain paragraph, not an anchor. Create anchors through the
   REST API, not through markup.
4. **Block references and backlinks** are likewise exported as stand-ins
   only.
5. **Note ids** are vault-relative paths without an extension, forward
   slashes only (e.g. ` + "`" + `meetings/standup` + "`" + `).
6. **Encoding** is UTF-8.

## Timeline

Blocks written while a recording is running are linked to the moment they
were created. Use the note_timeline tool to see those links; each entry
carries the block id, its text, the recording id, and the offset in
milliseconds.
`
