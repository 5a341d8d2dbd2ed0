package mcpserver

// RecordFormatURI is the resource URI of RecordFormat.
const RecordFormatURI = "pagenotes://record-format"

// RecordFormat documents how notes are stored and addressed, for LLM clients
// that read or write them through this server.
const RecordFormat = `# pagenotes Record Format

Notes are attached to web pages. Every page with at least one note owns one
collection, stored under the key ` + "`notes_<normalized url>`" + `.

## Collection

` + "```" + `json
{
  "url": "https://example.com/article",
  "updated": 1718000000000,
  "notes": [
    {
      "id": "0b0f8a54-52f4-4c3e-9f2a-1f9b7d6e2c11",
      "content": "Full note text",
      "title": "Full note text",
      "created": 1717990000000,
      "updated": 1718000000000
    }
  ]
}
` + "```" + `

## Rules

1. **Timestamps** are Unix epoch milliseconds. ` + "`created`" + ` never changes; ` + "`updated`" + ` moves on every save and is never earlier than ` + "`created`" + `.
2. **Ids** are opaque strings, unique within a page. Omit the id in ` + "`save_note`" + ` to create a note; pass an existing id to replace its content.
3. **Content** is trimmed before it is stored. Blank content is rejected.
4. **Titles** are derived: the first non-blank line, cut to 50 characters, or ` + "`Untitled`" + `. They cannot be set directly.
5. **Notes** keep insertion order inside a page. Domain and global listings are sorted by ` + "`updated`" + `, newest first.
6. **Empty pages** are not stored. Deleting the last note removes the collection.

## URL normalization

Page URLs are reduced to scheme, host and path before lookup, so
` + "`https://Example.com/a?ref=x#top`" + ` and ` + "`https://example.com/a`" + ` share notes.
Search and video pages (Google search, YouTube watch/results, Amazon product
pages) keep their query string, with parameters sorted. Use the
` + "`normalize_url`" + ` tool to see the key a URL maps to.
`
