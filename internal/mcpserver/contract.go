package mcpserver

// PostFormat describes the on-disk shape of a post so that agents writing
// documents by other means produce files the feed understands.
const PostFormat = `# echochamber Post Format

A post is a Markdown document inside the configured posts folder
(default ` + "`posts/`" + `). Sub-folders are allowed.

## Structure

` + "```" + `markdown
---
liked: false                       # OPTIONAL, boolean, toggled from the feed
author_username: local             # OPTIONAL, shown as @username
author_display_name: You           # OPTIONAL, shown above the post
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. The header block is optional. When present the ` + "`---`" + ` fences must be the
   first line of the file.
2. Missing author fields render as "Unknown" / "@unknown".
3. Toggling a like rewrites only the header block. Body bytes never change.
4. File names created by the composer are UTC timestamps with millisecond
   precision, e.g. ` + "`2025-03-01T09-30-15-123Z.md`" + `. Any ` + "`.md`" + ` name works.
5. The feed is ordered by file modification time, newest first.

## Example

` + "```" + `markdown
---
liked: true
author_username: ada
author_display_name: Ada
---

Shipped the **new** parser today.
` + "```" + `
`
