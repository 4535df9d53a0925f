package mcpserver

// NoteFormatContract describes the on-disk layout of hibi notes for LLM
// consumers reading them through the tools.
const NoteFormatContract = `# hibi Note Format

hibi keeps one Markdown file per day plus one file per topic tag. Notes are
written by the service; tools never edit them directly.

## Daily notes

Path: ` + "`" + `memos/YYYY-MM-DD.md` + "`" + `

` + "```" + `markdown
2025-03-01
[[2025-02-22]]||[[2025-02-28]]||[[2025-03-02]]||[[2025-03-08]]
---

## メモ

09:30 -
 read https://go.dev/blog/generics

> URLの概要:
> タイトル: An Introduction To Generics
> 説明: ...

![[thumbnail_5d41402abc4b2a76b9719d911017c592.png]]

> AI補足:
> ...

## まとめ
<about 200 characters summarizing the day>
#Go #ジェネリクス

## 詳細ノート
[[Go]] [[ジェネリクス]]
` + "```" + `

Rules:

1. The header is the date, a navigation line linking one week back, one day
   back, one day forward and one week forward, then a ` + "`" + `---` + "`" + ` rule.
2. ` + "`" + `## メモ` + "`" + ` holds one block per memo: ` + "`" + `HH:MM -` + "`" + ` followed by the text on
   the next line indented by one space. Optional parts follow in this order:
   attachments (` + "`" + `![[file]]` + "`" + `), the URL preview quote, the link thumbnail,
   the AI supplement quote.
3. ` + "`" + `## まとめ` + "`" + ` appears at most once. Its second line is the tag line.
   A tag line of ` + "`" + `#error` + "`" + ` or ` + "`" + `#api-limit-error` + "`" + ` marks a summary that failed;
   these are not topics.
4. ` + "`" + `## 詳細ノート` + "`" + ` links the topic notes written by the rollup.

## Topic notes

Path: ` + "`" + `topics/<tag>.md` + "`" + ` (path separators in the tag become ` + "`" + `-` + "`" + `)

` + "```" + `markdown
# Go

[[2025-03-01]]

<explanation of the tag in the context of that day>

#Go
` + "```" + `

A topic note is rewritten by every rollup that produces its tag; the date
link points at the most recent day.

## Images

Attachments and link thumbnails live flat under ` + "`" + `images/` + "`" + ` and are embedded
by file name: ` + "`" + `![[name.png]]` + "`" + `. Thumbnails are named
` + "`" + `thumbnail_<md5 of the image URL>.<ext>` + "`" + `, so the same image is stored once.
Use the attach_image tool to add a picture and paste the returned embed into
append_memo.
`
