package codec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/starford/ansuz/internal/block"
)

// normalizedBullet is the single marker character every exported list item
// uses, regardless of how the item was authored.
const normalizedBullet = "- "

var bulletRe = regexp.MustCompile(`^([ \t]*)[*+][ \t]+`)

// ExportMarkup renders the tree as human-readable markup. Audio blocks,
// block references, and backlinks are emitted as bracketed stand-ins and are
// not reconstructed by ImportMarkup; this direction of the codec is lossy on
// purpose.
func ExportMarkup(t *block.Tree) string {
	type chunk struct {
		text string
		list bool
	}
	var chunks []chunk
	ordinal := 0
	for _, b := range t.Children(t.RootID()) {
		if b.Kind == block.KindListItem {
			ordinal++
		} else {
			ordinal = 0
		}
		chunks = append(chunks, chunk{
			text: renderBlock(t, b, 0, ordinal),
			list: b.Kind == block.KindListItem,
		})
	}

	var sb strings.Builder
	for i, c := range chunks {
		if i > 0 {
			if c.list && chunks[i-1].list {
				sb.WriteString("\n")
			} else {
				sb.WriteString("\n\n")
			}
		}
		sb.WriteString(c.text)
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	return normalizeBullets(sb.String())
}

func renderBlock(t *block.Tree, b block.Block, depth, ordinal int) string {
	switch b.Kind {
	case block.KindHeading:
		return strings.Repeat("#", b.Level) + " " + renderRuns(b.Runs) + renderAnchors(t, b, depth)
	case block.KindParagraph:
		return renderRuns(b.Runs) + renderAnchors(t, b, depth)
	case block.KindListItem:
		return renderListItem(t, b, depth, ordinal)
	case block.KindQuote:
		return renderQuote(t, b)
	case block.KindCode:
		body := b.Text()
		if !strings.HasSuffix(body, "\n") {
			body += "\n"
		}
		return "```" + b.Language + "\n" + body + "```"
	case block.KindLink:
		return "[" + renderRuns(b.Runs) + "](" + b.Href + ")"
	case block.KindAudio:
		return audioStandIn(b)
	case block.KindBlockRef:
		return refStandIn(b)
	case block.KindBacklink:
		return backlinkStandIn(b)
	}
	return ""
}

// renderAnchors emits the non-text children of a text block (audio anchors
// and the like) as stand-in lines below the block's own text.
func renderAnchors(t *block.Tree, b block.Block, depth int) string {
	var sb strings.Builder
	for _, c := range t.Children(b.ID) {
		line := renderBlock(t, c, depth, 0)
		if line == "" {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(line)
	}
	return sb.String()
}

func renderListItem(t *block.Tree, b block.Block, depth, ordinal int) string {
	indent := strings.Repeat("  ", depth)
	marker := normalizedBullet
	if b.Marker == '.' || b.Marker == ')' {
		marker = fmt.Sprintf("%d. ", ordinal)
	} else if b.Marker != 0 {
		marker = string(b.Marker) + " "
	}
	var sb strings.Builder
	sb.WriteString(indent)
	sb.WriteString(marker)
	sb.WriteString(renderRuns(b.Runs))

	childOrdinal := 0
	for _, c := range t.Children(b.ID) {
		if c.Kind == block.KindListItem {
			childOrdinal++
		} else {
			childOrdinal = 0
		}
		line := renderBlock(t, c, depth+1, childOrdinal)
		if line == "" {
			continue
		}
		sb.WriteString("\n")
		if c.Kind != block.KindListItem {
			sb.WriteString(strings.Repeat("  ", depth+1))
		}
		sb.WriteString(line)
	}
	return sb.String()
}

func renderQuote(t *block.Tree, b block.Block) string {
	body := renderRuns(b.Runs)
	for _, c := range t.Children(b.ID) {
		if body != "" {
			body += "\n"
		}
		body += renderRuns(c.Runs)
	}
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

func renderRuns(runs []block.Run) string {
	var sb strings.Builder
	for _, r := range runs {
		sb.WriteString(renderRun(r))
	}
	return sb.String()
}

func renderRun(r block.Run) string {
	s := r.Text
	if r.Format.Has(block.FmtCode) {
		s = "`" + s + "`"
	}
	if r.Format.Has(block.FmtStrike) {
		s = "~~" + s + "~~"
	}
	if r.Format.Has(block.FmtItalic) {
		s = "*" + s + "*"
	}
	if r.Format.Has(block.FmtBold) {
		s = "**" + s + "**"
	}
	return s
}

func audioStandIn(b block.Block) string {
	return fmt.Sprintf("[audio:%s@%dms]", b.Audio.RecordingID, b.Audio.StartOffsetMs)
}

func refStandIn(b block.Block) string {
	target := b.Ref.TargetBlockID
	if b.Ref.TargetNoteID != "" {
		target = b.Ref.TargetNoteID + "#" + target
	}
	if b.Ref.Preview != "" {
		target += "|" + b.Ref.Preview
	}
	return "((" + target + "))"
}

func backlinkStandIn(b block.Block) string {
	title := b.Backlink.TargetTitle
	if title == "" {
		title = b.Backlink.TargetNoteID
	}
	return "[[" + title + "]]"
}

// normalizeBullets rewrites every bullet marker outside code fences to the
// single normalized character. The tree walker above emits whatever marker a
// block was authored with; this pass runs over its output.
func normalizeBullets(src string) string {
	lines := strings.Split(src, "\n")
	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		lines[i] = bulletRe.ReplaceAllString(line, "${1}"+normalizedBullet)
	}
	return strings.Join(lines, "\n")
}

// ImportMarkup parses markup into a fresh document tree. Only the text kinds
// are produced: stand-ins exported for audio blocks, block references, and
// backlinks come back as plain text.
func ImportMarkup(src []byte) (*block.Tree, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Strikethrough))
	doc := md.Parser().Parse(text.NewReader(src))

	tr := block.NewTree()
	_, err := tr.Mutate(func(m *block.Mutation) error {
		return importChildren(m, tr.RootID(), doc, src)
	})
	if err != nil {
		return nil, fmt.Errorf("import markup: %w", err)
	}
	return tr, nil
}

func importChildren(m *block.Mutation, parent string, n ast.Node, src []byte) error {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if err := importNode(m, parent, c, src); err != nil {
			return err
		}
	}
	return nil
}

func importNode(m *block.Mutation, parent string, n ast.Node, src []byte) error {
	switch v := n.(type) {
	case *ast.Heading:
		b := block.New(block.KindHeading)
		b.Level = v.Level
		b.Runs = inlineRuns(v, src)
		_, err := m.Create(parent, -1, b)
		return err
	case *ast.Paragraph:
		return importParagraph(m, parent, v, src)
	case *ast.TextBlock:
		b := block.New(block.KindParagraph)
		b.Runs = inlineRuns(v, src)
		_, err := m.Create(parent, -1, b)
		return err
	case *ast.List:
		return importList(m, parent, v, src)
	case *ast.Blockquote:
		return importQuote(m, parent, v, src)
	case *ast.FencedCodeBlock:
		b := block.New(block.KindCode)
		b.Language = string(v.Language(src))
		b.Runs = []block.Run{block.Text(strings.TrimSuffix(linesValue(v, src), "\n"))}
		_, err := m.Create(parent, -1, b)
		return err
	case *ast.CodeBlock:
		b := block.New(block.KindCode)
		b.Runs = []block.Run{block.Text(strings.TrimSuffix(linesValue(v, src), "\n"))}
		_, err := m.Create(parent, -1, b)
		return err
	case *ast.HTMLBlock:
		b := block.New(block.KindParagraph)
		b.Runs = []block.Run{block.Text(strings.TrimSuffix(linesValue(v, src), "\n"))}
		_, err := m.Create(parent, -1, b)
		return err
	case *ast.ThematicBreak:
		return nil
	default:
		return importChildren(m, parent, v, src)
	}
}

// importParagraph maps a paragraph whose sole inline content is a link onto
// a link block; everything else becomes a plain paragraph.
func importParagraph(m *block.Mutation, parent string, v *ast.Paragraph, src []byte) error {
	if link, ok := soleLink(v); ok {
		b := block.New(block.KindLink)
		b.Href = string(link.Destination)
		b.Runs = inlineRuns(link, src)
		_, err := m.Create(parent, -1, b)
		return err
	}
	b := block.New(block.KindParagraph)
	b.Runs = inlineRuns(v, src)
	_, err := m.Create(parent, -1, b)
	return err
}

func soleLink(p *ast.Paragraph) (*ast.Link, bool) {
	c := p.FirstChild()
	if c == nil || c.NextSibling() != nil {
		return nil, false
	}
	link, ok := c.(*ast.Link)
	return link, ok
}

func importList(m *block.Mutation, parent string, list *ast.List, src []byte) error {
	for li := list.FirstChild(); li != nil; li = li.NextSibling() {
		item := block.New(block.KindListItem)
		item.Marker = list.Marker

		var nested []ast.Node
		for c := li.FirstChild(); c != nil; c = c.NextSibling() {
			switch cv := c.(type) {
			case *ast.TextBlock:
				if item.Runs == nil {
					item.Runs = inlineRuns(cv, src)
					continue
				}
				nested = append(nested, c)
			case *ast.Paragraph:
				if item.Runs == nil {
					item.Runs = inlineRuns(cv, src)
					continue
				}
				nested = append(nested, c)
			default:
				nested = append(nested, c)
			}
		}

		created, err := m.Create(parent, -1, item)
		if err != nil {
			return err
		}
		for _, c := range nested {
			if err := importNode(m, created.ID, c, src); err != nil {
				return err
			}
		}
	}
	return nil
}

// importQuote folds the quoted paragraphs into the quote block's own runs so
// that a quote round-trips as one block.
func importQuote(m *block.Mutation, parent string, v *ast.Blockquote, src []byte) error {
	b := block.New(block.KindQuote)
	for c := v.FirstChild(); c != nil; c = c.NextSibling() {
		runs := inlineRuns(c, src)
		if len(b.Runs) > 0 && len(runs) > 0 {
			b.Runs = append(b.Runs, block.Text("\n"))
		}
		b.Runs = append(b.Runs, runs...)
	}
	_, err := m.Create(parent, -1, b)
	return err
}

func inlineRuns(n ast.Node, src []byte) []block.Run {
	return appendRuns(nil, n, src, 0)
}

func appendRuns(runs []block.Run, n ast.Node, src []byte, f block.Format) []block.Run {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			s := string(v.Segment.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				s += "\n"
			}
			runs = appendRun(runs, s, f)
		case *ast.String:
			runs = appendRun(runs, string(v.Value), f)
		case *ast.Emphasis:
			style := block.FmtItalic
			if v.Level >= 2 {
				style = block.FmtBold
			}
			runs = appendRuns(runs, v, src, f|style)
		case *east.Strikethrough:
			runs = appendRuns(runs, v, src, f|block.FmtStrike)
		case *ast.CodeSpan:
			var sb strings.Builder
			for t := v.FirstChild(); t != nil; t = t.NextSibling() {
				if tn, ok := t.(*ast.Text); ok {
					sb.Write(tn.Segment.Value(src))
				}
			}
			runs = appendRun(runs, sb.String(), f|block.FmtCode)
		case *ast.Link:
			runs = appendRuns(runs, v, src, f)
		case *ast.AutoLink:
			runs = appendRun(runs, string(v.URL(src)), f)
		case *ast.Image:
			runs = appendRuns(runs, v, src, f)
		default:
			runs = appendRuns(runs, c, src, f)
		}
	}
	return runs
}

// appendRun merges consecutive text of the same format into one run.
func appendRun(runs []block.Run, s string, f block.Format) []block.Run {
	if s == "" {
		return runs
	}
	if n := len(runs); n > 0 && runs[n-1].Format == f {
		runs[n-1].Text += s
		return runs
	}
	return append(runs, block.Styled(s, f))
}

func linesValue(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return sb.String()
}
