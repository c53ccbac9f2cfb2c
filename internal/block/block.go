// Package block implements the typed document tree that backs a note:
// a closed set of block kinds arranged under a single root, mutated only
// through Tree.Mutate batches.
package block

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// Kind enumerates the closed set of block kinds a document may contain.
type Kind uint8

const (
	KindRoot Kind = iota
	KindParagraph
	KindHeading
	KindListItem
	KindQuote
	KindCode
	KindLink
	KindAudio
	KindBlockRef
	KindBacklink
)

var kindNames = [...]string{
	KindRoot:      "root",
	KindParagraph: "paragraph",
	KindHeading:   "heading",
	KindListItem:  "list-item",
	KindQuote:     "quote",
	KindCode:      "code",
	KindLink:      "link",
	KindAudio:     "audio-block",
	KindBlockRef:  "block-reference",
	KindBacklink:  "backlink",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// KindFromString maps the wire name of a kind back to its value.
func KindFromString(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return 0, false
}

// Container reports whether blocks of this kind may hold children. Text
// kinds parent their audio anchors, list items parent nested items, quotes
// parent their paragraphs. Code, links, and the reference kinds are leaves.
func (k Kind) Container() bool {
	switch k {
	case KindRoot, KindParagraph, KindHeading, KindListItem, KindQuote:
		return true
	}
	return false
}

// TextBearing reports whether blocks of this kind carry inline runs.
func (k Kind) TextBearing() bool {
	switch k {
	case KindParagraph, KindHeading, KindListItem, KindQuote, KindCode, KindLink:
		return true
	}
	return false
}

// Format is a bit set of inline styles applied to a single run.
type Format uint8

const (
	FmtBold Format = 1 << iota
	FmtItalic
	FmtCode
	FmtStrike
)

// Has reports whether every style in f is set.
func (f Format) Has(style Format) bool { return f&style == style }

// Run is one inline span of text with a uniform format.
type Run struct {
	Text   string
	Format Format
}

// Text builds a plain, unformatted run.
func Text(s string) Run { return Run{Text: s} }

// Styled builds a run with the given format flags.
func Styled(s string, f Format) Run { return Run{Text: s, Format: f} }

// AudioPayload anchors a block to a moment inside a recording.
type AudioPayload struct {
	RecordingID   string
	Source        string // local file path or opaque playable handle
	StartOffsetMs int64
}

// RefPayload points at a block in this or another note.
type RefPayload struct {
	TargetBlockID string
	TargetNoteID  string
	Preview       string
}

// BacklinkPayload points back at a referencing note.
type BacklinkPayload struct {
	TargetNoteID string
	TargetTitle  string
}

// Block is an immutable value. Construct one with New or the kind helpers,
// derive changed copies with the With methods, and hand it to Tree.Mutate;
// nothing else writes block state.
type Block struct {
	ID       string
	Kind     Kind
	Level    int    // heading depth 1..6
	Marker   byte   // list bullet as authored ('-', '*', '+'); export normalizes
	Language string // code fence info
	Href     string // link destination
	Runs     []Run
	Audio    *AudioPayload
	Ref      *RefPayload
	Backlink *BacklinkPayload
}

// NewID returns a fresh block id. ULIDs sort by creation time, so id order
// follows creation order within a process.
func NewID() string { return ulid.Make().String() }

// New builds an empty block of the given kind with a fresh id.
func New(kind Kind) Block { return Block{ID: NewID(), Kind: kind} }

// Paragraph builds a paragraph block from plain text.
func Paragraph(text string) Block {
	return New(KindParagraph).WithRuns(Text(text))
}

// Heading builds a heading block; level is clamped to 1..6.
func Heading(level int, text string) Block {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	b := New(KindHeading).WithRuns(Text(text))
	b.Level = level
	return b
}

// ListItem builds a list item with the default bullet.
func ListItem(text string) Block {
	b := New(KindListItem).WithRuns(Text(text))
	b.Marker = '-'
	return b
}

// Quote builds a block quote from plain text.
func Quote(text string) Block {
	return New(KindQuote).WithRuns(Text(text))
}

// Code builds a fenced code block.
func Code(language, text string) Block {
	b := New(KindCode).WithRuns(Text(text))
	b.Language = language
	return b
}

// Link builds a standalone link block.
func Link(href, text string) Block {
	b := New(KindLink).WithRuns(Text(text))
	b.Href = href
	return b
}

// AudioBlock builds an audio anchor block.
func AudioBlock(p AudioPayload) Block {
	b := New(KindAudio)
	b.Audio = &p
	return b
}

// BlockRef builds a reference block pointing at another block.
func BlockRef(p RefPayload) Block {
	b := New(KindBlockRef)
	b.Ref = &p
	return b
}

// Backlink builds a backlink block pointing at a referencing note.
func Backlink(p BacklinkPayload) Block {
	b := New(KindBacklink)
	b.Backlink = &p
	return b
}

// WithRuns returns a copy of b with its runs replaced.
func (b Block) WithRuns(runs ...Run) Block {
	b.Runs = append([]Run(nil), runs...)
	return b
}

// WithAudio returns a copy of b carrying the given audio payload.
func (b Block) WithAudio(p AudioPayload) Block {
	b.Audio = &p
	return b
}

// WithRef returns a copy of b carrying the given reference payload.
func (b Block) WithRef(p RefPayload) Block {
	b.Ref = &p
	return b
}

// WithBacklink returns a copy of b carrying the given backlink payload.
func (b Block) WithBacklink(p BacklinkPayload) Block {
	b.Backlink = &p
	return b
}

// Text concatenates the block's runs into plain text.
func (b Block) Text() string {
	if len(b.Runs) == 1 {
		return b.Runs[0].Text
	}
	var sb strings.Builder
	for _, r := range b.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}
