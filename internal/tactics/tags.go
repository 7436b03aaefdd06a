package tactics

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hailam/chesstrainer/internal/board"
	"github.com/hailam/chesstrainer/internal/phase"
)

// Tag identifies a tactical theme attached to a puzzle.
type Tag uint8

const (
	Fork Tag = iota
	Pin
	Skewer
	DiscoveredAttack
	BackRank
	Deflection
	Promotion
	MateIn1
	MateIn2
	CheckmatePattern
	Sacrifice
	WinningCapture
	Check
	KingActivity
	Combination
	Positional

	PawnTag
	KnightTag
	BishopTag
	RookTag
	QueenTag
	KingTag

	OpeningTag
	MiddlegameTag
	EndgameTag

	numTags
)

var tagNames = [numTags]string{
	"fork", "pin", "skewer", "discovered_attack", "back_rank", "deflection",
	"promotion", "mate_in_1", "mate_in_2", "checkmate_pattern", "sacrifice",
	"winning_capture", "check", "king_activity", "combination", "positional",
	"pawn", "knight", "bishop", "rook", "queen", "king",
	"opening", "middlegame", "endgame",
}

func (t Tag) String() string {
	if t < numTags {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// ParseTag looks a tag up by name.
func ParseTag(name string) (Tag, bool) {
	for i, n := range tagNames {
		if n == name {
			return Tag(i), true
		}
	}
	return 0, false
}

// IsMotif reports whether t describes a tactic rather than a piece or phase.
func (t Tag) IsMotif() bool {
	return t < Positional
}

// PieceTag returns the tag naming a piece type.
func PieceTag(pt board.PieceType) Tag {
	return PawnTag + Tag(pt)
}

// PhaseTag returns the tag naming a game phase. Unknown maps to middlegame.
func PhaseTag(p phase.Phase) Tag {
	switch p.OrDefault() {
	case phase.Opening:
		return OpeningTag
	case phase.Endgame:
		return EndgameTag
	}
	return MiddlegameTag
}

// TagSet is an unordered set of tags.
type TagSet uint32

// Of builds a set from tags.
func Of(tags ...Tag) TagSet {
	var s TagSet
	for _, t := range tags {
		s = s.Add(t)
	}
	return s
}

// Add returns the set with t included.
func (s TagSet) Add(t Tag) TagSet { return s | 1<<t }

// Has reports whether t is in the set.
func (s TagSet) Has(t Tag) bool { return s&(1<<t) != 0 }

// Union returns the tags in either set.
func (s TagSet) Union(o TagSet) TagSet { return s | o }

// Len returns the number of tags.
func (s TagSet) Len() int {
	n := 0
	for v := uint32(s); v != 0; v &= v - 1 {
		n++
	}
	return n
}

// Empty reports whether the set holds no tags.
func (s TagSet) Empty() bool { return s == 0 }

// coreMotifs are the patterns that make a combination when two coincide.
const coreMotifs = TagSet(1<<Fork | 1<<Pin | 1<<Skewer | 1<<DiscoveredAttack |
	1<<BackRank | 1<<Deflection | 1<<Sacrifice)

// MotifCount returns how many core motifs the set holds.
func (s TagSet) MotifCount() int {
	return (s & coreMotifs).Len()
}

// Tags lists the members in declaration order.
func (s TagSet) Tags() []Tag {
	tags := make([]Tag, 0, s.Len())
	for t := Tag(0); t < numTags; t++ {
		if s.Has(t) {
			tags = append(tags, t)
		}
	}
	return tags
}

// Strings lists the member names in declaration order.
func (s TagSet) Strings() []string {
	tags := s.Tags()
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.String()
	}
	return names
}

func (s TagSet) String() string {
	return strings.Join(s.Strings(), ",")
}

// MarshalJSON encodes the set as an array of names.
func (s TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON decodes an array of names.
func (s *TagSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var set TagSet
	for _, name := range names {
		t, ok := ParseTag(name)
		if !ok {
			return fmt.Errorf("unknown tactical tag %q", name)
		}
		set = set.Add(t)
	}
	*s = set
	return nil
}
