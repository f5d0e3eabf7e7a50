// Package marking places signatures, stamps and date stamps on validated PDFs.
package marking

import "fmt"

// MarkType is the kind of visual mark applied on approval.
type MarkType string

const (
	MarkSignature MarkType = "signature"
	MarkStamp     MarkType = "stamp"
	MarkDater     MarkType = "dater"
)

// ParseMarkType accepts the action names used by the API.
func ParseMarkType(s string) (MarkType, error) {
	switch MarkType(s) {
	case MarkSignature, MarkStamp, MarkDater:
		return MarkType(s), nil
	}
	return "", fmt.Errorf("unknown mark type %q", s)
}

// Anchor is a pdfcpu position keyword.
type Anchor string

const (
	AnchorBottomLeft Anchor = "bl"
	AnchorTopRight   Anchor = "tr"
)

// Layout holds the slot geometry, in points. The defaults match the hospital
// form template; other templates override them through configuration.
type Layout struct {
	SlotWidth   float64
	SlotHeight  float64
	Margin      float64
	Slots       int
	RowGap      float64
	DaterWidth  float64
	DaterHeight float64
}

func DefaultLayout() Layout {
	return Layout{
		SlotWidth:   170,
		SlotHeight:  70,
		Margin:      50,
		Slots:       3,
		RowGap:      10,
		DaterWidth:  160,
		DaterHeight: 30,
	}
}

// Placement is where a mark goes, as an offset from its anchor corner.
type Placement struct {
	Anchor Anchor
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// ComputeMarkPosition lays signatures out left to right across the slots,
// wrapping upward into a new row once the slots are full. Stamps sit in the
// last slot of the first row. Date stamps sit in the top right corner.
func ComputeMarkPosition(stepIndex, totalSteps int, markType MarkType, l Layout) Placement {
	if l.Slots < 1 {
		l.Slots = 1
	}
	if totalSteps < 1 {
		totalSteps = 1
	}
	if stepIndex < 0 {
		stepIndex = 0
	}
	used := totalSteps
	if used > l.Slots {
		used = l.Slots
	}

	switch markType {
	case MarkDater:
		return Placement{
			Anchor: AnchorTopRight,
			X:      -l.Margin,
			Y:      -l.Margin,
			Width:  l.DaterWidth,
			Height: l.DaterHeight,
		}
	case MarkStamp:
		return Placement{
			Anchor: AnchorBottomLeft,
			X:      l.Margin + float64(used-1)*l.SlotWidth,
			Y:      l.Margin,
			Width:  l.SlotWidth,
			Height: l.SlotHeight,
		}
	}

	col := stepIndex % l.Slots
	row := stepIndex / l.Slots
	return Placement{
		Anchor: AnchorBottomLeft,
		X:      l.Margin + float64(col)*l.SlotWidth,
		Y:      l.Margin + float64(row)*(l.SlotHeight+l.RowGap),
		Width:  l.SlotWidth,
		Height: l.SlotHeight,
	}
}
