package models

// Position identifies one side of a round's image pair
type Position string

const (
	PositionA Position = "A"
	PositionB Position = "B"
)

// IsValid returns true if the position is A or B
func (p Position) IsValid() bool {
	return p == PositionA || p == PositionB
}

// Opposite returns the other position of the pair
func (p Position) Opposite() Position {
	if p == PositionA {
		return PositionB
	}
	return PositionA
}

// ImageAsset represents one image in the catalog.
// Assets are owned by the catalog and read-only to the game core.
type ImageAsset struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Category    string `json:"category"`
	IsSynthetic bool   `json:"is_synthetic"`
	Source      string `json:"source,omitempty"`
	Description string `json:"description,omitempty"`
}
