package model

// Anchor is a reference point that sketches are matched against.
type Anchor struct {
	ID int64   `json:"id" yaml:"id"`
	X  float64 `json:"x" yaml:"x"`
	Y  float64 `json:"y" yaml:"y"`
}

// Coordinates returns the anchor position as [x, y].
func (a Anchor) Coordinates() [2]float64 {
	return [2]float64{a.X, a.Y}
}

// ReferenceFeature is a stored feature joined with its relationship to an anchor.
// Area, Compactness and Length come from the feature; Distance and Azimuth come from the
// relationship.
type ReferenceFeature struct {
	ID          int64    `json:"id" yaml:"id"`
	Category    Category `json:"category" yaml:"category"`
	Area        float64  `json:"area,omitempty" yaml:"area,omitempty"`
	Compactness float64  `json:"compactness,omitempty" yaml:"compactness,omitempty"`
	Length      float64  `json:"length,omitempty" yaml:"length,omitempty"`
	Distance    float64  `json:"distance" yaml:"distance"`
	Azimuth     float64  `json:"azimuth" yaml:"azimuth"`
}

// Value returns the stored value of attr.
func (f ReferenceFeature) Value(attr Attribute) float64 {
	switch attr {
	case AttrArea:
		return f.Area
	case AttrCompactness:
		return f.Compactness
	case AttrLength:
		return f.Length
	case AttrDistance:
		return f.Distance
	case AttrAzimuth:
		return f.Azimuth
	default:
		return 0
	}
}

// ReferenceLocation is an anchor with its features grouped by category.
type ReferenceLocation struct {
	Anchor   Anchor                          `json:"anchor"`
	Features map[Category][]ReferenceFeature `json:"features"`
}

// Match is one ranked result: the anchor coordinates and the total dissimilarity score
// (lower is more similar).
type Match struct {
	AnchorID    int64      `json:"-"`
	Coordinates [2]float64 `json:"coordinates"`
	Score       float64    `json:"score"`
}
