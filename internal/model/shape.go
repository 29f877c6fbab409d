// Package model defines the sketch, reference and result types shared by the matcher,
// the reference stores and the transport layer.
package model

// Category is a feature class with its own fixed attribute schema.
type Category string

const (
	CategoryBuilding   Category = "building"
	CategoryStreet     Category = "street"
	CategoryVegetation Category = "vegetation"
)

// Attribute names one numeric geometric descriptor.
type Attribute string

const (
	AttrArea        Attribute = "area"
	AttrCompactness Attribute = "compactness"
	AttrLength      Attribute = "length"
	AttrDistance    Attribute = "distance" // relationship property
	AttrAzimuth     Attribute = "azimuth"  // relationship property
)

// OnRelationship reports whether the attribute is stored on the anchor relationship
// rather than on the feature itself.
func (a Attribute) OnRelationship() bool {
	return a == AttrDistance || a == AttrAzimuth
}

// schema lists the attributes of each known category, in scoring order.
var schema = map[Category][]Attribute{
	CategoryBuilding:   {AttrArea, AttrCompactness, AttrDistance, AttrAzimuth},
	CategoryStreet:     {AttrLength, AttrDistance, AttrAzimuth},
	CategoryVegetation: {AttrArea, AttrCompactness, AttrDistance, AttrAzimuth},
}

// Categories returns the known categories in canonical order.
func Categories() []Category {
	return []Category{CategoryBuilding, CategoryStreet, CategoryVegetation}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := schema[c]
	return ok
}

// Attributes returns a copy of the attribute schema for c, or nil for unknown categories.
func (c Category) Attributes() []Attribute {
	attrs, ok := schema[c]
	if !ok {
		return nil
	}
	out := make([]Attribute, len(attrs))
	copy(out, attrs)
	return out
}

// Shape is a single sketched shape as received on the wire. Numeric fields are pointers so
// that a missing attribute can be told apart from a zero one.
type Shape struct {
	Type        Category `json:"type"`
	Area        *float64 `json:"area,omitempty"`
	Compactness *float64 `json:"compactness,omitempty"`
	Length      *float64 `json:"length,omitempty"`
	Distance    *float64 `json:"distance,omitempty"`
	Azimuth     *float64 `json:"azimuth,omitempty"`
}

// Value returns the sketched value of attr and whether it was set.
func (s Shape) Value(attr Attribute) (float64, bool) {
	var p *float64
	switch attr {
	case AttrArea:
		p = s.Area
	case AttrCompactness:
		p = s.Compactness
	case AttrLength:
		p = s.Length
	case AttrDistance:
		p = s.Distance
	case AttrAzimuth:
		p = s.Azimuth
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Descriptor is the attribute vector of one sketched shape, restricted to its category.
type Descriptor struct {
	Category Category              `json:"category"`
	Values   map[Attribute]float64 `json:"values"`
}

// Float is a helper for building shapes in code and tests.
func Float(v float64) *float64 { return &v }
