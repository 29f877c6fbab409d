package neo4j

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sketchmapper/sketchmapper/internal/matcher"
	"github.com/sketchmapper/sketchmapper/internal/model"
)

// labels maps categories to node labels. Only these names are interpolated into Cypher.
var labels = map[model.Category]string{
	model.CategoryBuilding:   "Building",
	model.CategoryStreet:     "Street",
	model.CategoryVegetation: "Vegetation",
}

var properties = map[model.Attribute]string{
	model.AttrArea:        "area",
	model.AttrCompactness: "compactness",
	model.AttrLength:      "length",
	model.AttrDistance:    "distance",
	model.AttrAzimuth:     "azimuth",
}

// BuildRankQuery composes the Cypher ranking query for a plan. Every term adds an
// existence predicate on the anchor point; each scored term adds a CALL subquery that
// unwinds the sketched shapes of its category and averages the per-attribute minima.
func BuildRankQuery(plan matcher.Plan) (string, map[string]any, error) {
	scored := plan.ScoredTerms()
	if len(scored) == 0 {
		return "", nil, eris.New("neo4j: plan has no scored terms")
	}

	params := map[string]any{}
	var predicates []string
	for _, t := range plan.Terms {
		label, ok := labels[t.Category()]
		if !ok {
			return "", nil, eris.Wrapf(model.ErrInvalidCategory, "neo4j: no label for %s", t.Category())
		}
		predicates = append(predicates, fmt.Sprintf("EXISTS { MATCH (p)<-[:IS_NEIGHBOR_OF]-(:%s) }", label))
	}

	query := "MATCH (p:Point)\nWHERE " + strings.Join(predicates, "\n  AND ")

	var diffs []string
	for _, t := range scored {
		label := labels[t.Category()]
		name := string(t.Category())
		attrs := t.Handler.Attributes()

		var errs, minima []string
		for i, attr := range attrs {
			prop, ok := properties[attr]
			if !ok {
				return "", nil, eris.Wrapf(model.ErrInvalidAttribute, "neo4j: no property for %s", attr)
			}
			owner := "f"
			if attr.OnRelationship() {
				owner = "r"
			}
			errs = append(errs, fmt.Sprintf("abs(%[1]s.%[2]s - s.%[2]s) / s.%[2]s AS e%[3]d", owner, prop, i))
			minima = append(minima, fmt.Sprintf("min(e%d)", i))
		}

		query += fmt.Sprintf(`
CALL {
  WITH p
  MATCH (p)<-[r:IS_NEIGHBOR_OF]-(f:%s)
  UNWIND $%s AS s
  WITH %s
  RETURN (%s) / %d.0 AS diff_%s
}`, label, name, strings.Join(errs, ", "), strings.Join(minima, " + "), len(attrs), name)

		params[name] = sketchedMaps(t)
		diffs = append(diffs, "diff_"+name)
	}

	limit := plan.Limit
	if limit <= 0 || limit > matcher.MaxResults {
		limit = matcher.MaxResults
	}
	params["limit"] = int64(limit)

	query += fmt.Sprintf(`
WITH p, (%s) / %d.0 AS total
RETURN p.idx AS idx, p.centroid.x AS x, p.centroid.y AS y, total
ORDER BY total, idx
LIMIT $limit`, strings.Join(diffs, " + "), len(diffs))

	return query, params, nil
}

// sketchedMaps turns a term's descriptors into a list of property maps for UNWIND.
func sketchedMaps(t matcher.Term) []any {
	out := make([]any, len(t.Descriptors))
	for i, d := range t.Descriptors {
		m := make(map[string]any, len(d.Values))
		for attr, v := range d.Values {
			if prop, ok := properties[attr]; ok {
				m[prop] = v
			}
		}
		out[i] = m
	}
	return out
}
