package postgres

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sketchmapper/sketchmapper/internal/matcher"
	"github.com/sketchmapper/sketchmapper/internal/model"
)

// columns maps attributes to columns of the candidate CTE. Only these names are ever
// interpolated into SQL.
var columns = map[model.Attribute]string{
	model.AttrArea:        "area",
	model.AttrCompactness: "compactness",
	model.AttrLength:      "length",
	model.AttrDistance:    "distance",
	model.AttrAzimuth:     "azimuth",
}

// args collects positional parameters.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}

// BuildRankQuery composes the ranking query for a plan. Each scored term becomes a
// diff_<category> CTE taking, per attribute, the minimum relative error over every
// (feature, sketched shape) pair; required terms without shapes become a has_<category>
// existence CTE. Joining all CTEs on the anchor drops locations lacking any category.
func BuildRankQuery(plan matcher.Plan) (string, []any, error) {
	scored := plan.ScoredTerms()
	if len(scored) == 0 {
		return "", nil, eris.New("postgres: plan has no scored terms")
	}

	var a args
	categories := make([]string, 0, len(plan.Terms))
	for _, c := range plan.Categories() {
		categories = append(categories, string(c))
	}

	var ctes, joins, diffs []string
	ctes = append(ctes, fmt.Sprintf(`cand AS (
	SELECT n.anchor_id, f.category, f.area, f.compactness, f.length, n.distance, n.azimuth
	FROM %s n
	JOIN %s f ON f.id = n.feature_id
	WHERE f.category = ANY(%s::text[])
)`, neighborsTable, featuresTable, a.add(categories)))

	for _, t := range plan.Terms {
		cat := t.Category()
		name := string(cat)
		if !t.Scored() {
			ctes = append(ctes, fmt.Sprintf(`has_%s AS (
	SELECT DISTINCT anchor_id FROM cand WHERE category = %s
)`, name, a.add(name)))
			joins = append(joins, fmt.Sprintf("JOIN has_%[1]s ON has_%[1]s.anchor_id = a.id", name))
			continue
		}

		attrs := t.Handler.Attributes()
		var unnest, sketched, minima []string
		for _, attr := range attrs {
			col, ok := columns[attr]
			if !ok {
				return "", nil, eris.Wrapf(model.ErrInvalidAttribute, "postgres: no column for %s", attr)
			}
			unnest = append(unnest, a.add(t.Values(attr))+"::float8[]")
			sketched = append(sketched, col)
			minima = append(minima, fmt.Sprintf("min(abs(c.%[1]s - s.%[1]s) / s.%[1]s)", col))
		}

		ctes = append(ctes, fmt.Sprintf(`diff_%s AS (
	SELECT c.anchor_id, (%s) / %d AS diff
	FROM cand c
	CROSS JOIN unnest(%s) AS s(%s)
	WHERE c.category = %s
	GROUP BY c.anchor_id
)`, name, strings.Join(minima, " + "), len(attrs), strings.Join(unnest, ", "), strings.Join(sketched, ", "), a.add(name)))
		joins = append(joins, fmt.Sprintf("JOIN diff_%[1]s ON diff_%[1]s.anchor_id = a.id", name))
		diffs = append(diffs, fmt.Sprintf("diff_%s.diff", name))
	}

	limit := plan.Limit
	if limit <= 0 || limit > matcher.MaxResults {
		limit = matcher.MaxResults
	}

	query := fmt.Sprintf(`WITH %s
SELECT a.id, ST_AsEWKB(a.geom), (%s) / %d AS total
FROM %s a
%s
ORDER BY total, a.id
LIMIT %s`,
		strings.Join(ctes, ",\n"),
		strings.Join(diffs, " + "), len(diffs),
		anchorsTable,
		strings.Join(joins, "\n"),
		a.add(limit),
	)
	return query, a, nil
}
