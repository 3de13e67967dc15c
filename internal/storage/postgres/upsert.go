package postgres

import (
	"fmt"
	"strings"
)

// mergeRule is the value a column takes when an upsert hits an existing row.
// Inside expr, EXCLUDED is the incoming row and t the stored one.
type mergeRule struct {
	column string
	expr   string
}

func coalesceCol(column string) mergeRule {
	return mergeRule{column: column, expr: fmt.Sprintf("COALESCE(EXCLUDED.%s, t.%s)", column, column)}
}

func overwriteCol(column string) mergeRule {
	return mergeRule{column: column, expr: "EXCLUDED." + column}
}

// upsertPlan describes one natural-key upsert. Its statement returns
// (key, inserted, changed) in a single round trip: the CTE yields a row when
// it inserts or actually changes something, and the fallback SELECT finds
// the untouched existing row otherwise.
type upsertPlan struct {
	table    string
	columns  []string
	conflict []string
	rules    []mergeRule
	key      string
}

func (u upsertPlan) sql() string {
	placeholders := make([]string, len(u.columns))
	for i := range u.columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sets := make([]string, 0, len(u.rules)+1)
	current := make([]string, 0, len(u.rules))
	next := make([]string, 0, len(u.rules))
	for _, r := range u.rules {
		sets = append(sets, fmt.Sprintf("%s = %s", r.column, r.expr))
		current = append(current, "t."+r.column)
		next = append(next, r.expr)
	}
	sets = append(sets, "updated_at = now()")

	lookup := make([]string, 0, len(u.conflict))
	for _, c := range u.conflict {
		lookup = append(lookup, fmt.Sprintf("%s = $%d", c, u.position(c)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "WITH upserted AS (\n")
	fmt.Fprintf(&b, "\tINSERT INTO %s AS t (%s)\n", u.table, strings.Join(u.columns, ", "))
	fmt.Fprintf(&b, "\tVALUES (%s)\n", strings.Join(placeholders, ", "))
	fmt.Fprintf(&b, "\tON CONFLICT (%s) DO UPDATE SET\n\t\t%s\n", strings.Join(u.conflict, ", "), strings.Join(sets, ",\n\t\t"))
	fmt.Fprintf(&b, "\tWHERE (%s) IS DISTINCT FROM (%s)\n", strings.Join(current, ", "), strings.Join(next, ", "))
	fmt.Fprintf(&b, "\tRETURNING t.%s, (t.xmax = 0) AS inserted\n)\n", u.key)
	fmt.Fprintf(&b, "SELECT %s, inserted, true FROM upserted\nUNION ALL\n", u.key)
	fmt.Fprintf(&b, "SELECT %s, false, false FROM %s\nWHERE %s AND NOT EXISTS (SELECT 1 FROM upserted)",
		u.key, u.table, strings.Join(lookup, " AND "))
	return b.String()
}

func (u upsertPlan) position(column string) int {
	for i, c := range u.columns {
		if c == column {
			return i + 1
		}
	}
	panic(fmt.Sprintf("postgres: conflict column %q is not inserted into %s", column, u.table))
}

var (
	rallyUpsert = upsertPlan{
		table: "rallies",
		columns: []string{
			"season", "round", "name", "official_name", "country", "surface",
			"start_date", "end_date", "total_stages", "status", "event_id",
		},
		conflict: []string{"season", "round"},
		rules: []mergeRule{
			{column: "name", expr: "COALESCE(NULLIF(EXCLUDED.name, ''), t.name)"},
			coalesceCol("official_name"),
			coalesceCol("country"),
			coalesceCol("surface"),
			coalesceCol("start_date"),
			coalesceCol("end_date"),
			coalesceCol("total_stages"),
			{column: "status", expr: "CASE WHEN t.status = 'completed' THEN t.status ELSE EXCLUDED.status END"},
			coalesceCol("event_id"),
		},
		key: "id",
	}

	stageUpsert = upsertPlan{
		table: "stages",
		columns: []string{
			"rally_id", "stage_number", "name", "distance_km", "surface",
			"is_power_stage", "leg", "stage_date", "start_time",
		},
		conflict: []string{"rally_id", "stage_number"},
		rules: []mergeRule{
			coalesceCol("name"),
			coalesceCol("distance_km"),
			coalesceCol("surface"),
			coalesceCol("is_power_stage"),
			coalesceCol("leg"),
			coalesceCol("stage_date"),
			coalesceCol("start_time"),
		},
		key: "id",
	}

	manufacturerUpsert = upsertPlan{
		table:    "manufacturers",
		columns:  []string{"name", "full_name", "nationality", "logo_url"},
		conflict: []string{"name"},
		rules: []mergeRule{
			coalesceCol("full_name"),
			coalesceCol("nationality"),
			coalesceCol("logo_url"),
		},
		key: "id",
	}

	crewUpsert = upsertPlan{
		table: "crews",
		columns: []string{
			"rally_id", "driver_id", "codriver_id", "manufacturer_id",
			"car_number", "car_class", "team_name", "status",
		},
		conflict: []string{"rally_id", "driver_id"},
		rules: []mergeRule{
			coalesceCol("codriver_id"),
			coalesceCol("manufacturer_id"),
			coalesceCol("car_number"),
			coalesceCol("car_class"),
			coalesceCol("team_name"),
			coalesceCol("status"),
		},
		key: "id",
	}

	// Unscored rows send NULL points, which COALESCE leaves untouched.
	overallUpsert = upsertPlan{
		table: "overall_results",
		columns: []string{
			"rally_id", "crew_id", "position", "total_time_ms", "gap_first_ms",
			"points_overall", "points_power_stage", "points_super_sunday", "points_total",
			"status", "retirement_reason",
		},
		conflict: []string{"rally_id", "crew_id"},
		rules: []mergeRule{
			overwriteCol("position"),
			coalesceCol("total_time_ms"),
			coalesceCol("gap_first_ms"),
			coalesceCol("points_overall"),
			coalesceCol("points_power_stage"),
			coalesceCol("points_super_sunday"),
			coalesceCol("points_total"),
			overwriteCol("status"),
			coalesceCol("retirement_reason"),
		},
		key: "crew_id",
	}

	stageResultUpsert = upsertPlan{
		table: "stage_results",
		columns: []string{
			"stage_id", "crew_id", "stage_position", "stage_time_ms", "overall_position",
			"overall_time_ms", "gap_first_ms", "gap_prev_ms", "penalty_ms", "penalty_reason",
		},
		conflict: []string{"stage_id", "crew_id"},
		rules: []mergeRule{
			overwriteCol("stage_position"),
			coalesceCol("stage_time_ms"),
			overwriteCol("overall_position"),
			coalesceCol("overall_time_ms"),
			coalesceCol("gap_first_ms"),
			coalesceCol("gap_prev_ms"),
			coalesceCol("penalty_ms"),
			coalesceCol("penalty_reason"),
		},
		key: "crew_id",
	}
)

func personUpsert(table string) upsertPlan {
	return upsertPlan{
		table:    table,
		columns:  []string{"name", "full_name", "nationality", "external_id"},
		conflict: []string{"name"},
		rules: []mergeRule{
			coalesceCol("full_name"),
			coalesceCol("nationality"),
			coalesceCol("external_id"),
		},
		key: "id",
	}
}
