package database

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// tableMeta is the merge-relevant shape of one table, discovered from the
// live schema (see introspect.go).
type tableMeta struct {
	Name         string
	Columns      []string
	PrimaryKey   []string
	VersionKey   string
	TombstoneCol string
}

// mergeRule pairs one column with its conflict-resolution behavior. The
// ordered rule list is built once per table from introspected metadata and
// then compiled to SQL, instead of concatenating ad-hoc strings per call.
type mergeRule struct {
	Column string
	Rule   columnRule
}

type columnRule int

const (
	// ruleKey: conflict key, never updated.
	ruleKey columnRule = iota
	// ruleVersion: always set when the merge fires, subject to the
	// tombstone policy.
	ruleVersion
	// ruleTombstone: the nullification flag, always set from incoming.
	ruleTombstone
	// rulePayload: set from incoming unless the incoming row is a
	// tombstone, in which case the existing value survives. Nullification
	// messages are sparse: they withdraw a case without repeating it.
	rulePayload
)

// mergeRules derives the ordered column rule list for meta.
func mergeRules(meta tableMeta) []mergeRule {
	pk := make(map[string]bool, len(meta.PrimaryKey))
	for _, c := range meta.PrimaryKey {
		pk[c] = true
	}
	rules := make([]mergeRule, 0, len(meta.Columns))
	for _, col := range meta.Columns {
		switch {
		case pk[col]:
			rules = append(rules, mergeRule{col, ruleKey})
		case col == meta.VersionKey:
			rules = append(rules, mergeRule{col, ruleVersion})
		case col == meta.TombstoneCol:
			rules = append(rules, mergeRule{col, ruleTombstone})
		default:
			rules = append(rules, mergeRule{col, rulePayload})
		}
	}
	return rules
}

// buildUpsertSQL compiles the merge of staging into target.
//
// Eligibility per conflicting row: the incoming version is newer, or the
// incoming row is a nullification. When the merge fires the version marker
// and tombstone flag always come from the incoming row; payload columns
// survive a tombstone untouched. Tables without a version key degrade to
// first-write-wins.
//
// Duplicate keys inside one staging batch are collapsed to the highest
// version before the merge, so a file carrying two revisions of the same
// case cannot trip the "row affected twice" restriction.
func buildUpsertSQL(meta tableMeta, staging string, policy TombstonePolicy) string {
	target := pgx.Identifier{meta.Name}.Sanitize()
	source := pgx.Identifier{staging}.Sanitize()

	cols := make([]string, len(meta.Columns))
	for i, c := range meta.Columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
	}
	keys := make([]string, len(meta.PrimaryKey))
	for i, c := range meta.PrimaryKey {
		keys[i] = pgx.Identifier{c}.Sanitize()
	}
	colList := strings.Join(cols, ", ")
	keyList := strings.Join(keys, ", ")

	var selectClause string
	if meta.VersionKey != "" {
		vk := pgx.Identifier{meta.VersionKey}.Sanitize()
		selectClause = fmt.Sprintf(
			"SELECT DISTINCT ON (%s) %s FROM %s ORDER BY %s, %s DESC NULLS LAST",
			keyList, colList, source, keyList, vk)
	} else {
		selectClause = fmt.Sprintf(
			"SELECT DISTINCT ON (%s) %s FROM %s",
			keyList, colList, source)
	}

	if meta.VersionKey == "" {
		return fmt.Sprintf(
			"INSERT INTO %s (%s) %s ON CONFLICT (%s) DO NOTHING",
			target, colList, selectClause, keyList)
	}

	vk := pgx.Identifier{meta.VersionKey}.Sanitize()
	var assignments []string
	for _, rule := range mergeRules(meta) {
		col := pgx.Identifier{rule.Column}.Sanitize()
		switch rule.Rule {
		case ruleKey:
			continue
		case ruleVersion:
			if policy == TombstonePreserve {
				assignments = append(assignments, fmt.Sprintf(
					"%s = GREATEST(%s.%s, EXCLUDED.%s)", col, target, col, col))
			} else {
				assignments = append(assignments, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
			}
		case ruleTombstone:
			assignments = append(assignments, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		case rulePayload:
			if meta.TombstoneCol != "" {
				tc := pgx.Identifier{meta.TombstoneCol}.Sanitize()
				assignments = append(assignments, fmt.Sprintf(
					"%s = CASE WHEN EXCLUDED.%s THEN %s.%s ELSE EXCLUDED.%s END",
					col, tc, target, col, col))
			} else {
				assignments = append(assignments, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
			}
		}
	}

	condition := fmt.Sprintf("%s.%s < EXCLUDED.%s", target, vk, vk)
	if meta.TombstoneCol != "" {
		tc := pgx.Identifier{meta.TombstoneCol}.Sanitize()
		condition = fmt.Sprintf("(%s OR EXCLUDED.%s)", condition, tc)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) %s ON CONFLICT (%s) DO UPDATE SET %s WHERE %s",
		target, colList, selectClause, keyList, strings.Join(assignments, ", "), condition)
}
