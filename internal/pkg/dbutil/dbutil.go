package dbutil

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

var mysqlLimit = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)

// Finalize turns a gendry query into postgres form: "LIMIT ?,?" becomes
// "LIMIT ? OFFSET ?" with its arguments swapped, and placeholders are
// renumbered to $n.
func Finalize(query string, args []interface{}) (string, []interface{}) {
	if loc := mysqlLimit.FindStringIndex(query); loc != nil {
		idx := strings.Count(query[:loc[0]], "?")
		if idx+1 < len(args) {
			args[idx], args[idx+1] = args[idx+1], args[idx]
			query = mysqlLimit.ReplaceAllString(query, "LIMIT ? OFFSET ?")
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}

func IsConflict(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}
