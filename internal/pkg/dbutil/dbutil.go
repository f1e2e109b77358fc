package dbutil

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var limitRegex = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)

// Finalize takes a gendry builder result straight through: it rewrites the
// MySQL style "LIMIT offset, count" into postgres "LIMIT count OFFSET offset"
// and rebinds '?' placeholders to $n.
func Finalize(query string, args []interface{}, err error) (string, []interface{}, error) {
	if err != nil {
		return "", nil, err
	}
	if loc := limitRegex.FindStringIndex(query); loc != nil {
		n := strings.Count(query[:loc[0]], "?")
		if n+1 < len(args) {
			args[n], args[n+1] = args[n+1], args[n]
			query = limitRegex.ReplaceAllString(query, "LIMIT ? OFFSET ?")
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args, nil
}

// IsConflict reports a unique violation anywhere in err's chain.
func IsConflict(err error) bool {
	var pgErr *pq.Error
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
