package dbutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/didi/gendry/builder"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestFinalize(t *testing.T) {
	q, args, err := Finalize("SELECT a FROM t WHERE b = ? LIMIT ?, ?", []interface{}{"x", 10, 20}, nil)
	require.NoError(t, err)
	require.Equal(t, "SELECT a FROM t WHERE b = $1 LIMIT $2 OFFSET $3", q)
	require.Equal(t, []interface{}{"x", 20, 10}, args)

	q, _, err = Finalize(builder.BuildUpdate("prompt_templates", map[string]interface{}{"model_id": "m"}, map[string]interface{}{"prompt": "p"}))
	require.NoError(t, err)
	require.Contains(t, q, "$1")
	require.Contains(t, q, "$2")
	require.NotContains(t, q, "?")

	boom := errors.New("bad where")
	_, _, err = Finalize("", nil, boom)
	require.ErrorIs(t, err, boom)
}

func TestIsConflict(t *testing.T) {
	require.True(t, IsConflict(&pq.Error{Code: "23505"}))
	require.True(t, IsConflict(fmt.Errorf("upsert: %w", &pq.Error{Code: "23505"})))
	require.False(t, IsConflict(&pq.Error{Code: "23503"}))
	require.False(t, IsConflict(errors.New("x")))
}
