package grouper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logamizer/internal/parser"
	"logamizer/internal/store"
)

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"digits",
			"Database connection failed: pool exhausted (size=42)",
			`database connection failed: pool exhausted (size=N)`,
		},
		{
			"quoted strings",
			`unknown column "user_name" in table 'accounts'`,
			`unknown column "S" in table "S"`,
		},
		{
			"hex literal",
			"segfault at 0xDEADBEEF",
			"segfault at 0xHEX",
		},
		{
			"absolute path to basename",
			"cannot open /var/www/app/config.php",
			"cannot open config.php",
		},
		{
			"url",
			"request to https://api.example.com/v1/users failed",
			"request to URL failed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Canonicalize(tc.in))
		})
	}
}

func TestFingerprint_InvariantUnderValueSubstitution(t *testing.T) {
	a := Fingerprint("DatabaseError", "Database connection failed: pool exhausted (size=42)", "/app/db/pool.py", "acquire")
	b := Fingerprint("DatabaseError", "Database connection failed: pool exhausted (size=7)", "/app/db/pool.py", "acquire")
	assert.Equal(t, a, b, "digit substitution must not change the fingerprint")
	assert.Len(t, a, 32)

	c := Fingerprint("DatabaseError", "Database connection failed: pool exhausted (size=42)", "/app/db/pool.py", "release")
	assert.NotEqual(t, a, c, "function name is part of the identity")

	d := Fingerprint("TimeoutError", "Database connection failed: pool exhausted (size=42)", "/app/db/pool.py", "acquire")
	assert.NotEqual(t, a, d, "error type is part of the identity")
}

func TestFingerprint_PathReducedToBasename(t *testing.T) {
	a := Fingerprint("E", "m", "/srv/app/db/pool.py", "f")
	b := Fingerprint("E", "m", "/home/ci/build/db/pool.py", "f")
	assert.Equal(t, a, b, "only the basename participates")
}

func TestGrouper_SameShapeJoinsOneGroup(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	g := New("site-1", "file-1", mem)

	early := time.Date(2026, 1, 23, 10, 0, 0, 0, time.UTC)
	late := early.Add(3 * time.Hour)

	require.NoError(t, g.Process(ctx, &parser.ParsedError{
		ErrorType:    "DatabaseError",
		ErrorMessage: "Database connection failed: pool exhausted (size=42)",
		Timestamp:    late,
	}))
	require.NoError(t, g.Process(ctx, &parser.ParsedError{
		ErrorType:    "DatabaseError",
		ErrorMessage: "Database connection failed: pool exhausted (size=7)",
		Timestamp:    early,
	}))

	groups, err := mem.GetErrorGroups(ctx, "site-1")
	require.NoError(t, err)
	require.Len(t, groups, 1, "both occurrences share one group")

	group := groups[0]
	assert.Equal(t, int64(2), group.OccurrenceCount)
	assert.Equal(t, early, group.FirstSeen)
	assert.Equal(t, late, group.LastSeen)

	occs, err := mem.GetOccurrences(ctx, group.Fingerprint)
	require.NoError(t, err)
	assert.Len(t, occs, 2)
	assert.Equal(t, "file-1", occs[0].LogFileID)
	assert.Equal(t, int64(2), g.Processed())
}

func TestGrouper_DifferentShapesSplit(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	g := New("site-1", "file-1", mem)

	ts := time.Date(2026, 1, 23, 10, 0, 0, 0, time.UTC)
	require.NoError(t, g.Process(ctx, &parser.ParsedError{
		ErrorType: "DatabaseError", ErrorMessage: "pool exhausted", Timestamp: ts,
	}))
	require.NoError(t, g.Process(ctx, &parser.ParsedError{
		ErrorType: "TimeoutError", ErrorMessage: "upstream timed out", Timestamp: ts,
	}))

	groups, err := mem.GetErrorGroups(ctx, "site-1")
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}
