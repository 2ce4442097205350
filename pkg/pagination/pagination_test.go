package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, 11, LimitWithBuffer(10))
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 123, time.UTC), ID: uuid.New()}
	out, err := ParseCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)

	empty, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, empty)

	for _, bad := range []string{"not-base64!", "c2hvcnQ", EncodeCursor(Cursor{CreatedAt: time.Now()})} {
		_, err = ParseCursor(bad)
		assert.ErrorIs(t, err, ErrInvalidCursor, bad)
	}
}

func TestCursorIsURLSafe(t *testing.T) {
	for range 50 {
		c := EncodeCursor(Cursor{CreatedAt: time.Now(), ID: uuid.New()})
		assert.NotContains(t, c, "+")
		assert.NotContains(t, c, "/")
		assert.NotContains(t, c, "=")
	}
}

func TestKeysetPagesThroughTies(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	type item struct {
		ID        uuid.UUID `gorm:"primaryKey"`
		CreatedAt time.Time
	}
	require.NoError(t, db.AutoMigrate(&item{}))

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var all []item
	for i := range 5 {
		// three rows share a timestamp so the id tiebreak matters
		all = append(all, item{ID: uuid.New(), CreatedAt: at.Add(-time.Duration(i/3) * time.Minute)})
	}
	require.NoError(t, db.Create(&all).Error)

	seen := map[uuid.UUID]bool{}
	var cursor *Cursor
	for pages := 0; pages < 5; pages++ {
		var rows []item
		require.NoError(t, db.Scopes(Keyset(cursor, 2)).Find(&rows).Error)
		page := Trim(rows, 2, func(r item) Cursor { return Cursor{CreatedAt: r.CreatedAt, ID: r.ID} })
		for _, r := range page.Items {
			assert.False(t, seen[r.ID], "row returned twice")
			seen[r.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		cursor, err = ParseCursor(page.NextCursor)
		require.NoError(t, err)
	}
	assert.Len(t, seen, 5)
}

func TestTrim(t *testing.T) {
	type row struct {
		id uuid.UUID
		at time.Time
	}
	now := time.Now().UTC()
	rows := []row{{uuid.New(), now}, {uuid.New(), now.Add(-time.Minute)}, {uuid.New(), now.Add(-2 * time.Minute)}}
	cursorOf := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page := Trim(rows, 2, cursorOf)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)
	next, err := ParseCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, rows[1].id, next.ID)

	last := Trim(rows[:1], 2, cursorOf)
	assert.Empty(t, last.NextCursor)

	none := Trim[row](nil, 2, cursorOf)
	assert.NotNil(t, none.Items)
}
