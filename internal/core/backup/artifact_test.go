package backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStamp_UTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	ts := time.Date(2026, 3, 14, 10, 30, 5, 0, loc)
	assert.Equal(t, "20260314T093005Z", Stamp(ts))
}

func TestFileNameRoundTrip(t *testing.T) {
	id := Stamp(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	for _, scope := range []Scope{ScopeDatabase, ScopeMedia} {
		name := FileName(scope, id)
		gotScope, gotID, err := ParseFileName(name)
		require.NoError(t, err, name)
		assert.Equal(t, scope, gotScope)
		assert.Equal(t, id, gotID)
	}
}

func TestTempName_NeverParsesAsArtifact(t *testing.T) {
	id := Stamp(time.Now())
	for _, scope := range []Scope{ScopeDatabase, ScopeMedia} {
		_, _, err := ParseFileName(TempName(scope, id))
		assert.ErrorIs(t, err, ErrBadArtifactName)
	}
}

func TestParseFileName_Rejects(t *testing.T) {
	for _, name := range []string{
		"db-.dump",
		"db-notatime.dump",
		"media-20260102.tar.gz", // truncated timestamp
		"backup.sql",
		"",
	} {
		_, _, err := ParseFileName(name)
		assert.ErrorIs(t, err, ErrBadArtifactName, name)
	}
}

func TestSortNewestFirst(t *testing.T) {
	a := []Artifact{
		{ID: "20260101T000000Z", Scope: ScopeMedia},
		{ID: "20260201T000000Z", Scope: ScopeMedia},
		{ID: "20260201T000000Z", Scope: ScopeDatabase},
	}
	SortNewestFirst(a)

	assert.Equal(t, "20260201T000000Z", a[0].ID)
	assert.Equal(t, ScopeDatabase, a[0].Scope)
	assert.Equal(t, ScopeMedia, a[1].Scope)
	assert.Equal(t, "20260101T000000Z", a[2].ID)
}
