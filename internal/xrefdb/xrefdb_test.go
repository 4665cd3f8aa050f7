package xrefdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexlens/internal/dexfile/dextest"
	"dexlens/internal/session"
)

func indexSample(t *testing.T) (*DB, Stats, dextest.SampleIDs) {
	t.Helper()
	buf, id := dextest.Sample()
	s, err := session.Open(buf, session.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	db, err := Open(filepath.Join(t.TempDir(), "xref.db"), log.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st, err := db.Index(context.Background(), s)
	require.NoError(t, err)
	return db, st, id
}

func sigs(ms []MethodRef) []string {
	var out []string
	for _, m := range ms {
		out = append(out, m.Signature)
	}
	return out
}

func TestIndexStats(t *testing.T) {
	db, st, _ := indexSample(t)

	assert.Equal(t, 2, st.Classes)
	assert.Equal(t, 6, st.Methods)
	assert.Equal(t, 4, st.Bodies)
	assert.Equal(t, 0, st.ScanErrors)
	assert.Equal(t, 3, st.Invokes)

	n, err := db.Count(context.Background(), "invokes")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = db.Count(context.Background(), "sqlite_master; DROP TABLE methods")
	assert.Error(t, err)
}

func TestCallers(t *testing.T) {
	db, _, id := indexSample(t)
	ctx := context.Background()

	callers, err := db.Callers(ctx, "Lcom/example/Main;->log(Ljava/lang/String;)V")
	require.NoError(t, err)
	require.Len(t, callers, 2)
	assert.Equal(t, id.MainM, callers[0].Idx)
	assert.Equal(t, id.Run, callers[1].Idx)
	assert.Equal(t, "Lcom/example/Helper;", callers[1].Class)

	callees, err := db.Callees(ctx, "Lcom/example/Main;-><init>()V")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ljava/lang/Object;-><init>()V"}, sigs(callees))

	none, err := db.Callers(ctx, "Lcom/example/Main;->missing()V")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStringAndFieldUsers(t *testing.T) {
	db, _, _ := indexSample(t)
	ctx := context.Background()

	users, err := db.StringUsers(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"Lcom/example/Main;->main([Ljava/lang/String;)V"}, sigs(users))

	users, err = db.StringUsers(ctx, "jumbo")
	require.NoError(t, err)
	assert.Equal(t, []string{"Lcom/example/Helper;->run()V"}, sigs(users))

	readers, err := db.FieldAccessors(ctx, "Lcom/example/Main;->TAG:Ljava/lang/String;", false)
	require.NoError(t, err)
	assert.Len(t, readers, 1)

	writers, err := db.FieldAccessors(ctx, "Lcom/example/Main;->TAG:Ljava/lang/String;", true)
	require.NoError(t, err)
	assert.Empty(t, writers)

	writers, err = db.FieldAccessors(ctx, "Lcom/example/Main;->count:I", true)
	require.NoError(t, err)
	assert.Len(t, writers, 1)
}

func TestReindexReplaces(t *testing.T) {
	db, _, _ := indexSample(t)
	buf, _ := dextest.Sample()
	s, err := session.Open(buf, session.Options{})
	require.NoError(t, err)
	defer s.Close()

	st, err := db.Index(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Bodies)

	n, err := db.Count(context.Background(), "methods")
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	dups, err := db.DuplicateBodies(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dups)
}

func TestIndexCanceled(t *testing.T) {
	buf, _ := dextest.Sample()
	s, err := session.Open(buf, session.Options{})
	require.NoError(t, err)
	defer s.Close()

	db, err := Open(filepath.Join(t.TempDir(), "xref.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = db.Index(ctx, s)
	assert.Error(t, err)
}
