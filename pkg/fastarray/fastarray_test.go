package fastarray_test

import (
	"errors"
	"testing"
	"time"

	"github.com/fastqueue/fastqueue/pkg/fastarray"
	"github.com/stretchr/testify/require"
)

func newArray(t *testing.T) *fastarray.Array {
	t.Helper()

	a, err := fastarray.Open(fastarray.Options{
		Dir:          t.TempDir(),
		DataPageSize: fastarray.MinDataPageSize,
		MetaPageSize: 1024,
		CacheTTL:     time.Hour,
	})
	require.NoError(t, err)

	return a
}

func TestArray_AppendGetRoundTrip(t *testing.T) {
	a := newArray(t)

	id, err := a.Append([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, uint64(0), id)

	got, err := a.Get(id)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
	require.Equal(t, uint64(1), a.Size())
}

func TestArray_AppendAssignsMonotonicIds(t *testing.T) {
	a := newArray(t)

	for i := 0; i < 5; i++ {
		id, err := a.Append([]byte{byte(i)})
		require.NoError(t, err)
		require.Equal(t, uint64(i), id)
	}

	require.Equal(t, uint64(5), a.HeadIndex())
	require.Equal(t, uint64(0), a.TailIndex())
}

func TestArray_GetOutOfBoundsReturnsError(t *testing.T) {
	a := newArray(t)

	_, err := a.Get(0)
	require.True(t, errors.Is(err, fastarray.ErrOutOfBounds))

	_, err = a.Append([]byte("x"))
	require.NoError(t, err)

	_, err = a.Get(1)
	require.True(t, errors.Is(err, fastarray.ErrOutOfBounds))
}

func TestArray_AppendRejectsRecordLargerThanDataPage(t *testing.T) {
	a := newArray(t)

	_, err := a.Append(make([]byte, fastarray.MinDataPageSize+1))
	require.True(t, errors.Is(err, fastarray.ErrRecordTooLarge))
}

func TestArray_RemoveBeforeIndexReclaimsPagesAndKeepsRangeRetrievable(t *testing.T) {
	a, err := fastarray.Open(fastarray.Options{
		Dir:          t.TempDir(),
		DataPageSize: fastarray.MinDataPageSize,
		MetaPageSize: 1024, // 32 records per page
		CacheTTL:     time.Hour,
	})
	require.NoError(t, err)

	const n = 96 // 3 full meta pages

	for i := 0; i < n; i++ {
		_, err := a.Append([]byte{byte(i)})
		require.NoError(t, err)
	}

	require.NoError(t, a.RemoveBeforeIndex(40))

	// tail advances to the start of 40's metadata page (page 1 -> id 32).
	require.Equal(t, uint64(32), a.TailIndex())

	for id := uint64(32); id < n; id++ {
		b, err := a.Get(id)
		require.NoErrorf(t, err, "id %d should still be retrievable", id)
		require.Equal(t, []byte{byte(id)}, b)
	}

	_, err = a.Get(0)
	require.True(t, errors.Is(err, fastarray.ErrOutOfBounds))
}

func TestArray_RemoveBeforeIndexDoesNotStrandIDsSharingATailMetaPage(t *testing.T) {
	// A single metadata page can span several data pages once records are
	// smaller than a data page. RemoveBeforeIndex must advance TailIndex to
	// the first id whose own data page survived, not to the start of id's
	// metadata page, or ids recorded earlier in that same metadata page
	// would look in-range while their backing data page is already gone.
	a, err := fastarray.Open(fastarray.Options{
		Dir:          t.TempDir(),
		DataPageSize: fastarray.MinDataPageSize,
		MetaPageSize: 128, // 4 records per meta page
		CacheTTL:     time.Hour,
	})
	require.NoError(t, err)

	record := make([]byte, fastarray.MinDataPageSize/2) // 2 records per data page

	const n = 8
	for i := 0; i < n; i++ {
		_, err := a.Append(record)
		require.NoError(t, err)
	}

	// id 6 sits on data page 3, in the same meta page as ids 4 and 5 which
	// sit on data page 2. RemoveBeforeIndex(6) reclaims data pages < 3, so
	// tail must land on 6, not on 4 (the start of its meta page).
	require.NoError(t, a.RemoveBeforeIndex(6))
	require.Equal(t, uint64(6), a.TailIndex())

	for _, id := range []uint64{4, 5} {
		_, err := a.Get(id)
		require.Truef(t, errors.Is(err, fastarray.ErrOutOfBounds), "id %d should be out of range, not corrupted", id)
	}

	for id := uint64(6); id < n; id++ {
		b, err := a.Get(id)
		require.NoErrorf(t, err, "id %d should still be retrievable", id)
		require.Equal(t, record, b)
	}
}

func TestArray_RemoveBeforeIndexIgnoresOutOfRangeID(t *testing.T) {
	a := newArray(t)

	_, err := a.Append([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, a.RemoveBeforeIndex(999))
	require.Equal(t, uint64(0), a.TailIndex())
}

func TestArray_RemoveAllResetsToEmpty(t *testing.T) {
	a := newArray(t)

	for i := 0; i < 3; i++ {
		_, err := a.Append([]byte{byte(i)})
		require.NoError(t, err)
	}

	require.NoError(t, a.RemoveAll())

	require.Equal(t, uint64(0), a.Size())
	require.Equal(t, uint64(0), a.HeadIndex())
	require.Equal(t, uint64(0), a.TailIndex())

	id, err := a.Append([]byte("after reset"))
	require.NoError(t, err)
	require.Equal(t, uint64(0), id)
}

func TestArray_FlushSucceedsAfterAppend(t *testing.T) {
	a := newArray(t)

	_, err := a.Append([]byte("flush me"))
	require.NoError(t, err)

	require.NoError(t, a.Flush())
}

func TestArray_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	a, err := fastarray.Open(fastarray.Options{
		Dir:          dir,
		DataPageSize: fastarray.MinDataPageSize,
		MetaPageSize: 1024,
		CacheTTL:     time.Hour,
	})
	require.NoError(t, err)

	var ids []uint64

	for i := 0; i < 10; i++ {
		id, err := a.Append([]byte{byte(i), byte(i)})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, a.Flush())
	require.NoError(t, a.Close())

	reopened, err := fastarray.Open(fastarray.Options{
		Dir:          dir,
		DataPageSize: fastarray.MinDataPageSize,
		MetaPageSize: 1024,
		CacheTTL:     time.Hour,
	})
	require.NoError(t, err)

	require.Equal(t, uint64(10), reopened.HeadIndex())
	require.Equal(t, uint64(0), reopened.TailIndex())

	for _, id := range ids {
		b, err := reopened.Get(id)
		require.NoError(t, err)
		require.Equal(t, []byte{byte(id), byte(id)}, b)
	}

	// the bump allocator cursor must also have recovered correctly: a
	// further append must not clobber an existing record.
	newID, err := reopened.Append([]byte("eleventh"))
	require.NoError(t, err)
	require.Equal(t, uint64(10), newID)

	b, err := reopened.Get(ids[0])
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0}, b)
}

func TestArray_AppendAcrossDataPageBoundary(t *testing.T) {
	a, err := fastarray.Open(fastarray.Options{
		Dir:          t.TempDir(),
		DataPageSize: fastarray.MinDataPageSize,
		MetaPageSize: 1024,
		CacheTTL:     time.Hour,
	})
	require.NoError(t, err)

	big := make([]byte, fastarray.MinDataPageSize/2+1)
	for i := range big {
		big[i] = 0xAB
	}

	id1, err := a.Append(big)
	require.NoError(t, err)

	id2, err := a.Append(big)
	require.NoError(t, err)

	got1, err := a.Get(id1)
	require.NoError(t, err)
	require.Equal(t, big, got1)

	got2, err := a.Get(id2)
	require.NoError(t, err)
	require.Equal(t, big, got2)
}

func TestArray_RejectsInvalidConfig(t *testing.T) {
	_, err := fastarray.Open(fastarray.Options{Dir: ""})
	require.True(t, errors.Is(err, fastarray.ErrInvalidConfig))

	_, err = fastarray.Open(fastarray.Options{Dir: t.TempDir(), DataPageSize: 100})
	require.True(t, errors.Is(err, fastarray.ErrInvalidConfig))

	_, err = fastarray.Open(fastarray.Options{Dir: t.TempDir(), DataPageSize: fastarray.MinDataPageSize, MetaPageSize: 100})
	require.True(t, errors.Is(err, fastarray.ErrInvalidConfig))
}
