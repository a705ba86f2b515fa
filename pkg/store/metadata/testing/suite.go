package testing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittorepo/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite is a conformance suite for metadata.Store implementations.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &storetesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) metadata.Store {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func(t *testing.T) metadata.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Put_AssignsIncreasingIDs", suite.testPutAssignsIDs)
	t.Run("Put_NormalizesRecord", suite.testPutNormalizes)
	t.Run("Put_RejectsDuplicatePath", suite.testPutDuplicate)
	t.Run("Put_RejectsInvalidRecord", suite.testPutInvalid)
	t.Run("Get_RoundTrip", suite.testGetRoundTrip)
	t.Run("Get_NotFound", suite.testGetNotFound)
	t.Run("GetByPath", suite.testGetByPath)
	t.Run("List_ScopedToRepository", suite.testListScoped)
	t.Run("Delete", suite.testDelete)
	t.Run("RootRecord", suite.testRootRecord)
	t.Run("ConcurrentPut", suite.testConcurrentPut)
	t.Run("ContextCancelled", suite.testContextCancelled)
	t.Run("Healthcheck", suite.testHealthcheck)
}

func testContext() context.Context {
	return context.Background()
}

func newStore(t *testing.T, suite *StoreTestSuite) metadata.Store {
	store := suite.NewStore(t)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRecord(repository, dir, name string) *metadata.FileRecord {
	return &metadata.FileRecord{
		Repository: repository,
		Path:       dir,
		Name:       name,
		Size:       1024,
		Mtime:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		MimeType:   "image/tiff",
	}
}

func (suite *StoreTestSuite) testPutAssignsIDs(t *testing.T) {
	store := newStore(t, suite)

	first, err := store.Put(testContext(), sampleRecord("main", "/images/", "a.tif"))
	require.NoError(t, err)
	second, err := store.Put(testContext(), sampleRecord("main", "/images/", "b.tif"))
	require.NoError(t, err)

	assert.Greater(t, first.ID, int64(0))
	assert.Greater(t, second.ID, first.ID)
}

func (suite *StoreTestSuite) testPutNormalizes(t *testing.T) {
	store := newStore(t, suite)

	in := sampleRecord("main", "images", "a.tif")
	rec, err := store.Put(testContext(), in)
	require.NoError(t, err)

	assert.Equal(t, "/images/", rec.Path)
	assert.Equal(t, metadata.UnknownChecksum, rec.Checksum)
	assert.False(t, rec.Registered.IsZero())
	assert.Equal(t, int64(0), in.ID, "Put must not mutate the caller's record")
}

func (suite *StoreTestSuite) testPutDuplicate(t *testing.T) {
	store := newStore(t, suite)

	_, err := store.Put(testContext(), sampleRecord("main", "/images/", "a.tif"))
	require.NoError(t, err)

	_, err = store.Put(testContext(), sampleRecord("main", "images", "a.tif"))
	require.Error(t, err)
	assert.True(t, metadata.IsAlreadyExistsError(err), "expected ErrAlreadyExists, got %v", err)

	// same path in another repository is a different record
	_, err = store.Put(testContext(), sampleRecord("other", "/images/", "a.tif"))
	require.NoError(t, err)
}

func (suite *StoreTestSuite) testPutInvalid(t *testing.T) {
	store := newStore(t, suite)

	withID := sampleRecord("main", "/", "a.tif")
	withID.ID = 42

	for _, rec := range []*metadata.FileRecord{
		nil,
		withID,
		sampleRecord("", "/", "a.tif"),
		sampleRecord("main", "/images/", ""),
	} {
		_, err := store.Put(testContext(), rec)
		AssertStoreErrorCode(t, metadata.ErrInvalidArgument, err)
	}
}

func (suite *StoreTestSuite) testGetRoundTrip(t *testing.T) {
	store := newStore(t, suite)

	put, err := store.Put(testContext(), sampleRecord("main", "/images/", "foo.tif"))
	require.NoError(t, err)

	got, err := store.Get(testContext(), put.ID)
	require.NoError(t, err)

	assert.Equal(t, put.ID, got.ID)
	assert.Equal(t, "main", got.Repository)
	assert.Equal(t, "/images/", got.Path)
	assert.Equal(t, "foo.tif", got.Name)
	assert.Equal(t, int64(1024), got.Size)
	assert.Equal(t, "image/tiff", got.MimeType)
	assert.True(t, got.Mtime.Equal(put.Mtime), "mtime %v != %v", got.Mtime, put.Mtime)
	assert.Equal(t, "/images/foo.tif", got.FullPath())
}

func (suite *StoreTestSuite) testGetNotFound(t *testing.T) {
	store := newStore(t, suite)

	_, err := store.Get(testContext(), 999)
	AssertStoreErrorCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testGetByPath(t *testing.T) {
	store := newStore(t, suite)

	put, err := store.Put(testContext(), sampleRecord("main", "/a/b/", "c.png"))
	require.NoError(t, err)

	got, err := store.GetByPath(testContext(), "main", "a/b", "c.png")
	require.NoError(t, err)
	assert.Equal(t, put.ID, got.ID)

	_, err = store.GetByPath(testContext(), "main", "/a/b/", "missing.png")
	AssertStoreErrorCode(t, metadata.ErrNotFound, err)

	_, err = store.GetByPath(testContext(), "other", "/a/b/", "c.png")
	AssertStoreErrorCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testListScoped(t *testing.T) {
	store := newStore(t, suite)

	for _, name := range []string{"1.tif", "2.tif", "3.tif"} {
		_, err := store.Put(testContext(), sampleRecord("main", "/", name))
		require.NoError(t, err)
	}
	_, err := store.Put(testContext(), sampleRecord("other", "/", "x.tif"))
	require.NoError(t, err)

	recs, err := store.List(testContext(), "main")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i := 1; i < len(recs); i++ {
		assert.Less(t, recs[i-1].ID, recs[i].ID, "List must be ordered by ID")
	}

	empty, err := store.List(testContext(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func (suite *StoreTestSuite) testDelete(t *testing.T) {
	store := newStore(t, suite)

	put, err := store.Put(testContext(), sampleRecord("main", "/", "gone.tif"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(testContext(), put.ID))

	_, err = store.Get(testContext(), put.ID)
	AssertStoreErrorCode(t, metadata.ErrNotFound, err)

	AssertStoreErrorCode(t, metadata.ErrNotFound, store.Delete(testContext(), put.ID))

	// path is free again, and the new record gets a fresh id
	again, err := store.Put(testContext(), sampleRecord("main", "/", "gone.tif"))
	require.NoError(t, err)
	assert.NotEqual(t, put.ID, again.ID)
}

func (suite *StoreTestSuite) testRootRecord(t *testing.T) {
	store := newStore(t, suite)

	root, err := store.Put(testContext(), &metadata.FileRecord{
		Repository: "main",
		Path:       "/",
		MimeType:   metadata.DirectoryMimeType,
	})
	require.NoError(t, err)
	assert.True(t, root.IsRoot())

	got, err := store.GetByPath(testContext(), "main", "/", "")
	require.NoError(t, err)
	assert.Equal(t, root.ID, got.ID)
}

func (suite *StoreTestSuite) testConcurrentPut(t *testing.T) {
	store := newStore(t, suite)

	const workers = 16
	ids := make(chan int64, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := store.Put(testContext(), sampleRecord("main", "/", string(rune('a'+i))+".tif"))
			if assert.NoError(t, err) {
				ids <- rec.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers)
}

func (suite *StoreTestSuite) testContextCancelled(t *testing.T) {
	store := newStore(t, suite)

	ctx, cancel := context.WithCancel(testContext())
	cancel()

	_, err := store.Put(ctx, sampleRecord("main", "/", "a.tif"))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.Get(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func (suite *StoreTestSuite) testHealthcheck(t *testing.T) {
	store := newStore(t, suite)
	assert.NoError(t, store.Healthcheck(testContext()))
}

// AssertStoreErrorCode asserts err is a *metadata.StoreError with the given code.
func AssertStoreErrorCode(t *testing.T, code metadata.ErrorCode, err error) {
	t.Helper()

	require.Error(t, err)
	storeErr, ok := err.(*metadata.StoreError)
	require.True(t, ok, "expected *metadata.StoreError, got %T: %v", err, err)
	assert.Equal(t, code, storeErr.Code, "unexpected error code: %v", err)
}
