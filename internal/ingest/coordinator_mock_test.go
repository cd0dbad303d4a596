package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/cleared-dev/tally/internal/id"
	"github.com/cleared-dev/tally/internal/model"
	"github.com/cleared-dev/tally/internal/store"
)

const biltOneRow = "Transaction Date,Amount,Type,Reference,Description\n01/05/2024,-12.50,Purchase,R1,SWEETGREEN\n"

var biltOneRowID = id.Derive(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), decimal.RequireFromString("-12.50"), "SWEETGREEN")

// expectAccountAndImport sets up the calls every import makes before merging.
func expectAccountAndImport(ctx context.Context, mockStore *store.MockStore) {
	mockStore.EXPECT().
		FindImport(ctx, "Bilt.csv", gomock.Any()).
		Return(nil, nil)
	mockStore.EXPECT().
		CreateAccount(ctx, "Bilt", model.AccountTypeCreditCard).
		Return(&model.Account{ID: "acct-1", Name: "Bilt"}, nil)
	mockStore.EXPECT().
		CreateImport(ctx, "Bilt.csv", gomock.Any(), "acct-1").
		Return(&model.ImportRecord{ID: "imp-1"}, nil)
}

func TestImportFile_LostCreateRaceMergesIntoWinner(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockStore := store.NewMockStore(ctrl)
	expectAccountAndImport(ctx, mockStore)

	winner := &model.StoredTransaction{
		Transaction: model.Transaction{ID: biltOneRowID, Merchant: "SWEETGREEN", Note: "lunch"},
		AccountID:   "acct-1",
	}
	gomock.InOrder(
		mockStore.EXPECT().FindTransaction(ctx, biltOneRowID).Return(nil, nil),
		mockStore.EXPECT().CreateTransaction(ctx, gomock.Any(), "acct-1", "imp-1").Return(store.ErrTransactionExists),
		mockStore.EXPECT().FindTransaction(ctx, biltOneRowID).Return(winner, nil),
		mockStore.EXPECT().
			UpdateTransaction(ctx, biltOneRowID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, u model.TransactionUpdate) error {
				assert.Equal(t, "lunch", u.Note)
				assert.Equal(t, "Food", u.Category)
				assert.Equal(t, "-12.50", u.Amount.StringFixed(2))
				return nil
			}),
		mockStore.EXPECT().CompleteImport(ctx, "imp-1").Return(nil),
	)

	c := newTestCoordinator(mockStore)
	res, err := c.ImportFile(ctx, "Bilt.csv", []byte(biltOneRow))
	require.NoError(t, err)
	assert.Equal(t, 0, res.ImportedCount)
	assert.Equal(t, 1, res.DuplicateCount)
}

func TestImportFile_ManualLockCountsAsDuplicate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockStore := store.NewMockStore(ctrl)
	expectAccountAndImport(ctx, mockStore)

	mockStore.EXPECT().
		FindTransaction(ctx, biltOneRowID).
		Return(&model.StoredTransaction{Transaction: model.Transaction{ID: biltOneRowID}}, nil)
	mockStore.EXPECT().
		UpdateTransaction(ctx, biltOneRowID, gomock.Any()).
		Return(store.ErrManualLock)
	mockStore.EXPECT().CompleteImport(ctx, "imp-1").Return(nil)

	c := newTestCoordinator(mockStore)
	res, err := c.ImportFile(ctx, "Bilt.csv", []byte(biltOneRow))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.DuplicateCount)
}

func TestImportFile_ManualRowIsNotWritten(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockStore := store.NewMockStore(ctrl)
	expectAccountAndImport(ctx, mockStore)

	mockStore.EXPECT().
		FindTransaction(ctx, biltOneRowID).
		Return(&model.StoredTransaction{Transaction: model.Transaction{ID: biltOneRowID}, IsManual: true}, nil)
	mockStore.EXPECT().CompleteImport(ctx, "imp-1").Return(nil)

	c := newTestCoordinator(mockStore)
	res, err := c.ImportFile(ctx, "Bilt.csv", []byte(biltOneRow))
	require.NoError(t, err)
	assert.Equal(t, 1, res.DuplicateCount)
}

func TestImportFile_PersistenceErrorKeepsPartialCounts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockStore := store.NewMockStore(ctrl)
	expectAccountAndImport(ctx, mockStore)

	content := biltOneRow + "01/06/2024,-3.00,Purchase,R2,LA COLOMBE\n"
	boom := errors.New("connection reset")
	gomock.InOrder(
		mockStore.EXPECT().FindTransaction(ctx, biltOneRowID).Return(nil, nil),
		mockStore.EXPECT().CreateTransaction(ctx, gomock.Any(), "acct-1", "imp-1").Return(nil),
		mockStore.EXPECT().FindTransaction(ctx, gomock.Any()).Return(nil, boom),
	)

	c := newTestCoordinator(mockStore)
	res, err := c.ImportFile(ctx, "Bilt.csv", []byte(content))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.ImportedCount)
	assert.Equal(t, "Import failed: could not save transactions.", res.Message)
	assert.NotContains(t, res.Message, "connection reset")

	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, KindPersistence, ie.Kind)
	assert.Equal(t, StageMerging, ie.Stage)
	assert.True(t, ie.Retryable())
}

func TestImportFile_ResumesIncompleteImport(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockStore := store.NewMockStore(ctrl)
	incomplete := &model.ImportRecord{ID: "imp-1", Filename: "Bilt.csv", AccountID: "acct-1"}
	mockStore.EXPECT().FindImport(ctx, "Bilt.csv", gomock.Any()).Return(incomplete, nil)
	mockStore.EXPECT().CreateAccount(ctx, "Bilt", model.AccountTypeCreditCard).Return(&model.Account{ID: "acct-1"}, nil)
	gomock.InOrder(
		mockStore.EXPECT().FindTransaction(ctx, biltOneRowID).Return(nil, nil),
		mockStore.EXPECT().CreateTransaction(ctx, gomock.Any(), "acct-1", "imp-1").Return(nil),
		mockStore.EXPECT().CompleteImport(ctx, "imp-1").Return(nil),
	)

	c := newTestCoordinator(mockStore)
	res, err := c.ImportFile(ctx, "Bilt.csv", []byte(biltOneRow))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "imp-1", res.ImportID)
	assert.Equal(t, 1, res.ImportedCount)
}

func TestImportFile_CompletedImportIsDuplicate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockStore := store.NewMockStore(ctrl)
	mockStore.EXPECT().
		FindImport(ctx, "Bilt.csv", gomock.Any()).
		Return(&model.ImportRecord{ID: "imp-1", Completed: true}, nil)

	c := newTestCoordinator(mockStore)
	res, err := c.ImportFile(ctx, "Bilt.csv", []byte(biltOneRow))
	require.Error(t, err)
	assert.Equal(t, KindDuplicateFile, KindOf(err))
	assert.Equal(t, "This file has already been imported.", res.Message)
}

func TestImportFile_CompleteImportFailureIsRetryable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockStore := store.NewMockStore(ctrl)
	expectAccountAndImport(ctx, mockStore)
	mockStore.EXPECT().FindTransaction(ctx, biltOneRowID).Return(nil, nil)
	mockStore.EXPECT().CreateTransaction(ctx, gomock.Any(), "acct-1", "imp-1").Return(nil)
	mockStore.EXPECT().CompleteImport(ctx, "imp-1").Return(errors.New("disk full"))

	c := newTestCoordinator(mockStore)
	res, err := c.ImportFile(ctx, "Bilt.csv", []byte(biltOneRow))
	require.Error(t, err)
	assert.Equal(t, KindPersistence, KindOf(err))
	assert.False(t, res.Success)
}

func TestImportFile_LostImportRaceIsDuplicate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockStore := store.NewMockStore(ctrl)
	mockStore.EXPECT().FindImport(ctx, "Bilt.csv", gomock.Any()).Return(nil, nil)
	mockStore.EXPECT().CreateAccount(ctx, "Bilt", model.AccountTypeCreditCard).Return(&model.Account{ID: "acct-1"}, nil)
	mockStore.EXPECT().CreateImport(ctx, "Bilt.csv", gomock.Any(), "acct-1").Return(nil, store.ErrImportExists)

	c := newTestCoordinator(mockStore)
	res, err := c.ImportFile(ctx, "Bilt.csv", []byte(biltOneRow))
	require.Error(t, err)
	assert.Equal(t, KindDuplicateFile, KindOf(err))
	assert.Equal(t, "This file has already been imported.", res.Message)
}

func TestImportFile_ParseFailureWritesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockStore := store.NewMockStore(ctrl)
	mockStore.EXPECT().FindImport(ctx, "Vanguard.ofx", gomock.Any()).Return(nil, nil)

	c := newTestCoordinator(mockStore)
	res, err := c.ImportFile(ctx, "Vanguard.ofx", []byte("this is not ofx"))
	require.Error(t, err)
	assert.Equal(t, KindParseFailed, KindOf(err))
	assert.False(t, res.Success)
	assert.Equal(t, "Import failed: could not read file.", res.Message)
}

func TestImportFile_StoreDownBeforeParsing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockStore := store.NewMockStore(ctrl)
	mockStore.EXPECT().FindImport(ctx, "Bilt.csv", gomock.Any()).Return(nil, errors.New("dial tcp: refused"))

	c := newTestCoordinator(mockStore)
	_, err := c.ImportFile(ctx, "Bilt.csv", []byte(biltOneRow))
	require.Error(t, err)
	assert.Equal(t, KindPersistence, KindOf(err))
}

// batchingStore is a store that also persists writes in batches.
type batchingStore struct {
	*store.MockStore
	*store.MockBatcher
}

func TestImportFile_FailedBatchWriteResetsCounts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockStore := store.NewMockStore(ctrl)
	mockBatcher := store.NewMockBatcher(ctrl)
	expectAccountAndImport(ctx, mockStore)

	writeErr := errors.New("replacing transactions.csv: no space left on device")
	mockBatcher.EXPECT().
		Batch(ctx, gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(store.Store) error) error {
			require.NoError(t, fn(mockStore))
			return writeErr
		})
	mockStore.EXPECT().FindTransaction(ctx, biltOneRowID).Return(nil, nil)
	mockStore.EXPECT().CreateTransaction(ctx, gomock.Any(), "acct-1", "imp-1").Return(nil)
	mockStore.EXPECT().CompleteImport(ctx, "imp-1").Return(nil)

	c := newTestCoordinator(batchingStore{MockStore: mockStore, MockBatcher: mockBatcher})
	res, err := c.ImportFile(ctx, "Bilt.csv", []byte(biltOneRow))
	require.Error(t, err)
	assert.ErrorIs(t, err, writeErr)
	assert.Equal(t, KindPersistence, KindOf(err))
	assert.Equal(t, 0, res.ImportedCount)
	assert.Equal(t, 0, res.DuplicateCount)
}

func TestImportFile_FailedMergeInBatchKeepsCounts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockStore := store.NewMockStore(ctrl)
	mockBatcher := store.NewMockBatcher(ctrl)
	expectAccountAndImport(ctx, mockStore)

	// The writes made before fn failed are persisted, so fn's error comes back.
	mockBatcher.EXPECT().
		Batch(ctx, gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(store.Store) error) error {
			return fn(mockStore)
		})
	boom := errors.New("connection reset")
	gomock.InOrder(
		mockStore.EXPECT().FindTransaction(ctx, biltOneRowID).Return(nil, nil),
		mockStore.EXPECT().CreateTransaction(ctx, gomock.Any(), "acct-1", "imp-1").Return(nil),
		mockStore.EXPECT().FindTransaction(ctx, gomock.Any()).Return(nil, boom),
	)

	content := biltOneRow + "01/06/2024,-3.00,Purchase,R2,LA COLOMBE\n"
	c := newTestCoordinator(batchingStore{MockStore: mockStore, MockBatcher: mockBatcher})
	res, err := c.ImportFile(ctx, "Bilt.csv", []byte(content))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, res.ImportedCount)
}
