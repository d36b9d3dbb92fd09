package pinning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testRepository(t *testing.T) Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	repo, err := NewRepository(db)
	require.NoError(t, err)
	return repo
}

func TestCreateAndGetPin(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	record := &PinRecord{
		CID:      "QmMeta",
		Kind:     "json",
		Schema:   "verdant-vault.campaign.v1",
		Size:     128,
		Uploader: "0xFarmer",
		Metadata: []byte(`{"farmName":"Green Acres"}`),
	}
	require.NoError(t, repo.CreatePin(ctx, record))
	assert.NotEmpty(t, record.ID)

	got, err := repo.GetPinByCID(ctx, "QmMeta")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "json", got.Kind)
	assert.Equal(t, "0xFarmer", got.Uploader)

	missing, err := repo.GetPinByCID(ctx, "QmMissing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListPins(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	for _, cid := range []string{"QmA", "QmB", "QmC"} {
		require.NoError(t, repo.CreatePin(ctx, &PinRecord{CID: cid, Kind: "file"}))
	}

	records, err := repo.ListPins(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = repo.ListPins(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}
