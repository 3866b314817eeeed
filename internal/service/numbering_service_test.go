package service

import (
	"context"
	"sync"
	"testing"

	"github.com/steelfab/oms/internal/model/entity"
	"github.com/steelfab/oms/internal/repository"
	"github.com/steelfab/oms/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestFormatPartNumber(t *testing.T) {
	assert.Equal(t, "700-1025", FormatPartNumber("700", 0, 1025))
	assert.Equal(t, "700-0042", FormatPartNumber("700", 4, 42))
	assert.Equal(t, "CUST-7", FormatPartNumber("CUST", 0, 7))
}

func TestFormatPartNumberPaddingDoesNotTruncate(t *testing.T) {
	// 序号超过补零宽度时原样输出
	assert.Equal(t, "700-12345", FormatPartNumber("700", 4, 12345))
}

func TestMintSequential(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewNumberingService(repos.Sequence, repos.Catalog, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repos.Sequence.Ensure(ctx, &entity.NumberSequence{
		Series: "700", Prefix: "700", NextValue: 1025, Padding: 0,
	}))

	first, err := svc.Mint(ctx, nil, "700")
	require.NoError(t, err)
	second, err := svc.Mint(ctx, nil, "700")
	require.NoError(t, err)
	assert.Equal(t, "700-1025", first)
	assert.Equal(t, "700-1026", second)
}

func TestMintUnknownSeries(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewNumberingService(repos.Sequence, repos.Catalog, zap.NewNop())

	_, err := svc.Mint(context.Background(), nil, "999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMintStorageFaultNotMaskedAsNotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewNumberingService(repos.Sequence, repos.Catalog, zap.NewNop())

	// 表丢失是存储故障，不是号段未注册
	require.NoError(t, db.Exec("DROP TABLE number_sequences").Error)

	_, err := svc.Mint(context.Background(), nil, "700")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMintConcurrentUnique(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewNumberingService(repos.Sequence, repos.Catalog, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repos.Sequence.Ensure(ctx, &entity.NumberSequence{
		Series: "700", Prefix: "700", NextValue: 1000, Padding: 0,
	}))

	const workers = 16
	numbers := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Transaction(func(tx *gorm.DB) error {
				n, err := svc.Mint(ctx, tx, "700")
				if err != nil {
					return err
				}
				numbers <- n
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[string]bool, workers)
	for n := range numbers {
		assert.False(t, seen[n], "number %s issued twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)

	seq, err := repos.Sequence.Get(ctx, "700")
	require.NoError(t, err)
	assert.Equal(t, int64(1000+workers), seq.NextValue)
}
