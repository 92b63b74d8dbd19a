package recycle

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestLockTableBlocksOverlappingSets(t *testing.T) {
	table := newLockTable()
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")

	release, err := table.acquire(context.Background(), a, b)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := table.acquire(context.Background(), b)
		if err == nil {
			second()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second caller acquired a held lock")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second caller never acquired the lock")
	}
	assert.Equal(t, 0, table.size())
}

func TestLockTableTimeout(t *testing.T) {
	table := newLockTable()
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")

	release, err := table.acquire(context.Background(), b)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = table.acquire(ctx, a, b)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// a was taken and must have been given back
	other, err := table.acquire(context.Background(), a)
	require.NoError(t, err)
	other()
	assert.Equal(t, 1, table.size())
}

func TestLockTableReversedOrderDoesNotDeadlock(t *testing.T) {
	table := newLockTable()
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		keys := []common.Address{a, b}
		if i%2 == 1 {
			keys = []common.Address{b, a}
		}
		g.Go(func() error {
			release, err := table.acquire(ctx, keys...)
			if err != nil {
				return err
			}
			release()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 0, table.size())
}

func TestLockTableDuplicateKeysAndDoubleRelease(t *testing.T) {
	table := newLockTable()
	a := common.HexToAddress("0x01")

	release, err := table.acquire(context.Background(), a, a)
	require.NoError(t, err)
	assert.Equal(t, 1, table.size())

	release()
	release()
	assert.Equal(t, 0, table.size())
}
