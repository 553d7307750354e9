package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	calls   int
	results []bool
	errs    []error
}

func (s *stubChecker) AllocationsRedeemed(ctx context.Context, allocationID common.Address) (bool, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return false, s.errs[i]
	}
	return s.results[i], nil
}

func discardLogger() log.Logger {
	logger := log.New()
	logger.SetHandler(log.DiscardHandler())
	return logger
}

func TestCachingRedeemedChecker_CachesTrueOnly(t *testing.T) {
	allocation := common.HexToAddress("0x1")
	stub := &stubChecker{results: []bool{false, true, false}}
	checker := NewCachingRedeemedChecker(stub, discardLogger(), 16)

	redeemed, err := checker.AllocationsRedeemed(context.Background(), allocation)
	require.NoError(t, err)
	require.False(t, redeemed)
	require.Equal(t, 1, stub.calls)

	redeemed, err = checker.AllocationsRedeemed(context.Background(), allocation)
	require.NoError(t, err)
	require.True(t, redeemed)
	require.Equal(t, 2, stub.calls)

	redeemed, err = checker.AllocationsRedeemed(context.Background(), allocation)
	require.NoError(t, err)
	require.True(t, redeemed)
	require.Equal(t, 2, stub.calls, "cached true result should not re-query the inner checker")
}

func TestCachingRedeemedChecker_ErrorNotCached(t *testing.T) {
	allocation := common.HexToAddress("0x2")
	boom := errors.New("boom")
	stub := &stubChecker{results: []bool{false, false}, errs: []error{boom, nil}}
	checker := NewCachingRedeemedChecker(stub, discardLogger(), 16)

	_, err := checker.AllocationsRedeemed(context.Background(), allocation)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, stub.calls)

	redeemed, err := checker.AllocationsRedeemed(context.Background(), allocation)
	require.NoError(t, err)
	require.False(t, redeemed)
	require.Equal(t, 2, stub.calls)
}

func TestCachingRedeemedChecker_DistinctAllocationsDoNotShareCache(t *testing.T) {
	a := common.HexToAddress("0x3")
	b := common.HexToAddress("0x4")
	stub := &stubChecker{results: []bool{true, false}}
	checker := NewCachingRedeemedChecker(stub, discardLogger(), 16)

	redeemed, err := checker.AllocationsRedeemed(context.Background(), a)
	require.NoError(t, err)
	require.True(t, redeemed)

	redeemed, err = checker.AllocationsRedeemed(context.Background(), b)
	require.NoError(t, err)
	require.False(t, redeemed)
	require.Equal(t, 2, stub.calls)
}
