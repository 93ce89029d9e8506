package gas

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeFeeSource struct {
	baseFee *big.Int
	tip     *big.Int
	number  int64
	err     error
	calls   int
}

func (f *fakeFeeSource) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ethtypes.Header{Number: big.NewInt(f.number), BaseFee: f.baseFee}, nil
}

func (f *fakeFeeSource) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return f.tip, nil
}

func TestEstimator(t *testing.T) {
	ctx := context.Background()
	source := &fakeFeeSource{baseFee: big.NewInt(30000000000), tip: big.NewInt(2000000000), number: 19000000}
	estimator := NewEstimator(source, zaptest.NewLogger(t))

	rate, err := estimator.CostRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "32000000000", rate.String())
	assert.Equal(t, uint64(19000000), estimator.Height())

	// Cached after the first fetch
	_, err = estimator.CostRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)

	source.baseFee = big.NewInt(50000000000)
	require.NoError(t, estimator.Update(ctx))
	rate, err = estimator.CostRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "52000000000", rate.String())
}

func TestEstimatorUnavailable(t *testing.T) {
	source := &fakeFeeSource{err: errors.New("connection refused")}
	estimator := NewEstimator(source, zaptest.NewLogger(t))

	_, err := estimator.CostRate(context.Background())
	assert.ErrorIs(t, err, ErrNoCostRate)
}

func TestStaticOracle(t *testing.T) {
	oracle := NewStaticOracle(big.NewInt(10))
	rate, err := oracle.CostRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), rate.Int64())

	oracle.Set(big.NewInt(20))
	rate, _ = oracle.CostRate(context.Background())
	assert.Equal(t, int64(20), rate.Int64())
}

func TestGasMath(t *testing.T) {
	assert.Equal(t, uint64(360000), BufferedGas(ArbitrageGasLimit, 20))
	assert.Equal(t, "9600000000000000", EstimateGasCost(big.NewInt(32000000000), 300000).String())
}
