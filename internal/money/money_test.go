package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyBpsRoundsHalfUp(t *testing.T) {
	tests := []struct {
		name   string
		amount Cents
		bps    int
		want   Cents
	}{
		{"fifteen percent of ninety dollars", 9000, 1500, 1350},
		{"half cent rounds up", 10, 1500, 2},
		{"below half rounds down", 3, 1500, 0},
		{"exact half on odd cents", 2333, 1500, 350},
		{"one percent bank fee", 2500, 100, 25},
		{"zero rate", 9000, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyBps(tt.amount, tt.bps))
		})
	}
}

func TestProrate(t *testing.T) {
	assert.Equal(t, Cents(3825), Prorate(4500, 7650, 9000))
	assert.Equal(t, Cents(0), Prorate(4500, 1, 0))
	assert.Equal(t, Cents(-5), Prorate(-10, 1, 2))
}

func TestParseAndFormat(t *testing.T) {
	c, err := FromDecimalString("103.50")
	require.NoError(t, err)
	assert.Equal(t, Cents(10350), c)
	assert.Equal(t, "103.50", c.String())

	c, err = FromDecimalString("0.005")
	require.NoError(t, err)
	assert.Equal(t, Cents(1), c)

	_, err = FromDecimalString("abc")
	require.Error(t, err)
}

func TestPercentConversions(t *testing.T) {
	bps, err := PercentToBps("15")
	require.NoError(t, err)
	assert.Equal(t, 1500, bps)

	bps, err = PercentToBps("2.5")
	require.NoError(t, err)
	assert.Equal(t, 250, bps)

	assert.Equal(t, "15", BpsToPercent(1500))
	assert.Equal(t, "2.5", BpsToPercent(250))
}
