package kafkalatencyaggregator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeSamples(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		samples []uint64
		invalid int
	}{
		{
			name:    "single sample",
			payload: "1500",
			samples: []uint64{1500},
		},
		{
			name:    "multiple samples with trailing newline",
			payload: "100\n200\n300\n",
			samples: []uint64{100, 200, 300},
		},
		{
			name:    "blank lines ignored",
			payload: "\n100\n\n  \n200\n",
			samples: []uint64{100, 200},
		},
		{
			name:    "surrounding whitespace trimmed",
			payload: "  100  \n\t200\r\n",
			samples: []uint64{100, 200},
		},
		{
			name:    "malformed lines skipped and counted",
			payload: "100\nnot-a-number\n-5\n200\n1.5\n",
			samples: []uint64{100, 200},
			invalid: 3,
		},
		{
			name:    "empty payload",
			payload: "",
		},
		{
			name:    "overflow counted as invalid",
			payload: "99999999999999999999999",
			invalid: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples, invalid := DecodeSamples([]byte(tt.payload))
			require.Equal(t, tt.samples, samples)
			require.Equal(t, tt.invalid, invalid)
		})
	}
}
