package kafkalatencyaggregator

import (
	"bytes"
	"strconv"
)

// DecodeSamples parses a record payload into latency samples. The payload
// carries one ASCII decimal nanosecond value per line. Blank lines are
// ignored; lines that do not parse are skipped and counted so a single bad
// producer cannot poison a whole batch.
func DecodeSamples(payload []byte) (samples []uint64, invalid int) {
	for len(payload) > 0 {
		line := payload
		if i := bytes.IndexByte(payload, '\n'); i >= 0 {
			line = payload[:i]
			payload = payload[i+1:]
		} else {
			payload = nil
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		v, err := strconv.ParseUint(string(line), 10, 64)
		if err != nil {
			invalid++
			continue
		}
		samples = append(samples, v)
	}
	return samples, invalid
}
