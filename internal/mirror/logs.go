package mirror

import (
	"encoding/base64"
	"strings"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/idhash"
	"chainproof-ledger/internal/layout"
)

const (
	programDataPrefix = "Program data: "
	programPrefix     = "Program "
)

// ParseProgramEvents extracts the events logged by program from a transaction's
// log messages. Only "Program data:" lines emitted while program is the
// innermost invocation are considered; lines from other programs and unknown
// discriminators are skipped.
func ParseProgramEvents(logs []string, program string) []domain.EventPayload {
	var (
		stack []string
		out   []domain.EventPayload
	)
	for _, line := range logs {
		if data, ok := strings.CutPrefix(line, programDataPrefix); ok {
			if len(stack) == 0 || stack[len(stack)-1] != program {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
			if err != nil {
				continue
			}
			p, err := layout.DecodeEvent(raw)
			if err != nil {
				continue
			}
			out = append(out, p)
			continue
		}

		rest, ok := strings.CutPrefix(line, programPrefix)
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 2 {
			continue
		}
		switch {
		case fields[1] == "invoke":
			stack = append(stack, fields[0])
		case fields[1] == "success", strings.HasPrefix(fields[1], "failed"):
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return out
}

// BuildEvents turns the events of one transaction into ledger events keyed by
// the transaction signature.
func BuildEvents(signature string, slot, timestamp int64, payloads []domain.EventPayload) []*domain.Event {
	out := make([]*domain.Event, len(payloads))
	for i, p := range payloads {
		out[i] = &domain.Event{
			ID:        idhash.ComputeEventID(signature, i, p.EventName()),
			Source:    signature,
			Index:     i,
			Slot:      slot,
			Timestamp: timestamp,
			Payload:   p,
		}
	}
	return out
}
