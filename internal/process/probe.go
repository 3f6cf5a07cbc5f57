package process

import (
	"context"
	"encoding/json"
	"os/exec"
)

// probeOutput is the subset of streamlink's --json output we consume.
type probeOutput struct {
	Streams map[string]json.RawMessage `json:"streams"`
	Error   string                     `json:"error"`
}

// Probe reports whether the channel's stream is currently live.
//
// It invokes streamlink in JSON status mode with a bounded timeout and
// returns true iff the tool exits successfully and reports at least one
// stream. Timeouts, nonzero exits, and malformed output all report false;
// unavailability and probe failure are indistinguishable by design.
func (r *StreamlinkRunner) Probe(ctx context.Context, channel string) bool {
	if channel == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.config.BinaryPath, r.StreamURL(channel), "--json")
	output, err := cmd.Output()
	if err != nil {
		return false
	}

	return parseProbeOutput(output)
}

// parseProbeOutput reports whether the JSON status output indicates a live
// stream with at least one playable quality.
func parseProbeOutput(output []byte) bool {
	var result probeOutput
	if err := json.Unmarshal(output, &result); err != nil {
		return false
	}
	return result.Error == "" && len(result.Streams) > 0
}
