package checkpoint

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/samuelfneumann/goplace/agent"
)

// Snapshot is the full durable state of a trained model: its agent
// configuration, the agent's StateDict, and the progress it was saved
// at.
type Snapshot struct {
	Algorithm string
	Episode   int
	Epoch     int
	Reward    float64
	Loss      float64

	// Config is the JSON encoding of the agent.TypedConfig that
	// created the agent, so that the agent can be rebuilt.
	Config json.RawMessage
	State  *agent.StateDict

	// Timestamp is assigned when the snapshot is saved
	Timestamp time.Time

	// Metadata holds the free-form metadata the snapshot was saved
	// with
	Metadata map[string]any
}

// Record is the compact metadata stored alongside each snapshot. It
// can be listed and filtered without decoding any snapshot.
type Record struct {
	Name      string         `json:"name"`
	Timestamp time.Time      `json:"timestamp"`
	Algorithm string         `json:"algorithm,omitempty"`
	Episode   int            `json:"episode"`
	Epoch     int            `json:"epoch"`
	Reward    float64        `json:"reward"`
	Loss      float64        `json:"loss"`
	Location  string         `json:"location"`
	Checksum  string         `json:"checksum"`
	Size      int            `json:"size"`
	Metadata  map[string]any `json:"metadata"`
}

// Metric returns the value of a metric of the record. The free-form
// metadata is searched first and then the top-level episode, epoch,
// reward, and loss fields. Non-numeric metadata values are not
// metrics.
func (r Record) Metric(name string) (float64, bool) {
	if v, ok := r.Metadata[name]; ok {
		return toFloat(v)
	}
	switch name {
	case "episode":
		return float64(r.Episode), true
	case "epoch":
		return float64(r.Epoch), true
	case "reward":
		return r.Reward, true
	case "loss":
		return r.Loss, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

// artifact is the gob-encoded form of a Snapshot. Metadata is stored
// as JSON since gob cannot encode arbitrary interface values.
type artifact struct {
	Algorithm string
	Episode   int
	Epoch     int
	Reward    float64
	Loss      float64
	Config    []byte
	State     *agent.StateDict
	Timestamp time.Time
	Metadata  []byte
}

var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// encode serializes a snapshot into a compressed artifact
func encode(s *Snapshot) ([]byte, error) {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode: could not encode metadata: %v", err)
	}

	var buf bytes.Buffer
	err = gob.NewEncoder(&buf).Encode(artifact{
		Algorithm: s.Algorithm,
		Episode:   s.Episode,
		Epoch:     s.Epoch,
		Reward:    s.Reward,
		Loss:      s.Loss,
		Config:    s.Config,
		State:     s.State,
		Timestamp: s.Timestamp,
		Metadata:  meta,
	})
	if err != nil {
		return nil, fmt.Errorf("encode: %v", err)
	}
	return encoder.EncodeAll(buf.Bytes(), nil), nil
}

// decode deserializes an artifact produced by encode
func decode(data []byte) (*Snapshot, error) {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decode: %w: %v", ErrCorrupt, err)
	}

	var a artifact
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode: %w: %v", ErrCorrupt, err)
	}

	s := &Snapshot{
		Algorithm: a.Algorithm,
		Episode:   a.Episode,
		Epoch:     a.Epoch,
		Reward:    a.Reward,
		Loss:      a.Loss,
		Config:    a.Config,
		State:     a.State,
		Timestamp: a.Timestamp,
	}
	if len(a.Metadata) > 0 {
		if err := json.Unmarshal(a.Metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode: %w: metadata: %v", ErrCorrupt, err)
		}
	}
	return s, nil
}

// checksum returns the hex BLAKE3 digest of an artifact
func checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
