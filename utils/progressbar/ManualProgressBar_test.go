package progressbar

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManualProgressBar(t *testing.T) {
	var out bytes.Buffer
	p := NewManualProgressBar(&out, 10, 4)

	p.Increment()
	p.SetStatus("reward %.1f", -1.5)
	p.Display()
	assert.InDelta(t, 0.25, p.Progress(), 1e-12)
	assert.Contains(t, out.String(), "[25.00%")
	assert.Contains(t, out.String(), "reward -1.5")

	for i := 0; i < 10; i++ {
		p.Increment()
	}
	assert.InDelta(t, 1.0, p.Progress(), 1e-12)
	assert.Equal(t, 10, strings.Count(p.String(), "█"))

	p.Close()
	assert.True(t, strings.HasSuffix(out.String(), "\n"))
}
