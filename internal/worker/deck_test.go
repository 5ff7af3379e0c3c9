package worker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteInputDeckContainsRequestedParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "HPL.dat")
	err := writeInputDeck(path, Params{PS: 2, QS: 4, NValue: 10000, NB: 192})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(content)

	assert.Contains(t, body, "10000")
	assert.Contains(t, body, "Ns")
	assert.Contains(t, body, "192")
	assert.Contains(t, body, "NBs")
	assert.Contains(t, body, "Ps")
	assert.Contains(t, body, "Qs")
	assert.True(t, strings.HasPrefix(body, "HPLinpack benchmark input file"))
}
