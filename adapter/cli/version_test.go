package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionCmd(t *testing.T) {
	var output strings.Builder
	versionCmd.SetOut(&output)
	versionCmd.Run(versionCmd, nil)

	out := output.String()
	assert.Contains(t, out, "billingsim "+Version)
	assert.Contains(t, out, "commit: "+Commit)
}
