package lxd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetlinkRoutes_UnknownDevice(t *testing.T) {
	_, err := NetlinkRoutes{}.SourceAddress(t.Context(), "fetchnope0")
	assert.Error(t, err)
}
