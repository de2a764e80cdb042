package status

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorInfo(t *testing.T) {
	err := NewErrorInfo(http.StatusNotFound, "member not found")
	assert.EqualError(t, err, "not found (404): member not found")
}
