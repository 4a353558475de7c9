package application

import (
	"testing"

	"go.uber.org/goleak"
)

// Notifications run in the background; every test must leave them drained.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
