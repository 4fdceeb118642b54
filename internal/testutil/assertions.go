package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// AssertLogged checks that the captured log output contains a record with the
// given message and, for each key/value pair in attrs, a matching "key=value"
// attribute. It relies on the text handler format used by Context.
func AssertLogged(t *testing.T, logs *SafeBuffer, msg string, attrs ...string) {
	t.Helper()
	require.True(t, len(attrs)%2 == 0, "attrs must be key/value pairs")

	for _, line := range strings.Split(logs.String(), "\n") {
		if !strings.Contains(line, msg) {
			continue
		}
		matched := true
		for i := 0; i < len(attrs); i += 2 {
			if !strings.Contains(line, fmt.Sprintf("%s=%s", attrs[i], attrs[i+1])) {
				matched = false
				break
			}
		}
		if matched {
			return
		}
	}
	require.Failf(t, "log record not found", "expected %q with attrs %v in:\n%s", msg, attrs, logs.String())
}
