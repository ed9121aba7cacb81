package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapping(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")

	testCases := []struct {
		name   string
		err    error
		target error
		fatal  bool
	}{
		{name: "auth", err: Authentication("redirected to %s", "/login"), target: ErrAuthentication, fatal: true},
		{name: "network", err: Network(cause, "navigate"), target: ErrNetwork, fatal: true},
		{name: "network without cause", err: Network(nil, "status %d", 503), target: ErrNetwork, fatal: true},
		{name: "parsing", err: Parsing(nil, "no calendar grid"), target: ErrParsing, fatal: false},
		{name: "wrapped again", err: fmt.Errorf("sync: %w", Parsing(cause, "folio")), target: ErrParsing, fatal: false},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			require.ErrorIs(t, test.err, test.target)
			require.Equal(t, test.fatal, Fatal(test.err))
		})
	}

	require.ErrorIs(t, Network(cause, "navigate"), cause)
}
