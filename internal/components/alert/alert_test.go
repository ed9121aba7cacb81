package alert

import (
	"context"
	"io"
	"log"
	"testing"

	"otelms-backend/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestNewWithoutServer(t *testing.T) {
	require.IsType(t, NoopAPI{}, New(config.SmtpConfig{}))
	require.IsType(t, NoopAPI{}, New(config.SmtpConfig{Server: "localhost", Port: 25}))
	require.IsType(t, SMTP{}, New(config.SmtpConfig{Server: "localhost", Port: 25, Recipients: []string{"a@b.c"}}))
}

func TestSendThroughFakeServer(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	ctx := context.Background()
	server, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "haravich/fake-smtp-server",
			ExposedPorts: []string{"1025:1025", "1090:1080"},
			WaitingFor:   wait.ForLog("smtp://0.0.0.0:1025"),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		server.Terminate(context.Background())
	})

	sender := New(config.SmtpConfig{
		Server:       "localhost",
		Port:         1025,
		EmailAddress: "sync@hotel.test",
		Password:     "default",
		Recipients:   []string{"reception@hotel.test"},
	})
	err = sender.Send(ctx, "otelms sync failed", "login rejected for reception")
	require.NoError(t, err)

	res, err := resty.New().R().Get("http://127.0.0.1:1090/messages/1.plain")
	require.NoError(t, err)
	require.Contains(t, res.String(), "login rejected for reception")
}
