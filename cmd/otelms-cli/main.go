package main

import (
	"otelms-backend/cmd/otelms-cli/commands"
	"otelms-backend/pkg/serviceutil"
)

func main() {
	ctx, cancel := serviceutil.SignalContext()
	defer cancel()
	commands.ExecuteContext(ctx)
}
