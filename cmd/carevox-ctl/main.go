package main

import (
	"context"
	"fmt"
	"os"
	"time"

	cli "github.com/spf13/pflag"

	"carevox/internal/config"
	"carevox/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", config.DefaultSocket, "Control socket path")
	cli.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: carevox-ctl [--socket path] %s|%s\n", ipc.CmdResume, ipc.CmdStop)
		cli.PrintDefaults()
	}
	cli.Parse()

	if cli.NArg() != 1 {
		cli.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ipc.SendCommand(ctx, *socket, cli.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "carevox:", err)
		os.Exit(1)
	}
}
