package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sammck-go/revtcp/rtclient"
	"github.com/sammck-go/revtcp/rtserver"
	"github.com/sammck-go/revtcp/rtshare"
)

var help = `
  Usage: revtcp [command] [--help]

  Commands:
    server - runs revtcp in rendezvous server mode
    client - runs revtcp in reverse-tunnel client mode

  Read more:
    https://github.com/sammck-go/revtcp

`

// sigHandler cancels ctx on SIGINT or SIGTERM. The teacher only
// handles SIGINT, since chisel was built first for interactive
// terminal use; a reverse-tunnel daemon is more often run under a
// process supervisor, so SIGTERM is handled the same way here.
func sigHandler(ctx context.Context, cancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case s := <-sig:
			log.Printf("%s received; cancelling main context", s)
		case <-ctx.Done():
		}
		signal.Stop(sig)
		cancel()
		return
	}
}

func main() {
	ctx, ctxCancel := context.WithCancel(context.Background())
	defer ctxCancel()

	flag.Usage = func() {}
	flag.Parse()

	args := flag.Args()

	subcmd := ""
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "server":
		go sigHandler(ctx, ctxCancel)
		runServer(ctx, args)
	case "client":
		go sigHandler(ctx, ctxCancel)
		runClient(ctx, args)
	default:
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
}

func generatePidFile(name string) {
	pid := []byte(strconv.Itoa(os.Getpid()))
	if err := os.WriteFile(name, pid, 0644); err != nil {
		log.Fatal(err)
	}
}

var serverHelp = `
  Usage: revtcp server [-p PSK] [BINDADDR:]REV_PORT [BINDADDR:]USER_PORT

  Options (accepted only after the command name; an option placed
  before "server" is rejected):

    -p, --psk, The pre-shared key both endpoints must hold identical
    bytes of. Defaults to the REVTCP_PSK environment variable, and
    then to an empty key.

    --pid, Generate a pid file in the current working directory.

    -v, Enable verbose (debug) logging.
`

func runServer(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("server", flag.ContinueOnError)
	psk := flags.String("p", "", "")
	pskLong := flags.String("psk", "", "")
	pid := flags.Bool("pid", false, "")
	verbose := flags.Bool("v", false, "")
	flags.Usage = func() {
		fmt.Print(serverHelp)
		os.Exit(1)
	}
	if err := flags.Parse(args); err != nil {
		os.Exit(1)
	}

	positional := flags.Args()
	if len(positional) != 2 {
		flags.Usage()
	}

	key := resolvePSK(*psk, *pskLong)

	if *pid {
		generatePidFile("revtcp.pid")
	}

	logLevel := rtshare.LogLevelInfo
	if *verbose {
		logLevel = rtshare.LogLevelDebug
	}
	logger := rtshare.NewLogger("revtcp", logLevel)

	srv := rtserver.New(logger, rtserver.Config{
		PSK:          key,
		RevBindAddr:  positional[0],
		UserBindAddr: positional[1],
	})
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server exited: %s", err)
	}
}

var clientHelp = `
  Usage: revtcp client [-p PSK] REV_HOST:REV_PORT TARGET_HOST:TARGET_PORT

  Options (accepted only after the command name; an option placed
  before "client" is rejected):

    -p, --psk, The pre-shared key both endpoints must hold identical
    bytes of. Defaults to the REVTCP_PSK environment variable, and
    then to an empty key.

    --pid, Generate a pid file in the current working directory.

    -v, Enable verbose (debug) logging.
`

func runClient(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("client", flag.ContinueOnError)
	psk := flags.String("p", "", "")
	pskLong := flags.String("psk", "", "")
	pid := flags.Bool("pid", false, "")
	verbose := flags.Bool("v", false, "")
	flags.Usage = func() {
		fmt.Print(clientHelp)
		os.Exit(1)
	}
	if err := flags.Parse(args); err != nil {
		os.Exit(1)
	}

	positional := flags.Args()
	if len(positional) != 2 {
		flags.Usage()
	}

	key := resolvePSK(*psk, *pskLong)

	if *pid {
		generatePidFile("revtcp.pid")
	}

	logLevel := rtshare.LogLevelInfo
	if *verbose {
		logLevel = rtshare.LogLevelDebug
	}
	logger := rtshare.NewLogger("revtcp", logLevel)

	cl := rtclient.New(logger, rtclient.Config{
		PSK:            key,
		RendezvousAddr: positional[0],
		TargetAddr:     positional[1],
	})
	cl.Run(ctx)
}

// resolvePSK applies the CLI flags' precedence over the REVTCP_PSK
// environment variable.
func resolvePSK(short, long string) []byte {
	psk := short
	if psk == "" {
		psk = long
	}
	if psk == "" {
		psk = os.Getenv("REVTCP_PSK")
	}
	return []byte(psk)
}
