package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ethwire/ethwire/rpc"
)

const (
	// DefaultEndpoint is the node URL used when -rpc is not given.
	DefaultEndpoint = "http://localhost:8545"
)

var (
	endpoint = flag.String("rpc", DefaultEndpoint, "node endpoint, http(s):// or ws(s)://")
	fallback = flag.String("fallback", "", "optional fallback endpoint")
	timeout  = flag.Duration("timeout", 30*time.Second, "per-call timeout")
	retries  = flag.Uint64("retries", 2, "retries after the first attempt")
	verbose  = flag.Bool("verbose", false, "log transport activity")
)

// main is the entrypoint for the ethwire command line interface: one
// JSON-RPC call per invocation, result printed as JSON.
func main() {
	flag.Usage = printUsage
	flag.Parse()
	if flag.NArg() < 1 {
		printUsage()
		os.Exit(2)
	}

	logger := zap.NewNop()
	if *verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot build logger: %v\n", err)
			os.Exit(1)
		}
	}

	method := flag.Arg(0)
	params := parseParams(flag.Args()[1:])

	client, err := newClient(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	raw, err := client.CallRaw(context.Background(), method, params...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", method, err)
		os.Exit(1)
	}

	var pretty json.RawMessage = raw
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(string(out))
}

func newClient(logger *zap.Logger) (*rpc.Client, error) {
	opts := []rpc.Option{
		rpc.WithCallTimeout(*timeout),
		rpc.WithMaxRetries(*retries),
		rpc.WithLogger(logger),
	}

	main, err := newTransport(*endpoint, opts)
	if err != nil {
		return nil, err
	}
	clientOpts := []rpc.ClientOption{rpc.WithClientLogger(logger)}
	if *fallback != "" {
		fb, err := newTransport(*fallback, opts)
		if err != nil {
			main.Close()
			return nil, err
		}
		clientOpts = append(clientOpts, rpc.WithFallback(fb))
	}
	return rpc.NewClient(main, clientOpts...), nil
}

func newTransport(url string, opts []rpc.Option) (rpc.Transport, error) {
	if strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://") {
		return rpc.DialWS(context.Background(), url, append(opts, rpc.WithReconnect())...)
	}
	return rpc.NewHTTPTransport(url, opts...), nil
}

// parseParams interprets each argument as JSON, falling back to a plain
// string so addresses and block tags need no quoting.
func parseParams(args []string) []interface{} {
	params := make([]interface{}, 0, len(args))
	for _, arg := range args {
		var v interface{}
		if err := json.Unmarshal([]byte(arg), &v); err != nil {
			v = arg
		}
		params = append(params, v)
	}
	return params
}

// printUsage prints a little help for ethwire-cli.
func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: ethwire-cli [options] METHOD [PARAMS...]")
	fmt.Fprintf(os.Stderr, `
Examples:
  ethwire-cli eth_blockNumber
  ethwire-cli -rpc=wss://node.example/ws eth_getBalance 0x9d8a62f656a8d1615c1294fd71e9cfb3e4855a4f latest
  ethwire-cli eth_getLogs '{"fromBlock":"0x1","toBlock":"latest"}'

Options:
`)
	flag.PrintDefaults()
}
