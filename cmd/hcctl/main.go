package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/urfave/cli"
)

// hcctl is the control-plane CLI for hostedchanneld, grounded on the
// teacher's cmd/lncli/main.go urfave/cli app skeleton (global flags plus a
// flat command list, a fatal() helper, printJson for responses) but
// talking to the daemon's unix-socket JSON API instead of a gRPC/TLS/
// macaroon connection, since this daemon never carries those (see
// DESIGN.md).
var defaultSockPath = filepath.Join(os.Getenv("HOME"), ".hostedchanneld", "hostedchanneld.sock")

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[hcctl] %v\n", err)
	os.Exit(1)
}

// apiClient issues JSON requests to the daemon's control API over a unix
// socket; the host portion of the URL is unused and present only because
// net/http requires one.
func apiClient(sockPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", sockPath)
			},
		},
	}
}

func callAPI(ctx *cli.Context, method, path string, req, resp interface{}) error {
	client := apiClient(ctx.GlobalString("sockpath"))

	var body io.Reader
	if req != nil {
		b, err := json.Marshal(req)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequest(method, "http://unix"+path, body)
	if err != nil {
		return err
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		json.NewDecoder(httpResp.Body).Decode(&errResp)
		return fmt.Errorf("%v", errResp.Error)
	}

	if resp == nil {
		return nil
	}
	return json.NewDecoder(httpResp.Body).Decode(resp)
}

func printJSON(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(b))
}

var getInfoCommand = cli.Command{
	Name:  "getinfo",
	Usage: "returns basic information about the running daemon",
	Action: func(ctx *cli.Context) error {
		var resp map[string]interface{}
		if err := callAPI(ctx, "GET", "/v1/getinfo", nil, &resp); err != nil {
			fatal(err)
		}
		printJSON(resp)
		return nil
	},
}

var connectCommand = cli.Command{
	Name:      "connect",
	Usage:     "invokes a hosted channel with a host",
	ArgsUsage: "addr host-pubkey refund-script-pubkey",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 3 {
			fatal(fmt.Errorf("connect requires addr, host-pubkey, refund-script-pubkey"))
		}
		req := map[string]string{
			"addr":                 ctx.Args().Get(0),
			"host_pubkey":          ctx.Args().Get(1),
			"refund_script_pubkey": ctx.Args().Get(2),
		}
		if err := callAPI(ctx, "POST", "/v1/connect", req, nil); err != nil {
			fatal(err)
		}
		fmt.Println("connected")
		return nil
	},
}

var addHtlcCommand = cli.Command{
	Name:      "addhtlc",
	Usage:     "originates a new outgoing htlc on a channel",
	ArgsUsage: "chan-id amount payment-hash expiry",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 4 {
			fatal(fmt.Errorf("addhtlc requires chan-id, amount, payment-hash, expiry"))
		}
		req := map[string]interface{}{
			"chan_id":      ctx.Args().Get(0),
			"amount":       ctx.Args().Get(1),
			"payment_hash": ctx.Args().Get(2),
			"expiry":       ctx.Args().Get(3),
		}
		var resp map[string]interface{}
		if err := callAPI(ctx, "POST", "/v1/addhtlc", req, &resp); err != nil {
			fatal(err)
		}
		printJSON(resp)
		return nil
	},
}

var fulfillHtlcCommand = cli.Command{
	Name:      "fulfillhtlc",
	Usage:     "fulfills a known incoming htlc",
	ArgsUsage: "chan-id htlc-id preimage",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 3 {
			fatal(fmt.Errorf("fulfillhtlc requires chan-id, htlc-id, preimage"))
		}
		req := map[string]interface{}{
			"chan_id":  ctx.Args().Get(0),
			"htlc_id":  ctx.Args().Get(1),
			"preimage": ctx.Args().Get(2),
		}
		if err := callAPI(ctx, "POST", "/v1/fulfillhtlc", req, nil); err != nil {
			fatal(err)
		}
		fmt.Println("fulfilled")
		return nil
	},
}

var failHtlcCommand = cli.Command{
	Name:      "failhtlc",
	Usage:     "fails a known incoming htlc",
	ArgsUsage: "chan-id htlc-id [reason]",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 2 {
			fatal(fmt.Errorf("failhtlc requires chan-id, htlc-id"))
		}
		reason := ""
		if ctx.NArg() > 2 {
			reason = ctx.Args().Get(2)
		}
		req := map[string]interface{}{
			"chan_id": ctx.Args().Get(0),
			"htlc_id": ctx.Args().Get(1),
			"reason":  reason,
		}
		if err := callAPI(ctx, "POST", "/v1/failhtlc", req, nil); err != nil {
			fatal(err)
		}
		fmt.Println("failed")
		return nil
	},
}

var resizeCommand = cli.Command{
	Name:      "resize",
	Usage:     "proposes a capacity increase for a channel",
	ArgsUsage: "chan-id delta",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 2 {
			fatal(fmt.Errorf("resize requires chan-id, delta"))
		}
		req := map[string]interface{}{
			"chan_id": ctx.Args().Get(0),
			"delta":   ctx.Args().Get(1),
		}
		if err := callAPI(ctx, "POST", "/v1/resize", req, nil); err != nil {
			fatal(err)
		}
		fmt.Println("resize proposed")
		return nil
	},
}

var acceptOverrideCommand = cli.Command{
	Name:      "acceptoverride",
	Usage:     "accepts a pending host override proposal",
	ArgsUsage: "chan-id",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			fatal(fmt.Errorf("acceptoverride requires chan-id"))
		}
		req := map[string]interface{}{"chan_id": ctx.Args().Get(0)}
		if err := callAPI(ctx, "POST", "/v1/acceptoverride", req, nil); err != nil {
			fatal(err)
		}
		fmt.Println("override accepted")
		return nil
	},
}

func main() {
	app := cli.NewApp()
	app.Name = "hcctl"
	app.Usage = "control plane for hostedchanneld"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "sockpath",
			Value: defaultSockPath,
			Usage: "unix socket path of the running daemon's control API",
		},
	}
	app.Commands = []cli.Command{
		getInfoCommand,
		connectCommand,
		addHtlcCommand,
		fulfillHtlcCommand,
		failHtlcCommand,
		resizeCommand,
		acceptOverrideCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
