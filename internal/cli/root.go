package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gbsr/chappy/internal/client"
	"github.com/gbsr/chappy/internal/config"
	"github.com/gbsr/chappy/internal/logging"
)

// Options wires the command tree to its environment.
type Options struct {
	Config     config.ClientConfig
	In         io.Reader
	Out        io.Writer
	Err        io.Writer
	HTTPClient *http.Client
	// Tokens overrides the file token store.
	Tokens client.TokenStore
}

type app struct {
	opts   Options
	in     *bufio.Reader
	out    io.Writer
	logger logging.Logger
	client *client.Client
	now    func() time.Time

	apiURL    string
	tokenFile string
	verbose   bool
}

func (a *app) setup() {
	level := "warn"
	if a.verbose {
		level = "debug"
	}
	a.logger = logging.New(a.opts.Err, level)

	tokens := a.opts.Tokens
	if tokens == nil {
		tokens = client.NewFileTokenStore(a.tokenFile)
	}
	var copts []client.Option
	if a.opts.HTTPClient != nil {
		copts = append(copts, client.WithHTTPClient(a.opts.HTTPClient))
	}
	a.client = client.New(a.apiURL, tokens, copts...)
}

// session loads channels, users and the current profile.
func (a *app) session(ctx context.Context) (*client.Session, error) {
	s := client.NewSession(a.client, a.logger)
	if err := s.Load(ctx); err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return s, nil
}

// NewRootCmd builds the chatcli command tree.
func NewRootCmd(opts Options) *cobra.Command {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	a := &app{
		opts: opts,
		in:   bufio.NewReader(opts.In),
		out:  opts.Out,
		now:  time.Now,
	}

	root := &cobra.Command{
		Use:           "chatcli",
		Short:         "Terminal client for the chappy chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.setup()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(opts.In)
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)

	root.PersistentFlags().StringVar(&a.apiURL, "api-url", opts.Config.APIURL, "chat server base URL")
	root.PersistentFlags().StringVar(&a.tokenFile, "token-file", opts.Config.TokenFile, "where the session token is kept")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log requests and refresh failures")

	root.AddCommand(
		newRegisterCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newUsersCmd(a),
		newChannelsCmd(a),
		newChannelCmd(a),
		newMessagesCmd(a),
		newDMCmd(a),
		newSendCmd(a),
		newWatchCmd(a),
	)
	return root
}

// Execute runs the command tree against the process environment.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd(Options{Config: config.LoadClient()})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
