package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ostiwe/vksaver/internal/config"
	"github.com/ostiwe/vksaver/internal/logutil"
	"github.com/ostiwe/vksaver/internal/saver"
	"github.com/ostiwe/vksaver/internal/server"
	"github.com/ostiwe/vksaver/internal/vkapi"
)

var (
	configPath  string
	verbose     bool
	promptToken bool
)

const shutdownTimeout = 30 * time.Second

// Execute runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vksaver",
		Short: "Relay photos from direct messages onto a community wall",
		Long: "vksaver listens for callback events, uploads the photos they carry " +
			"to the community's wall album and queues a scheduled post spaced " +
			"after the community's latest pending one.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
		Example: `  vksaver --config /etc/vksaver/config.yaml
  vksaver --verbose --prompt-token`,
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the config file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().BoolVar(&promptToken, "prompt-token", false, "Prompt for the user access token instead of reading it from config")
	cmd.Flags().SortFlags = false

	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	logutil.SetVerbose(verbose)

	var userToken string
	if promptToken {
		token, err := readToken(cmd)
		if err != nil {
			return err
		}
		userToken = token
	}

	cfg, err := config.Load(configPath, userToken)
	if err != nil {
		return err
	}

	api := vkapi.NewClient()
	scheduler := saver.NewScheduler(api, cfg.User.Token)
	notifier := saver.NewNotifier(api)

	handlers, err := buildHandlers(cfg, scheduler, notifier)
	if err != nil {
		return err
	}

	srv := server.New(cfg, server.Deps{
		Resolver: saver.NewResolver(api, cfg.User.Token, cfg.User.ID),
		Pipeline: saver.NewPipeline(api, cfg.User.Token, ""),
		Handlers: handlers,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logutil.Infof("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// buildHandlers resolves each community's handler strategy once, at load
// time. An unknown handler name fails startup rather than the first event.
func buildHandlers(cfg *config.Config, scheduler *saver.Scheduler, notifier *saver.Notifier) (map[int64]saver.Handler, error) {
	handlers := make(map[int64]saver.Handler, len(cfg.Communities))
	for key, community := range cfg.Communities {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("community key %q is not a numeric id", key)
		}

		handler, err := saver.NewHandler(community.Handler, saver.HandlerDeps{
			Scheduler: scheduler,
			Notifier:  notifier,
			Community: saver.CommunitySettings{
				ID:            id,
				IntervalHours: community.PostInterval,
				AccessToken:   community.AccessToken,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("community %s: %w", key, err)
		}
		handlers[id] = handler
	}
	return handlers, nil
}

func readToken(cmd *cobra.Command) (string, error) {
	stdin, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(stdin.Fd())) {
		return "", errors.New("--prompt-token needs an interactive terminal")
	}

	fmt.Fprint(cmd.OutOrStdout(), "User access token: ")
	token, err := term.ReadPassword(int(stdin.Fd()))
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	if strings.TrimSpace(string(token)) == "" {
		return "", errors.New("empty token")
	}
	return strings.TrimSpace(string(token)), nil
}
