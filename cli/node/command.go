package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	swimconfig "github.com/andydunstall/swim/pkg/config"
	"github.com/andydunstall/swim/pkg/log"
	"github.com/andydunstall/swim/server"
	"github.com/andydunstall/swim/server/config"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "start a node",
		Long: `Start a node.

The node binds a UDP socket for protocol messages and an HTTP admin server
exposing health, metrics and membership status.

Use '--cluster.join' to configure addresses of existing members in the group
to join. Otherwise the node starts a new group containing only itself.

Examples:
  # Start a node.
  swim node

  # Start a node, listening for protocol messages on :8000 and admin
  # connections on :8001.
  swim node --transport.bind-addr :8000 --admin.bind-addr :8001

  # Start a node and join an existing group by specifying each member.
  swim node --cluster.join 10.26.104.14,10.26.104.75

  # Start a node and join an existing group by specifying a domain. The node
  # will resolve the domain and attempt to join each returned member.
  swim node --cluster.join swim.prod-swim-ns.svc.cluster.local
`,
	}

	conf := config.Default()

	var loadConf swimconfig.Config

	// Register flags and set default values.
	conf.RegisterFlags(cmd.Flags())
	loadConf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if loadConf.Path != "" {
			if err := swimconfig.Load(conf, loadConf.Path, loadConf.ExpandEnv); err != nil {
				fmt.Printf("load config: %s\n", err.Error())
				os.Exit(1)
			}
		}

		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		logger, err := log.NewLogger(conf.Log)
		if err != nil {
			fmt.Printf("failed to setup logger: %s\n", err.Error())
			os.Exit(1)
		}
		defer func() {
			_ = logger.Sync()
		}()

		if err := run(conf, logger); err != nil {
			logger.Error("failed to run node", zap.Error(err))
			os.Exit(1)
		}
	}

	return cmd
}

func run(conf *config.Config, logger log.Logger) error {
	s, err := server.NewServer(conf, logger)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	go func() {
		<-ctx.Done()

		logger.Info("received shutdown signal")

		// Force exit if shutdown exceeds the grace period.
		time.Sleep(conf.GracePeriod)
		logger.Warn("exceeded grace period; forcing shutdown")
		os.Exit(1)
	}()

	return s.Run(ctx)
}
