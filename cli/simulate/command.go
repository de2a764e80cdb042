package simulate

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	rungroup "github.com/oklog/run"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andydunstall/swim/pkg/log"
	"github.com/andydunstall/swim/simulation"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "simulate a group of nodes",
		Long: `Simulate a group of nodes.

Starts a group of nodes in a single process, connected either by an in-memory
network or by UDP sockets on the loopback interface. Every node joins the
first node, then once the join phase completes each node is driven by an agent
that randomly fails and recovers the node.

Once per report interval a line is output containing the report number then a
character for each node. The character is the size of the nodes view of the
group modulo 10, 'F' if the node is failed or 'S' if the agent has stopped.

When the simulation completes a YAML summary is output.

Examples:
  # Simulate a group of 100 nodes for 5 minutes.
  swim simulate

  # Simulate a group of 20 nodes over UDP for 1 minute.
  swim simulate --nodes 20 --transport udp --duration 1m

  # Simulate a group of 50 nodes where 5% of messages are dropped and nodes
  # are rarely failed.
  swim simulate --nodes 50 --network.drop-rate 0.05 --churn.probability 0.001
`,
	}

	conf := simulation.Default()
	conf.RegisterFlags(cmd.Flags())

	logConf := log.DefaultConfig()
	logConf.Level = "warn"
	logConf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}
		if err := logConf.Validate(); err != nil {
			fmt.Printf("invalid config: log: %s\n", err.Error())
			os.Exit(1)
		}

		logger, err := log.NewLogger(logConf)
		if err != nil {
			fmt.Printf("failed to setup logger: %s\n", err.Error())
			os.Exit(1)
		}
		defer func() {
			_ = logger.Sync()
		}()

		if err := run(conf, logger); err != nil {
			logger.Error("failed to run simulation", zap.Error(err))
			os.Exit(1)
		}
	}

	return cmd
}

func run(conf *simulation.Config, logger log.Logger) error {
	logger.Info("starting simulation", zap.Any("conf", conf))

	var group rungroup.Group

	// Termination handler.
	signalCtx, signalCancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	group.Add(func() error {
		select {
		case sig := <-signalCh:
			logger.Info(
				"received shutdown signal",
				zap.String("signal", sig.String()),
			)
			return nil
		case <-signalCtx.Done():
			return nil
		}
	}, func(error) {
		signalCancel()
	})

	// Simulation.
	simCtx, simCancel := context.WithCancel(context.Background())
	group.Add(func() error {
		sim := simulation.New(conf, os.Stdout, logger)
		report, err := sim.Run(simCtx)
		if err != nil {
			return fmt.Errorf("simulation: %w", err)
		}
		return simulation.WriteReport(os.Stdout, report)
	}, func(error) {
		simCancel()
	})

	return group.Run()
}
