package cli

import (
	"github.com/spf13/cobra"

	"github.com/andydunstall/swim/cli/node"
	"github.com/andydunstall/swim/cli/simulate"
	"github.com/andydunstall/swim/cli/status"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "swim [command] (flags)",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Long: `Swim is a group membership service based on the SWIM protocol.

Each node periodically probes another member of the group, first directly then
indirectly via other members, and piggybacks membership gossip on every probe.
A member that no node has heard from within the failure timeout is removed
from the group.

Start a node with:

  $ swim node

Join an existing group with:

  $ swim node --cluster.join 10.26.104.14

You can also inspect the status of a node using:

  $ swim status members

To run a group of nodes in a single process and watch membership converge as
nodes fail and recover, use:

  $ swim simulate --nodes 100
`,
	}

	cmd.AddCommand(node.NewCommand())
	cmd.AddCommand(simulate.NewCommand())
	cmd.AddCommand(status.NewCommand())

	return cmd
}

func init() {
	cobra.EnableCommandSorting = false
}
