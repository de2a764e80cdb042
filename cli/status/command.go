package status

import "github.com/spf13/cobra"

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "inspect node status",
		Long: `Inspect node status.

Each node exposes a status API on its admin server to inspect the state of the
node, this can be used to answer questions such as:
* What members does this node know about?
* When did this node last hear from a member?
* Which members does this node consider part of the group?

See 'status --help' for the availale commands.

Examples:
  # Inspect the members known by the node.
  swim status members

  # Inspect member 10.26.104.14:7946.
  swim status member 10.26.104.14:7946

  # Inspect the members known by node 10.26.104.56:7947.
  swim status members --server.url http://10.26.104.56:7947
`,
	}

	cmd.AddCommand(newMembersCommand())
	cmd.AddCommand(newMemberCommand())

	return cmd
}
