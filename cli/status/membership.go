package status

import (
	"fmt"
	"net/url"
	"os"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/andydunstall/swim/server/membership"
	"github.com/andydunstall/swim/status/client"
	"github.com/andydunstall/swim/status/config"
)

func newMembersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "inspect members",
		Long: `Inspect members.

Queries the node for every member in its membership table, including members
that are no longer considered part of the group. The output contains each
members address, clock, when the member was last heard from and whether the
member is live.

Examples:
  swim status members
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		showMembers(&conf)
	}

	return cmd
}

type membersOutput struct {
	Members []membership.MemberStatus `json:"members"`
}

func showMembers(conf *config.Config) {
	// The URL has already been validated in conf.
	url, _ := url.Parse(conf.Server.URL)
	client := client.NewClient(url, conf.Server.Timeout)
	defer client.Close()

	members, err := client.Members()
	if err != nil {
		fmt.Printf("failed to get members: %s\n", err.Error())
		os.Exit(1)
	}

	output := membersOutput{
		Members: members,
	}
	b, _ := yaml.Marshal(output)
	fmt.Println(string(b))
}

func newMemberCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Args:  cobra.ExactArgs(1),
		Short: "inspect a member",
		Long: `Inspect a member.

Queries the node for the known state of the member with the given address.

Examples:
  swim status member 10.26.104.14:7946
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		showMember(args[0], &conf)
	}

	return cmd
}

func showMember(addr string, conf *config.Config) {
	// The URL has already been validated in conf.
	url, _ := url.Parse(conf.Server.URL)
	client := client.NewClient(url, conf.Server.Timeout)
	defer client.Close()

	member, err := client.Member(addr)
	if err != nil {
		fmt.Printf("failed to get member: %s\n", err.Error())
		os.Exit(1)
	}

	b, _ := yaml.Marshal(member)
	fmt.Println(string(b))
}
