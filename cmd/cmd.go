/*
Copyright 2016 The GoStor Authors All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gostor/samtgt/pkg/api/client"
	"github.com/gostor/samtgt/pkg/version"
)

// cliContext builds the API client of the admin commands on first use.
type cliContext struct {
	host   string
	client *client.Client
}

func (c *cliContext) Client() (*client.Client, error) {
	if c.client != nil {
		return c.client, nil
	}
	cli, err := client.NewClient(c.host, version.APIVersion, nil, nil)
	if err != nil {
		return nil, err
	}
	c.client = cli
	return cli, nil
}

func defaultHost() string {
	if host := os.Getenv("SAMTGT_HOST"); host != "" {
		return host
	}
	return client.DefaultHost
}

func NewCommand() *cobra.Command {
	c := &cliContext{}
	var cmd = &cobra.Command{
		Use:           "samtgt",
		Short:         "samtgt is a SAM-2 SCSI target with a task scheduling core",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVarP(&c.host, "host", "H", defaultHost(), "Daemon socket to connect to")

	cmd.AddCommand(
		newDaemonCommand(),
		newLuCommand(c),
		newTaskManagementCommand(c),
		newTargetCommand(c),
		newVersionCommand(c),
	)
	return cmd
}

// NoArgs validate args and returns an error if there are any args
func NoArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	if cmd.HasSubCommands() {
		return fmt.Errorf("\n" + strings.TrimRight(cmd.UsageString(), "\n"))
	}
	return fmt.Errorf(
		"\"%s\" accepts no argument(s).\n",
		cmd.CommandPath(),
	)
}
