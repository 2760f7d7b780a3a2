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
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/net/context"

	"github.com/gostor/samtgt/pkg/api"
)

type tmfOptions struct {
	initiator string
	lun       int64
	tag       int64
}

func newTaskManagementCommand(c *cliContext) *cobra.Command {
	opts := tmfOptions{}
	var cmd = &cobra.Command{
		Use:   "tmf FUNCTION",
		Short: "Run a task management function",
		Long: `Run a task management function on behalf of an initiator.
FUNCTION is one of abort-task, abort-task-set, clear-task-set,
logical-unit-reset, target-reset, clear-aca or wakeup.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := api.ParseTaskManagementFunction(args[0]); err != nil {
				return err
			}
			cli, err := c.Client()
			if err != nil {
				return err
			}
			resp, err := cli.TaskManagement(context.Background(), api.TaskManagementRequest{
				Function: args[0],
				Nexus:    api.NewITLQNexus(opts.initiator, "", opts.lun, opts.tag),
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", resp.Function, strings.ToLower(resp.Response))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.initiator, "initiator", "", "Initiator name the function is issued for")
	flags.Int64Var(&opts.lun, "lun", api.NoLUN, "Logical unit, -1 for none")
	flags.Int64Var(&opts.tag, "tag", api.NoTaskTag, "Task tag, -1 for none")
	cmd.MarkFlagRequired("initiator")
	return cmd
}

func newTargetCommand(c *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "target",
		Short: "Show the target",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NoArgs(cmd, args); err != nil {
				return err
			}
			cli, err := c.Client()
			if err != nil {
				return err
			}
			info, err := cli.TargetInfo(context.Background())
			if err != nil {
				return err
			}
			state := "stopped"
			if info.Running {
				state = "running"
			}
			fmt.Printf("Target: %s\nID: %s\nState: %s\nLUNs: %v\n", info.Name, info.ID, state, info.LUNs)
			return nil
		},
	}
}
