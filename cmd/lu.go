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
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/net/context"

	"github.com/gostor/samtgt/pkg/api"
)

func newLuCommand(c *cliContext) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "lu",
		Short: "Manage logical units",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newListLuCmd(c),
		newCreateLuCmd(c),
		newRemoveLuCmd(c),
	)
	return cmd
}

func newListLuCmd(c *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the logical units of the target",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NoArgs(cmd, args); err != nil {
				return err
			}
			cli, err := c.Client()
			if err != nil {
				return err
			}
			results, err := cli.LogicalUnitList(context.Background())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 8, 1, 3, ' ', 0)
			fmt.Fprintln(w, "LUN\tSTORAGE\tPATH\tBLOCK SIZE\tBLOCKS\tTASKS")
			for _, lu := range results {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\n", lu.LUN, lu.Storage, lu.Path, lu.BlockSize, lu.Blocks, lu.Tasks)
			}
			return w.Flush()
		},
	}
}

func newCreateLuCmd(c *cliContext) *cobra.Command {
	opts := api.LogicalUnitCreateRequest{}
	var cmd = &cobra.Command{
		Use:   "create",
		Short: "Create a buffered logical unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NoArgs(cmd, args); err != nil {
				return err
			}
			cli, err := c.Client()
			if err != nil {
				return err
			}
			lu, err := cli.LogicalUnitCreate(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Printf("Logical unit %d successfully created: %d blocks of %d bytes\n", lu.LUN, lu.Blocks, lu.BlockSize)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.Int64Var(&opts.LUN, "lun", 0, "Logical unit number")
	flags.StringVar(&opts.Storage, "storage", "file", "Backing store type (file, mem, null, qcow2, ceph-rbd)")
	flags.StringVar(&opts.Path, "path", "", "Backing store path, or size in bytes for mem and null")
	flags.Uint32Var(&opts.BlockSize, "block-size", 0, "Logical block size (default 512)")
	flags.IntVar(&opts.Threads, "threads", 0, "Task manager threads")
	flags.IntVar(&opts.QueueLength, "queue-length", 0, "Task set capacity")
	return cmd
}

func newRemoveLuCmd(c *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm LUN",
		Short: "Remove a logical unit, aborting its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lun, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid lun %q", args[0])
			}
			cli, err := c.Client()
			if err != nil {
				return err
			}
			if err := cli.LogicalUnitRemove(context.Background(), api.LogicalUnitRemoveOptions{LUN: lun}); err != nil {
				return err
			}
			fmt.Printf("Logical unit %d successfully removed\n", lun)
			return nil
		},
	}
}
