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
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/net/context"

	"github.com/gostor/samtgt/pkg/version"
)

func newVersionCommand(c *cliContext) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of samtgt",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Client:\n Version:\t%s\n API version:\t%s\n Git commit:\t%s\n Go version:\t%s\n",
				version.VERSION, version.APIVersion, version.GitCommit, runtime.Version())
			cli, err := c.Client()
			if err != nil {
				return err
			}
			v, err := cli.Version(context.Background())
			if err != nil {
				fmt.Printf("Server: %v\n", err)
				return nil
			}
			fmt.Printf("Server:\n Version:\t%s\n API version:\t%s\n Git commit:\t%s\n OS/Arch:\t%s/%s\n",
				v.Version, v.APIVersion, v.GitCommit, v.Os, v.Arch)
			return nil
		},
	}
	return cmd
}
