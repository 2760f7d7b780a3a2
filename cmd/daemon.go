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
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gostor/samtgt/pkg/apiserver"
	"github.com/gostor/samtgt/pkg/config"
	"github.com/gostor/samtgt/pkg/target"
	"github.com/gostor/samtgt/pkg/version"
)

type daemonOptions struct {
	configDir string
	logLevel  string
	hosts     []string
}

func newDaemonCommand() *cobra.Command {
	opts := daemonOptions{}
	var cmd = &cobra.Command{
		Use:   "daemon",
		Short: "Setup a daemon",
		Long:  `Run the samtgt daemon: the target, its logical units and the admin API`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NoArgs(cmd, args); err != nil {
				return err
			}
			return runDaemon(opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.configDir, "config-dir", "", "Directory of config.json (default $SAMTGT_CONFIG or ~/.samtgt)")
	flags.StringVar(&opts.logLevel, "log", "", "Log level of SCSI target daemon")
	flags.StringSliceVar(&opts.hosts, "listen", nil, "Admin API address(es), PROTO://ADDR")
	return cmd
}

func setLogLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("unknown log level: %v", level)
	}
	log.SetLevel(lvl)
	return nil
}

// newTarget builds the target and the logical units of cfg.
func newTarget(cfg *config.Config) (*target.Target, error) {
	tgt := target.New(target.Options{
		Name:        cfg.Target,
		Threads:     cfg.Threads,
		QueueLength: cfg.QueueLength,
	})
	for _, lu := range cfg.LogicalUnits {
		if _, err := tgt.CreateLogicalUnit(lu.Request()); err != nil {
			tgt.Close()
			return nil, err
		}
	}
	return tgt, nil
}

func runDaemon(opts daemonOptions) error {
	cfg, err := config.Load(opts.configDir)
	if err != nil {
		log.Error(err)
		return err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if len(opts.hosts) > 0 {
		cfg.Hosts = opts.hosts
	}
	if err := setLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	tgt, err := newTarget(cfg)
	if err != nil {
		log.Error(err)
		return err
	}
	defer tgt.Close()
	if err := tgt.Start(); err != nil {
		log.Error(err)
		return err
	}

	serverConfig := &apiserver.Config{
		Version: version.APIVersion,
	}
	for _, host := range cfg.Hosts {
		addr, err := apiserver.ParseAddr(host)
		if err != nil {
			log.Error(err)
			return err
		}
		serverConfig.Addrs = append(serverConfig.Addrs, addr)
	}
	s, err := apiserver.New(serverConfig)
	if err != nil {
		log.Error(err)
		return err
	}
	s.InitRouters(tgt)

	// The serve API routine never exits unless an error occurs
	// We need to start it as a goroutine and wait on it so
	// daemon doesn't exit
	serveAPIWait := make(chan error)
	go s.Wait(serveAPIWait)

	stopAll := make(chan os.Signal, 1)
	signal.Notify(stopAll, syscall.SIGINT, syscall.SIGTERM)
	log.WithFields(log.Fields{"version": version.VERSION, "commit": version.GitCommit}).Info("samtgt daemon started")

	select {
	case errAPI := <-serveAPIWait:
		if errAPI != nil {
			log.Warnf("Shutting down due to ServeAPI error: %v", errAPI)
		}
	case sig := <-stopAll:
		log.Infof("received %s, shutting down", sig)
	}
	s.Close()
	return nil
}
