/*
Copyright (c) Facebook, Inc. and its affiliates.

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
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(rsuCmd)
	rsuCmd.Flags().StringVar(&runConfigFlag, "config", "", "path to a yaml config file")
	rsuCmd.Flags().StringVar(&runIfaceFlag, "iface", "", "interface to run on (overrides config)")
	rsuCmd.Flags().Uint32Var(&runSysIDFlag, "sysid", 0, "system id (overrides config; 0 means use the process id)")
	rsuCmd.Flags().IntVar(&runMonFlag, "monitoringport", 0, "port to run the monitoring server on (overrides config)")
}

var rsuCmd = &cobra.Command{
	Use:   "rsu",
	Short: "Run a roadside-unit process: the full key-rotation grid broadcasting quadrant keys",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()
		if err := runRSU(); err != nil {
			log.Fatal(err)
		}
	},
}

func runRSU() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// An RSU process carries no pub/sub components of its own.
	cfg.IsRSU = true
	cfg.Publishers = nil
	cfg.Subscribers = nil
	return runVehicleWith(cfg)
}
