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

// Package cmd is the vehicle binary's cobra command tree: a run command
// that stands up a full vehicle process (both NICs, the protocol demux,
// the sync engine and any configured smart-data publishers/subscribers)
// and an rsu command that runs the key-rotation grid instead.
package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootCmd is the vehicle binary's entry point. It's exported so the
// binary can be extended with extra subcommands without touching core
// functionality.
var RootCmd = &cobra.Command{
	Use:   "vehicle",
	Short: "V2X mesh vehicle and roadside-unit process",
}

var rootVerboseFlag bool

func init() {
	RootCmd.PersistentFlags().BoolVarP(&rootVerboseFlag, "verbose", "v", false, "verbose output")
}

// ConfigureVerbosity sets log verbosity from parsed flags. Every
// subcommand must call this before doing any work.
func ConfigureVerbosity() {
	log.SetLevel(log.InfoLevel)
	if rootVerboseFlag {
		log.SetLevel(log.DebugLevel)
	}
}

// Execute is the main entry point for the CLI.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
