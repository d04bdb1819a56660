// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/novatechflow/kraftbroker/internal/config"
	"github.com/novatechflow/kraftbroker/pkg/metadata"
)

func newInspectCommand(configPath *string) *cobra.Command {
	var logPath string
	var useMmap bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the batches, topics and partitions of a metadata log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if logPath == "" {
				logPath = cfg.Metadata.LogPath
			}
			if !cmd.Flags().Changed("mmap") {
				useMmap = cfg.Metadata.Mmap
			}
			store, err := metadata.LoadLog(logPath, metadata.LoadOptions{UseMmap: useMmap})
			if err != nil {
				return fmt.Errorf("load metadata log: %w", err)
			}
			return printInspection(cmd.OutOrStdout(), logPath, store)
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "", "metadata log path (defaults to metadata.log_path)")
	cmd.Flags().BoolVar(&useMmap, "mmap", false, "memory-map the log instead of reading it")
	return cmd
}

func printInspection(out io.Writer, path string, store *metadata.LogStore) error {
	idx := store.Index()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "log: %s\n\n", path)
	fmt.Fprintln(tw, "BATCH\tBASE OFFSET\tPOSITION\tLENGTH\tRECORDS")
	for i, b := range idx.Batches {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\n", i, b.BaseOffset, b.Position, b.Length, b.RecordCount)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "TOPIC\tID\tPARTITION\tLEADER\tEPOCH\tREPLICAS\tISR")
	for _, topic := range store.Topics() {
		if len(topic.Partitions) == 0 {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\t-\n", topic.Name, topic.ID)
			continue
		}
		for _, p := range topic.Partitions {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%v\t%v\n",
				topic.Name, topic.ID, p.Partition, p.Leader, p.LeaderEpoch, p.Replicas, p.ISR)
		}
	}
	return tw.Flush()
}
