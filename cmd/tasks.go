// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/LeeDigitalWorks/docindex/pkg/logger"
	"github.com/LeeDigitalWorks/docindex/pkg/taskqueue"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and queue indexing tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the persisted tasks of an instance",
	Long: `List the tasks persisted by --instance_id for every wiki in --wikis,
oldest first. These are the tasks the instance recovers on its next start.

The leveldb store is locked while a server runs on it; use the server's
/debug/tasks endpoint instead.`,
	Run: runTasksList,
}

var tasksAddCmd = &cobra.Command{
	Use:   "add WIKI DOC_ID VERSION TYPE",
	Short: "Queue a task on a running server",
	Args:  cobra.ExactArgs(4),
	Run:   runTasksAdd,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksListCmd, tasksAddCmd)

	addStoreFlags(tasksListCmd)

	f := tasksAddCmd.Flags()
	f.String("server", "http://localhost:8095", "Debug address of the running server")
	f.Bool("replace", false, "Supersede the queued task of the same document and type")
	f.Duration("timeout", 10*time.Second, "Request timeout")
}

func runTasksList(cmd *cobra.Command, args []string) {
	opts := loadStoreOpts(cmd)
	if opts.InstanceID == "" {
		logger.Fatal().Msg("--instance_id required")
	}
	if len(opts.Wikis) == 0 {
		logger.Fatal().Msg("--wikis required")
	}

	b, err := openBackend(opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer b.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WIKI\tDOC_ID\tVERSION\tTYPE\tQUEUED")

	total := 0
	for _, wiki := range opts.Wikis {
		rows, err := b.store.GetAllTasks(cmd.Context(), wiki, opts.InstanceID)
		if err != nil {
			logger.Error().Err(err).Str("wiki", wiki).Msg("failed to list tasks")
			continue
		}
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", wiki, r.DocumentID, r.Version, r.Type, humanize.Time(r.Timestamp))
		}
		total += len(rows)
	}
	w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s task(s)\n", humanize.Comma(int64(total)))
}

func runTasksAdd(cmd *cobra.Command, args []string) {
	server, _ := cmd.Flags().GetString("server")
	replace, _ := cmd.Flags().GetBool("replace")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if _, err := strconv.ParseInt(args[1], 10, 64); err != nil {
		logger.Fatal().Str("doc_id", args[1]).Msg("DOC_ID must be an integer")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	task, err := postTask(ctx, server, args[0], args[1], args[2], args[3], replace)
	if err != nil {
		logger.Error().Err(err).Msg("failed to queue task")
		os.Exit(1)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", task)
}

func postTask(ctx context.Context, server, wiki, docID, version, taskType string, replace bool) (taskqueue.TaskData, error) {
	q := url.Values{}
	q.Set("wiki", wiki)
	q.Set("doc_id", docID)
	q.Set("version", version)
	q.Set("type", taskType)
	if replace {
		q.Set("replace", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/debug/tasks?"+q.Encode(), nil)
	if err != nil {
		return taskqueue.TaskData{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return taskqueue.TaskData{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return taskqueue.TaskData{}, fmt.Errorf("server returned %s: %s", resp.Status, body)
	}

	var task taskqueue.TaskData
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return taskqueue.TaskData{}, fmt.Errorf("decode response: %w", err)
	}
	return task, nil
}
