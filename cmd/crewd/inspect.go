package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "List tasks tagged for secondary review",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiGet("/reviews")
		if err != nil {
			return err
		}
		return printTaskTable(resp)
	},
}

var escalationsCmd = &cobra.Command{
	Use:   "escalations",
	Short: "List tasks waiting on human resolution",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiGet("/escalations")
		if err != nil {
			return err
		}
		return printTaskTable(resp)
	},
}

var (
	eventsAfter int64
	eventsLimit int
	eventsTask  string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the audit event log",
	RunE:  runEvents,
}

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List worker instances and their liveness",
	RunE:  runWorkers,
}

func init() {
	eventsCmd.Flags().Int64Var(&eventsAfter, "after", 0, "Only events with a sequence number above this")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "Maximum events to show")
	eventsCmd.Flags().StringVar(&eventsTask, "task", "", "Only events for this task ID")
}

func runEvents(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("/events?after=%d&limit=%d", eventsAfter, eventsLimit)
	if eventsTask != "" {
		url += "&task_id=" + eventsTask
	}

	resp, err := apiGet(url)
	if err != nil {
		return err
	}

	var events []struct {
		Seq       int64  `json:"seq"`
		Actor     string `json:"actor"`
		Type      string `json:"type"`
		TaskID    string `json:"task_id"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(resp, &events); err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Println("No events found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTYPE\tACTOR\tTASK\tTIME")
	for _, e := range events {
		taskID := e.TaskID
		if taskID != "" {
			taskID = truncateID(taskID)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.Seq, e.Type, e.Actor, taskID, e.Timestamp)
	}
	w.Flush()
	return nil
}

func runWorkers(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/workers")
	if err != nil {
		return err
	}

	var workers []struct {
		ID            string `json:"id"`
		Role          string `json:"role"`
		Status        string `json:"status"`
		LastHeartbeat string `json:"last_heartbeat"`
	}
	if err := json.Unmarshal(resp, &workers); err != nil {
		return err
	}

	if len(workers) == 0 {
		fmt.Println("No workers found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROLE\tSTATUS\tLAST HEARTBEAT")
	for _, wk := range workers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", wk.ID, wk.Role, wk.Status, wk.LastHeartbeat)
	}
	w.Flush()
	return nil
}
