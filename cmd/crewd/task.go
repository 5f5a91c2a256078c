package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new task",
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskClaimableCmd = &cobra.Command{
	Use:   "claimable",
	Short: "List tasks ready to claim, best first",
	RunE:  runTaskClaimable,
}

var taskClaimCmd = &cobra.Command{
	Use:   "claim [task-id]",
	Short: "Claim an exclusive lease on a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskClaim,
}

var taskRenewCmd = &cobra.Command{
	Use:   "renew [task-id]",
	Short: "Renew the lease on a claimed task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskRenew,
}

var taskReleaseCmd = &cobra.Command{
	Use:   "release [task-id]",
	Short: "Release a task lease",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskRelease,
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete [task-id]",
	Short: "Submit a completion claim for a held task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskComplete,
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel [task-id]",
	Short: "Cancel a task before it completes",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskCancel,
}

var taskResolveCmd = &cobra.Command{
	Use:   "resolve [task-id]",
	Short: "Approve or reject a reviewed or escalated task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskResolve,
}

var taskTrailCmd = &cobra.Command{
	Use:   "trail [task-id]",
	Short: "Show the full audit trail for a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskTrail,
}

var (
	taskTitle    string
	taskDesc     string
	taskPriority string
	taskDeps     []string
	taskCriteria []string
	taskStatus   string
	workerID     string
	outcome      string
	summary      string
	artifacts    []string
	resolveAct   string
	resolveNote  string
	requeue      bool
)

func init() {
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskShowCmd, taskClaimableCmd,
		taskClaimCmd, taskRenewCmd, taskReleaseCmd, taskCompleteCmd,
		taskCancelCmd, taskResolveCmd, taskTrailCmd)

	taskAddCmd.Flags().StringVar(&taskTitle, "title", "", "Task title (required)")
	taskAddCmd.Flags().StringVar(&taskDesc, "desc", "", "Task description")
	taskAddCmd.Flags().StringVar(&taskPriority, "priority", "medium", "Priority (critical, high, medium, low)")
	taskAddCmd.Flags().StringSliceVar(&taskDeps, "dep", nil, "Dependency task ID (repeatable)")
	taskAddCmd.Flags().StringSliceVar(&taskCriteria, "criterion", nil, "Acceptance criterion (repeatable)")
	taskAddCmd.MarkFlagRequired("title")

	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "Filter by status (pending, claimed, in_progress, awaiting_verification, rejected, escalated, completed)")

	hostname, _ := os.Hostname()
	defaultWorker := fmt.Sprintf("cli@%s", hostname)
	taskClaimCmd.Flags().StringVar(&workerID, "worker", defaultWorker, "Worker ID claiming the lease")
	taskRenewCmd.Flags().StringVar(&workerID, "worker", defaultWorker, "Worker ID")
	taskReleaseCmd.Flags().StringVar(&workerID, "worker", defaultWorker, "Worker ID")
	taskReleaseCmd.Flags().StringVar(&outcome, "outcome", "abandoned", "Release outcome (completed, abandoned, rejected)")
	taskCompleteCmd.Flags().StringVar(&workerID, "worker", defaultWorker, "Worker ID")
	taskCompleteCmd.Flags().StringVar(&summary, "summary", "", "Completion summary (required)")
	taskCompleteCmd.Flags().StringSliceVar(&artifacts, "artifact", nil, "Produced artifact path (repeatable)")
	taskCompleteCmd.MarkFlagRequired("summary")

	taskResolveCmd.Flags().StringVar(&resolveAct, "action", "", "Resolution action: approve or reject (required)")
	taskResolveCmd.Flags().StringVar(&resolveNote, "note", "", "Resolution note")
	taskResolveCmd.Flags().BoolVar(&requeue, "requeue", false, "On reject, return the task to pending instead")
	taskResolveCmd.MarkFlagRequired("action")
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	body := map[string]interface{}{
		"title":               taskTitle,
		"description":         taskDesc,
		"priority":            taskPriority,
		"dependencies":        taskDeps,
		"acceptance_criteria": taskCriteria,
	}

	resp, err := apiPost("/tasks", body)
	if err != nil {
		return err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}

	fmt.Printf("Created task: %s\n", result["id"])
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	url := "/tasks"
	if taskStatus != "" {
		url += "?status=" + taskStatus
	}

	resp, err := apiGet(url)
	if err != nil {
		return err
	}
	return printTaskTable(resp)
}

func runTaskClaimable(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/tasks/claimable")
	if err != nil {
		return err
	}
	return printTaskTable(resp)
}

func printTaskTable(resp []byte) error {
	var tasks []map[string]interface{}
	if err := json.Unmarshal(resp, &tasks); err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPRIORITY\tSTATUS\tCLAIMED BY")
	for _, t := range tasks {
		id := truncateID(t["id"].(string))
		title := truncate(t["title"].(string), 40)
		priority := t["priority"].(string)
		status := t["status"].(string)
		claimedBy := ""
		if cb, ok := t["claimed_by"].(string); ok {
			claimedBy = cb
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, title, priority, status, claimedBy)
	}
	w.Flush()
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/tasks/" + args[0])
	if err != nil {
		return err
	}

	var task map[string]interface{}
	if err := json.Unmarshal(resp, &task); err != nil {
		return err
	}

	fmt.Printf("ID:          %s\n", task["id"])
	fmt.Printf("Title:       %s\n", task["title"])
	fmt.Printf("Description: %s\n", task["description"])
	fmt.Printf("Priority:    %s\n", task["priority"])
	fmt.Printf("Status:      %s\n", task["status"])
	if deps, ok := task["dependencies"].([]interface{}); ok && len(deps) > 0 {
		strs := make([]string, len(deps))
		for i, d := range deps {
			strs[i] = d.(string)
		}
		fmt.Printf("Depends On:  %s\n", strings.Join(strs, ", "))
	}
	if cb, ok := task["claimed_by"].(string); ok && cb != "" {
		fmt.Printf("Claimed By:  %s\n", cb)
		fmt.Printf("Lease Until: %s\n", task["claim_expiry"])
	}
	if rc, ok := task["retry_count"].(float64); ok && rc > 0 {
		fmt.Printf("Retries:     %.0f\n", rc)
	}
	fmt.Printf("Created:     %s\n", task["created_at"])
	fmt.Printf("Updated:     %s\n", task["updated_at"])

	return nil
}

func runTaskClaim(cmd *cobra.Command, args []string) error {
	body := map[string]interface{}{
		"worker_id": workerID,
	}

	resp, err := apiPost("/tasks/"+args[0]+"/claim", body)
	if err != nil {
		return err
	}

	var task map[string]interface{}
	if err := json.Unmarshal(resp, &task); err != nil {
		return err
	}

	fmt.Printf("Claimed task %s\n", args[0])
	fmt.Printf("Lease Until: %s\n", task["claim_expiry"])
	return nil
}

func runTaskRenew(cmd *cobra.Command, args []string) error {
	body := map[string]interface{}{
		"worker_id": workerID,
	}

	resp, err := apiPost("/tasks/"+args[0]+"/renew", body)
	if err != nil {
		return err
	}

	var task map[string]interface{}
	if err := json.Unmarshal(resp, &task); err != nil {
		return err
	}

	fmt.Printf("Renewed lease on %s\n", args[0])
	fmt.Printf("Lease Until: %s\n", task["claim_expiry"])
	return nil
}

func runTaskRelease(cmd *cobra.Command, args []string) error {
	body := map[string]interface{}{
		"worker_id": workerID,
		"outcome":   outcome,
	}

	_, err := apiPost("/tasks/"+args[0]+"/release", body)
	if err != nil {
		return err
	}

	fmt.Printf("Released task %s (%s)\n", args[0], outcome)
	return nil
}

func runTaskComplete(cmd *cobra.Command, args []string) error {
	body := map[string]interface{}{
		"worker_id": workerID,
		"summary":   summary,
		"artifacts": artifacts,
	}

	resp, err := apiPost("/tasks/"+args[0]+"/complete", body)
	if err != nil {
		return err
	}

	var claim map[string]interface{}
	if err := json.Unmarshal(resp, &claim); err != nil {
		return err
	}

	fmt.Printf("Completion claimed for %s\n", args[0])
	fmt.Printf("Claim ID: %s\n", claim["id"])
	return nil
}

func runTaskCancel(cmd *cobra.Command, args []string) error {
	_, err := apiPost("/tasks/"+args[0]+"/cancel", map[string]interface{}{})
	if err != nil {
		return err
	}

	fmt.Printf("Cancelled task %s\n", args[0])
	return nil
}

func runTaskResolve(cmd *cobra.Command, args []string) error {
	body := map[string]interface{}{
		"action":  resolveAct,
		"note":    resolveNote,
		"requeue": requeue,
	}

	resp, err := apiPost("/tasks/"+args[0]+"/resolve", body)
	if err != nil {
		return err
	}

	var res map[string]interface{}
	if err := json.Unmarshal(resp, &res); err != nil {
		return err
	}

	fmt.Printf("Resolved task %s: %s\n", args[0], res["action"])
	return nil
}

func runTaskTrail(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/tasks/" + args[0] + "/trail")
	if err != nil {
		return err
	}

	var trail struct {
		Task    map[string]interface{} `json:"task"`
		Reports []struct {
			ID         string  `json:"id"`
			Confidence float64 `json:"confidence"`
			Decision   string  `json:"decision"`
			Retried    bool    `json:"retried"`
			CreatedAt  string  `json:"created_at"`
		} `json:"reports"`
		Resolutions []struct {
			Action   string `json:"action"`
			Resolver string `json:"resolver"`
			Note     string `json:"note"`
		} `json:"resolutions"`
		Events []struct {
			Seq       int64  `json:"seq"`
			Actor     string `json:"actor"`
			Type      string `json:"type"`
			Timestamp string `json:"timestamp"`
		} `json:"events"`
	}
	if err := json.Unmarshal(resp, &trail); err != nil {
		return err
	}

	fmt.Printf("Task %s (%s) - %s\n\n", trail.Task["id"], trail.Task["title"], trail.Task["status"])

	if len(trail.Reports) > 0 {
		fmt.Println("Verification reports:")
		for _, r := range trail.Reports {
			suffix := ""
			if r.Retried {
				suffix = " (retried)"
			}
			fmt.Printf("  %s  confidence=%.3f  %s%s\n", truncateID(r.ID), r.Confidence, r.Decision, suffix)
		}
		fmt.Println()
	}

	if len(trail.Resolutions) > 0 {
		fmt.Println("Resolutions:")
		for _, r := range trail.Resolutions {
			line := fmt.Sprintf("  %s by %s", r.Action, r.Resolver)
			if r.Note != "" {
				line += ": " + r.Note
			}
			fmt.Println(line)
		}
		fmt.Println()
	}

	fmt.Println("Events:")
	for _, e := range trail.Events {
		fmt.Printf("  %6d  %-22s %-20s %s\n", e.Seq, e.Type, e.Actor, e.Timestamp)
	}
	return nil
}

// --- Helpers ---

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
