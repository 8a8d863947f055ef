// cmd/sync-manager/clients.go
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"survey-sync/internal/models"
)

var (
	fieldArgs []string
	fieldFile string
)

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Manage locally created client records",
}

var clientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List client records",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, cleanup := bootstrap(ctx)
		defer cleanup()

		list := a.records.ReadAllClientRecords(ctx)
		if jsonOutput {
			printJSON(os.Stdout, list)
			return
		}
		printClients(os.Stdout, list)
	},
}

var clientsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a pending client record",
	Long: `Create a client record from --field key=value pairs and/or a JSON
object in --file. Values that parse as JSON keep their type.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		fields, err := collectFields(fieldArgs, fieldFile)
		if err != nil {
			fatal("%v", err)
		}

		a, cleanup := bootstrap(ctx)
		defer cleanup()

		id, err := a.records.CreateClientRecord(ctx, fields)
		if err != nil {
			fatal("create client: %v", err)
		}
		a.bus.NotifyChanged()
		fmt.Println(id)
	},
}

var clientsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change profile fields of a client record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		changes, err := collectFields(fieldArgs, fieldFile)
		if err != nil {
			fatal("%v", err)
		}

		a, cleanup := bootstrap(ctx)
		defer cleanup()

		rec, ok := a.records.GetClientRecord(ctx, args[0])
		if !ok {
			fatal("client %s not found", args[0])
		}
		if err := a.records.UpdateClientRecord(ctx, rec.ID, mergeFields(rec.Fields, changes)); err != nil {
			fatal("update client: %v", err)
		}
		a.bus.NotifyChanged()
	},
}

var clientsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a client record and its answers",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, cleanup := bootstrap(ctx)
		defer cleanup()

		if err := a.records.DeleteClientRecord(ctx, args[0]); err != nil {
			fatal("delete client: %v", err)
		}
		a.bus.NotifyChanged()
	},
}

var answersCmd = &cobra.Command{
	Use:   "answers",
	Short: "Manage survey answers of client records",
}

var answersSetCmd = &cobra.Command{
	Use:   "set <client-id> <file|->",
	Short: "Replace the answer bundle of a client record",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		raw, err := readInput(args[1])
		if err != nil {
			fatal("%v", err)
		}
		var bundle models.AnswerBundle
		if err := json.Unmarshal(raw, &bundle); err != nil {
			fatal("invalid answer bundle: %v", err)
		}

		a, cleanup := bootstrap(ctx)
		defer cleanup()

		if _, ok := a.records.GetClientRecord(ctx, args[0]); !ok {
			fatal("client %s not found", args[0])
		}
		if err := a.records.SaveAnswerBundle(ctx, args[0], bundle); err != nil {
			fatal("save answers: %v", err)
		}
	},
}

var answersShowCmd = &cobra.Command{
	Use:   "show <client-id>",
	Short: "Print the answer bundle of a client record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, cleanup := bootstrap(ctx)
		defer cleanup()

		bundle, ok := a.records.ReadAnswerBundle(ctx, args[0])
		if !ok {
			fatal("no answers for client %s", args[0])
		}
		printJSON(os.Stdout, bundle)
	},
}

func init() {
	for _, c := range []*cobra.Command{clientsAddCmd, clientsUpdateCmd} {
		c.Flags().StringArrayVarP(&fieldArgs, "field", "f", nil, "Profile field as key=value (repeatable)")
		c.Flags().StringVar(&fieldFile, "file", "", "JSON object with profile fields, - for stdin")
	}

	clientsCmd.AddCommand(clientsListCmd, clientsAddCmd, clientsUpdateCmd, clientsDeleteCmd)
	answersCmd.AddCommand(answersSetCmd, answersShowCmd)
	rootCmd.AddCommand(clientsCmd)
	rootCmd.AddCommand(answersCmd)
}

// collectFields merges the JSON object in file (if any) with key=value
// pairs; pairs win on conflicts.
func collectFields(pairs []string, file string) (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	if file != "" {
		raw, err := readInput(file)
		if err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return nil, fmt.Errorf("invalid fields file: %w", err)
		}
		if fields == nil {
			fields = map[string]interface{}{}
		}
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, expected key=value", pair)
		}
		fields[key] = fieldValue(value)
	}
	return fields, nil
}

// fieldValue keeps numbers, booleans and JSON literals typed; anything else
// is text.
func fieldValue(raw string) interface{} {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	return v
}

func mergeFields(base, changes map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(changes))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range changes {
		out[k] = v
	}
	return out
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}

func printClients(w io.Writer, list []models.ClientRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCREATED\tSYNCED")
	for _, rec := range list {
		synced := rec.SyncedAt
		if rec.IsPending() {
			synced = "pending"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.ID, rec.Field("nombre"), rec.CreatedAt, synced)
	}
	_ = tw.Flush()
}
