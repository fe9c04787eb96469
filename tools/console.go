// Operator console for a running stronghold server. Read-mostly: it
// talks to the public HTTP API, it does not open the database.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var serverURL string

func main() {
	rootCmd := &cobra.Command{
		Use:   "console",
		Short: "Stronghold operator console",
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("STRONGHOLD_SERVER", "http://localhost:8000"), "server base URL")

	rootCmd.AddCommand(
		&cobra.Command{Use: "status", Short: "Show server status", RunE: runStatus},
		&cobra.Command{Use: "materials", Short: "List materials", RunE: runMaterials},
		&cobra.Command{Use: "players", Short: "List players", RunE: runPlayers},
		&cobra.Command{Use: "ticks", Short: "List resolved ticks", RunE: runTicks},
		&cobra.Command{
			Use:   "storage <player_id>",
			Short: "Show a player's material balances",
			Args:  cobra.ExactArgs(1),
			RunE:  runStorage,
		},
		&cobra.Command{Use: "tick", Short: "Advance the game clock", RunE: runTick},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getJSON(path string, out interface{}) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(serverURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runStatus(cmd *cobra.Command, args []string) error {
	var status struct {
		ServerID   string `json:"server_id"`
		Uptime     string `json:"uptime"`
		LastTickAt string `json:"last_tick_at"`
	}
	if err := getJSON("/v1/status", &status); err != nil {
		color.Red("Server unreachable: %v", err)
		return err
	}

	titleColor := color.New(color.FgCyan, color.Bold)
	titleColor.Println("Stronghold Server")
	fmt.Printf("   ID:        %s\n", status.ServerID)
	fmt.Printf("   Uptime:    %s\n", status.Uptime)
	if status.LastTickAt != "" {
		fmt.Printf("   Last tick: %s\n", status.LastTickAt)
	} else {
		fmt.Println("   Last tick: never")
	}
	return nil
}

func runMaterials(cmd *cobra.Command, args []string) error {
	var materials []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if err := getJSON("/v1/materials", &materials); err != nil {
		return err
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"ID", "Name"}),
	)
	for _, m := range materials {
		table.Append([]string{strconv.FormatInt(m.ID, 10), m.Name})
	}
	table.Render()
	return nil
}

func runPlayers(cmd *cobra.Command, args []string) error {
	var players []struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		RealmID *int64 `json:"realm_id"`
	}
	if err := getJSON("/v1/players", &players); err != nil {
		return err
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"ID", "Name", "Realm"}),
	)
	for _, p := range players {
		realm := "-"
		if p.RealmID != nil {
			realm = strconv.FormatInt(*p.RealmID, 10)
		}
		table.Append([]string{strconv.FormatInt(p.ID, 10), p.Name, realm})
	}
	table.Render()
	return nil
}

func runTicks(cmd *cobra.Command, args []string) error {
	var ticks []struct {
		ID        int64  `json:"id"`
		TickedAt  string `json:"ticked_at"`
		StateHash string `json:"state_hash"`
	}
	if err := getJSON("/v1/ticks", &ticks); err != nil {
		return err
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"ID", "Ticked At", "State Hash"}),
	)
	for _, t := range ticks {
		hash := t.StateHash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		table.Append([]string{strconv.FormatInt(t.ID, 10), t.TickedAt, hash})
	}
	table.Render()
	return nil
}

func runStorage(cmd *cobra.Command, args []string) error {
	var balances []struct {
		MaterialID int64 `json:"material_id"`
		Balance    int64 `json:"balance"`
	}
	if err := getJSON("/v1/players/"+args[0]+"/storage", &balances); err != nil {
		return err
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Material", "Balance"}),
	)
	for _, b := range balances {
		table.Append([]string{strconv.FormatInt(b.MaterialID, 10), strconv.FormatInt(b.Balance, 10)})
	}
	table.Render()
	return nil
}

func runTick(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(serverURL+"/v1/ticks", "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var tick struct {
			ID       int64  `json:"id"`
			TickedAt string `json:"ticked_at"`
		}
		json.NewDecoder(resp.Body).Decode(&tick)
		color.Green("Tick %d resolved at %s", tick.ID, tick.TickedAt)
	case http.StatusConflict:
		var conflict struct {
			Detail string `json:"detail"`
		}
		json.NewDecoder(resp.Body).Decode(&conflict)
		color.Yellow("%s", conflict.Detail)
	default:
		return fmt.Errorf("unexpected HTTP %d", resp.StatusCode)
	}
	return nil
}
