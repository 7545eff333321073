package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	masteryhttp "github.com/masterylab/mastery/internal/http"
	"github.com/masterylab/mastery/internal/log"
	internal_storage "github.com/masterylab/mastery/internal/storage"
	"github.com/masterylab/mastery/pkg/models"
	"github.com/masterylab/mastery/pkg/service"
)

func SetupCLI(rootCmd *cobra.Command) {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored masteries",
		Run: func(cmd *cobra.Command, args []string) {
			dbConnStr, err := cmd.Flags().GetString("db")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving db flag: %v", err)
				os.Exit(1)
			}
			store := initStore(dbConnStr)
			defer store.Close()
			svc := service.NewMasteryService(store, log.GetLogger())
			listMasteries(svc)
		},
	}

	executionsCmd := &cobra.Command{
		Use:   "executions [mastery]",
		Short: "List recorded mastery executions",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dbConnStr, err := cmd.Flags().GetString("db")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving db flag: %v", err)
				os.Exit(1)
			}
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving limit flag: %v", err)
				os.Exit(1)
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			store := initStore(dbConnStr)
			defer store.Close()
			svc := service.NewMasteryService(store, log.GetLogger())
			listExecutions(svc, name, limit)
		},
	}
	executionsCmd.Flags().Int("limit", 20, "Maximum number of executions to show")

	validateCmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a mastery definition YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			def, err := models.LoadMasteryDefinition(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if err := validateDefinition(def); err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid definition: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Definition '%s' version %s is valid (%d nodes)\n",
				def.Name, def.Version, len(def.Nodes))
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mastery HTTP server",
		Run: func(cmd *cobra.Command, args []string) {
			dbConnStr, err := cmd.Flags().GetString("db")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving db flag: %v", err)
				os.Exit(1)
			}
			port, err := cmd.Flags().GetString("port")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving port flag: %v", err)
				os.Exit(1)
			}
			store := initStore(dbConnStr)
			defer store.Close()
			if err := masteryhttp.StartServer(port, store); err != nil {
				log.GetLogger().Errorf("Server failed: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("port", "8080", "HTTP port to listen on")

	rootCmd.AddCommand(listCmd, executionsCmd, validateCmd, serveCmd)
}

func listMasteries(svc *service.MasteryService) {
	defs, err := svc.ListMasteries()
	if err != nil {
		log.GetLogger().Errorf("Failed to list masteries: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to list masteries: %v\n", err)
		os.Exit(1)
	}
	if len(defs) == 0 {
		fmt.Fprintf(os.Stdout, "No masteries found.\n")
		return
	}
	fmt.Fprintf(os.Stdout, "Masteries:\n")
	for _, def := range defs {
		fmt.Fprintf(os.Stdout, "- Name: %s, Version: %s, Nodes: %d, Created: %s\n",
			def.Name, def.Version, len(def.Nodes), def.CreatedAt.Format(time.RFC3339))
	}
}

func listExecutions(svc *service.MasteryService, name string, limit int) {
	recs, err := svc.ListExecutions(name, limit)
	if err != nil {
		log.GetLogger().Errorf("Failed to list executions: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to list executions: %v\n", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Fprintf(os.Stdout, "No executions found.\n")
		return
	}
	fmt.Fprintf(os.Stdout, "Executions:\n")
	for _, rec := range recs {
		fmt.Fprintf(os.Stdout, "- ID: %d, Mastery: %s@%s, Status: %s, Duration: %.1fms, Started: %s\n",
			rec.ID, rec.MasteryName, rec.MasteryVersion, rec.Status, rec.DurationMS,
			rec.StartedAt.Format(time.RFC3339))
	}
}

func validateDefinition(def *models.MasteryDefinition) error {
	if len(def.Nodes) == 0 {
		return fmt.Errorf("definition has no nodes")
	}
	if _, ok := def.Node(def.EntryNode); !ok {
		return fmt.Errorf("entry node '%s' not found", def.EntryNode)
	}
	for _, exit := range def.ExitNodes {
		if _, ok := def.Node(exit); !ok {
			return fmt.Errorf("exit node '%s' not found", exit)
		}
	}
	for _, n := range def.Nodes {
		for _, next := range n.Next {
			if _, ok := def.Node(next); !ok {
				return fmt.Errorf("node '%s' references unknown node '%s'", n.ID, next)
			}
		}
	}
	return nil
}

func initStore(dbConnStr string) *internal_storage.PostgresStore {
	store, err := internal_storage.NewPostgresStore(dbConnStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}
