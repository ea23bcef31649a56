package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-tracker/internal/localstore"
	"github.com/ukydev/fleet-tracker/internal/reconcile"
	"github.com/ukydev/fleet-tracker/internal/workbook"
)

const usage = `usage: fleetctl <command> [flags]

commands:
  template [-o file]                      download the import template
  preview <file>                          check a workbook without importing it
  import <file> [-mode merge|replace] [-duplicates append|update] [-yes]
                                          import a workbook
  export [-o file]                        download the current data
  status                                  show the sync state
  backup                                  write a backup on the server

environment:
  API_BASE_URL      server address (default http://localhost:8080)
  FLEET_AUTH_TOKEN  bearer token of a signed-in user
`

var errUsage = errors.New("invalid usage")

type cli struct {
	api    *apiClient
	logger *log.Logger
	in     *bufio.Reader
	out    io.Writer
}

type previewResult struct {
	Summary  workbook.Summary  `json:"summary"`
	CanApply bool              `json:"canApply"`
	Prompts  map[string]string `json:"prompts"`
}

type applyResult struct {
	Stats   reconcile.Stats  `json:"stats"`
	Summary workbook.Summary `json:"summary"`
}

// parseArgs parses flags that may appear before or after positional
// arguments and returns the positionals.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func (c *cli) run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(c.out, usage)
		return errUsage
	}
	cmd, args := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(c.out)

	switch cmd {
	case "template":
		dest := fs.String("o", workbook.TemplateFileName, "output file")
		if _, err := parseArgs(fs, args); err != nil {
			return err
		}
		path, err := c.api.download("/api/import/template", *dest)
		if err != nil {
			return err
		}
		c.logger.WithField("file", path).Info("Template saved")
		return nil

	case "export":
		dest := fs.String("o", "", "output file (default: name suggested by the server)")
		if _, err := parseArgs(fs, args); err != nil {
			return err
		}
		path, err := c.api.download("/api/export", *dest)
		if err != nil {
			return err
		}
		c.logger.WithField("file", path).Info("Export saved")
		return nil

	case "preview":
		files, err := parseArgs(fs, args)
		if err != nil {
			return err
		}
		if len(files) != 1 {
			return fmt.Errorf("%w: preview needs exactly one file", errUsage)
		}
		preview, err := c.preview(files[0])
		if err != nil {
			return err
		}
		c.printSummary(preview.Summary)
		return nil

	case "import":
		mode := fs.String("mode", string(reconcile.ModeMerge), "merge or replace")
		duplicates := fs.String("duplicates", string(reconcile.DuplicateAppend), "append or update (merge only)")
		yes := fs.Bool("yes", false, "skip the confirmation prompt")
		files, err := parseArgs(fs, args)
		if err != nil {
			return err
		}
		if len(files) != 1 {
			return fmt.Errorf("%w: import needs exactly one file", errUsage)
		}
		return c.importFile(files[0], *mode, *duplicates, *yes)

	case "status":
		var status localstore.Status
		if err := c.api.getJSON(http.MethodGet, "/api/sync/status", &status); err != nil {
			return err
		}
		entry := c.logger.WithFields(log.Fields{
			"key":     status.Key,
			"state":   status.State,
			"pending": status.Pending,
		})
		if status.Session != "" {
			entry = entry.WithField("session", status.Session)
		}
		if status.LastSyncedAt != nil {
			entry = entry.WithField("last_synced", status.LastSyncedAt.Format("2006-01-02 15:04:05"))
		}
		if status.LastError != "" {
			entry.WithField("last_error", status.LastError).Warn("Sync status")
			return nil
		}
		entry.Info("Sync status")
		return nil

	case "backup":
		var out map[string]string
		if err := c.api.getJSON(http.MethodPost, "/api/backup", &out); err != nil {
			return err
		}
		c.logger.WithField("file", out["path"]).Info("Backup written on server")
		return nil

	case "help", "-h", "--help":
		fmt.Fprint(c.out, usage)
		return nil
	}

	fmt.Fprint(c.out, usage)
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func (c *cli) preview(file string) (previewResult, error) {
	var preview previewResult
	resp, err := c.api.upload("/api/import/preview", file)
	if err != nil {
		return preview, err
	}
	return preview, decodeResponse(resp, &preview)
}

func (c *cli) printSummary(s workbook.Summary) {
	c.logger.WithFields(log.Fields{
		"vehicles":        s.VehicleCount,
		"service_records": s.ServiceRecordCount,
		"warnings":        s.WarningCount,
		"errors":          s.ErrorCount,
	}).Info("Workbook checked")
	for _, e := range s.Errors {
		c.logger.Error(e)
	}
	for _, w := range s.Warnings {
		c.logger.Warn(w)
	}
}

func (c *cli) importFile(file, modeName, duplicatesName string, yes bool) error {
	mode, err := reconcile.ParseMode(modeName)
	if err != nil {
		return err
	}
	duplicates, err := reconcile.ParseDuplicatePolicy(duplicatesName)
	if err != nil {
		return err
	}

	preview, err := c.preview(file)
	if err != nil {
		return err
	}
	c.printSummary(preview.Summary)
	if !preview.CanApply {
		return fmt.Errorf("%w: fix the errors above and try again", reconcile.ErrImportHasErrors)
	}

	if !yes {
		fmt.Fprintf(c.out, "%s [y/N] ", preview.Prompts[string(mode)])
		answer, _ := c.in.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			return reconcile.ErrNotConfirmed
		}
	}

	q := url.Values{}
	q.Set("mode", string(mode))
	q.Set("duplicates", string(duplicates))
	q.Set("confirm", "true")
	resp, err := c.api.upload("/api/import/apply?"+q.Encode(), file)
	if err != nil {
		return err
	}
	var result applyResult
	if err := decodeResponse(resp, &result); err != nil {
		return err
	}
	c.logger.WithFields(log.Fields{
		"mode":             result.Stats.Mode,
		"vehicles_added":   result.Stats.VehiclesAdded,
		"vehicles_updated": result.Stats.VehiclesUpdated,
		"records_added":    result.Stats.RecordsAdded,
		"total_vehicles":   result.Stats.TotalVehicles,
		"total_records":    result.Stats.TotalRecords,
	}).Info("Import applied")
	return nil
}

func main() {
	baseURL := os.Getenv("API_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	logger := log.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	c := &cli{
		api:    newAPIClient(baseURL, os.Getenv("FLEET_AUTH_TOKEN")),
		logger: logger,
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
	if err := c.run(os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.WithError(err).Error("fleetctl failed")
		os.Exit(1)
	}
}
