package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// TODO: Inject version at build time.
const version = "0.0.1"

type config struct {
	serverHostname string
	serverPort     string
}

type cli struct {
	client  *http.Client
	baseURL string
}

func newCLI() *cli {
	return &cli{client: &http.Client{}}
}

func (c *cli) rootCmd() *cobra.Command {
	cfg := &config{}

	command := &cobra.Command{
		Use:          "buildhookctl",
		Short:        "CLI for interacting with a buildhook daemon",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.baseURL = "http://" + net.JoinHostPort(
				cfg.serverHostname,
				cfg.serverPort,
			)
		},
	}

	command.AddCommand(
		c.startCmd(),
		c.logsCmd(),
		c.statusCmd(),
	)

	command.CompletionOptions.HiddenDefaultCmd = true

	command.PersistentFlags().StringVar(
		&cfg.serverHostname,
		"server-hostname",
		"localhost",
		"Server hostname",
	)

	command.PersistentFlags().StringVar(
		&cfg.serverPort,
		"server-port",
		"8080",
		"Server port",
	)

	return command
}

type startResponse struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

func (c *cli) startCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "start JOB_NAME [EXTRA_ARGS]",
		Short:   "Start a new build job",
		Example: "  buildhookctl start live+da-cc verbose",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			for _, arg := range args[1:] {
				query.Add("arg", arg)
			}

			target := c.baseURL + "/start/" + args[0]
			if len(query) > 0 {
				target += "?" + query.Encode()
			}

			resp, err := c.post(cmd.Context(), target)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch resp.StatusCode {
			case http.StatusAccepted:
				var body startResponse
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
					return fmt.Errorf("decode response: %w", err)
				}

				cmd.OutOrStdout().Write([]byte(body.ID + "\n"))

				return nil

			case http.StatusConflict:
				var body startResponse
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
					return fmt.Errorf("decode response: %w", err)
				}

				return fmt.Errorf(
					"job %q is already running with id %s",
					body.Name,
					body.ID,
				)

			default:
				return serverError(resp)
			}
		},
	}

	return command
}

func (c *cli) logsCmd() *cobra.Command {
	var byID string

	command := &cobra.Command{
		Use:     "logs [JOB_NAME]",
		Short:   "Stream the log of a build job",
		Example: "  buildhookctl logs live+da-cc\n  buildhookctl logs --id 0b879f9e",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target string

			switch {
			case byID != "":
				target = c.baseURL + "/logs/by-id/" + byID
			case len(args) == 1:
				target = c.baseURL + "/logs/" + args[0]
			default:
				return fmt.Errorf("either JOB_NAME or --id is required")
			}

			resp, err := c.get(cmd.Context(), target)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return serverError(resp)
			}

			_, err = io.Copy(cmd.OutOrStdout(), resp.Body)

			return err
		},
	}

	command.Flags().StringVar(&byID, "id", "", "Attach to a specific run by id")

	return command
}

func (c *cli) statusCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "status JOB_NAME",
		Short:   "Show the status of a build job",
		Example: "  buildhookctl status live+da-cc",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.get(cmd.Context(), c.baseURL+"/jobs/"+args[0])
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return serverError(resp)
			}

			var body struct {
				ID        string `json:"id"`
				Name      string `json:"name"`
				State     string `json:"state"`
				ExitCode  int    `json:"exitCode"`
				StartedAt string `json:"startedAt"`
			}

			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "ID:\t%s\n", body.ID)
			fmt.Fprintf(w, "Name:\t%s\n", body.Name)
			fmt.Fprintf(w, "State:\t%s\n", body.State)
			fmt.Fprintf(w, "Exit code:\t%d\n", body.ExitCode)
			fmt.Fprintf(w, "Started at:\t%s\n", body.StartedAt)

			return w.Flush()
		},
	}

	return command
}

func (c *cli) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	return c.client.Do(req)
}

func (c *cli) post(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return nil, err
	}

	return c.client.Do(req)
}

// serverError turns a non-OK response into a readable error, preferring the
// server's own error message when the body carries one.
func serverError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("%s (%s)", body.Error, resp.Status)
	}

	return fmt.Errorf("server returned %s", resp.Status)
}
